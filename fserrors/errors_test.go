package fserrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors_SetKind(t *testing.T) {
	cause := errors.New("boom")

	cases := []struct {
		name string
		err  *Error
		want Kind
	}{
		{"Structural", Structural("lookup", cause), KindStructural},
		{"Backend", Backend("readdir", cause), KindBackend},
		{"Resource", Resource("open", cause), KindResource},
		{"Policy", Policy("rmdir", cause), KindPolicy},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.err.Kind)
			assert.Same(t, cause, c.err.Unwrap())
		})
	}
}

func TestError_UnwrapsWithErrorsIs(t *testing.T) {
	sentinel := errors.New("not found")
	wrapped := Structural("lookup", sentinel)
	assert.True(t, errors.Is(wrapped, sentinel))
}

func TestError_MessageIncludesOpAndKind(t *testing.T) {
	err := Backend("readdir", errors.New("timeout"))
	msg := err.Error()
	assert.Contains(t, msg, "readdir")
	assert.Contains(t, msg, "backend")
	assert.Contains(t, msg, "timeout")
}

func TestError_NilCauseStillFormats(t *testing.T) {
	err := New(KindPolicy, "rename", nil)
	assert.Equal(t, "rename: policy", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "structural", KindStructural.String())
	assert.Equal(t, "backend", KindBackend.String())
	assert.Equal(t, "resource", KindResource.String())
	assert.Equal(t, "policy", KindPolicy.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
