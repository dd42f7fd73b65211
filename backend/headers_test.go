package backend

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHeadHeaders_PlainFile(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Length", "1024")
	h.Set("Content-Type", "text/plain")
	h.Set("ETag", `"abc123"`)
	h.Set("x-amz-version-id", "v1")

	r := ParseHeadHeaders(h)
	assert.Equal(t, uint64(1024), r.Size)
	assert.False(t, r.IsDirectory)
	assert.Equal(t, "text/plain", r.ContentType)
	assert.Equal(t, "abc123", r.ETag)
	assert.Equal(t, "v1", r.VersionID)
	assert.Nil(t, r.Mode)
	assert.Nil(t, r.Ctime)
}

func TestParseHeadHeaders_DirectoryMarker(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/x-directory")

	r := ParseHeadHeaders(h)
	assert.True(t, r.IsDirectory)
	assert.Equal(t, uint64(0), r.Size)
}

func TestParseHeadHeaders_NegativeOrZeroContentLengthIgnored(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Length", "0")
	r := ParseHeadHeaders(h)
	assert.Equal(t, uint64(0), r.Size)

	h2 := http.Header{}
	h2.Set("Content-Length", "not-a-number")
	r2 := ParseHeadHeaders(h2)
	assert.Equal(t, uint64(0), r2.Size)

	h3 := http.Header{}
	h3.Set("Content-Length", "-5")
	r3 := ParseHeadHeaders(h3)
	assert.Equal(t, uint64(0), r3.Size)
}

func TestParseHeadHeaders_ModeOverride(t *testing.T) {
	h := http.Header{}
	h.Set("x-amz-meta-mode", "420") // 0644 decimal
	r := ParseHeadHeaders(h)
	if assert.NotNil(t, r.Mode) {
		assert.Equal(t, uint32(420), *r.Mode)
	}
}

func TestParseHeadHeaders_DateOverride(t *testing.T) {
	h := http.Header{}
	h.Set("x-amz-meta-date", "Mon, 02 Jan 2006 15:04:05 -0700")
	r := ParseHeadHeaders(h)
	if assert.NotNil(t, r.Ctime) {
		assert.Equal(t, 2006, r.Ctime.Year())
	}
}

func TestFindHeader_AbsentReportsFalse(t *testing.T) {
	h := http.Header{}
	_, ok := FindHeader(h, "X-Missing")
	assert.False(t, ok)
}
