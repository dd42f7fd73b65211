package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimulatedClock_NowReflectsAdvanceAndSet(t *testing.T) {
	start := time.Unix(1000, 0)
	sc := NewSimulatedClock(start)
	assert.Equal(t, start, sc.Now())

	sc.AdvanceTime(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), sc.Now())

	later := time.Unix(5000, 0)
	sc.SetTime(later)
	assert.Equal(t, later, sc.Now())
}

func TestSimulatedClock_AfterFiresOnAdvance(t *testing.T) {
	sc := NewSimulatedClock(time.Unix(0, 0))
	ch := sc.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("After must not fire before the target time is reached")
	default:
	}

	sc.AdvanceTime(10 * time.Second)
	select {
	case fired := <-ch:
		assert.Equal(t, sc.Now(), fired)
	default:
		t.Fatal("After should have fired once the simulated time reached its target")
	}
}

func TestSimulatedClock_AfterNonPositiveDurationFiresImmediately(t *testing.T) {
	sc := NewSimulatedClock(time.Unix(42, 0))
	ch := sc.After(0)
	select {
	case fired := <-ch:
		assert.Equal(t, sc.Now(), fired)
	default:
		t.Fatal("a zero duration After must fire immediately")
	}
}
