// Package clock provides an injectable source of time, so that age-based
// cache and TTL logic can be driven deterministically in tests.
package clock

import "time"

// Clock is a source of time and of timers. RealClock is used in production;
// SimulatedClock is used in tests that need to assert on TTL/age behavior
// without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}
