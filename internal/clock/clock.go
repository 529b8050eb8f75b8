// Package clock injects "now" as a one-method capability so services and
// entities never call time.Now() directly, matching the original
// application::clock::Clock trait.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Fixed is a Clock that always returns the same instant, for tests.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }
