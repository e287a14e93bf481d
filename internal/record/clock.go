package record

import "time"

// Clock supplies wall-clock time for capture stamps.
// Implemented by SystemClock (production) and testutil.FakeClock (tests).
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
