package inference

import "time"

// Throttle enforces a minimum wall-clock spacing between inferences. The
// first call is always allowed.
type Throttle struct {
	interval time.Duration
	last     time.Time
	ran      bool
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Allow reports whether an inference may run at now: now-last >= interval.
func (t *Throttle) Allow(now time.Time) bool {
	return !t.ran || now.Sub(t.last) >= t.interval
}

// Mark records an inference at now.
func (t *Throttle) Mark(now time.Time) {
	t.last = now
	t.ran = true
}

// Try is Allow followed by Mark when allowed.
func (t *Throttle) Try(now time.Time) bool {
	if !t.Allow(now) {
		return false
	}
	t.Mark(now)
	return true
}
