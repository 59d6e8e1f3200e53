package control

import "time"

// Clock reports elapsed time since the loop started
type Clock interface {
	Now() time.Duration
}

// SystemClock is a Clock backed by the monotonic wall clock
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a clock at zero
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() time.Duration { return time.Since(c.start) }

// pollGate is a non-blocking elapsed-time check. Times are truncated to
// resolution before comparing, so a millisecond gate only sees whole
// milliseconds.
type pollGate struct {
	period     time.Duration
	resolution time.Duration
	last       time.Duration
}

func newPollGate(period, resolution time.Duration) pollGate {
	return pollGate{period: period, resolution: resolution}
}

// poll fires, and rearms, once strictly more than period has elapsed
func (g *pollGate) poll(now time.Duration) bool {
	now = now.Truncate(g.resolution)
	if now-g.last > g.period {
		g.last = now
		return true
	}
	return false
}
