package clock

import "time"

// Clock lets services take "now" from the caller instead of the wall.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a settable clock for tests.
type Manual struct {
	now time.Time
}

// NewFixed returns a clock that stays at t until advanced.
func NewFixed(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

func (m *Manual) Now() time.Time {
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

// OrSystem returns c, or the system clock if c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return NewSystem()
	}
	return c
}
