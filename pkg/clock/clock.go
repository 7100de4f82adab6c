// Package clock provides the "current timestamp" capability the LWW set
// depends on. Readings must be totally ordered; Monotonic additionally makes
// them strictly increasing per instance.
package clock

import (
	"sync"
	"time"
)

// Clock returns the timestamp used for an event when the caller does not
// supply one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System returns the wall clock. The monotonic reading is stripped so that
// timestamps compare the same way before and after they cross the wire.
func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().Round(0) }

// Monotonic wraps a clock and never returns a reading that is equal to or
// before the previous one. Ties and backwards steps are bumped by 1ns.
type Monotonic struct {
	base Clock

	mu   sync.Mutex
	last time.Time
}

// NewMonotonic wraps base; a nil base means the system clock.
func NewMonotonic(base Clock) *Monotonic {
	if base == nil {
		base = System()
	}
	return &Monotonic{base: base}
}

// Now returns the next strictly increasing reading.
func (m *Monotonic) Now() time.Time {
	now := m.base.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.last.IsZero() && !now.After(m.last) {
		now = m.last.Add(time.Nanosecond)
	}
	m.last = now
	return now
}

// Manual is a deterministic clock for tests and simulations. Every call to
// Now returns the current reading and then advances it by step.
type Manual struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewManual starts at start and advances by step on each Now call.
func NewManual(start time.Time, step time.Duration) *Manual {
	return &Manual{now: start, step: step}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now
	m.now = m.now.Add(m.step)
	return now
}

// Peek returns the next reading without advancing.
func (m *Manual) Peek() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set jumps the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
