package refresh

import (
	"sync"
	"time"

	"facetrack/internal/pipeline"
)

// Manual is a step-driven refresh source
// Nothing runs until Step is called, which makes loop behavior deterministic.
type Manual struct {
	now     time.Time
	step    time.Duration
	pending []func(time.Time)
	mu      sync.Mutex
}

// NewManual creates a manual source whose clock starts at start and advances by step per Step
func NewManual(start time.Time, step time.Duration) *Manual {
	if step <= 0 {
		step = time.Second / DefaultHz
	}
	return &Manual{now: start, step: step}
}

func (m *Manual) RequestFrame(cb func(now time.Time)) {
	m.mu.Lock()
	m.pending = append(m.pending, cb)
	m.mu.Unlock()
}

// Step fires the callbacks queued before the call and returns how many ran
func (m *Manual) Step() int {
	m.mu.Lock()
	m.now = m.now.Add(m.step)
	now := m.now
	callbacks := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(now)
	}
	return len(callbacks)
}

// Drain steps until nothing is pending or max steps ran, returning the steps taken
func (m *Manual) Drain(max int) int {
	steps := 0
	for steps < max && m.Pending() > 0 {
		m.Step()
		steps++
	}
	return steps
}

// Pending returns the number of queued callbacks
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Now returns the time of the last step
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

var _ pipeline.Scheduler = (*Manual)(nil)
