package refresh

import (
	"context"
	"sync"
	"time"

	"facetrack/internal/pipeline"
)

// DefaultHz is the refresh rate used when none is configured
const DefaultHz = 60

// VSync fires queued frame callbacks once per refresh tick
// Callbacks requested while a tick is firing run on the following tick. A
// callback that outlasts the interval makes the ticker drop ticks, so the
// effective rate follows the work, never exceeding the display rate.
type VSync struct {
	interval time.Duration
	pending  []func(time.Time)
	ticks    uint64
	mu       sync.Mutex
}

// NewVSync creates a refresh source at hz ticks per second
func NewVSync(hz int) *VSync {
	if hz <= 0 {
		hz = DefaultHz
	}
	return &VSync{
		interval: time.Second / time.Duration(hz),
	}
}

func (v *VSync) RequestFrame(cb func(now time.Time)) {
	v.mu.Lock()
	v.pending = append(v.pending, cb)
	v.mu.Unlock()
}

// Run drives the ticks until ctx is done, pending callbacks are discarded on exit
func (v *VSync) Run(ctx context.Context) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			v.mu.Lock()
			v.pending = nil
			v.mu.Unlock()
			return
		case now := <-ticker.C:
			v.fire(now)
		}
	}
}

func (v *VSync) fire(now time.Time) {
	v.mu.Lock()
	callbacks := v.pending
	v.pending = nil
	v.ticks++
	v.mu.Unlock()

	for _, cb := range callbacks {
		cb(now)
	}
}

// Interval returns the tick interval
func (v *VSync) Interval() time.Duration {
	return v.interval
}

// Pending returns the number of queued callbacks
func (v *VSync) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

var _ pipeline.Scheduler = (*VSync)(nil)
