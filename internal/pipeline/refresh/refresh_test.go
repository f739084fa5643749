package refresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVSyncDefersNestedRequests(t *testing.T) {
	t.Parallel()

	v := NewVSync(200)
	assert.Equal(t, 5*time.Millisecond, v.Interval())

	var fired atomic.Int32
	var nested atomic.Int32
	v.RequestFrame(func(time.Time) {
		fired.Add(1)
		v.RequestFrame(func(time.Time) { nested.Add(1) })
	})

	// Without Run nothing fires
	assert.Equal(t, 1, v.Pending())
	v.fire(time.Now())
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, int32(0), nested.Load())
	assert.Equal(t, 1, v.Pending())

	v.fire(time.Now())
	assert.Equal(t, int32(1), nested.Load())
	assert.Zero(t, v.Pending())
}

func TestVSyncRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	v := NewVSync(0)
	assert.Equal(t, time.Second/DefaultHz, v.Interval())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		v.Run(ctx)
		close(done)
	}()

	ticks := make(chan time.Time, 1)
	v.RequestFrame(func(now time.Time) { ticks <- now })
	select {
	case now := <-ticks:
		assert.False(t, now.IsZero())
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}

	cancel()
	<-done
	v.RequestFrame(func(time.Time) {})
	assert.Equal(t, 1, v.Pending())
}

func TestManualSteps(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start, 10*time.Millisecond)
	assert.Zero(t, m.Step())

	var times []time.Time
	var loop func(time.Time)
	loop = func(now time.Time) {
		times = append(times, now)
		if len(times) < 3 {
			m.RequestFrame(loop)
		}
	}
	m.RequestFrame(loop)

	require.Equal(t, 3, m.Drain(10))
	require.Len(t, times, 3)
	assert.Equal(t, start.Add(20*time.Millisecond), times[0])
	assert.Equal(t, start.Add(40*time.Millisecond), times[2])
	assert.Equal(t, start.Add(40*time.Millisecond), m.Now())
	assert.Zero(t, m.Pending())
}
