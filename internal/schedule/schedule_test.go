package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealEveryRunsUntilCancelled(t *testing.T) {
	t.Parallel()

	var ticks atomic.Int32
	h := NewReal().Every(5*time.Millisecond, func() { ticks.Add(1) })

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	h.Cancel()
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "callback ran after Cancel returned")
}

func TestRealCancelWaitsForRunningCallback(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var finished atomic.Bool
	h := NewReal().After(time.Millisecond, func() {
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	<-started
	h.Cancel()
	assert.True(t, finished.Load(), "Cancel returned while callback was running")
}

func TestRealAfterCancelledBeforeDue(t *testing.T) {
	t.Parallel()

	var fired atomic.Bool
	h := NewReal().After(20*time.Millisecond, func() { fired.Store(true) })
	h.Cancel()
	h.Cancel()
	time.Sleep(40 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestManualFiresInDueOrder(t *testing.T) {
	t.Parallel()

	m := NewManual(time.Unix(0, 0))
	var order []string
	m.After(2*time.Second, func() { order = append(order, "after") })
	m.Every(time.Second, func() { order = append(order, "tick") })

	m.Advance(3 * time.Second)
	assert.Equal(t, []string{"tick", "after", "tick", "tick"}, order)
	assert.Equal(t, time.Unix(3, 0), m.Now())
	assert.Equal(t, 1, m.Pending())
}

func TestManualCancelFromAnotherCallback(t *testing.T) {
	t.Parallel()

	m := NewManual(time.Unix(0, 0))
	count := 0
	ticker := m.Every(time.Second, func() { count++ })
	m.After(2500*time.Millisecond, func() { ticker.Cancel() })

	m.Advance(10 * time.Second)
	assert.Equal(t, 2, count)
	assert.Equal(t, 0, m.Pending())
}

func TestManualTaskScheduledDuringAdvance(t *testing.T) {
	t.Parallel()

	m := NewManual(time.Unix(0, 0))
	fired := false
	m.After(time.Second, func() {
		m.After(time.Second, func() { fired = true })
	})

	m.Advance(2 * time.Second)
	assert.True(t, fired)
}
