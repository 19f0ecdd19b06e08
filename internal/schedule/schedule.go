// Package schedule runs cancellable timers.
//
// Cancel is synchronous: once it returns the callback is not running and
// will not run again. A callback must not cancel its own handle.
package schedule

import (
	"sync"
	"time"
)

// Handle cancels a scheduled task.
type Handle interface {
	Cancel()
}

// Scheduler creates one-shot and repeating tasks.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func()) Handle
	Every(d time.Duration, fn func()) Handle
}

// Real schedules tasks on wall-clock timers.
type Real struct{}

func NewReal() Real {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) After(d time.Duration, fn func()) Handle {
	t := newTask(fn)
	timer := time.NewTimer(d)
	go func() {
		defer timer.Stop()
		select {
		case <-t.stop:
		case <-timer.C:
			t.run()
		}
	}()
	return t
}

func (Real) Every(d time.Duration, fn func()) Handle {
	t := newTask(fn)
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				t.run()
			}
		}
	}()
	return t
}

type task struct {
	fn   func()
	stop chan struct{}

	stopOnce sync.Once

	// runMu is held for the whole callback so Cancel can wait it out.
	runMu     sync.Mutex
	cancelled bool
}

func newTask(fn func()) *task {
	return &task{fn: fn, stop: make(chan struct{})}
}

func (t *task) run() {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.cancelled {
		return
	}
	t.fn()
}

func (t *task) Cancel() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	t.runMu.Lock()
	t.cancelled = true
	t.runMu.Unlock()
}

// Nop is a handle with nothing to cancel.
type Nop struct{}

func (Nop) Cancel() {}
