// Package monitor implements the silence and duration watchdogs. Each raises a
// warning with a countdown and requests an auto-stop when the countdown ends.
package monitor

import (
	"time"

	"meetrec/internal/domain"
)

// Hooks receive monitor notifications. Hooks run on scheduler goroutines and
// must not stop the monitor synchronously.
type Hooks struct {
	OnWarning  func(domain.Warning)
	OnAutoStop func(domain.StopReason)
	OnElapsed  func(seconds int)
}

func (h Hooks) warning(w domain.Warning) {
	if h.OnWarning != nil {
		h.OnWarning(w)
	}
}

func (h Hooks) autoStop(reason domain.StopReason) {
	if h.OnAutoStop != nil {
		h.OnAutoStop(reason)
	}
}

func (h Hooks) elapsed(seconds int) {
	if h.OnElapsed != nil {
		h.OnElapsed(seconds)
	}
}

func countdownSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
