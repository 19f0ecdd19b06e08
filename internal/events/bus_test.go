package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
)

type recordingSink struct {
	Nop
	calls []string
}

func (r *recordingSink) StateChanged(state domain.LifecycleState, _ domain.StopReason) {
	r.calls = append(r.calls, "state:"+string(state))
}

func (r *recordingSink) TranscriptUpdated(text string, committed bool) {
	if committed {
		r.calls = append(r.calls, "final:"+text)
		return
	}
	r.calls = append(r.calls, "partial:"+text)
}

func TestBusFansOutInOrder(t *testing.T) {
	t.Parallel()

	first, second := &recordingSink{}, &recordingSink{}
	bus := NewBus(first, nil)
	bus.Subscribe(second)

	bus.StateChanged(domain.StateRecording, domain.StopReasonNone)
	bus.TranscriptUpdated("hi", false)
	bus.TranscriptUpdated("Hi.", true)
	bus.ElapsedChanged(3)

	want := []string{"state:recording", "partial:hi", "final:Hi."}
	assert.Equal(t, want, first.calls)
	assert.Equal(t, want, second.calls)
}

func TestFuncsIgnoresMissingCallbacks(t *testing.T) {
	t.Parallel()

	var got []domain.Warning
	var sink ports.EventSink = Funcs{OnWarning: func(w domain.Warning) { got = append(got, w) }}
	assert.NotPanics(t, func() {
		sink.StateChanged(domain.StateStopped, domain.StopReasonManual)
		sink.SessionError(domain.ErrorCodeUnknown, "x")
		sink.WarningChanged(domain.Warning{Kind: domain.WarningSilence, Active: true, Countdown: 60})
	})
	assert.Len(t, got, 1)
}
