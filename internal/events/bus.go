// Package events fans lifecycle notifications out to several sinks.
package events

import (
	"sync"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
)

// Bus implements ports.EventSink by forwarding every call to each
// subscribed sink in subscription order.
type Bus struct {
	mu    sync.RWMutex
	sinks []ports.EventSink
}

func NewBus(sinks ...ports.EventSink) *Bus {
	b := &Bus{}
	for _, sink := range sinks {
		b.Subscribe(sink)
	}
	return b
}

// Subscribe adds a sink. Nil sinks are ignored.
func (b *Bus) Subscribe(sink ports.EventSink) {
	if sink == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, sink)
	b.mu.Unlock()
}

func (b *Bus) each(fn func(ports.EventSink)) {
	b.mu.RLock()
	sinks := append([]ports.EventSink(nil), b.sinks...)
	b.mu.RUnlock()
	for _, sink := range sinks {
		fn(sink)
	}
}

func (b *Bus) StateChanged(state domain.LifecycleState, reason domain.StopReason) {
	b.each(func(s ports.EventSink) { s.StateChanged(state, reason) })
}

func (b *Bus) RecordingStateChanged(isRecording bool) {
	b.each(func(s ports.EventSink) { s.RecordingStateChanged(isRecording) })
}

func (b *Bus) TranscriptUpdated(text string, committed bool) {
	b.each(func(s ports.EventSink) { s.TranscriptUpdated(text, committed) })
}

func (b *Bus) AudioURLUpdated(url string) {
	b.each(func(s ports.EventSink) { s.AudioURLUpdated(url) })
}

func (b *Bus) WarningChanged(warning domain.Warning) {
	b.each(func(s ports.EventSink) { s.WarningChanged(warning) })
}

func (b *Bus) ElapsedChanged(seconds int) {
	b.each(func(s ports.EventSink) { s.ElapsedChanged(seconds) })
}

func (b *Bus) SessionError(code domain.ErrorCode, detail string) {
	b.each(func(s ports.EventSink) { s.SessionError(code, detail) })
}

// Nop discards every event. Embed it to implement only some callbacks.
type Nop struct{}

func (Nop) StateChanged(domain.LifecycleState, domain.StopReason) {}
func (Nop) RecordingStateChanged(bool)                            {}
func (Nop) TranscriptUpdated(string, bool)                        {}
func (Nop) AudioURLUpdated(string)                                {}
func (Nop) WarningChanged(domain.Warning)                         {}
func (Nop) ElapsedChanged(int)                                    {}
func (Nop) SessionError(domain.ErrorCode, string)                 {}

// Funcs adapts optional callbacks to ports.EventSink.
type Funcs struct {
	OnState      func(domain.LifecycleState, domain.StopReason)
	OnTranscript func(text string, committed bool)
	OnAudioURL   func(string)
	OnWarning    func(domain.Warning)
	OnElapsed    func(int)
	OnError      func(domain.ErrorCode, string)
}

func (f Funcs) StateChanged(state domain.LifecycleState, reason domain.StopReason) {
	if f.OnState != nil {
		f.OnState(state, reason)
	}
}

func (f Funcs) RecordingStateChanged(bool) {}

func (f Funcs) TranscriptUpdated(text string, committed bool) {
	if f.OnTranscript != nil {
		f.OnTranscript(text, committed)
	}
}

func (f Funcs) AudioURLUpdated(url string) {
	if f.OnAudioURL != nil {
		f.OnAudioURL(url)
	}
}

func (f Funcs) WarningChanged(w domain.Warning) {
	if f.OnWarning != nil {
		f.OnWarning(w)
	}
}

func (f Funcs) ElapsedChanged(seconds int) {
	if f.OnElapsed != nil {
		f.OnElapsed(seconds)
	}
}

func (f Funcs) SessionError(code domain.ErrorCode, detail string) {
	if f.OnError != nil {
		f.OnError(code, detail)
	}
}
