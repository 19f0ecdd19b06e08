package domain

import (
	"fmt"
	"time"
)

// LifecycleState models the recording lifecycle.
type LifecycleState string

const (
	StateIdle      LifecycleState = "idle"
	StateAcquiring LifecycleState = "acquiring"
	StateRecording LifecycleState = "recording"
	StateStopping  LifecycleState = "stopping"
	StateStopped   LifecycleState = "stopped"
	StateError     LifecycleState = "error"
)

// StopReason explains why a session left the recording state.
type StopReason string

const (
	StopReasonNone     StopReason = ""
	StopReasonManual   StopReason = "manual"
	StopReasonSilence  StopReason = "silence"
	StopReasonDuration StopReason = "duration"
)

// SourceKind identifies an acquired audio source.
type SourceKind string

const (
	SourceMicrophone SourceKind = "microphone"
	SourceSystem     SourceKind = "system"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind      TranscriptKind `json:"kind"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
}

// TranscriptState is the reconciled transcript of one session.
type TranscriptState struct {
	Confirmed string `json:"confirmed"`
	Pending   string `json:"pending"`
}

// WarningKind names a watchdog.
type WarningKind string

const (
	WarningSilence  WarningKind = "silence"
	WarningDuration WarningKind = "duration"
)

// Warning is the visible state of a watchdog countdown.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	Active    bool        `json:"active"`
	Countdown int         `json:"countdown"`
}

// AudioFrame is a block of interleaved float samples.
type AudioFrame struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames returns the number of sample frames in the block.
func (f AudioFrame) Frames() int {
	if f.Channels <= 0 {
		return len(f.Samples)
	}
	return len(f.Samples) / f.Channels
}

// Mono averages all channels into a single channel.
func (f AudioFrame) Mono() []float32 {
	if f.Channels <= 1 {
		return f.Samples
	}
	out := make([]float32, f.Frames())
	scale := 1 / float32(f.Channels)
	for i := range out {
		var sum float32
		base := i * f.Channels
		for c := 0; c < f.Channels; c++ {
			sum += f.Samples[base+c]
		}
		out[i] = sum * scale
	}
	return out
}

// AudioLevels is one analyser snapshot.
type AudioLevels struct {
	Decibels         float64 `json:"decibels"`
	AverageFrequency float64 `json:"averageFrequency"`
}

// Blob is a finalized recording.
type Blob struct {
	MimeType string
	Data     []byte
	Chunks   int
}

// StopResult is returned once recording is stopped and the audio is finalized.
type StopResult struct {
	SessionID  string        `json:"sessionId"`
	Reason     StopReason    `json:"reason"`
	Transcript string        `json:"transcript"`
	AudioURL   string        `json:"audioUrl,omitempty"`
	MimeType   string        `json:"mimeType,omitempty"`
	AudioBytes int           `json:"audioBytes"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Status summarizes the current runtime status.
type Status struct {
	State     LifecycleState `json:"state"`
	Active    bool           `json:"active"`
	SessionID string         `json:"sessionId,omitempty"`
	Elapsed   int            `json:"elapsed"`
	Sources   []SourceKind   `json:"sources,omitempty"`
	Warnings  []Warning      `json:"warnings,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// FormatElapsed renders seconds as m:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
