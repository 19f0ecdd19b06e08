package ports

import (
	"context"

	"meetrec/internal/domain"
)

// AudioConfig describes how a source should be captured.
type AudioConfig struct {
	SampleRate  int
	InputFormat string
	InputDevice string
}

// AudioSource is one acquired hardware stream with a single track.
type AudioSource interface {
	Kind() domain.SourceKind
	// ReadSamples fills buf with mono float samples.
	ReadSamples(buf []float32) (int, error)
	Active() bool
	Stop() error
}

// Mixer combines acquired sources into one interleaved stream.
type Mixer interface {
	Output() <-chan domain.AudioFrame
	Channels() int
	Close() error
}

// RecorderOptions selects the output encoding of a recorder.
type RecorderOptions struct {
	SampleRate int
	Channels   int
}

// Recorder chunks the combined stream and finalizes it into a blob.
type Recorder interface {
	Start() error
	Write(frame domain.AudioFrame) error
	Stop(ctx context.Context) (domain.Blob, error)
	MimeType() string
}

// Analyser exposes energy and spectral levels of the combined stream.
type Analyser interface {
	Write(frame domain.AudioFrame)
	Levels() domain.AudioLevels
}

// Platform creates the capture primitives for one target platform.
type Platform interface {
	AcquireSource(ctx context.Context, kind domain.SourceKind) (AudioSource, error)
	CreateMixer(sources []AudioSource) (Mixer, error)
	CreateRecorder(opts RecorderOptions) (Recorder, error)
	CreateAnalyser() (Analyser, error)
}

// EncoderOptions describes the encoding a recorder requests.
type EncoderOptions struct {
	MimeType   string
	Bitrate    int
	SampleRate int
	Channels   int
}

// Encoder turns PCM frames into an encoded byte stream.
type Encoder interface {
	Encode(frame domain.AudioFrame) error
	// Drain returns the bytes produced since the previous call.
	Drain() []byte
	// Close flushes the encoder and returns the remaining bytes.
	Close() ([]byte, error)
}

// EncoderFactory reports supported formats and builds encoders.
type EncoderFactory interface {
	Supports(mimeType string) bool
	NewEncoder(opts EncoderOptions) (Encoder, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate int
	Encoding   string
	WordBoost  []string
}

// StreamingSession is an active realtime transcription channel.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider opens realtime transcription channels.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// TokenProvider fetches short-lived channel credentials from a trusted backend.
type TokenProvider interface {
	FetchToken(ctx context.Context) (string, error)
}

// UploadRequest is one finalized recording to store.
type UploadRequest struct {
	MeetingID string
	SessionID string
	Blob      domain.Blob
}

// UploadSink stores finalized recordings and returns their URL.
type UploadSink interface {
	Upload(ctx context.Context, req UploadRequest) (string, error)
}

// EventSink receives lifecycle, transcript and watchdog events.
type EventSink interface {
	StateChanged(state domain.LifecycleState, reason domain.StopReason)
	RecordingStateChanged(isRecording bool)
	TranscriptUpdated(text string, committed bool)
	AudioURLUpdated(url string)
	WarningChanged(warning domain.Warning)
	ElapsedChanged(seconds int)
	SessionError(code domain.ErrorCode, detail string)
}
