// Package recorder buffers the combined stream into timed chunks and joins
// them into one blob when recording stops.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
	"meetrec/internal/schedule"
)

// DefaultFormats is the encoding preference order.
var DefaultFormats = []string{
	"audio/mp4",
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/aac",
	"audio/mpeg",
}

const (
	DefaultBitrate   = 128000
	DefaultTimeslice = time.Second
)

var ErrAlreadyStarted = errors.New("recorder already started")

// Config controls chunking and format selection.
type Config struct {
	Timeslice  time.Duration
	Formats    []string
	Bitrate    int
	SampleRate int
	Channels   int
}

// Format is the encoding chosen for a recording.
type Format struct {
	MimeType string
	Bitrate  int
	// Fallback is set when no preferred format was supported.
	Fallback bool
}

// SelectFormat returns the first preferred format the factory supports, or
// the factory default at the default bitrate.
func SelectFormat(factory ports.EncoderFactory, preferred []string, bitrate int) Format {
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	for _, mimeType := range preferred {
		if factory.Supports(mimeType) {
			return Format{MimeType: mimeType, Bitrate: bitrate}
		}
	}
	return Format{Bitrate: DefaultBitrate, Fallback: true}
}

type finalizer interface {
	Finalize(blob []byte) []byte
}

type mimeTyper interface {
	MimeType() string
}

type state int

const (
	stateInactive state = iota
	stateRecording
	stateStopped
)

// Recorder implements ports.Recorder on top of a streaming encoder.
type Recorder struct {
	enc       ports.Encoder
	format    Format
	sched     schedule.Scheduler
	timeslice time.Duration
	logger    *log.Logger

	mu       sync.Mutex
	state    state
	chunks   [][]byte
	ticker   schedule.Handle
	encodeOK bool
	blob     domain.Blob
	stopErr  error
}

func New(factory ports.EncoderFactory, sched schedule.Scheduler, cfg Config, logger *log.Logger) (*Recorder, error) {
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = DefaultTimeslice
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = DefaultFormats
	}
	if logger == nil {
		logger = log.Default()
	}

	format := SelectFormat(factory, cfg.Formats, cfg.Bitrate)
	enc, err := factory.NewEncoder(ports.EncoderOptions{
		MimeType:   format.MimeType,
		Bitrate:    format.Bitrate,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	if format.Fallback {
		if typed, ok := enc.(mimeTyper); ok {
			format.MimeType = typed.MimeType()
		}
		logger.Warn("no preferred recording format supported, using default", "mime", format.MimeType, "bitrate", format.Bitrate)
	}

	return &Recorder{
		enc:       enc,
		format:    format,
		sched:     sched,
		timeslice: cfg.Timeslice,
		logger:    logger,
		encodeOK:  true,
	}, nil
}

// MimeType returns the selected encoding.
func (r *Recorder) MimeType() string {
	return r.format.MimeType
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateInactive {
		return ErrAlreadyStarted
	}
	r.state = stateRecording
	r.ticker = r.sched.Every(r.timeslice, r.collect)
	return nil
}

// Write feeds a frame to the encoder. Frames after Stop are dropped.
func (r *Recorder) Write(frame domain.AudioFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateRecording {
		return nil
	}
	if err := r.enc.Encode(frame); err != nil {
		if r.encodeOK {
			r.logger.Warn("recorder encode failed", "err", err)
			r.encodeOK = false
		}
		return err
	}
	return nil
}

func (r *Recorder) collect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateRecording {
		return
	}
	r.appendChunk(r.enc.Drain())
}

func (r *Recorder) appendChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	r.chunks = append(r.chunks, data)
}

// Stop flushes the encoder and joins every chunk. It fails with
// domain.ErrAudioEmpty when nothing was recorded.
func (r *Recorder) Stop(ctx context.Context) (domain.Blob, error) {
	r.mu.Lock()
	if r.state == stateStopped {
		defer r.mu.Unlock()
		return r.blob, r.stopErr
	}
	ticker := r.ticker
	r.mu.Unlock()

	if ticker != nil {
		ticker.Cancel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateStopped {
		return r.blob, r.stopErr
	}
	r.state = stateStopped

	type flushResult struct {
		tail []byte
		err  error
	}
	flushed := make(chan flushResult, 1)
	go func() {
		tail, err := r.enc.Close()
		flushed <- flushResult{tail: tail, err: err}
	}()

	select {
	case res := <-flushed:
		if res.err != nil {
			r.logger.Warn("recorder flush failed", "err", res.err)
		}
		r.appendChunk(res.tail)
	case <-ctx.Done():
		r.logger.Warn("recorder flush abandoned", "err", ctx.Err())
	}

	if len(r.chunks) == 0 {
		r.stopErr = domain.ErrAudioEmpty
		return domain.Blob{}, r.stopErr
	}

	data := bytes.Join(r.chunks, nil)
	if f, ok := r.enc.(finalizer); ok {
		data = f.Finalize(data)
	}
	r.blob = domain.Blob{MimeType: r.format.MimeType, Data: data, Chunks: len(r.chunks)}
	return r.blob, nil
}
