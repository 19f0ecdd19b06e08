package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"meetrec/internal/domain"
	"meetrec/internal/events"
	"meetrec/internal/metrics"
	"meetrec/internal/monitor"
	"meetrec/internal/ports"
	"meetrec/internal/schedule"
)

var (
	ErrNoActiveSession  = errors.New("no active recording session")
	ErrAlreadyRecording = errors.New("a recording session is already in progress")
)

// Config controls capture, streaming and teardown behavior.
type Config struct {
	SampleRate   int
	EnableSystem bool
	MeetingID    string
	Streaming    ports.StreamingConfig
	// FrameSamples is the number of mono samples per outbound channel frame.
	FrameSamples        int
	ChannelCloseTimeout time.Duration
	TeardownTimeout     time.Duration
	Silence             monitor.SilenceConfig
	Duration            monitor.DurationConfig
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Streaming.SampleRate <= 0 {
		c.Streaming.SampleRate = c.SampleRate
	}
	if c.Streaming.Encoding == "" {
		c.Streaming.Encoding = "pcm_s16le"
	}
	if c.FrameSamples <= 0 {
		c.FrameSamples = 4096
	}
	if c.ChannelCloseTimeout <= 0 {
		c.ChannelCloseTimeout = 4 * time.Second
	}
	if c.TeardownTimeout <= 0 {
		c.TeardownTimeout = 30 * time.Second
	}
	return c
}

// Deps are the collaborators of a Lifecycle. Uploads, Metrics and Logger
// are optional.
type Deps struct {
	Platform  ports.Platform
	Provider  ports.TranscriptionProvider
	Uploads   ports.UploadSink
	Events    ports.EventSink
	Scheduler schedule.Scheduler
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

// Lifecycle owns one recording session at a time: it acquires sources,
// streams audio to the transcription channel, records the mixed stream and
// tears everything down on stop.
type Lifecycle struct {
	platform ports.Platform
	provider ports.TranscriptionProvider
	uploads  ports.UploadSink
	events   ports.EventSink
	sched    schedule.Scheduler
	metrics  *metrics.Metrics
	logger   *log.Logger
	cfg      Config

	mu      sync.Mutex
	state   domain.LifecycleState
	current *activeSession
	last    *activeSession
	message string
}

func NewLifecycle(deps Deps, cfg Config) *Lifecycle {
	if deps.Scheduler == nil {
		deps.Scheduler = schedule.NewReal()
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	return &Lifecycle{
		platform: deps.Platform,
		provider: deps.Provider,
		uploads:  deps.Uploads,
		events:   deps.Events,
		sched:    deps.Scheduler,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		cfg:      cfg.withDefaults(),
		state:    domain.StateIdle,
	}
}

// Start acquires sources and begins recording and live transcription. The
// session outlives ctx; it ends only through Stop or a watchdog.
func (c *Lifecycle) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case domain.StateAcquiring, domain.StateRecording, domain.StateStopping:
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.state = domain.StateAcquiring
	c.message = ""
	c.mu.Unlock()
	c.events.StateChanged(domain.StateAcquiring, domain.StopReasonNone)

	sess, err := c.open(ctx)
	if err != nil {
		code := domain.CodeOf(err)
		c.logger.Error("recording start failed", "code", code, "err", err)
		c.metrics.RecordStartFailure(code)

		c.mu.Lock()
		c.state = domain.StateError
		c.message = err.Error()
		c.mu.Unlock()

		c.events.SessionError(code, err.Error())
		c.events.StateChanged(domain.StateError, domain.StopReasonNone)
		return err
	}

	c.mu.Lock()
	c.current = sess
	c.state = domain.StateRecording
	c.mu.Unlock()

	c.metrics.RecordSessionStarted()
	c.logger.Info("recording started", "session", sess.id, "sources", sess.sourceKinds(), "mime", sess.recorder.MimeType())
	c.events.StateChanged(domain.StateRecording, domain.StopReasonNone)
	c.events.RecordingStateChanged(true)
	return nil
}

// Stop ends the active session and returns its settled result. Concurrent
// and repeated calls return the same result. After the session has settled
// Stop keeps returning it until the next Start.
func (c *Lifecycle) Stop(ctx context.Context, reason domain.StopReason) (domain.StopResult, error) {
	c.mu.Lock()
	sess := c.current
	if sess == nil && c.state == domain.StateStopped {
		sess = c.last
	}
	c.mu.Unlock()

	if sess == nil {
		return domain.StopResult{}, ErrNoActiveSession
	}
	if reason == domain.StopReasonNone {
		reason = domain.StopReasonManual
	}
	return c.stopSession(ctx, sess, reason)
}

// Continue dismisses the named watchdog's warning and resets it.
func (c *Lifecycle) Continue(kind domain.WarningKind) error {
	c.mu.Lock()
	sess := c.current
	recording := c.state == domain.StateRecording
	c.mu.Unlock()

	if sess == nil || !recording {
		return ErrNoActiveSession
	}
	switch kind {
	case domain.WarningSilence:
		sess.silence.KeepRecording()
	case domain.WarningDuration:
		sess.duration.Continue()
	default:
		return fmt.Errorf("unknown warning kind %q", kind)
	}
	return nil
}

// Status returns a snapshot of the lifecycle.
func (c *Lifecycle) Status() domain.Status {
	c.mu.Lock()
	state, sess, message := c.state, c.current, c.message
	if sess == nil && state == domain.StateStopped {
		sess = c.last
	}
	c.mu.Unlock()

	status := domain.Status{
		State:   state,
		Active:  state == domain.StateRecording || state == domain.StateStopping,
		Message: message,
	}
	if sess == nil {
		return status
	}
	status.SessionID = sess.id
	status.Elapsed = sess.duration.Elapsed()
	status.Sources = sess.sourceKinds()
	for _, w := range []domain.Warning{sess.silence.Warning(), sess.duration.Warning()} {
		if w.Active {
			status.Warnings = append(status.Warnings, w)
		}
	}
	return status
}

// Transcript returns the reconciled transcript of the current or most
// recent session.
func (c *Lifecycle) Transcript() domain.TranscriptState {
	c.mu.Lock()
	sess := c.current
	if sess == nil {
		sess = c.last
	}
	c.mu.Unlock()

	if sess == nil {
		return domain.TranscriptState{}
	}
	return sess.reconciler.State()
}

func (c *Lifecycle) stopSession(ctx context.Context, sess *activeSession, reason domain.StopReason) (domain.StopResult, error) {
	sess.stopOnce.Do(func() {
		sess.result, sess.err = c.teardown(ctx, sess, reason)
	})
	return sess.result, sess.err
}

// monitorHooks binds watchdog callbacks to one session.
func (c *Lifecycle) monitorHooks(sess *activeSession) monitor.Hooks {
	return monitor.Hooks{
		OnWarning: func(w domain.Warning) {
			if sess.stopping.Load() {
				return
			}
			if sess.warningRaised(w) {
				c.metrics.RecordWarning(w.Kind)
				c.logger.Warn("watchdog warning raised", "session", sess.id, "kind", w.Kind, "countdown", w.Countdown)
			}
			c.events.WarningChanged(w)
		},
		OnAutoStop: func(reason domain.StopReason) {
			c.logger.Info("watchdog requested stop", "session", sess.id, "reason", reason)
			c.metrics.RecordAutoStop(reason)
			go func() {
				_, _ = c.stopSession(context.Background(), sess, reason)
			}()
		},
		OnElapsed: func(seconds int) {
			if sess.stopping.Load() {
				return
			}
			c.events.ElapsedChanged(seconds)
		},
	}
}

// reportError emits a session error once per distinct (code, detail).
func (c *Lifecycle) reportError(sess *activeSession, code domain.ErrorCode, detail string) {
	if !sess.markReported(code, detail) {
		return
	}
	c.metrics.RecordSessionError(code)
	c.events.SessionError(code, detail)
}
