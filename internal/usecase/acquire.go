package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"meetrec/internal/domain"
	"meetrec/internal/monitor"
	"meetrec/internal/ports"
)

// open builds every per-session resource. On failure everything acquired so
// far is released before it returns.
func (c *Lifecycle) open(ctx context.Context) (*activeSession, error) {
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := newActiveSession(uuid.NewString(), c.sched.Now())
	sess.cancel = cancel

	var rollback []func()
	fail := func(err error) (*activeSession, error) {
		for i := len(rollback) - 1; i >= 0; i-- {
			rollback[i]()
		}
		cancel()
		return nil, err
	}

	sources, err := c.acquireSources(sessionCtx)
	if err != nil {
		return fail(err)
	}
	sess.sources = sources
	rollback = append(rollback, func() { c.stopSources(sources) })

	mixer, err := c.platform.CreateMixer(sources)
	if err != nil {
		return fail(fmt.Errorf("create mixer: %w", err))
	}
	sess.mixer = mixer
	rollback = append(rollback, func() { _ = mixer.Close() })

	analyser, err := c.platform.CreateAnalyser()
	if err != nil {
		return fail(fmt.Errorf("create analyser: %w", err))
	}
	sess.analyser = analyser

	stream, err := c.provider.StartStreaming(sessionCtx, c.cfg.Streaming)
	if err != nil {
		if !errors.Is(err, domain.ErrChannelConnectFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrChannelConnectFailed, err)
		}
		return fail(err)
	}
	sess.stream = stream
	rollback = append(rollback, func() { _ = stream.Close() })

	rec, err := c.platform.CreateRecorder(ports.RecorderOptions{
		SampleRate: c.cfg.SampleRate,
		Channels:   mixer.Channels(),
	})
	if err != nil {
		return fail(fmt.Errorf("create recorder: %w", err))
	}
	if err := rec.Start(); err != nil {
		_, _ = rec.Stop(sessionCtx)
		return fail(fmt.Errorf("start recorder: %w", err))
	}
	sess.recorder = rec

	hooks := c.monitorHooks(sess)
	sess.silence = monitor.NewSilence(c.sched, analyser, c.cfg.Silence, hooks)
	sess.duration = monitor.NewDuration(c.sched, c.cfg.Duration, hooks)
	sess.silence.Start()
	sess.duration.Start()

	go c.pump(sess)
	go c.consumeTranscriptEvents(sess)
	return sess, nil
}

// acquireSources requests the microphone and, when enabled, system audio in
// parallel. A system failure alone degrades to microphone-only capture.
func (c *Lifecycle) acquireSources(ctx context.Context) ([]ports.AudioSource, error) {
	var (
		g         errgroup.Group
		mic       ports.AudioSource
		system    ports.AudioSource
		systemErr error
	)

	g.Go(func() error {
		src, err := c.platform.AcquireSource(ctx, domain.SourceMicrophone)
		if err != nil {
			return fmt.Errorf("acquire microphone: %w", err)
		}
		mic = src
		return nil
	})
	if c.cfg.EnableSystem {
		g.Go(func() error {
			src, err := c.platform.AcquireSource(ctx, domain.SourceSystem)
			if err != nil {
				systemErr = err
				return nil
			}
			system = src
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if system != nil {
			c.stopSources([]ports.AudioSource{system})
		}
		return nil, err
	}

	if systemErr != nil {
		c.logger.Warn("system audio unavailable, recording microphone only", "err", systemErr)
	}
	sources := []ports.AudioSource{mic}
	if system != nil {
		sources = append(sources, system)
	}
	return sources, nil
}

func (c *Lifecycle) stopSources(sources []ports.AudioSource) []error {
	var errs []error
	for _, src := range sources {
		if err := src.Stop(); err != nil {
			c.logger.Warn("failed to stop audio source", "kind", src.Kind(), "err", err)
			errs = append(errs, fmt.Errorf("stop %s source: %w", src.Kind(), err))
		}
	}
	return errs
}
