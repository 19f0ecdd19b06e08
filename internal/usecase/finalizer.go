package usecase

import (
	"context"
	"errors"
	"fmt"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
)

// teardown releases every session resource in order and settles the
// result. Step failures are reported but never block the stopped state.
func (c *Lifecycle) teardown(ctx context.Context, sess *activeSession, reason domain.StopReason) (domain.StopResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.TeardownTimeout)
	defer cancel()

	sess.stopping.Store(true)
	c.mu.Lock()
	if c.current == sess {
		c.state = domain.StateStopping
	}
	c.mu.Unlock()
	c.events.StateChanged(domain.StateStopping, reason)
	c.events.RecordingStateChanged(false)

	sess.silence.Stop()
	sess.duration.Stop()
	elapsed := c.sched.Now().Sub(sess.startedAt)

	blob, recErr := sess.recorder.Stop(ctx)

	if !c.flushPump(sess, c.cfg.ChannelCloseTimeout) {
		c.logger.Warn("audio pump did not flush before closing the channel", "session", sess.id)
	}
	_ = sess.stream.CloseSend()
	if err := waitForStream(sess.stream, c.cfg.ChannelCloseTimeout); err != nil {
		c.logger.Debug("transcription channel closed with error", "session", sess.id, "err", err)
	}
	if !waitDone(sess.eventsDone, c.cfg.ChannelCloseTimeout) {
		c.teardownFailed(sess, "channel", errors.New("transcript events did not drain"))
	}
	if err := sess.stream.Close(); err != nil && !errors.Is(err, domain.ErrChannelRuntime) {
		c.teardownFailed(sess, "channel", err)
	}

	for _, err := range c.stopSources(sess.sources) {
		c.teardownFailed(sess, "source", err)
	}
	if err := sess.mixer.Close(); err != nil {
		c.teardownFailed(sess, "mixer", err)
	}
	if !waitDone(sess.audioDone, c.cfg.ChannelCloseTimeout) {
		c.teardownFailed(sess, "pump", errors.New("audio pump did not finish"))
	}
	sess.cancel()

	result := domain.StopResult{
		SessionID:  sess.id,
		Reason:     reason,
		Transcript: sess.reconciler.Confirmed(),
		MimeType:   blob.MimeType,
		AudioBytes: len(blob.Data),
		Elapsed:    elapsed,
	}

	finalErr := c.finalizeAudio(ctx, sess, blob, recErr, &result)

	c.metrics.RecordSessionStopped(elapsed.Seconds(), result.AudioBytes)
	c.mu.Lock()
	if c.current == sess {
		c.current = nil
		c.state = domain.StateStopped
	}
	c.last = sess
	c.mu.Unlock()

	c.logger.Info("recording stopped",
		"session", sess.id,
		"reason", reason,
		"elapsed", domain.FormatElapsed(int(elapsed.Seconds())),
		"bytes", result.AudioBytes,
		"url", result.AudioURL,
	)
	c.events.StateChanged(domain.StateStopped, reason)
	return result, finalErr
}

// finalizeAudio uploads the recording. The transcript is kept whatever
// happens to the audio.
func (c *Lifecycle) finalizeAudio(ctx context.Context, sess *activeSession, blob domain.Blob, recErr error, result *domain.StopResult) error {
	if recErr != nil {
		if errors.Is(recErr, domain.ErrAudioEmpty) {
			c.logger.Warn("no audio recorded", "session", sess.id)
			c.reportError(sess, domain.ErrorCodeAudioEmpty, recErr.Error())
			return recErr
		}
		c.teardownFailed(sess, "recorder", recErr)
		return fmt.Errorf("finalize recording: %w", recErr)
	}
	if c.uploads == nil {
		return nil
	}

	url, err := c.uploads.Upload(ctx, ports.UploadRequest{
		MeetingID: c.cfg.MeetingID,
		SessionID: sess.id,
		Blob:      blob,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrUploadFailed) && !errors.Is(err, domain.ErrAudioEmpty) {
			err = fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
		}
		c.logger.Error("audio upload failed", "session", sess.id, "err", err)
		c.reportError(sess, domain.CodeOf(err), err.Error())
		return err
	}

	result.AudioURL = url
	c.events.AudioURLUpdated(url)
	return nil
}

func (c *Lifecycle) teardownFailed(sess *activeSession, step string, err error) {
	c.logger.Warn("teardown step failed", "session", sess.id, "step", step, "err", err)
	c.reportError(sess, domain.ErrorCodeTeardown, fmt.Sprintf("%s: %v", step, err))
}
