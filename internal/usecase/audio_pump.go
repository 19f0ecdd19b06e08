package usecase

import (
	"fmt"
	"time"

	"meetrec/internal/domain"
	"meetrec/internal/pcm"
	"meetrec/internal/ports"
)

// pump fans each mixed frame out to the recorder, the analyser and the
// transcription channel until the mixer output closes.
func (c *Lifecycle) pump(sess *activeSession) {
	defer close(sess.audioDone)

	framer := pcm.NewFramer(c.cfg.FrameSamples)
	send := func(chunk []float32) error {
		if err := sess.stream.SendAudio(pcm.Quantize(chunk)); err != nil {
			return err
		}
		c.metrics.RecordFrameSent()
		return nil
	}

	flush := func() {
		if sess.senderDisabled.Load() {
			return
		}
		if err := framer.Flush(send); err != nil {
			c.channelFailed(sess, fmt.Errorf("failed to stream audio: %w", err))
		}
	}

	output := sess.mixer.Output()
	for {
		select {
		case frame, ok := <-output:
			if !ok {
				flush()
				return
			}
			// The recorder logs its own encode failures.
			_ = sess.recorder.Write(frame)
			sess.analyser.Write(frame)

			if sess.senderDisabled.Load() {
				continue
			}
			if err := framer.Push(frame.Mono(), send); err != nil {
				c.channelFailed(sess, fmt.Errorf("failed to stream audio: %w", err))
			}
		case ack := <-sess.flushAudio:
			flush()
			close(ack)
		}
	}
}

// flushPump sends the pump's partial frame before the channel input is
// closed. It gives up after timeout when the pump is stuck on the channel.
func (c *Lifecycle) flushPump(sess *activeSession, timeout time.Duration) bool {
	ack := make(chan struct{})
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sess.flushAudio <- ack:
	case <-sess.audioDone:
		return true
	case <-timer.C:
		return false
	}
	select {
	case <-ack:
		return true
	case <-timer.C:
		return false
	}
}

// channelFailed disables the sender and reports the failure once. Recording
// continues without live transcription.
func (c *Lifecycle) channelFailed(sess *activeSession, err error) {
	if sess.stopping.Load() {
		c.logger.Debug("transcription channel ended during teardown", "session", sess.id, "err", err)
		return
	}
	if !sess.senderDisabled.CompareAndSwap(false, true) {
		return
	}
	c.logger.Warn("transcription channel failed, continuing audio only", "session", sess.id, "err", err)
	c.reportError(sess, domain.ErrorCodeChannelRuntime, err.Error())
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
