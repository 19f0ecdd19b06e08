package usecase

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetrec/internal/domain"
	"meetrec/internal/pcm"
)

func newPumpLifecycle(frameSamples int) (*Lifecycle, *fakeEventSink) {
	events := &fakeEventSink{}
	lc := NewLifecycle(Deps{Events: events, Logger: log.New(io.Discard)}, Config{FrameSamples: frameSamples})
	return lc, events
}

func newPumpSession(stream *fakeStream) (*activeSession, *fakeMixer, *fakeRecorder, *fakeAnalyser) {
	sess := newActiveSession("pump", time.Unix(0, 0))
	mixer := &fakeMixer{channels: 2, out: make(chan domain.AudioFrame, 8)}
	rec := &fakeRecorder{}
	analyser := &fakeAnalyser{}
	sess.mixer = mixer
	sess.recorder = rec
	sess.analyser = analyser
	sess.stream = stream
	return sess, mixer, rec, analyser
}

func TestPumpFramesMonoChunksToChannel(t *testing.T) {
	t.Parallel()

	lc, events := newPumpLifecycle(1024)
	stream := newFakeStream()
	sess, mixer, rec, analyser := newPumpSession(stream)

	go lc.pump(sess)
	mixer.feed(stereoFrame(1536))
	mixer.feed(stereoFrame(512))
	_ = mixer.Close()
	<-sess.audioDone

	chunks := stream.sentChunks()
	require.Len(t, chunks, 2)
	for i, chunk := range chunks {
		assert.Len(t, chunk, 2048, "frame %d", i)
	}
	assert.Equal(t, 2, rec.writeCount())
	assert.Equal(t, 2, analyser.writes)
	assert.Empty(t, events.snapshotErrors())
}

func TestPumpFlushSendsPaddedPartialFrame(t *testing.T) {
	t.Parallel()

	lc, events := newPumpLifecycle(1024)
	stream := newFakeStream()
	sess, mixer, _, _ := newPumpSession(stream)

	go lc.pump(sess)
	mixer.feed(stereoFrame(1500))
	require.Eventually(t, func() bool { return len(stream.sentChunks()) == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, lc.flushPump(sess, time.Second))
	chunks := stream.sentChunks()
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[1], 2048)
	// 476 trailing samples at 0.25, then silence.
	sample := pcm.Quantize([]float32{0.25})
	assert.Equal(t, sample, chunks[1][:2])
	assert.Equal(t, sample, chunks[1][475*2:476*2])
	assert.Equal(t, []byte{0, 0}, chunks[1][476*2:477*2])

	// Nothing is left for the close-time flush.
	_ = mixer.Close()
	<-sess.audioDone
	assert.Len(t, stream.sentChunks(), 2)
	assert.Empty(t, events.snapshotErrors())
}

func TestPumpFlushesPartialFrameWhenMixerEnds(t *testing.T) {
	t.Parallel()

	lc, _ := newPumpLifecycle(1024)
	stream := newFakeStream()
	sess, mixer, _, _ := newPumpSession(stream)

	go lc.pump(sess)
	mixer.feed(stereoFrame(100))
	_ = mixer.Close()
	<-sess.audioDone

	chunks := stream.sentChunks()
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0], 2048)

	// The pump is gone, so a later flush returns at once.
	assert.True(t, lc.flushPump(sess, time.Second))
}

func TestFlushPumpGivesUpOnStuckPump(t *testing.T) {
	t.Parallel()

	lc, _ := newPumpLifecycle(0)
	sess, _, _, _ := newPumpSession(newFakeStream())

	start := time.Now()
	assert.False(t, lc.flushPump(sess, 20*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPumpSendErrorDisablesChannelButKeepsRecording(t *testing.T) {
	t.Parallel()

	lc, events := newPumpLifecycle(512)
	stream := newFakeStream()
	stream.sendErr = errors.New("send failed")
	sess, mixer, rec, _ := newPumpSession(stream)

	go lc.pump(sess)
	for i := 0; i < 3; i++ {
		mixer.feed(stereoFrame(512))
	}
	_ = mixer.Close()
	<-sess.audioDone

	assert.True(t, sess.senderDisabled.Load())
	errs := events.snapshotErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrorCodeChannelRuntime, errs[0].code)
	assert.Equal(t, 3, rec.writeCount())
}

func TestChannelFailedDuringTeardownIsQuiet(t *testing.T) {
	t.Parallel()

	lc, events := newPumpLifecycle(0)
	sess, _, _, _ := newPumpSession(newFakeStream())
	sess.stopping.Store(true)

	lc.channelFailed(sess, errors.New("closed"))
	assert.Empty(t, events.snapshotErrors())
}

func TestStopWithStalledChannelSettles(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(h *harness, cfg *Config) {
		h.stream.stall = true
		cfg.FrameSamples = 1024
		cfg.ChannelCloseTimeout = 50 * time.Millisecond
	})
	require.NoError(t, h.lc.Start(context.Background()))

	h.platform.mixer.feed(stereoFrame(1024))
	h.platform.mixer.feed(stereoFrame(1024))
	require.Eventually(t, func() bool { return h.stream.stalledSends() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := h.lc.Stop(context.Background(), domain.StopReasonManual)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not settle with a stalled channel")
	}
	assert.Equal(t, domain.StateStopped, h.lc.Status().State)
	assert.Equal(t, 1, h.platform.mic.stopCalls())
	assert.True(t, h.platform.mixer.isClosed())
	assert.Equal(t, 0, h.events.countErrors(domain.ErrorCodeTeardown))
}

func TestWaitForStreamTimeoutClosesSession(t *testing.T) {
	t.Parallel()

	stream := &blockingWaitStream{done: make(chan struct{}), waitErr: errors.New("closed")}
	err := waitForStream(stream, 10*time.Millisecond)
	assert.EqualError(t, err, "closed")
	assert.NotZero(t, stream.closeCalls)
}

func TestWaitForStreamReturnsPromptly(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	_ = stream.CloseSend()
	require.NoError(t, waitForStream(stream, time.Second))
	assert.Zero(t, stream.closeCalls, "close should not be forced when the stream drains")
}

func TestWaitDone(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	assert.False(t, waitDone(done, 5*time.Millisecond))
	close(done)
	assert.True(t, waitDone(done, time.Second))
}

type blockingWaitStream struct {
	done       chan struct{}
	waitErr    error
	closeCalls int
}

func (s *blockingWaitStream) SendAudio(_ []byte) error { return nil }
func (s *blockingWaitStream) CloseSend() error         { return nil }
func (s *blockingWaitStream) Events() <-chan domain.TranscriptEvent {
	ch := make(chan domain.TranscriptEvent)
	close(ch)
	return ch
}
func (s *blockingWaitStream) Wait() error {
	<-s.done
	return s.waitErr
}
func (s *blockingWaitStream) Close() error {
	s.closeCalls++
	close(s.done)
	return nil
}
