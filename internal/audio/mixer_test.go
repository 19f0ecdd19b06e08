package audio

import (
	"io"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
)

type sliceSource struct {
	kind    domain.SourceKind
	mu      sync.Mutex
	samples []float32
	stopped bool
}

func (s *sliceSource) Kind() domain.SourceKind { return s.kind }

func (s *sliceSource) ReadSamples(buf []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return 0, io.EOF
	}
	n := copy(buf, s.samples)
	s.samples = s.samples[n:]
	return n, nil
}

func (s *sliceSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && len(s.samples) > 0
}

func (s *sliceSource) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func collect(t *testing.T, m *Mixer) []domain.AudioFrame {
	t.Helper()
	var frames []domain.AudioFrame
	timeout := time.After(2 * time.Second)
	for {
		select {
		case frame, ok := <-m.Output():
			if !ok {
				return frames
			}
			frames = append(frames, frame)
		case <-timeout:
			t.Fatalf("mixer did not finish")
		}
	}
}

func TestMixerSingleSourcePassesThroughMono(t *testing.T) {
	t.Parallel()

	mic := &sliceSource{kind: domain.SourceMicrophone, samples: []float32{1, 2, 3, 4, 5}}
	m, err := NewMixer(16000, 2, []ports.AudioSource{mic})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Channels() != 1 {
		t.Fatalf("expected mono, got %d channels", m.Channels())
	}

	var got []float32
	for _, frame := range collect(t, m) {
		if frame.Channels != 1 || frame.SampleRate != 16000 {
			t.Fatalf("unexpected frame shape: %+v", frame)
		}
		got = append(got, frame.Samples...)
	}
	if len(got) != 5 || got[4] != 5 {
		t.Fatalf("unexpected samples: %v", got)
	}
}

func TestMixerPutsMicrophoneOnChannelZero(t *testing.T) {
	t.Parallel()

	system := &sliceSource{kind: domain.SourceSystem, samples: []float32{-1, -2, -3, -4}}
	mic := &sliceSource{kind: domain.SourceMicrophone, samples: []float32{1, 2}}
	m, err := NewMixer(16000, 2, []ports.AudioSource{system, mic})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Channels() != 2 {
		t.Fatalf("expected stereo, got %d channels", m.Channels())
	}

	var got []float32
	for _, frame := range collect(t, m) {
		if frame.Channels != 2 {
			t.Fatalf("unexpected channel count: %d", frame.Channels)
		}
		got = append(got, frame.Samples...)
	}
	want := []float32{1, -1, 2, -2, 0, -3, 0, -4}
	if len(got) != len(want) {
		t.Fatalf("unexpected samples: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: want %v got %v (all %v)", i, want[i], got[i], got)
		}
	}
}

func TestMixerRejectsInvalidSources(t *testing.T) {
	t.Parallel()

	if _, err := NewMixer(16000, 0, nil); err == nil {
		t.Fatalf("expected error for no sources")
	}
	a := &sliceSource{kind: domain.SourceSystem}
	b := &sliceSource{kind: domain.SourceSystem}
	if _, err := NewMixer(16000, 0, []ports.AudioSource{a, b}); err == nil {
		t.Fatalf("expected error for two system sources")
	}
}

func TestMixerCloseStopsDelivery(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 10000)
	mic := &sliceSource{kind: domain.SourceMicrophone, samples: samples}
	m, err := NewMixer(16000, 10, []ports.AudioSource{mic})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-m.Output()
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected second close error: %v", err)
	}
	// Drain whatever was buffered; the channel must close.
	collect(t, m)
}

func TestAnalyserReportsSilenceAndTone(t *testing.T) {
	t.Parallel()

	a := NewAnalyser(AnalyserConfig{})
	levels := a.Levels()
	if levels.Decibels != silenceFloorDB || levels.AverageFrequency != 0 {
		t.Fatalf("expected silent levels, got %+v", levels)
	}

	tone := make([]float32, 2048)
	for i := range tone {
		tone[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	a.Write(domain.AudioFrame{SampleRate: 16000, Channels: 1, Samples: tone})
	levels = a.Levels()
	if levels.Decibels < -12 || levels.Decibels > -6 {
		t.Fatalf("expected roughly -9 dB for a 0.5 sine, got %v", levels.Decibels)
	}
}

func TestAnalyserNoiseHasSpectrumEnergy(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	noise := make([]float32, 1024)
	for i := range noise {
		noise[i] = float32(rng.Float64() - 0.5)
	}
	a := NewAnalyser(AnalyserConfig{})
	a.Write(domain.AudioFrame{SampleRate: 16000, Channels: 1, Samples: noise})
	if got := a.Levels().AverageFrequency; got <= 5 {
		t.Fatalf("expected spectrum energy above the silence threshold, got %v", got)
	}
}

func TestAnalyserDownmixesStereo(t *testing.T) {
	t.Parallel()

	a := NewAnalyser(AnalyserConfig{FFTSize: 64})
	frame := domain.AudioFrame{SampleRate: 16000, Channels: 2, Samples: make([]float32, 128)}
	for i := 0; i < 64; i++ {
		frame.Samples[i*2] = 0.5
		frame.Samples[i*2+1] = -0.5
	}
	a.Write(frame)
	if got := a.Levels().Decibels; got != silenceFloorDB {
		t.Fatalf("expected cancelled channels to be silent, got %v", got)
	}
}
