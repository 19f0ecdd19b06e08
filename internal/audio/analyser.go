package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"meetrec/internal/domain"
)

// AnalyserConfig mirrors the knobs of a browser AnalyserNode.
type AnalyserConfig struct {
	FFTSize     int
	Smoothing   float64
	MinDecibels float64
	MaxDecibels float64
}

// Analyser keeps the most recent samples of the combined stream and reports
// the RMS level in dB and the average byte-scaled spectrum magnitude.
type Analyser struct {
	cfg AnalyserConfig

	mu       sync.Mutex
	ring     []float64
	pos      int
	fft      *fourier.FFT
	window   []float64
	smoothed []float64
	scratch  []float64
	coeffs   []complex128
}

const silenceFloorDB = -200

func NewAnalyser(cfg AnalyserConfig) *Analyser {
	if cfg.FFTSize < 32 {
		cfg.FFTSize = 1024
	}
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		cfg.Smoothing = 0.2
	}
	if cfg.MinDecibels == 0 && cfg.MaxDecibels == 0 {
		cfg.MinDecibels, cfg.MaxDecibels = -100, -30
	}

	win := make([]float64, cfg.FFTSize)
	for i := range win {
		win[i] = 1
	}
	return &Analyser{
		cfg:      cfg,
		ring:     make([]float64, cfg.FFTSize),
		fft:      fourier.NewFFT(cfg.FFTSize),
		window:   window.Blackman(win),
		smoothed: make([]float64, cfg.FFTSize/2),
		scratch:  make([]float64, cfg.FFTSize),
		coeffs:   make([]complex128, cfg.FFTSize/2+1),
	}
}

// Write down-mixes the frame and appends it to the analysis window.
func (a *Analyser) Write(frame domain.AudioFrame) {
	mono := frame.Mono()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range mono {
		a.ring[a.pos] = float64(s)
		a.pos = (a.pos + 1) % len(a.ring)
	}
}

// Levels computes a snapshot over the current window.
func (a *Analyser) Levels() domain.AudioLevels {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.ring)
	for i := 0; i < n; i++ {
		a.scratch[i] = a.ring[(a.pos+i)%n]
	}

	bins := n / 2
	var sumSquares float64
	for _, s := range a.scratch[n-bins:] {
		sumSquares += s * s
	}
	rms := math.Sqrt(sumSquares / float64(bins))
	decibels := float64(silenceFloorDB)
	if rms > 0 {
		decibels = math.Max(20*math.Log10(rms), silenceFloorDB)
	}

	for i := range a.scratch {
		a.scratch[i] *= a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.scratch)

	span := a.cfg.MaxDecibels - a.cfg.MinDecibels
	var total float64
	for k := 0; k < bins; k++ {
		magnitude := cmplx.Abs(a.coeffs[k]) / float64(n)
		a.smoothed[k] = a.cfg.Smoothing*a.smoothed[k] + (1-a.cfg.Smoothing)*magnitude
		level := 0.0
		if a.smoothed[k] > 0 {
			db := 20 * math.Log10(a.smoothed[k])
			level = math.Floor(255 * (db - a.cfg.MinDecibels) / span)
		}
		total += math.Min(math.Max(level, 0), 255)
	}

	return domain.AudioLevels{
		Decibels:         decibels,
		AverageFrequency: total / float64(bins),
	}
}
