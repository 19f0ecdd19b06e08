package audio

import (
	"context"

	"github.com/charmbracelet/log"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
	"meetrec/internal/recorder"
	"meetrec/internal/schedule"
)

// PlatformConfig groups the capture, mixing and recording settings.
type PlatformConfig struct {
	Capture      CaptureConfig
	BlockSamples int
	Analyser     AnalyserConfig
	Recorder     recorder.Config
}

// Platform implements ports.Platform with ffmpeg capture and in-process
// mixing and analysis.
type Platform struct {
	cfg     PlatformConfig
	capture *FFMPEGCapture
	encoder *EncoderFactory
	sched   schedule.Scheduler
	logger  *log.Logger
}

func NewPlatform(cfg PlatformConfig, sched schedule.Scheduler, logger *log.Logger) *Platform {
	if logger == nil {
		logger = log.Default()
	}
	capture := NewFFMPEGCapture(cfg.Capture)
	return &Platform{
		cfg:     cfg,
		capture: capture,
		encoder: NewEncoderFactory(capture.cfg.Command),
		sched:   sched,
		logger:  logger,
	}
}

// Encoders exposes the encoder factory for diagnostics.
func (p *Platform) Encoders() *EncoderFactory {
	return p.encoder
}

func (p *Platform) AcquireSource(ctx context.Context, kind domain.SourceKind) (ports.AudioSource, error) {
	return p.capture.Acquire(ctx, kind)
}

func (p *Platform) CreateMixer(sources []ports.AudioSource) (ports.Mixer, error) {
	return NewMixer(p.capture.cfg.SampleRate, p.cfg.BlockSamples, sources)
}

func (p *Platform) CreateRecorder(opts ports.RecorderOptions) (ports.Recorder, error) {
	cfg := p.cfg.Recorder
	cfg.SampleRate = opts.SampleRate
	cfg.Channels = opts.Channels
	return recorder.New(p.encoder, p.sched, cfg, p.logger)
}

func (p *Platform) CreateAnalyser() (ports.Analyser, error) {
	return NewAnalyser(p.cfg.Analyser), nil
}
