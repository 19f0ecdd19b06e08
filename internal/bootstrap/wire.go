package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"meetrec/internal/audio"
	"meetrec/internal/config"
	"meetrec/internal/events"
	"meetrec/internal/metrics"
	"meetrec/internal/monitor"
	"meetrec/internal/notify"
	"meetrec/internal/ports"
	"meetrec/internal/providers/assemblyai"
	"meetrec/internal/providers/backend"
	"meetrec/internal/providers/localstore"
	"meetrec/internal/recorder"
	"meetrec/internal/schedule"
	"meetrec/internal/usecase"
)

var ErrNoTokenSource = errors.New("live transcription needs backend.base_url or realtime.token")

// Services is the assembled runtime graph.
type Services struct {
	Lifecycle *usecase.Lifecycle
	Platform  *audio.Platform
	Events    *events.Bus
	Registry  *prometheus.Registry
	Logger    *log.Logger
	Config    config.Config
}

// Build wires all runtime dependencies. Extra sinks observe lifecycle
// events next to the log notifier.
func Build(cfg config.Config, logOut io.Writer, sinks ...ports.EventSink) (Services, error) {
	logger, err := NewLogger(cfg.Log, logOut)
	if err != nil {
		return Services{}, err
	}

	tokens, uploads, err := buildBackend(cfg)
	if err != nil {
		return Services{}, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	sched := schedule.NewReal()
	platform := audio.NewPlatform(audio.PlatformConfig{
		Capture: audio.CaptureConfig{
			Command:      cfg.Audio.FFmpegCommand,
			InputFormat:  cfg.Audio.InputFormat,
			MicDevice:    cfg.Audio.MicDevice,
			SystemDevice: cfg.Audio.SystemDevice,
			SampleRate:   cfg.Audio.SampleRate,
			StartupWait:  cfg.Audio.StartupWait,
		},
		BlockSamples: cfg.Audio.BlockSamples,
		Recorder: recorder.Config{
			Timeslice: cfg.Recorder.Timeslice,
			Formats:   cfg.Recorder.Formats,
			Bitrate:   cfg.Recorder.Bitrate,
		},
	}, sched, logger.WithPrefix("audio"))

	provider := assemblyai.NewProvider(assemblyai.Config{
		URL:              cfg.Realtime.URL,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		WriteTimeout:     cfg.Realtime.WriteTimeout,
	}, tokens, logger.WithPrefix("realtime"))

	bus := events.NewBus(notify.New(logger.WithPrefix("notify")))
	for _, sink := range sinks {
		bus.Subscribe(sink)
	}

	lifecycle := usecase.NewLifecycle(usecase.Deps{
		Platform:  platform,
		Provider:  provider,
		Uploads:   uploads,
		Events:    bus,
		Scheduler: sched,
		Metrics:   m,
		Logger:    logger,
	}, usecase.Config{
		SampleRate:   cfg.Audio.SampleRate,
		EnableSystem: cfg.Audio.EnableSystem,
		MeetingID:    cfg.Session.MeetingID,
		Streaming: ports.StreamingConfig{
			SampleRate: cfg.Realtime.SampleRate,
			Encoding:   "pcm_s16le",
			WordBoost:  cfg.Realtime.WordBoost,
		},
		FrameSamples:        cfg.Realtime.FrameSamples,
		ChannelCloseTimeout: cfg.Session.ChannelCloseTimeout,
		TeardownTimeout:     cfg.Session.TeardownTimeout,
		Silence: monitor.SilenceConfig{
			ThresholdDB:        cfg.Silence.ThresholdDB,
			FrequencyThreshold: cfg.Silence.FrequencyThreshold,
			CheckInterval:      cfg.Silence.CheckInterval,
			InitialTimeout:     cfg.Silence.InitialTimeout,
			Countdown:          cfg.Silence.Countdown,
			Hysteresis:         cfg.Silence.Hysteresis,
		},
		Duration: monitor.DurationConfig{
			WarningAfter: cfg.Duration.WarningAfter,
			Countdown:    cfg.Duration.Countdown,
		},
	})

	return Services{
		Lifecycle: lifecycle,
		Platform:  platform,
		Events:    bus,
		Registry:  registry,
		Logger:    logger,
		Config:    cfg,
	}, nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, out io.Writer) (*log.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	level := log.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}

	formatter := log.TextFormatter
	switch cfg.Format {
	case "", "text":
	case "json":
		formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Prefix:          "meetrec",
		Level:           level,
		Formatter:       formatter,
	}), nil
}

// buildBackend picks the token source and the upload sink. The backend
// serves both when configured; otherwise recordings go to the local
// directory and the channel uses a pre-minted token.
func buildBackend(cfg config.Config) (ports.TokenProvider, ports.UploadSink, error) {
	if cfg.Backend.BaseURL != "" {
		client := backend.NewClient(backend.Config{
			BaseURL:     cfg.Backend.BaseURL,
			TokenPath:   cfg.Backend.TokenPath,
			UploadPath:  cfg.Backend.UploadPath,
			BearerToken: cfg.Backend.BearerToken,
			Timeout:     cfg.Backend.Timeout,
		})
		return client, client, nil
	}
	if strings.TrimSpace(cfg.Realtime.Token) == "" {
		return nil, nil, ErrNoTokenSource
	}
	return staticToken(cfg.Realtime.Token), localstore.New(cfg.Output.LocalDir), nil
}

type staticToken string

func (t staticToken) FetchToken(context.Context) (string, error) {
	return strings.TrimSpace(string(t)), nil
}
