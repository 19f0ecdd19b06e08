package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// MEETREC_BACKEND__BASE_URL or MEETREC_SILENCE__THRESHOLD_DB.
const EnvPrefix = "MEETREC"

// Config stores runtime configuration for the recorder.
type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Silence  SilenceConfig  `mapstructure:"silence"`
	Duration DurationConfig `mapstructure:"duration"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Output   OutputConfig   `mapstructure:"output"`
}

// BackendConfig points at the service that mints channel tokens and stores
// recordings. An empty BaseURL selects the local output directory.
type BackendConfig struct {
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	TokenPath   string        `mapstructure:"token_path" validate:"required"`
	UploadPath  string        `mapstructure:"upload_path" validate:"required"`
	BearerToken string        `mapstructure:"bearer_token"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// RealtimeConfig configures the transcription channel. Token is a
// pre-minted temporary token, used only when no backend is configured.
type RealtimeConfig struct {
	Token            string        `mapstructure:"token"`
	URL              string        `mapstructure:"url" validate:"required,url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gt=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	SampleRate       int           `mapstructure:"sample_rate" validate:"gt=0"`
	FrameSamples     int           `mapstructure:"frame_samples" validate:"min=256"`
	WordBoost        []string      `mapstructure:"word_boost"`
}

type AudioConfig struct {
	FFmpegCommand string        `mapstructure:"ffmpeg_command" validate:"required"`
	InputFormat   string        `mapstructure:"input_format" validate:"required"`
	MicDevice     string        `mapstructure:"mic_device" validate:"required"`
	SystemDevice  string        `mapstructure:"system_device"`
	EnableSystem  bool          `mapstructure:"enable_system"`
	SampleRate    int           `mapstructure:"sample_rate" validate:"gt=0"`
	BlockSamples  int           `mapstructure:"block_samples" validate:"gt=0"`
	StartupWait   time.Duration `mapstructure:"startup_wait" validate:"gte=0"`
}

type RecorderConfig struct {
	Timeslice time.Duration `mapstructure:"timeslice" validate:"gt=0"`
	Formats   []string      `mapstructure:"formats" validate:"min=1,dive,required"`
	Bitrate   int           `mapstructure:"bitrate" validate:"gt=0"`
}

type SilenceConfig struct {
	ThresholdDB        float64       `mapstructure:"threshold_db" validate:"lt=0"`
	FrequencyThreshold float64       `mapstructure:"frequency_threshold" validate:"gt=0"`
	CheckInterval      time.Duration `mapstructure:"check_interval" validate:"gt=0"`
	InitialTimeout     time.Duration `mapstructure:"initial_timeout" validate:"gt=0"`
	Countdown          time.Duration `mapstructure:"countdown" validate:"gte=1s"`
	Hysteresis         int           `mapstructure:"hysteresis" validate:"min=1"`
}

type DurationConfig struct {
	WarningAfter time.Duration `mapstructure:"warning_after" validate:"gt=0"`
	Countdown    time.Duration `mapstructure:"countdown" validate:"gte=1s"`
}

type SessionConfig struct {
	MeetingID           string        `mapstructure:"meeting_id"`
	ChannelCloseTimeout time.Duration `mapstructure:"channel_close_timeout" validate:"gt=0"`
	TeardownTimeout     time.Duration `mapstructure:"teardown_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type OutputConfig struct {
	LocalDir string `mapstructure:"local_dir" validate:"required"`
}

// Load resolves configuration from defaults, an optional config file and
// MEETREC_ environment variables, in increasing precedence. path may be
// empty; MEETREC_CONFIG is consulted then.
func Load(path string) (Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvPrefix + "_CONFIG"))
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every violation at once.
// Captured audio reaches the channel without resampling, so the capture
// and channel rates must agree.
func Validate(cfg Config) error {
	if err := validateFields(cfg); err != nil {
		return err
	}
	if cfg.Audio.SampleRate != cfg.Realtime.SampleRate {
		return fmt.Errorf("invalid config: audio.sample_rate %d must equal realtime.sample_rate %d",
			cfg.Audio.SampleRate, cfg.Realtime.SampleRate)
	}
	return nil
}

func validateFields(cfg Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s: %w", strings.Join(fields, ", "), err)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BACKEND__BASE_URL", "")
	v.SetDefault("BACKEND__TOKEN_PATH", "/getAssemblyAIToken")
	v.SetDefault("BACKEND__UPLOAD_PATH", "/meetings/{meeting}/audio_{timestamp}.{ext}")
	v.SetDefault("BACKEND__BEARER_TOKEN", "")
	v.SetDefault("BACKEND__TIMEOUT", 30*time.Second)

	v.SetDefault("REALTIME__TOKEN", "")
	v.SetDefault("REALTIME__URL", "wss://api.assemblyai.com/v2/realtime/ws")
	v.SetDefault("REALTIME__HANDSHAKE_TIMEOUT", 10*time.Second)
	v.SetDefault("REALTIME__WRITE_TIMEOUT", 5*time.Second)
	v.SetDefault("REALTIME__SAMPLE_RATE", 16000)
	v.SetDefault("REALTIME__FRAME_SAMPLES", 4096)
	v.SetDefault("REALTIME__WORD_BOOST", []string{})

	v.SetDefault("AUDIO__FFMPEG_COMMAND", "ffmpeg")
	v.SetDefault("AUDIO__INPUT_FORMAT", "pulse")
	v.SetDefault("AUDIO__MIC_DEVICE", "default")
	v.SetDefault("AUDIO__SYSTEM_DEVICE", "@DEFAULT_MONITOR@")
	v.SetDefault("AUDIO__ENABLE_SYSTEM", true)
	v.SetDefault("AUDIO__SAMPLE_RATE", 16000)
	v.SetDefault("AUDIO__BLOCK_SAMPLES", 1024)
	v.SetDefault("AUDIO__STARTUP_WAIT", 250*time.Millisecond)

	v.SetDefault("RECORDER__TIMESLICE", time.Second)
	v.SetDefault("RECORDER__FORMATS", []string{
		"audio/mp4",
		"audio/webm;codecs=opus",
		"audio/webm",
		"audio/aac",
		"audio/mpeg",
	})
	v.SetDefault("RECORDER__BITRATE", 128000)

	v.SetDefault("SILENCE__THRESHOLD_DB", -50.0)
	v.SetDefault("SILENCE__FREQUENCY_THRESHOLD", 5.0)
	v.SetDefault("SILENCE__CHECK_INTERVAL", 100*time.Millisecond)
	v.SetDefault("SILENCE__INITIAL_TIMEOUT", 60*time.Second)
	v.SetDefault("SILENCE__COUNTDOWN", 60*time.Second)
	v.SetDefault("SILENCE__HYSTERESIS", 5)

	v.SetDefault("DURATION__WARNING_AFTER", 75*time.Minute)
	v.SetDefault("DURATION__COUNTDOWN", 60*time.Second)

	v.SetDefault("SESSION__MEETING_ID", "")
	v.SetDefault("SESSION__CHANNEL_CLOSE_TIMEOUT", 4*time.Second)
	v.SetDefault("SESSION__TEARDOWN_TIMEOUT", 30*time.Second)

	v.SetDefault("LOG__LEVEL", "info")
	v.SetDefault("LOG__FORMAT", "text")

	v.SetDefault("METRICS__LISTEN_ADDR", "")

	v.SetDefault("OUTPUT__LOCAL_DIR", "recordings")
}
