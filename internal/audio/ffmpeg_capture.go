package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"meetrec/internal/domain"
	"meetrec/internal/pcm"
	"meetrec/internal/ports"
)

// CaptureConfig selects the ffmpeg inputs for each source kind.
type CaptureConfig struct {
	Command      string
	InputFormat  string
	MicDevice    string
	SystemDevice string
	SampleRate   int
	// StartupWait is how long a process must survive before capture counts as started.
	StartupWait time.Duration
}

// FFMPEGCapture acquires microphone and system audio as f32le mono via ffmpeg.
type FFMPEGCapture struct {
	cfg CaptureConfig
}

func NewFFMPEGCapture(cfg CaptureConfig) *FFMPEGCapture {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.MicDevice == "" {
		cfg.MicDevice = "default"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.StartupWait <= 0 {
		cfg.StartupWait = 250 * time.Millisecond
	}
	return &FFMPEGCapture{cfg: cfg}
}

// Acquire starts capture of the given source kind.
func (c *FFMPEGCapture) Acquire(ctx context.Context, kind domain.SourceKind) (ports.AudioSource, error) {
	device := c.cfg.MicDevice
	if kind == domain.SourceSystem {
		device = strings.TrimSpace(c.cfg.SystemDevice)
		if device == "" || strings.EqualFold(device, "none") {
			return nil, domain.ErrSystemAudioUnsupported
		}
	}
	source, err := c.Start(ctx, kind, ports.AudioConfig{
		SampleRate:  c.cfg.SampleRate,
		InputFormat: c.cfg.InputFormat,
		InputDevice: device,
	})
	if err != nil {
		if kind == domain.SourceSystem {
			return nil, fmt.Errorf("%w: %w", domain.ErrSystemAudioUnsupported, err)
		}
		return nil, err
	}
	return source, nil
}

func (c *FFMPEGCapture) Start(ctx context.Context, kind domain.SourceKind, cfg ports.AudioConfig) (ports.AudioSource, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = c.cfg.SampleRate
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = c.cfg.InputFormat
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", "1",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "f32le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", domain.ErrDeviceNotFound, err)
	}

	source := &ffmpegSource{
		kind:    kind,
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		source.exited.Store(true)
		waitErr <- err
		close(waitErr)
	}()
	source.waitErr = waitErr

	select {
	case err := <-waitErr:
		return nil, classifyCaptureError(kind, err, stringsTrimSpaceSafe(stderr.String()))
	case <-time.After(c.cfg.StartupWait):
	}

	return source, nil
}

type ffmpegSource struct {
	kind   domain.SourceKind
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error
	exited  atomic.Bool
	stopped atomic.Bool

	raw []byte
	rem []byte

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSource) Kind() domain.SourceKind {
	return s.kind
}

func (s *ffmpegSource) Active() bool {
	return !s.stopped.Load() && !s.exited.Load()
}

func (s *ffmpegSource) ReadSamples(buf []float32) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	need := len(buf) * 4
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]
	n := copy(raw, s.rem)
	s.rem = s.rem[:0]

	for n < 4 {
		m, err := s.stdout.Read(raw[n:])
		n += m
		if err != nil {
			if n >= 4 {
				break
			}
			return 0, err
		}
	}

	whole := n - n%4
	s.rem = append(s.rem, raw[whole:n]...)
	return pcm.DecodeFloat32(raw[:whole], buf), nil
}

func (s *ffmpegSource) Stop() error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

// classifyCaptureError maps an early ffmpeg exit to the device error taxonomy.
func classifyCaptureError(kind domain.SourceKind, err error, stderr string) error {
	detail := stderr
	if err != nil {
		detail = strings.TrimSpace(err.Error() + ": " + stderr)
	}

	lower := strings.ToLower(stderr)
	var cause error
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "operation not permitted"),
		strings.Contains(lower, "access denied"):
		cause = domain.ErrPermissionDenied
	case strings.Contains(lower, "device or resource busy"),
		strings.Contains(lower, "resource busy"):
		cause = domain.ErrDeviceBusy
	default:
		cause = domain.ErrDeviceNotFound
	}
	return fmt.Errorf("%w: %s capture exited before it started: %s", cause, kind, detail)
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
