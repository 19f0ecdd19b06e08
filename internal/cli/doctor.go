package cli

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"meetrec/internal/audio"
	"meetrec/internal/config"
	"meetrec/internal/recorder"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if !runDoctor(cmd.Context(), cfg, newPrinter(cmd.OutOrStdout())) {
				return fmt.Errorf("some prerequisites are missing")
			}
			return nil
		},
	}
}

// runDoctor reports ffmpeg availability, the recording format that will be
// selected and where audio and tokens come from.
func runDoctor(ctx context.Context, cfg config.Config, p *printer) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	ok := true

	path, err := exec.LookPath(cfg.Audio.FFmpegCommand)
	if err != nil {
		p.Check("ffmpeg", false, fmt.Sprintf("%q not found. Install ffmpeg or set MEETREC_AUDIO__FFMPEG_COMMAND", cfg.Audio.FFmpegCommand))
		ok = false
	} else {
		p.Check("ffmpeg", true, path)
	}

	factory := audio.NewEncoderFactory(cfg.Audio.FFmpegCommand)
	if _, err := factory.Probe(ctx); err != nil {
		p.Check("Encoders", false, err.Error())
	}
	for _, mimeType := range cfg.Recorder.Formats {
		if factory.Supports(mimeType) {
			p.Check(mimeType, true, "supported")
		} else {
			p.Check(mimeType, false, "not supported")
		}
	}
	format := recorder.SelectFormat(factory, cfg.Recorder.Formats, cfg.Recorder.Bitrate)
	if format.Fallback {
		p.Check("Recording format", true, fmt.Sprintf("%s (fallback)", audio.MimeWAV))
	} else {
		p.Check("Recording format", true, fmt.Sprintf("%s at %d kbps", format.MimeType, format.Bitrate/1000))
	}

	p.Check("Microphone", true, fmt.Sprintf("%s:%s", cfg.Audio.InputFormat, cfg.Audio.MicDevice))
	if cfg.Audio.EnableSystem {
		p.Check("System audio", true, fmt.Sprintf("%s:%s", cfg.Audio.InputFormat, cfg.Audio.SystemDevice))
	} else {
		p.Check("System audio", true, "disabled")
	}

	switch {
	case cfg.Backend.BaseURL != "":
		p.Check("Backend", true, cfg.Backend.BaseURL)
	case cfg.Realtime.Token != "":
		p.Check("Backend", true, "not configured, recordings are saved to "+cfg.Output.LocalDir)
	default:
		p.Check("Transcription token", false, "set MEETREC_BACKEND__BASE_URL or MEETREC_REALTIME__TOKEN")
		ok = false
	}

	if ok {
		p.Success("\nAll prerequisites met. Ready to record!")
	} else {
		p.Warning("\nSome prerequisites are missing.")
	}
	return ok
}
