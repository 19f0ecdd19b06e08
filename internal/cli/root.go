package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"meetrec/internal/config"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if level := strings.TrimSpace(o.logLevel); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
	return cfg, nil
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "meetrec",
		Short:         "Record meetings with live transcription",
		Long:          "Records microphone and system audio, streams it to a realtime transcription service and uploads the recording when the meeting ends.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml, toml or json); defaults to $MEETREC_CONFIG")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(newRecordCmd(opts))
	rootCmd.AddCommand(newDoctorCmd(opts))

	return rootCmd
}
