package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"goupdate/config"
	"goupdate/internal/logging"
)

const (
	flagConfig    = "config"
	flagLogFormat = "log-format"
	flagLogLevel  = "log-level"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goupdate",
		Short: "Update server for desktop and command line applications",
		Long: `goupdate answers update checks for applications released on GitHub.
Tauri clients receive the artifact and signature for their platform; other
clients receive the newest version. Either way the notes cover every release
the client skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString(flagConfig)
			if err != nil {
				return err
			}
			if path != "" {
				// The flag is shorthand for CONFIG_FILE.
				return os.Setenv("CONFIG_FILE", path)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringP(flagConfig, "c", "", "path to the YAML configuration file (default: $CONFIG_FILE, config/config.yaml or config.yaml)")
	cmd.PersistentFlags().String(flagLogFormat, "", `log format, "json" or "pretty" (overrides LOG_FORMAT)`)
	cmd.PersistentFlags().String(flagLogLevel, "", "log level, debug|info|warn|error (overrides LOG_LEVEL)")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// loadConfig loads the configuration and installs the default logger, writing
// to out. Log flags take precedence over the configuration.
func loadConfig(cmd *cobra.Command, out io.Writer) (*config.LoadResult, error) {
	result, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := result.Config.Log
	if f, _ := cmd.Flags().GetString(flagLogFormat); f != "" {
		logCfg.Format = f
	}
	if l, _ := cmd.Flags().GetString(flagLogLevel); l != "" {
		logCfg.Level = l
	}
	logger, err := logging.New(out, logCfg.Format, logCfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log configuration: %w", err)
	}
	slog.SetDefault(logger)

	return result, nil
}
