package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesail/internal/config"
)

// configureLogger creates a logger with the appropriate log level based on flags.
// --log-level takes precedence over --verbose. Without either the logger is
// silent (panic level) so log lines never tear the live board.
func configureLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	cfg := config.DefaultConfig()

	if logLevelStr, _ := cmd.Flags().GetString("log-level"); logLevelStr != "" {
		level, err := config.ParseLogLevel(logLevelStr)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = logrus.DebugLevel
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}
