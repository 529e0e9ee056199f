// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/propmap/propmap/config"
)

var rootOptions struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
}

var (
	cfg    config.Config
	logger = zerolog.Nop()
)

// newLogger writes human readable lines to a terminal and JSON otherwise.
func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	out := w

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05"}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

var rootCmd = &cobra.Command{
	Use:   "propmap",
	Short: "property listings on an interactive map",
	Long: `
propmap keeps the markers and popups of a property map in sync with a
directory of listings. It serves the map state over HTTP, streams the native
scene to browser viewers and manages the map provider lifecycle.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error

		cfg, err = config.Load(rootOptions.ConfigPath, rootOptions.EnvFile)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = rootOptions.LogLevel
		}

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}

		zerolog.DurationFieldUnit = time.Millisecond
		logger = newLogger(os.Stderr, level)

		return nil
	},
}

var Version = "dev"

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootOptions.ConfigPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&rootOptions.EnvFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&rootOptions.LogLevel, "log-level", "info", "trace, debug, info, warn or error")
}

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
