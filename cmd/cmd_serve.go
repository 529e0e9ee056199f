// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/propmap/propmap/directory"
	"github.com/propmap/propmap/locale"
	"github.com/propmap/propmap/mapview"
	"github.com/propmap/propmap/metrics"
	"github.com/propmap/propmap/provider/scene"
	"github.com/propmap/propmap/server"
)

var serveOptions struct {
	Listen     string
	Initialize bool
	ADC        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the map widget and the listing directory",
	RunE: func(_ *cobra.Command, _ []string) error {
		if serveOptions.Listen != "" {
			cfg.Listen = serveOptions.Listen
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, repo, err := openDirectory(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if cfg.Seed != "" {
			seeded, n, err := directory.SeedIfEmpty(repo, cfg.Seed, progress("Seeding "+cfg.Seed))
			if err != nil {
				return fmt.Errorf("seeding directory: %w", err)
			}

			if seeded {
				logger.Info().Int("listings", n).Str("seed", cfg.Seed).Msg("seeded directory")
			}
		}

		notifier, closeNotifier, err := newNotifier(ctx)
		if err != nil {
			return err
		}
		defer closeNotifier()

		tag, err := language.Parse(cfg.Language)
		if err != nil {
			return fmt.Errorf("language: %w", err)
		}

		catalog := locale.New()
		hub := scene.NewHub(logger)
		m := metrics.New()
		geocoder := newGeocoder(ctx)
		boot := mapview.SharedBootstrapper(sdkLoader(hub), logger, m)

		srv, err := server.New(server.Options{
			NewWidget: func() (*mapview.Widget, error) {
				return mapview.New(cfg.Map, mapview.Options{
					Bootstrapper: boot,
					Geocoder:     geocoder,
					Navigator:    server.Navigator{Hub: hub},
					Notifier:     notifier,
					Localizer:    catalog.Localizer(tag),
					Logger:       logger,
					Metrics:      m,
				})
			},
			Repo:    repo,
			Hub:     hub,
			Catalog: catalog,
			Metrics: m,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		if serveOptions.Initialize {
			initCtx, cancel := context.WithTimeout(ctx, 2*cfg.Loader.Timeout)
			if err := srv.Widget().Initialize(initCtx); err != nil {
				// the recovery routes take it from here
				logger.Warn().Err(err).Str("provider", string(cfg.Map.Provider)).Msg("initial provider load failed")
			}

			cancel()
		}

		start := time.Now()
		err = srv.Run(ctx, cfg.Listen)
		logger.Info().Dur("uptime", time.Since(start)).Msg("server stopped")

		return err
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveOptions.Listen, "listen", "l", "", "listen address, overrides the configuration")
	serveCmd.Flags().BoolVar(&serveOptions.Initialize, "init", true, "load the map provider on startup")
	serveCmd.Flags().BoolVar(&serveOptions.ADC, "adc", false, "fetch the geocoding key via Application Default Credentials when none is configured")
	rootCmd.AddCommand(serveCmd)
}
