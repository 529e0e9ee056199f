// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/propmap/propmap/directory"
	"github.com/propmap/propmap/geocode"
	"github.com/propmap/propmap/mapview"
	"github.com/propmap/propmap/notify"
	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/provider/loader"
	"github.com/propmap/propmap/provider/scene"
	"github.com/propmap/propmap/utils/httputils"
)

func openDirectory(path string) (*sql.DB, directory.Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	repo := directory.NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		db.Close()

		return nil, nil, fmt.Errorf("creating schema: %w", err)
	}

	return db, repo, nil
}

func httpClient() *http.Client {
	opts := httputils.ClientOptions{
		Timeout:   cfg.Loader.Timeout,
		UserAgent: cfg.Loader.UserAgent,
	}

	if opts.UserAgent == "" {
		opts.UserAgent = fmt.Sprintf("propmap/%s (+https://github.com/propmap/propmap)", Version)
	}

	if cfg.Loader.Trace {
		opts.Trace = os.Stderr
	}

	return httputils.NewClient(opts)
}

// sdkLoader fetches provider SDKs and installs a scene mirrored to hub.
func sdkLoader(hub *scene.Hub) *loader.Loader {
	l := loader.New(httpClient(), func(kind provider.Kind) provider.Map {
		var sink func(scene.Op)
		if hub != nil {
			sink = hub.Sink()
		}

		return scene.New(kind, sink)
	})
	l.Endpoints = cfg.Endpoints()

	return l
}

func newGeocoder(ctx context.Context) geocode.Geocoder {
	key := cfg.Geocoder.APIKey
	if key == "" && serveOptions.ADC {
		var err error

		key, err = apiKeyFromADC(ctx, adcOptions.Project, adcOptions.DisplayName)
		if err != nil {
			logger.Warn().Err(err).Msg("geocoding disabled: no API key from ADC")

			return nil
		}

		logger.Info().Msg("retrieved geocoding key via ADC")
	}

	if key == "" {
		logger.Info().Msg("geocoding disabled: no API key")

		return nil
	}

	return geocode.NewGoogleMapsGeocoder(key, httpClient())
}

// newNotifier logs popup actions and, when configured, publishes them to
// Redis. The returned close func releases the connection.
func newNotifier(ctx context.Context) (mapview.Notifier, func(), error) {
	var n notify.Multi

	n = append(n, notify.NewLog(logger))

	if cfg.Redis.URL == "" {
		return n, func() {}, nil
	}

	client, err := notify.Dial(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}

	n = append(n, notify.NewRedis(client, cfg.Redis.Channel))

	return n, func() { client.Close() }, nil
}

// progress returns a progress callback drawing a bar on terminals.
func progress(description string) directory.Progress {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return func(done, total int) {
			if done == total {
				logger.Info().Int("done", done).Msg(description)
			}
		}
	}

	var bar *progressbar.ProgressBar

	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(description),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		_ = bar.Set(done)
	}
}
