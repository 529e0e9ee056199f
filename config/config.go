// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the propmap configuration from YAML, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/propmap/propmap/mapview"
	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/provider/loader"
)

// LoaderConfig tunes how provider SDKs are fetched.
type LoaderConfig struct {
	Timeout   time.Duration                     `yaml:"timeout"`
	UserAgent string                            `yaml:"user_agent"`
	Trace     bool                              `yaml:"trace"`
	Endpoints map[provider.Kind]loader.Endpoint `yaml:"endpoints"`
}

// RedisConfig enables publishing popup actions to Redis.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// GeocoderConfig configures address lookups.
type GeocoderConfig struct {
	APIKey string `yaml:"api_key"`
}

// Config is the complete service configuration.
type Config struct {
	Map      mapview.Config `yaml:"map"`
	Loader   LoaderConfig   `yaml:"loader"`
	Listen   string         `yaml:"listen"`
	Database string         `yaml:"database"`
	Seed     string         `yaml:"seed"`
	Redis    RedisConfig    `yaml:"redis"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	LogLevel string         `yaml:"log_level"`
	// Language renders popups; status messages follow Accept-Language.
	Language string `yaml:"language"`
}

// Default returns the built in configuration.
func Default() Config {
	return Config{
		Map: mapview.DefaultConfig(),
		Loader: LoaderConfig{
			Timeout: 10 * time.Second,
		},
		Listen:   ":8080",
		Database: "propmap.duckdb",
		LogLevel: "info",
		Language: "fr",
	}
}

// Endpoints returns the default provider endpoints with configured
// overrides applied.
func (c Config) Endpoints() map[provider.Kind]loader.Endpoint {
	out := make(map[provider.Kind]loader.Endpoint, len(loader.DefaultEndpoints))
	for k, v := range loader.DefaultEndpoints {
		out[k] = v
	}

	for k, v := range c.Loader.Endpoints {
		out[k] = v
	}

	return out
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Map.Validate(); err != nil {
		return fmt.Errorf("map: %w", err)
	}

	if c.Listen == "" {
		return errors.New("listen address is required")
	}

	if c.Loader.Timeout <= 0 {
		return errors.New("loader timeout must be positive")
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("language: %w", err)
	}

	for kind := range c.Loader.Endpoints {
		if _, err := provider.ParseKind(string(kind)); err != nil {
			return fmt.Errorf("loader endpoints: %w", err)
		}
	}

	return nil
}

// Decode reads YAML on top of the defaults. Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Load reads the optional .env file and YAML file, applies environment
// overrides and validates the result. Empty paths are skipped.
func Load(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env (%s): %w", envFile, err)
		}
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path is provided by admin
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}

		if cfg, err = Decode(bytes.NewReader(data)); err != nil {
			return Config{}, err
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// ApplyEnv overrides cfg from environment variables.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	var kind string
	str("PROPMAP_PROVIDER", &kind)

	if kind != "" {
		cfg.Map.Provider = provider.Kind(strings.ToLower(strings.TrimSpace(kind)))
	}

	str("PROPMAP_CREDENTIAL", &cfg.Map.Credential)
	str("PROPMAP_LISTEN", &cfg.Listen)
	str("PROPMAP_DATABASE", &cfg.Database)
	str("PROPMAP_SEED", &cfg.Seed)
	str("PROPMAP_REDIS_URL", &cfg.Redis.URL)
	str("PROPMAP_REDIS_CHANNEL", &cfg.Redis.Channel)
	str("PROPMAP_LOG_LEVEL", &cfg.LogLevel)
	str("PROPMAP_GEOCODER_KEY", &cfg.Geocoder.APIKey)
	str("PROPMAP_LANGUAGE", &cfg.Language)

	if v, ok := lookup("PROPMAP_DEFAULT_ZOOM"); ok && v != "" {
		zoom, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PROPMAP_DEFAULT_ZOOM: %w", err)
		}

		cfg.Map.DefaultZoom = zoom
	}

	if v, ok := lookup("PROPMAP_LOADER_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PROPMAP_LOADER_TIMEOUT: %w", err)
		}

		cfg.Loader.Timeout = d
	}

	if cfg.Map.Credential == "" {
		switch cfg.Map.Provider {
		case provider.KindGoogle:
			str("GOOGLE_MAPS_API_KEY", &cfg.Map.Credential)
		case provider.KindMapbox:
			str("MAPBOX_ACCESS_TOKEN", &cfg.Map.Credential)
		}
	}

	if cfg.Geocoder.APIKey == "" {
		str("GOOGLE_MAPS_API_KEY", &cfg.Geocoder.APIKey)
	}

	return nil
}
