// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/propmap/propmap/metrics"
	"github.com/propmap/propmap/provider"
)

// Status is the provider bootstrap status.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
	StatusError         Status = "error"
)

// ProviderState is a snapshot of the bootstrapper.
type ProviderState struct {
	Status    Status        `json:"status"`
	Provider  provider.Kind `json:"provider,omitempty"`
	Attempt   int           `json:"attempt"`
	Retryable bool          `json:"retryable"`
	Error     string        `json:"error,omitempty"`
	Err       error         `json:"-"`
}

// BootstrapConfig selects the provider and credential to install.
type BootstrapConfig struct {
	Provider   provider.Kind
	Credential string
}

// DefaultLoadTimeout bounds a single SDK install.
const DefaultLoadTimeout = 30 * time.Second

// Bootstrapper installs the map SDK at most once at a time. Concurrent
// Initialize calls share one load, which runs detached from any single
// caller's context.
type Bootstrapper struct {
	// LoadTimeout bounds each install.
	LoadTimeout time.Duration

	loader  provider.Loader
	log     zerolog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group

	mu    sync.Mutex
	cfg   BootstrapConfig
	state ProviderState
	m     provider.Map
	gen   uint64
}

// NewBootstrapper returns an uninitialized bootstrapper using loader.
func NewBootstrapper(loader provider.Loader, log zerolog.Logger, mt *metrics.Metrics) *Bootstrapper {
	return &Bootstrapper{
		LoadTimeout: DefaultLoadTimeout,
		loader:      loader,
		log:         log,
		metrics:     mt,
		state:       ProviderState{Status: StatusUninitialized},
	}
}

var (
	sharedMu sync.Mutex
	shared   *Bootstrapper
)

// SharedBootstrapper returns the process wide bootstrapper, creating it with
// loader on first use. Later loaders are ignored.
func SharedBootstrapper(loader provider.Loader, log zerolog.Logger, mt *metrics.Metrics) *Bootstrapper {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared == nil {
		shared = NewBootstrapper(loader, log, mt)
	}

	return shared
}

// State returns a snapshot of the current state.
func (b *Bootstrapper) State() ProviderState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Map returns the installed SDK instance.
func (b *Bootstrapper) Map() (provider.Map, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.m, b.m != nil
}

// Initialize installs the SDK for cfg. A ready install with the same config
// is returned as is; a different config replaces it. Canceling ctx only
// stops this caller from waiting; the shared load keeps running for the
// other callers.
func (b *Bootstrapper) Initialize(ctx context.Context, cfg BootstrapConfig) (ProviderState, error) {
	b.mu.Lock()
	if b.state.Status == StatusReady && b.cfg == cfg {
		st := b.state
		b.mu.Unlock()

		return st, nil
	}
	b.mu.Unlock()

	ch := b.group.DoChan("install", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.LoadTimeout)
		defer cancel()

		return b.install(loadCtx, cfg)
	})

	select {
	case res := <-ch:
		st, _ := res.Val.(ProviderState)

		return st, res.Err
	case <-ctx.Done():
		return b.State(), ctx.Err()
	}
}

func (b *Bootstrapper) install(ctx context.Context, cfg BootstrapConfig) (ProviderState, error) {
	b.mu.Lock()

	if b.state.Status == StatusReady && b.cfg == cfg {
		st := b.state
		b.mu.Unlock()

		return st, nil
	}

	old := b.m
	b.m = nil
	b.gen++
	gen := b.gen
	b.cfg = cfg
	b.state = ProviderState{
		Status:   StatusLoading,
		Provider: cfg.Provider,
		Attempt:  b.state.Attempt + 1,
	}
	attempt := b.state.Attempt
	b.mu.Unlock()

	if old != nil {
		if err := old.Remove(); err != nil && !errors.Is(err, provider.ErrRemoved) {
			b.log.Warn().Err(err).Msg("failed to release previous map")
		}
	}

	b.log.Info().Str("provider", string(cfg.Provider)).Int("attempt", attempt).Msg("loading map provider")

	m, err := b.loader.Load(ctx, cfg.Provider, cfg.Credential)
	if err == nil && m == nil {
		err = errors.New("loader returned no map")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen {
		if m != nil {
			_ = m.Remove()
		}

		return b.state, ErrSuperseded
	}

	if err != nil {
		var wrapped error

		credential := IsCredentialFailure(err)
		if credential {
			wrapped = &CredentialError{Provider: cfg.Provider, Err: err}
			b.metrics.ProviderLoad(string(cfg.Provider), "credential_error")
		} else {
			wrapped = &ProviderLoadError{Provider: cfg.Provider, Attempt: attempt, Retryable: true, Err: err}
			b.metrics.ProviderLoad(string(cfg.Provider), "error")
		}

		b.state.Status = StatusError
		b.state.Retryable = !credential
		b.state.Err = wrapped
		b.state.Error = wrapped.Error()
		b.log.Warn().Err(wrapped).Bool("credential", credential).Msg("map provider failed to load")

		return b.state, wrapped
	}

	b.m = m
	b.state.Status = StatusReady
	b.metrics.ProviderLoad(string(cfg.Provider), "ready")
	b.log.Info().Str("provider", string(cfg.Provider)).Msg("map provider ready")

	return b.state, nil
}

// Invalidate marks a ready install as failed by the provider after the fact,
// so the next Initialize reloads even with an unchanged config. The map
// stays installed until it is replaced.
func (b *Bootstrapper) Invalidate(err error) {
	if err == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.Status != StatusReady {
		return
	}

	credential := IsCredentialFailure(err)

	b.state.Status = StatusError
	b.state.Retryable = !credential
	b.state.Err = err
	b.state.Error = err.Error()
	b.log.Warn().Err(err).Bool("credential", credential).Msg("installed map provider invalidated")
}

// Retry starts a fresh load of the last config. It is only allowed after a
// failed load.
func (b *Bootstrapper) Retry(ctx context.Context) (ProviderState, error) {
	b.mu.Lock()
	if b.state.Status != StatusError {
		st := b.state
		b.mu.Unlock()

		return st, ErrNotRetryable
	}

	cfg := b.cfg
	b.mu.Unlock()

	return b.Initialize(ctx, cfg)
}

// Teardown releases the installed SDK and resets the bootstrapper. A load
// in flight is discarded when it completes.
func (b *Bootstrapper) Teardown() error {
	b.mu.Lock()
	m := b.m
	b.m = nil
	b.gen++
	b.cfg = BootstrapConfig{}
	b.state = ProviderState{Status: StatusUninitialized}
	b.mu.Unlock()

	if m == nil {
		return nil
	}

	if err := m.Remove(); err != nil && !errors.Is(err, provider.ErrRemoved) {
		return err
	}

	return nil
}
