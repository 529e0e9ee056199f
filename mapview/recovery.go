// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// RecoveryPhase is the user facing position of the load and credential
// flow.
type RecoveryPhase string

const (
	RecoveryBootstrapping      RecoveryPhase = "bootstrapping"
	RecoveryReady              RecoveryPhase = "ready"
	RecoveryLoadError          RecoveryPhase = "load_error"
	RecoveryRetrying           RecoveryPhase = "retrying"
	RecoveryCredentialError    RecoveryPhase = "credential_error"
	RecoveryAwaitingCredential RecoveryPhase = "awaiting_credential"
	RecoveryReinitializing     RecoveryPhase = "reinitializing"
)

// Recovery drives the bootstrapper through load failures and credential
// replacement.
type Recovery struct {
	boot *Bootstrapper
	log  zerolog.Logger

	// BeforeReinitialize runs after a submitted credential passed local
	// validation and before the provider is reinstalled.
	BeforeReinitialize func()

	mu      sync.Mutex
	cfg     BootstrapConfig
	phase   RecoveryPhase
	lastErr error
}

// NewRecovery returns a flow that installs cfg through boot.
func NewRecovery(boot *Bootstrapper, cfg BootstrapConfig, log zerolog.Logger) *Recovery {
	return &Recovery{boot: boot, cfg: cfg, phase: RecoveryBootstrapping, log: log}
}

// Phase returns the current phase.
func (r *Recovery) Phase() RecoveryPhase {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.phase
}

// LastError returns the error that caused the current phase, if any.
func (r *Recovery) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastErr
}

func (r *Recovery) transition(from []RecoveryPhase, to RecoveryPhase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range from {
		if r.phase == f {
			r.log.Debug().Str("from", string(r.phase)).Str("to", string(to)).Msg("recovery transition")
			r.phase = to

			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrWrongPhase, r.phase)
}

// settle records the outcome of a load.
func (r *Recovery) settle(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastErr = err

	switch {
	case err == nil:
		r.phase = RecoveryReady
	case IsCredentialFailure(err):
		r.phase = RecoveryCredentialError
	default:
		r.phase = RecoveryLoadError
	}

	r.log.Debug().Str("phase", string(r.phase)).Msg("recovery settled")

	return err
}

// Start performs the initial load.
func (r *Recovery) Start(ctx context.Context) error {
	r.mu.Lock()
	r.phase = RecoveryBootstrapping
	cfg := r.cfg
	r.mu.Unlock()

	_, err := r.boot.Initialize(ctx, cfg)

	return r.settle(err)
}

// Retry reloads after a load error.
func (r *Recovery) Retry(ctx context.Context) error {
	if err := r.transition([]RecoveryPhase{RecoveryLoadError}, RecoveryRetrying); err != nil {
		return err
	}

	_, err := r.boot.Retry(ctx)

	return r.settle(err)
}

// RequestCredential opens the credential prompt after a credential error.
func (r *Recovery) RequestCredential() error {
	return r.transition([]RecoveryPhase{RecoveryCredentialError}, RecoveryAwaitingCredential)
}

// SubmitCredential validates token locally and, if it looks right,
// reinstalls the provider with it. A malformed token leaves the flow
// waiting for another one.
func (r *Recovery) SubmitCredential(ctx context.Context, token string) error {
	r.mu.Lock()
	if r.phase != RecoveryCredentialError && r.phase != RecoveryAwaitingCredential {
		phase := r.phase
		r.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrWrongPhase, phase)
	}

	kind := r.cfg.Provider

	if err := ValidateCredential(kind, token); err != nil {
		r.phase = RecoveryAwaitingCredential
		r.lastErr = err
		r.mu.Unlock()

		return err
	}

	r.phase = RecoveryReinitializing
	r.cfg.Credential = token
	cfg := r.cfg
	r.mu.Unlock()

	if r.BeforeReinitialize != nil {
		r.BeforeReinitialize()
	}

	_, err := r.boot.Initialize(ctx, cfg)

	return r.settle(err)
}

// ReportFailure feeds a runtime provider error into the flow. Credential
// failures while ready move to the credential error phase; anything else is
// only logged.
func (r *Recovery) ReportFailure(err error) bool {
	if err == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != RecoveryReady || !IsCredentialFailure(err) {
		r.log.Warn().Err(err).Str("phase", string(r.phase)).Msg("provider reported an error")

		return false
	}

	r.phase = RecoveryCredentialError
	r.lastErr = &CredentialError{Provider: r.cfg.Provider, Err: err}
	r.boot.Invalidate(r.lastErr)
	r.log.Warn().Err(err).Msg("provider rejected the credential")

	return true
}
