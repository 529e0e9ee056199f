// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmap/propmap/provider"
)

var validGoogleKey = "AIza" + strings.Repeat("x", 35)

func newRecovery(loader provider.Loader, cfg BootstrapConfig) *Recovery {
	return NewRecovery(NewBootstrapper(loader, zerolog.Nop(), nil), cfg, zerolog.Nop())
}

func TestRecoveryLoadErrorThenRetry(t *testing.T) {
	loader := &scriptedLoader{errs: []error{errors.New("network unreachable"), errors.New("network unreachable")}}
	r := newRecovery(loader, osmConfig)

	require.Error(t, r.Start(context.Background()))
	assert.Equal(t, RecoveryLoadError, r.Phase())

	require.Error(t, r.Retry(context.Background()))
	assert.Equal(t, RecoveryLoadError, r.Phase())

	require.NoError(t, r.Retry(context.Background()))
	assert.Equal(t, RecoveryReady, r.Phase())
	assert.NoError(t, r.LastError())
	assert.Equal(t, int32(3), loader.calls.Load())
}

func TestRecoveryRetryOnlyAfterLoadError(t *testing.T) {
	r := newRecovery(&scriptedLoader{}, osmConfig)
	require.NoError(t, r.Start(context.Background()))

	assert.ErrorIs(t, r.Retry(context.Background()), ErrWrongPhase)
	assert.ErrorIs(t, r.RequestCredential(), ErrWrongPhase)
	assert.ErrorIs(t, r.SubmitCredential(context.Background(), validGoogleKey), ErrWrongPhase)
}

func TestRecoveryCredentialFlow(t *testing.T) {
	loader := &scriptedLoader{errs: []error{&provider.LoadError{Kind: provider.KindGoogle, StatusCode: http.StatusForbidden, Message: "InvalidKeyMapError"}}}
	r := newRecovery(loader, BootstrapConfig{Provider: provider.KindGoogle, Credential: "AIza-revoked"})

	reinit := 0
	r.BeforeReinitialize = func() { reinit++ }

	require.Error(t, r.Start(context.Background()))
	assert.Equal(t, RecoveryCredentialError, r.Phase())

	assert.ErrorIs(t, r.Retry(context.Background()), ErrWrongPhase)

	require.NoError(t, r.RequestCredential())
	assert.Equal(t, RecoveryAwaitingCredential, r.Phase())

	err := r.SubmitCredential(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Equal(t, RecoveryAwaitingCredential, r.Phase())
	assert.Equal(t, 0, reinit)
	assert.Equal(t, int32(1), loader.calls.Load())

	require.NoError(t, r.SubmitCredential(context.Background(), validGoogleKey))
	assert.Equal(t, RecoveryReady, r.Phase())
	assert.Equal(t, 1, reinit)
	assert.Equal(t, []string{"AIza-revoked", validGoogleKey}, loader.creds)
}

func TestRecoveryRejectedReplacementCredential(t *testing.T) {
	loader := &scriptedLoader{errs: []error{
		&provider.LoadError{Kind: provider.KindGoogle, StatusCode: http.StatusUnauthorized},
		&provider.LoadError{Kind: provider.KindGoogle, StatusCode: http.StatusForbidden},
	}}
	r := newRecovery(loader, BootstrapConfig{Provider: provider.KindGoogle})

	require.Error(t, r.Start(context.Background()))
	require.Error(t, r.SubmitCredential(context.Background(), validGoogleKey))
	assert.Equal(t, RecoveryCredentialError, r.Phase())
}

func TestRecoveryReportFailure(t *testing.T) {
	r := newRecovery(&scriptedLoader{}, osmConfig)
	require.NoError(t, r.Start(context.Background()))

	assert.False(t, r.ReportFailure(errors.New("tile timeout")))
	assert.Equal(t, RecoveryReady, r.Phase())

	assert.True(t, r.ReportFailure(errors.New("tile request returned 401 Unauthorized")))
	assert.Equal(t, RecoveryCredentialError, r.Phase())

	var ce *CredentialError
	assert.ErrorAs(t, r.LastError(), &ce)
	assert.Equal(t, StatusError, r.boot.State().Status)
}
