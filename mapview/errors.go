// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"errors"
	"fmt"
	"strings"

	"github.com/propmap/propmap/geocode"
	"github.com/propmap/propmap/provider"
)

var (
	// ErrInvalidCredential is returned when a submitted credential does not
	// have the shape the provider expects.
	ErrInvalidCredential = errors.New("credential has an invalid shape")
	// ErrNotRetryable is returned by Retry outside the load error state.
	ErrNotRetryable = errors.New("provider is not in a retryable state")
	// ErrWrongPhase is returned when a recovery action is not allowed in
	// the current phase.
	ErrWrongPhase = errors.New("action not allowed in current phase")
	// ErrClosed is returned once the widget has been torn down.
	ErrClosed = errors.New("map widget is closed")
	// ErrSuperseded is returned to a load that was overtaken by a teardown.
	ErrSuperseded = errors.New("provider load superseded")
)

// GeocodeError is the address lookup failure reported by geocoders.
type GeocodeError = geocode.GeocodeError

// ProviderLoadError is a non credential failure to install the SDK.
type ProviderLoadError struct {
	Provider  provider.Kind
	Attempt   int
	Retryable bool
	Err       error
}

func (e *ProviderLoadError) Error() string {
	return fmt.Sprintf("provider %s failed to load (attempt %d): %v", e.Provider, e.Attempt, e.Err)
}

func (e *ProviderLoadError) Unwrap() error {
	return e.Err
}

// CredentialError means the provider rejected the configured credential.
type CredentialError struct {
	Provider provider.Kind
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("provider %s rejected the credential: %v", e.Provider, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// RenderError is a failure to produce or mount popup content.
type RenderError struct {
	EntityID string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering popup for %s: %v", e.EntityID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// StaleHandleError is an operation on a marker or popup that no longer
// exists.
type StaleHandleError struct {
	EntityID string
	Op       string
	Err      error
}

func (e *StaleHandleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s on stale handle %s: %v", e.Op, e.EntityID, e.Err)
	}

	return fmt.Sprintf("%s on stale handle %s", e.Op, e.EntityID)
}

func (e *StaleHandleError) Unwrap() error {
	return e.Err
}

// IsStaleHandle reports whether err refers to a vanished handle.
func IsStaleHandle(err error) bool {
	var target *StaleHandleError

	return errors.As(err, &target) || errors.Is(err, provider.ErrRemoved)
}

// IsRenderError reports whether err is a popup rendering failure.
func IsRenderError(err error) bool {
	var target *RenderError

	return errors.As(err, &target)
}

// IsProviderLoadError reports whether err is a retryable load failure.
func IsProviderLoadError(err error) bool {
	var target *ProviderLoadError

	return errors.As(err, &target)
}

var credentialMarkers = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"invalid token",
	"invalid key",
	"invalidkey",
	"api key",
	"apikey",
	"access token",
}

// IsCredentialFailure classifies err as a credential failure. Typed provider
// errors decide first; otherwise the message is matched against known
// authorization markers.
func IsCredentialFailure(err error) bool {
	if err == nil {
		return false
	}

	var ce *CredentialError
	if errors.As(err, &ce) {
		return true
	}

	var le *provider.LoadError
	if errors.As(err, &le) && le.StatusCode != 0 {
		return le.Unauthorized()
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range credentialMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
