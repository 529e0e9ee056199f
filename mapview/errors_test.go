// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/propmap/propmap/geocode"
	"github.com/propmap/propmap/provider"
)

func TestIsCredentialFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed 401", &provider.LoadError{StatusCode: http.StatusUnauthorized}, true},
		{"typed 403", &provider.LoadError{StatusCode: http.StatusForbidden}, true},
		{"typed 500 mentioning a key", &provider.LoadError{StatusCode: http.StatusInternalServerError, Message: "api key service down"}, false},
		{"wrapped typed", fmt.Errorf("boot: %w", &provider.LoadError{StatusCode: http.StatusForbidden}), true},
		{"credential error", &CredentialError{Err: errors.New("x")}, true},
		{"message unauthorized", errors.New("Unauthorized"), true},
		{"message invalid token", errors.New("mapbox: Invalid Token"), true},
		{"message api key", errors.New("The provided API key is invalid"), true},
		{"transport", &provider.LoadError{Message: "request failed", Err: errors.New("connection refused")}, false},
		{"plain", errors.New("timeout"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCredentialFailure(tt.err))
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	stale := fmt.Errorf("wrap: %w", &StaleHandleError{EntityID: "1", Op: "zindex"})
	assert.True(t, IsStaleHandle(stale))
	assert.True(t, IsStaleHandle(provider.ErrRemoved))
	assert.False(t, IsStaleHandle(errors.New("x")))

	render := &RenderError{EntityID: "1", Err: errors.New("bad template")}
	assert.True(t, IsRenderError(render))
	assert.ErrorContains(t, render, "rendering popup for 1")

	load := &ProviderLoadError{Provider: provider.KindOSM, Attempt: 2, Err: errors.New("boom")}
	assert.True(t, IsProviderLoadError(load))
	assert.ErrorContains(t, load, "attempt 2")

	var ge *GeocodeError
	assert.ErrorAs(t, fmt.Errorf("locate: %w", &geocode.GeocodeError{Type: geocode.ErrorTypeNotFound}), &ge)
}
