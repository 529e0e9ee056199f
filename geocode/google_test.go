// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGeocoder(t *testing.T, handler http.HandlerFunc) *GoogleMapsGeocoder {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g := NewGoogleMapsGeocoder("AIzaTEST", srv.Client())
	g.baseURL = srv.URL

	return g
}

func TestGoogleGeocode(t *testing.T) {
	var gotAddress, gotRegion string

	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		gotRegion = r.URL.Query().Get("region")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"formatted_address": "Rue Didouche Mourad, Alger",
				"geometry": {"location": {"lat": 36.7642, "lng": 3.0510}, "location_type": "GEOMETRIC_CENTER"}
			}]
		}`))
	})

	res, err := g.Geocode(context.Background(), "Rue Didouche Mourad", "Algiers")
	require.NoError(t, err)

	assert.Equal(t, "Rue Didouche Mourad, Algiers, Algeria", gotAddress)
	assert.Equal(t, "dz", gotRegion)
	assert.InDelta(t, 36.7642, res.Point.Lat, 1e-9)
	assert.InDelta(t, 3.0510, res.Point.Lng, 1e-9)
	assert.Equal(t, "medium", res.Confidence)
	assert.Equal(t, "google_maps", res.Provider)
}

func TestGoogleGeocodeFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
	}{
		{name: "zero results", status: 200, body: `{"status":"ZERO_RESULTS","results":[]}`, wantType: ErrorTypeNotFound},
		{name: "over query limit", status: 200, body: `{"status":"OVER_QUERY_LIMIT"}`, wantType: ErrorTypeQuotaExceeded},
		{name: "denied", status: 200, body: `{"status":"REQUEST_DENIED"}`, wantType: ErrorTypeQuotaExceeded},
		{name: "http 429", status: 429, wantType: ErrorTypeRateLimit},
		{name: "http 503", status: 503, wantType: ErrorTypeNetworkError},
		{name: "garbage", status: 200, body: `not json`, wantType: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGeocoder(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := g.Geocode(context.Background(), "nowhere", "")
			require.Error(t, err)

			var geoErr *GeocodeError
			require.True(t, errors.As(err, &geoErr))
			assert.Equal(t, tt.wantType, geoErr.Type)
		})
	}
}

func TestGoogleGeocodeCanceled(t *testing.T) {
	release := make(chan struct{})

	g := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := g.Geocode(ctx, "slow", "Oran")
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
}
