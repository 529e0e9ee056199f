// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package loader installs a map SDK by fetching the provider's bootstrap
// resource with the configured credential. A successful fetch installs a
// scene that mirrors the SDK object graph for browser viewers.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/propmap/propmap/provider"
)

// Endpoint is where a provider's SDK is bootstrapped from.
type Endpoint struct {
	URL        string `yaml:"url"`
	TokenParam string `yaml:"token_param"`
}

// DefaultEndpoints are the public bootstrap resources of each provider.
var DefaultEndpoints = map[provider.Kind]Endpoint{
	provider.KindGoogle: {URL: "https://maps.googleapis.com/maps/api/js?v=weekly", TokenParam: "key"},
	provider.KindMapbox: {URL: "https://api.mapbox.com/styles/v1/mapbox/streets-v12", TokenParam: "access_token"},
	provider.KindOSM:    {URL: "https://tile.openstreetmap.org/0/0/0.png", TokenParam: "key"},
}

// The Maps JavaScript API answers 200 for bad keys and reports the problem
// in the script body.
var googleAuthMarkers = [][]byte{
	[]byte("InvalidKeyMapError"),
	[]byte("MissingKeyMapError"),
	[]byte("RefererNotAllowedMapError"),
	[]byte("ApiNotActivatedMapError"),
	[]byte("ExpiredKeyMapError"),
}

const maxBody = 256 * 1024

// Loader implements provider.Loader over HTTP.
type Loader struct {
	Client    *http.Client
	Endpoints map[provider.Kind]Endpoint
	// Install builds the native map once the SDK resource is fetched.
	Install func(kind provider.Kind) provider.Map
}

var _ provider.Loader = (*Loader)(nil)

// New creates a loader with the default endpoints.
func New(client *http.Client, install func(kind provider.Kind) provider.Map) *Loader {
	if client == nil {
		client = http.DefaultClient
	}

	return &Loader{Client: client, Endpoints: DefaultEndpoints, Install: install}
}

func (l *Loader) endpoint(kind provider.Kind, credential string) (string, error) {
	ep, ok := l.Endpoints[kind]
	if !ok {
		ep, ok = DefaultEndpoints[kind]
	}

	if !ok {
		return "", fmt.Errorf("no endpoint for provider %q", kind)
	}

	u, err := url.Parse(ep.URL)
	if err != nil {
		return "", fmt.Errorf("parsing %s endpoint: %w", kind, err)
	}

	if credential != "" && ep.TokenParam != "" {
		q := u.Query()
		q.Set(ep.TokenParam, credential)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Load implements provider.Loader.
func (l *Loader) Load(ctx context.Context, kind provider.Kind, credential string) (provider.Map, error) {
	if kind.RequiresCredential() && credential == "" {
		return nil, &provider.LoadError{
			Kind:       kind,
			StatusCode: http.StatusUnauthorized,
			Message:    "missing credential",
		}
	}

	reqURL, err := l.endpoint(kind, credential)
	if err != nil {
		return nil, &provider.LoadError{Kind: kind, Message: "bad endpoint", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &provider.LoadError{Kind: kind, Message: "building request", Err: err}
	}

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, &provider.LoadError{Kind: kind, Message: "request failed", Err: err}
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &provider.LoadError{Kind: kind, Message: "reading sdk", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &provider.LoadError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	if kind == provider.KindGoogle {
		for _, marker := range googleAuthMarkers {
			if bytes.Contains(body, marker) {
				return nil, &provider.LoadError{
					Kind:       kind,
					StatusCode: http.StatusForbidden,
					Message:    string(marker),
				}
			}
		}
	}

	if l.Install == nil {
		return nil, &provider.LoadError{Kind: kind, Message: "no installer configured"}
	}

	return l.Install(kind), nil
}
