// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocode resolves free-form addresses to coordinates.
package geocode

import (
	"context"

	"github.com/propmap/propmap/spatial"
)

// Result represents a geocoding result from any provider.
type Result struct {
	Point       spatial.Point
	Confidence  string // high, medium, low
	Provider    string
	DisplayName string
}

// Geocoder interface for different geocoding providers.
type Geocoder interface {
	Geocode(ctx context.Context, address string, city string) (*Result, error)
}
