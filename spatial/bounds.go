// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"errors"
	"fmt"
	"math"
)

// Bounds is an axis aligned latitude/longitude box.
type Bounds struct {
	MinLat float64 `json:"minLat" yaml:"minLat"`
	MaxLat float64 `json:"maxLat" yaml:"maxLat"`
	MinLng float64 `json:"minLng" yaml:"minLng"`
	MaxLng float64 `json:"maxLng" yaml:"maxLng"`
}

// Validate checks that the box is not inverted and lies on the globe.
func (b Bounds) Validate() error {
	if b.MinLat > b.MaxLat {
		return fmt.Errorf("spatial: minLat %f greater than maxLat %f", b.MinLat, b.MaxLat)
	}

	if b.MinLng > b.MaxLng {
		return fmt.Errorf("spatial: minLng %f greater than maxLng %f", b.MinLng, b.MaxLng)
	}

	if !(Point{Lat: b.MinLat, Lng: b.MinLng}).Valid() || !(Point{Lat: b.MaxLat, Lng: b.MaxLng}).Valid() {
		return errors.New("spatial: bounds outside of WGS84 range")
	}

	return nil
}

// Contains reports whether p lies inside the box (edges included).
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Clamp moves p to the closest point inside the box.
func (b Bounds) Clamp(p Point) Point {
	return Point{
		Lat: math.Min(math.Max(p.Lat, b.MinLat), b.MaxLat),
		Lng: math.Min(math.Max(p.Lng, b.MinLng), b.MaxLng),
	}
}

// Center returns the middle of the box.
func (b Bounds) Center() Point {
	return Point{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// Extend grows the box to include p.
func (b Bounds) Extend(p Point) Bounds {
	return Bounds{
		MinLat: math.Min(b.MinLat, p.Lat),
		MaxLat: math.Max(b.MaxLat, p.Lat),
		MinLng: math.Min(b.MinLng, p.Lng),
		MaxLng: math.Max(b.MaxLng, p.Lng),
	}
}

// BoundsOf returns the smallest box containing every point. The second
// result is false for an empty slice.
func BoundsOf(points []Point) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}

	b := Bounds{
		MinLat: points[0].Lat,
		MaxLat: points[0].Lat,
		MinLng: points[0].Lng,
		MaxLng: points[0].Lng,
	}

	for _, p := range points[1:] {
		b = b.Extend(p)
	}

	return b, true
}
