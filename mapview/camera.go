// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"github.com/rs/zerolog"

	"github.com/propmap/propmap/metrics"
	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/spatial"
)

// Camera defaults.
const (
	DefaultFitPadding = 50
	DefaultZoom       = 12
)

// CityCursor remembers the selected city and the one before it.
type CityCursor struct {
	Current  string `json:"current"`
	Previous string `json:"previous"`
}

// Camera frames the markers once per session and follows city changes.
type Camera struct {
	m       provider.Map
	padding int
	zoom    float64
	log     zerolog.Logger
	metrics *metrics.Metrics
	fitted  bool
	cursor  CityCursor
}

// NewCamera returns a camera driving m.
func NewCamera(m provider.Map, padding int, zoom float64, log zerolog.Logger, mt *metrics.Metrics) *Camera {
	return &Camera{m: m, padding: padding, zoom: zoom, log: log, metrics: mt}
}

// Fitted reports whether the current session has been framed.
func (c *Camera) Fitted() bool {
	return c.fitted
}

// Cursor returns the city cursor.
func (c *Camera) Cursor() CityCursor {
	return c.cursor
}

// FitOnce frames coords the first time it sees a non-empty list in a
// session. An empty list ends the session so the next non-empty list is
// framed again. The session counts as fitted even if the provider fails.
func (c *Camera) FitOnce(coords []spatial.Point) bool {
	if len(coords) == 0 {
		c.fitted = false

		return false
	}

	if c.fitted {
		return false
	}

	c.fitted = true

	b, ok := spatial.BoundsOf(coords)
	if !ok {
		return false
	}

	if err := guard(func() error { return c.m.FitBounds(b, c.padding) }); err != nil {
		c.log.Warn().Err(err).Msg("failed to fit markers")

		return false
	}

	c.metrics.CameraMove("fit")

	return true
}

// PanToCity flies to a newly selected city. Selecting the current city
// again does nothing; unknown cities only update the cursor.
func (c *Camera) PanToCity(city string) bool {
	if CityKey(city) == CityKey(c.cursor.Current) {
		return false
	}

	c.cursor = CityCursor{Current: city, Previous: c.cursor.Current}

	center, ok := CityCenter(city)
	if !ok {
		return false
	}

	return c.FlyTo(center)
}

// FlyTo centers the map on p at the configured zoom.
func (c *Camera) FlyTo(p spatial.Point) bool {
	if err := guard(func() error { return c.m.FlyTo(p, c.zoom) }); err != nil {
		c.log.Warn().Err(err).Str("center", p.String()).Msg("failed to move camera")

		return false
	}

	c.metrics.CameraMove("fly")

	return true
}
