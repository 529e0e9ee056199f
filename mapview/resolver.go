// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"hash/fnv"
	"math"
	"strconv"

	"github.com/propmap/propmap/spatial"
	"github.com/propmap/propmap/utils/textutils"
)

// DefaultJitter is the spread, in degrees, of synthesized coordinates
// around a city center.
const DefaultJitter = 0.05

// DefaultCenter is used when an entity names no known city.
var DefaultCenter = spatial.Point{Lat: 36.7538, Lng: 3.0588}

// DefaultRegion bounds synthesized coordinates to North Africa and the
// western Mediterranean.
var DefaultRegion = spatial.Bounds{MinLat: 20, MaxLat: 38, MinLng: -15, MaxLng: 35}

type city struct {
	names  []string
	center spatial.Point
}

var cities = []city{
	{[]string{"Algiers", "Alger", "Al Jazair", "Dzayer", "El Djazair"}, spatial.Point{Lat: 36.7538, Lng: 3.0588}},
	{[]string{"Oran", "Wahran"}, spatial.Point{Lat: 35.6971, Lng: -0.6308}},
	{[]string{"Constantine", "Qacentina"}, spatial.Point{Lat: 36.3650, Lng: 6.6147}},
	{[]string{"Annaba", "Bone"}, spatial.Point{Lat: 36.9000, Lng: 7.7667}},
	{[]string{"Blida"}, spatial.Point{Lat: 36.4700, Lng: 2.8277}},
	{[]string{"Batna"}, spatial.Point{Lat: 35.5550, Lng: 6.1741}},
	{[]string{"Setif", "Stif"}, spatial.Point{Lat: 36.1900, Lng: 5.4100}},
	{[]string{"Sidi Bel Abbes"}, spatial.Point{Lat: 35.1899, Lng: -0.6308}},
	{[]string{"Biskra"}, spatial.Point{Lat: 34.8500, Lng: 5.7333}},
	{[]string{"Tlemcen"}, spatial.Point{Lat: 34.8783, Lng: -1.3150}},
	{[]string{"Bejaia", "Bougie"}, spatial.Point{Lat: 36.7500, Lng: 5.0833}},
	{[]string{"Tizi Ouzou"}, spatial.Point{Lat: 36.7169, Lng: 4.0497}},
	{[]string{"Djelfa"}, spatial.Point{Lat: 34.6667, Lng: 3.2500}},
	{[]string{"Ghardaia"}, spatial.Point{Lat: 32.4900, Lng: 3.6700}},
	{[]string{"Ouargla"}, spatial.Point{Lat: 31.9500, Lng: 5.3250}},
	{[]string{"Tamanrasset"}, spatial.Point{Lat: 22.7850, Lng: 5.5228}},
	{[]string{"Bechar"}, spatial.Point{Lat: 31.6167, Lng: -2.2167}},
	{[]string{"Mostaganem"}, spatial.Point{Lat: 35.9333, Lng: 0.0833}},
	{[]string{"Skikda"}, spatial.Point{Lat: 36.8667, Lng: 6.9000}},
	{[]string{"Chlef"}, spatial.Point{Lat: 36.1653, Lng: 1.3345}},
	{[]string{"El Oued"}, spatial.Point{Lat: 33.3683, Lng: 6.8675}},
	{[]string{"Boumerdes"}, spatial.Point{Lat: 36.7667, Lng: 3.4772}},
	{[]string{"Tipaza"}, spatial.Point{Lat: 36.5892, Lng: 2.4475}},
	{[]string{"Medea"}, spatial.Point{Lat: 36.2675, Lng: 2.7500}},
}

var cityCenters = func() map[string]spatial.Point {
	m := make(map[string]spatial.Point)

	for _, c := range cities {
		for _, name := range c.names {
			m[textutils.FoldKey(name)] = c.center
		}
	}

	return m
}()

// CityKey returns the comparison key for a city name.
func CityKey(name string) string {
	return textutils.FoldKey(name)
}

// CityCenter looks up the center of a known city.
func CityCenter(name string) (spatial.Point, bool) {
	p, ok := cityCenters[CityKey(name)]

	return p, ok
}

// Resolver derives the display coordinate of an entity.
type Resolver struct {
	region spatial.Bounds
	center *spatial.Point
	jitter float64
}

// NewResolver returns a resolver clamping into region. A nil center makes
// entities with neither a coordinate nor a known city unresolvable.
func NewResolver(region spatial.Bounds, center *spatial.Point, jitter float64) *Resolver {
	return &Resolver{region: region, center: center, jitter: jitter}
}

// Region returns the bounding region synthesized points are clamped to.
func (r *Resolver) Region() spatial.Bounds {
	return r.region
}

// Resolve returns the coordinate to display e at. An explicit coordinate is
// returned unchanged; otherwise a deterministic point near the entity's city
// is synthesized.
func (r *Resolver) Resolve(e MapEntity) (spatial.Point, bool) {
	if e.Coordinate != nil {
		return *e.Coordinate, true
	}

	base, ok := CityCenter(e.City)
	if !ok {
		if r.center == nil {
			return spatial.Point{}, false
		}

		base = *r.center
	}

	n := seed(e.ID)
	p := spatial.Point{
		Lat: base.Lat + math.Sin(n)*r.jitter,
		Lng: base.Lng + math.Cos(n)*r.jitter,
	}

	return r.region.Clamp(p), true
}

// seed maps an id onto a stable number: numeric ids are used as is, other
// ids are hashed.
func seed(id string) float64 {
	if n, err := strconv.ParseFloat(id, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return n
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(id))

	return float64(h.Sum32() % 1_000_000)
}
