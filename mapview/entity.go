// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/propmap/propmap/spatial"
)

// MapEntity is the canonical shape of one displayable listing.
type MapEntity struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Price       int64          `json:"price"`
	Coordinate  *spatial.Point `json:"coordinate,omitempty"`
	City        string         `json:"city"`
	ListingType string         `json:"listingType"`
	IsPremium   bool           `json:"isPremium"`
}

// ErrMissingID is returned for records without a usable identifier.
var ErrMissingID = errors.New("record has no id")

// Field aliases seen in upstream payloads, compared after lowercasing and
// dropping '_' and '-'.
var (
	idKeys          = []string{"id", "listingid", "propertyid", "uuid"}
	titleKeys       = []string{"title", "name", "label", "titre"}
	priceKeys       = []string{"price", "prix", "amount", "cost"}
	cityKeys        = []string{"city", "ville", "wilaya", "town"}
	listingTypeKeys = []string{"listingtype", "type", "transaction", "offertype"}
	premiumKeys     = []string{"ispremium", "premium", "featured", "isfeatured"}
	coordinateKeys  = []string{"coordinate", "coordinates", "coords", "location", "position", "latlng", "geo", "point"}
	latKeys         = []string{"lat", "latitude", "y"}
	lngKeys         = []string{"lng", "lon", "long", "longitude", "x"}
)

func foldField(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")

	return strings.ReplaceAll(k, "-", "")
}

type record map[string]any

func fold(raw map[string]any) record {
	r := make(record, len(raw))
	for k, v := range raw {
		fk := foldField(k)
		if _, dup := r[fk]; !dup {
			r[fk] = v
		}
	}

	return r
}

func (r record) lookup(keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}

	return nil, false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)

		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))

		return err == nil && b
	default:
		f, ok := asFloat(v)

		return ok && f != 0
	}
}

// point builds a coordinate from a nested object or an array. Arrays follow
// GeoJSON order: [lng, lat].
func point(v any) *spatial.Point {
	switch t := v.(type) {
	case map[string]any:
		return flatPoint(fold(t))
	case []any:
		if len(t) < 2 {
			return nil
		}

		lng, okLng := asFloat(t[0])
		lat, okLat := asFloat(t[1])

		if !okLng || !okLat {
			return nil
		}

		return checkedPoint(lat, lng)
	case []float64:
		if len(t) < 2 {
			return nil
		}

		return checkedPoint(t[1], t[0])
	case *spatial.Point:
		if t == nil {
			return nil
		}

		return checkedPoint(t.Lat, t.Lng)
	case spatial.Point:
		return checkedPoint(t.Lat, t.Lng)
	default:
		return nil
	}
}

func flatPoint(r record) *spatial.Point {
	latV, okLat := r.lookup(latKeys)
	lngV, okLng := r.lookup(lngKeys)

	if !okLat || !okLng {
		return nil
	}

	lat, okLat := asFloat(latV)
	lng, okLng := asFloat(lngV)

	if !okLat || !okLng {
		return nil
	}

	return checkedPoint(lat, lng)
}

// checkedPoint drops out of range values and the (0,0) placeholder that
// upstream services use for "unknown".
func checkedPoint(lat, lng float64) *spatial.Point {
	p := spatial.Point{Lat: lat, Lng: lng}
	if !p.Valid() || (lat == 0 && lng == 0) {
		return nil
	}

	return &p
}

// NormalizeRecord converts a loosely shaped upstream record into a
// MapEntity. Every field alias is resolved here so that nothing downstream
// has to care which one was present.
func NormalizeRecord(raw map[string]any) (MapEntity, error) {
	r := fold(raw)

	var e MapEntity

	if v, ok := r.lookup(idKeys); ok {
		e.ID = asString(v)
	}

	if e.ID == "" {
		return MapEntity{}, ErrMissingID
	}

	if v, ok := r.lookup(titleKeys); ok {
		e.Title = asString(v)
	}

	if v, ok := r.lookup(priceKeys); ok {
		if f, ok := asFloat(v); ok {
			e.Price = int64(math.Round(f))
		}
	}

	if v, ok := r.lookup(cityKeys); ok {
		e.City = asString(v)
	}

	if v, ok := r.lookup(listingTypeKeys); ok {
		e.ListingType = strings.ToLower(asString(v))
	}

	if v, ok := r.lookup(premiumKeys); ok {
		e.IsPremium = asBool(v)
	}

	if v, ok := r.lookup(coordinateKeys); ok {
		e.Coordinate = point(v)
	}

	if e.Coordinate == nil {
		e.Coordinate = flatPoint(r)
	}

	return e, nil
}

// NormalizeRecords normalizes a batch, skipping records without an id. The
// second result lists the positions of skipped records.
func NormalizeRecords(raws []map[string]any) ([]MapEntity, []int) {
	entities := make([]MapEntity, 0, len(raws))

	var skipped []int

	for i, raw := range raws {
		e, err := NormalizeRecord(raw)
		if err != nil {
			skipped = append(skipped, i)

			continue
		}

		entities = append(entities, e)
	}

	return entities, skipped
}
