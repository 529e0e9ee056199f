// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory stores listings and their owners in DuckDB and feeds
// them to the map widget.
package directory

import (
	"fmt"
	"time"

	"github.com/uber/h3-go/v4"

	"github.com/propmap/propmap/mapview"
	"github.com/propmap/propmap/spatial"
)

// H3Resolution is the cell size used for neighbourhood lookups (about 5 km²).
const H3Resolution = 7

// Listing is a stored property listing.
type Listing struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Price       int64          `json:"price"`
	City        string         `json:"city"`
	ListingType string         `json:"listing_type"`
	IsPremium   bool           `json:"is_premium"`
	Point       *spatial.Point `json:"point,omitempty"`
	OwnerID     string         `json:"owner_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	H3Cell      int64          `json:"-"`
}

// Owner is the contact behind a listing.
type Owner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

func (l *Listing) computeH3() error {
	if l.Point == nil {
		l.H3Cell = 0

		return nil
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(l.Point.Lat, l.Point.Lng), H3Resolution)
	if err != nil {
		return fmt.Errorf("error converting to h3 cell at res %d: %w", H3Resolution, err)
	}

	l.H3Cell = int64(cell)

	return nil
}

// Entity converts the listing into the shape the map widget displays.
func (l *Listing) Entity() mapview.MapEntity {
	e := mapview.MapEntity{
		ID:          l.ID,
		Title:       l.Title,
		Price:       l.Price,
		City:        l.City,
		ListingType: l.ListingType,
		IsPremium:   l.IsPremium,
	}

	if l.Point != nil {
		p := *l.Point
		e.Coordinate = &p
	}

	return e
}

// Entities converts a batch of listings.
func Entities(listings []*Listing) []mapview.MapEntity {
	out := make([]mapview.MapEntity, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.Entity())
	}

	return out
}

// FromEntity builds a listing from a normalized entity.
func FromEntity(e mapview.MapEntity) *Listing {
	l := &Listing{
		ID:          e.ID,
		Title:       e.Title,
		Price:       e.Price,
		City:        e.City,
		ListingType: e.ListingType,
		IsPremium:   e.IsPremium,
	}

	if e.Coordinate != nil {
		p := *e.Coordinate
		l.Point = &p
	}

	return l
}
