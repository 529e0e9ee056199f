// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uber/h3-go/v4"

	"github.com/propmap/propmap/mapview"
	"github.com/propmap/propmap/spatial"
)

// ErrNotFound is returned when a listing or owner does not exist.
var ErrNotFound = errors.New("directory: not found")

// Filter narrows a listing query. Zero fields match everything.
type Filter struct {
	City        string
	ListingType string
	PremiumOnly bool
	OwnerID     string
	Bounds      *spatial.Bounds
	Limit       int
	Offset      int
}

// Repository handles persistence of listings and owners.
type Repository interface {
	// CreateSchema creates the listings and owners tables
	CreateSchema() error

	// Save inserts or updates a listing
	Save(l *Listing) error

	// BulkInsert upserts listings in one transaction
	BulkInsert(listings []*Listing) error

	// Get returns one listing
	Get(id string) (*Listing, error)

	// List returns listings matching f, premium first
	List(f Filter) ([]*Listing, error)

	// Count returns the number of listings
	Count() (int, error)

	// Delete removes a listing
	Delete(id string) error

	// NearCell returns listings whose H3 cell lies within ring steps of p's cell
	NearCell(p spatial.Point, ring int) ([]*Listing, error)

	// SaveOwner inserts or updates an owner
	SaveOwner(o *Owner) error

	// Owner returns one owner
	Owner(id string) (*Owner, error)

	// DB returns the underlying database connection
	DB() *sql.DB
}

type sqlRepository struct {
	db *sql.DB
}

// NewRepository creates a repository on db.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

// DB returns the underlying database connection for advanced queries.
func (r *sqlRepository) DB() *sql.DB {
	return r.db
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS owners (
			id VARCHAR PRIMARY KEY,
			name VARCHAR NOT NULL,
			phone VARCHAR,
			email VARCHAR
		);

		CREATE TABLE IF NOT EXISTS listings (
			id VARCHAR PRIMARY KEY,
			title VARCHAR NOT NULL,
			price BIGINT NOT NULL DEFAULT 0,
			city VARCHAR NOT NULL DEFAULT '',
			city_key VARCHAR NOT NULL DEFAULT '',
			listing_type VARCHAR NOT NULL DEFAULT '',
			is_premium BOOLEAN NOT NULL DEFAULT FALSE,
			lat DOUBLE,
			lng DOUBLE,
			owner_id VARCHAR,
			h3_res7 BIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)

	return err
}

const upsertListing = `
	INSERT INTO listings (
		id, title, price, city, city_key, listing_type, is_premium,
		lat, lng, owner_id, h3_res7, created_at, updated_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		title = excluded.title,
		price = excluded.price,
		city = excluded.city,
		city_key = excluded.city_key,
		listing_type = excluded.listing_type,
		is_premium = excluded.is_premium,
		lat = excluded.lat,
		lng = excluded.lng,
		owner_id = excluded.owner_id,
		h3_res7 = excluded.h3_res7,
		updated_at = excluded.updated_at
`

func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func listingArgs(l *Listing) []any {
	var lat, lng, cell any

	if l.Point != nil {
		lat, lng = l.Point.Lat, l.Point.Lng
		cell = l.H3Cell
	}

	return []any{
		l.ID,
		l.Title,
		l.Price,
		l.City,
		mapview.CityKey(l.City),
		strings.ToLower(l.ListingType),
		l.IsPremium,
		lat,
		lng,
		nullable(l.OwnerID),
		cell,
		l.CreatedAt,
		l.UpdatedAt,
	}
}

func (l *Listing) prepare(now time.Time) error {
	if l.ID == "" {
		return errors.New("listing id can't be empty")
	}

	if l.Point != nil && !l.Point.Valid() {
		return fmt.Errorf("listing %s: invalid point %s", l.ID, l.Point)
	}

	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}

	l.UpdatedAt = now

	return l.computeH3()
}

func (r *sqlRepository) Save(l *Listing) error {
	if err := l.prepare(time.Now()); err != nil {
		return err
	}

	_, err := r.db.Exec(upsertListing, listingArgs(l)...)

	return err
}

func (r *sqlRepository) BulkInsert(listings []*Listing) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(upsertListing)
	if err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			err = rErr
		}

		return err
	}
	defer stmt.Close()

	now := time.Now()

	for _, l := range listings {
		if err := l.prepare(now); err != nil {
			_ = tx.Rollback()

			return err
		}

		if _, err := stmt.Exec(listingArgs(l)...); err != nil {
			if rErr := tx.Rollback(); rErr != nil {
				err = rErr
			}

			return fmt.Errorf("inserting listing %s: %w", l.ID, err)
		}
	}

	return tx.Commit()
}

const selectListings = `
	SELECT id, title, price, city, listing_type, is_premium,
		CASE WHEN lat IS NULL THEN NULL ELSE struct_pack(x := lng, y := lat) END AS point,
		owner_id, h3_res7, created_at, updated_at
	FROM listings
`

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(row scanner) (*Listing, error) {
	l := &Listing{}

	var (
		point   spatial.NullPoint
		ownerID sql.NullString
		cell    sql.NullInt64
	)

	err := row.Scan(
		&l.ID,
		&l.Title,
		&l.Price,
		&l.City,
		&l.ListingType,
		&l.IsPremium,
		&point,
		&ownerID,
		&cell,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Point = point.Ptr()

	if ownerID.Valid {
		l.OwnerID = ownerID.String
	}

	if cell.Valid {
		l.H3Cell = cell.Int64
	}

	return l, nil
}

func (r *sqlRepository) Get(id string) (*Listing, error) {
	l, err := scanListing(r.db.QueryRow(selectListings+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}

	return l, err
}

func (r *sqlRepository) list(query string, args []any) ([]*Listing, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*Listing

	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}

		listings = append(listings, l)
	}

	return listings, rows.Err()
}

func (r *sqlRepository) List(f Filter) ([]*Listing, error) {
	var (
		where []string
		args  []any
	)

	if f.City != "" {
		where = append(where, "city_key = ?")
		args = append(args, mapview.CityKey(f.City))
	}

	if f.ListingType != "" {
		where = append(where, "listing_type = ?")
		args = append(args, strings.ToLower(f.ListingType))
	}

	if f.PremiumOnly {
		where = append(where, "is_premium")
	}

	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}

	if f.Bounds != nil {
		where = append(where, "lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?")
		args = append(args, f.Bounds.MinLat, f.Bounds.MaxLat, f.Bounds.MinLng, f.Bounds.MaxLng)
	}

	query := selectListings
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY is_premium DESC, id"

	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"

		args = append(args, f.Limit, f.Offset)
	}

	return r.list(query, args)
}

func (r *sqlRepository) Count() (int, error) {
	var count int

	err := r.db.QueryRow("SELECT COUNT(*) FROM listings").Scan(&count)

	return count, err
}

func (r *sqlRepository) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM listings WHERE id = ?", id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}

	return nil
}

func (r *sqlRepository) NearCell(p spatial.Point, ring int) ([]*Listing, error) {
	origin, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), H3Resolution)
	if err != nil {
		return nil, fmt.Errorf("error converting to h3 cell at res %d: %w", H3Resolution, err)
	}

	cells, err := h3.GridDisk(origin, ring)
	if err != nil {
		return nil, fmt.Errorf("expanding h3 ring %d: %w", ring, err)
	}

	placeholders := make([]string, 0, len(cells))
	args := make([]any, 0, len(cells))

	for _, c := range cells {
		placeholders = append(placeholders, "?")
		args = append(args, int64(c))
	}

	query := selectListings + " WHERE h3_res7 IN (" + strings.Join(placeholders, ", ") + ") ORDER BY is_premium DESC, id"

	return r.list(query, args)
}

func (r *sqlRepository) SaveOwner(o *Owner) error {
	if o.ID == "" {
		return errors.New("owner id can't be empty")
	}

	_, err := r.db.Exec(`
		INSERT INTO owners (id, name, phone, email) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, phone = excluded.phone, email = excluded.email
	`, o.ID, o.Name, nullable(o.Phone), nullable(o.Email))

	return err
}

func (r *sqlRepository) Owner(id string) (*Owner, error) {
	o := &Owner{}

	var phone, email sql.NullString

	err := r.db.QueryRow("SELECT id, name, phone, email FROM owners WHERE id = ?", id).Scan(&o.ID, &o.Name, &phone, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("owner %s: %w", id, ErrNotFound)
	}

	if err != nil {
		return nil, err
	}

	o.Phone = phone.String
	o.Email = email.String

	return o, nil
}
