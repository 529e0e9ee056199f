// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/propmap/propmap/mapview"
)

// SeedData is the JSON seed file format. Listings are kept as raw records so
// that exports from other systems, with their own field names, import as is.
type SeedData struct {
	Version     string           `json:"version"`
	LastUpdated time.Time        `json:"last_updated"`
	Owners      []*Owner         `json:"owners,omitempty"`
	Listings    []map[string]any `json:"listings"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int
	Skipped  int
	Owners   int
}

// Progress is called after each listing is processed.
type Progress func(done, total int)

const importBatch = 500

var ownerKeys = []string{"owner_id", "ownerId", "owner", "agent_id", "agentId"}

func ownerOf(raw map[string]any) string {
	for _, k := range ownerKeys {
		if v, ok := raw[k].(string); ok && v != "" {
			return v
		}
	}

	return ""
}

// Import reads a seed document from r. Records without an id are skipped.
func Import(repo Repository, r io.Reader, progress Progress) (ImportResult, error) {
	var (
		seed SeedData
		res  ImportResult
	)

	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := dec.Decode(&seed); err != nil {
		return res, fmt.Errorf("parsing JSON: %w", err)
	}

	for _, o := range seed.Owners {
		if err := repo.SaveOwner(o); err != nil {
			return res, fmt.Errorf("saving owner %s: %w", o.ID, err)
		}

		res.Owners++
	}

	total := len(seed.Listings)
	batch := make([]*Listing, 0, importBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		if err := repo.BulkInsert(batch); err != nil {
			return err
		}

		res.Imported += len(batch)
		batch = batch[:0]

		return nil
	}

	for i, raw := range seed.Listings {
		e, err := mapview.NormalizeRecord(raw)
		if err != nil {
			res.Skipped++
		} else {
			l := FromEntity(e)
			l.OwnerID = ownerOf(raw)
			batch = append(batch, l)
		}

		if len(batch) == importBatch {
			if err := flush(); err != nil {
				return res, err
			}
		}

		if progress != nil {
			progress(i+1, total)
		}
	}

	return res, flush()
}

// ImportFile imports a seed file from disk.
func ImportFile(repo Repository, path string, progress Progress) (ImportResult, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by admin
	if err != nil {
		return ImportResult{}, fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()

	return Import(repo, f, progress)
}

// Export writes every listing as a seed document.
func Export(repo Repository, w io.Writer) error {
	listings, err := repo.List(Filter{})
	if err != nil {
		return fmt.Errorf("listing listings: %w", err)
	}

	seed := &SeedData{
		Version:     "1.0",
		LastUpdated: time.Now(),
		Listings:    make([]map[string]any, 0, len(listings)),
	}

	owners := make(map[string]bool)

	for _, l := range listings {
		raw := map[string]any{
			"id":           l.ID,
			"title":        l.Title,
			"price":        l.Price,
			"city":         l.City,
			"listing_type": l.ListingType,
			"is_premium":   l.IsPremium,
		}

		if l.Point != nil {
			raw["coordinate"] = map[string]float64{"lat": l.Point.Lat, "lng": l.Point.Lng}
		}

		if l.OwnerID != "" {
			raw["owner_id"] = l.OwnerID

			if !owners[l.OwnerID] {
				owners[l.OwnerID] = true

				if o, err := repo.Owner(l.OwnerID); err == nil {
					seed.Owners = append(seed.Owners, o)
				}
			}
		}

		seed.Listings = append(seed.Listings, raw)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(seed); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}

	return nil
}

// SeedIfEmpty seeds the database from a JSON file if no listings exist.
func SeedIfEmpty(repo Repository, path string, progress Progress) (bool, int, error) {
	count, err := repo.Count()
	if err != nil {
		return false, 0, fmt.Errorf("counting listings: %w", err)
	}

	if count > 0 {
		return false, count, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, 0, nil
	}

	res, err := ImportFile(repo, path, progress)
	if err != nil {
		return false, 0, err
	}

	return true, res.Imported, nil
}
