// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRecord(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want MapEntity
	}{
		{
			name: "canonical",
			in:   `{"id":"a1","title":"F3 Hydra","price":25000000,"coordinate":{"lat":36.75,"lng":3.04},"city":"Alger","listingType":"sale","isPremium":true}`,
			want: MapEntity{ID: "a1", Title: "F3 Hydra", Price: 25000000, Coordinate: pt(36.75, 3.04), City: "Alger", ListingType: "sale", IsPremium: true},
		},
		{
			name: "numeric id and flat coordinates",
			in:   `{"_id":42,"name":"Villa","prix":"1500000","latitude":35.7,"longitude":-0.63,"ville":"Oran","type":"RENT"}`,
			want: MapEntity{ID: "42", Title: "Villa", Price: 1500000, Coordinate: pt(35.7, -0.63), City: "Oran", ListingType: "rent"},
		},
		{
			name: "geojson array",
			in:   `{"listing_id":"x","location":[3.05,36.7],"is_premium":"true"}`,
			want: MapEntity{ID: "x", Coordinate: pt(36.7, 3.05), IsPremium: true},
		},
		{
			name: "zero placeholder coordinate dropped",
			in:   `{"id":"z","lat":0,"lng":0,"city":"Blida"}`,
			want: MapEntity{ID: "z", City: "Blida"},
		},
		{
			name: "out of range coordinate dropped",
			in:   `{"id":"o","position":{"lat":120,"lon":3}}`,
			want: MapEntity{ID: "o"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw map[string]any
			require.NoError(t, json.Unmarshal([]byte(tt.in), &raw))

			got, err := NormalizeRecord(raw)
			require.NoError(t, err)

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NormalizeRecord() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeRecordMissingID(t *testing.T) {
	_, err := NormalizeRecord(map[string]any{"title": "no id"})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestNormalizeRecords(t *testing.T) {
	entities, skipped := NormalizeRecords([]map[string]any{
		{"id": "1"},
		{"title": "orphan"},
		{"id": "2"},
	})

	require.Len(t, entities, 2)
	assert.Equal(t, "1", entities[0].ID)
	assert.Equal(t, "2", entities[1].ID)
	assert.Equal(t, []int{1}, skipped)
}
