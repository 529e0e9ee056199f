// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/propmap/propmap/provider"
)

func TestValidateCredential(t *testing.T) {
	mapboxToken := "pk." + strings.Repeat("a", 40) + "." + strings.Repeat("b", 22)

	tests := []struct {
		name  string
		kind  provider.Kind
		token string
		ok    bool
	}{
		{"google valid", provider.KindGoogle, validGoogleKey, true},
		{"google padded", provider.KindGoogle, "  " + validGoogleKey + "\n", true},
		{"google wrong prefix", provider.KindGoogle, "BIza" + strings.Repeat("x", 35), false},
		{"google short", provider.KindGoogle, "AIza123", false},
		{"google bad chars", provider.KindGoogle, "AIza" + strings.Repeat("x", 34) + "!", false},
		{"mapbox valid", provider.KindMapbox, mapboxToken, true},
		{"mapbox secret token", provider.KindMapbox, "sk." + mapboxToken[3:], false},
		{"mapbox two segments", provider.KindMapbox, "pk." + strings.Repeat("a", 60), false},
		{"mapbox short", provider.KindMapbox, "pk.a.b", false},
		{"osm valid", provider.KindOSM, "tile_key-123", true},
		{"osm short", provider.KindOSM, "abc", false},
		{"osm spaces", provider.KindOSM, "abc def ghi", false},
		{"empty", provider.KindOSM, "   ", false},
		{"unknown provider", provider.Kind("bing"), "whatever-token", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCredential(tt.kind, tt.token)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidCredential)
			}
		})
	}
}
