// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/propmap/propmap/provider"
)

var tokenChars = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const (
	googleKeyPrefix  = "AIza"
	googleKeyLength  = 39
	mapboxPrefix     = "pk."
	mapboxMinLength  = 60
	osmMinKeyLength  = 8
	osmMaxKeyLength  = 128
	mapboxTokenParts = 3
)

// ValidateCredential checks the local shape of a token before it is handed
// to the provider. It never contacts the network.
func ValidateCredential(kind provider.Kind, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	switch kind {
	case provider.KindGoogle:
		if !strings.HasPrefix(token, googleKeyPrefix) {
			return fmt.Errorf("%w: google keys start with %q", ErrInvalidCredential, googleKeyPrefix)
		}

		if len(token) != googleKeyLength {
			return fmt.Errorf("%w: google keys are %d characters", ErrInvalidCredential, googleKeyLength)
		}

		if !tokenChars.MatchString(token) {
			return fmt.Errorf("%w: unexpected characters", ErrInvalidCredential)
		}
	case provider.KindMapbox:
		if !strings.HasPrefix(token, mapboxPrefix) {
			return fmt.Errorf("%w: mapbox public tokens start with %q", ErrInvalidCredential, mapboxPrefix)
		}

		if len(token) < mapboxMinLength {
			return fmt.Errorf("%w: mapbox token too short", ErrInvalidCredential)
		}

		parts := strings.Split(token, ".")
		if len(parts) != mapboxTokenParts {
			return fmt.Errorf("%w: mapbox tokens have %d segments", ErrInvalidCredential, mapboxTokenParts)
		}

		for _, part := range parts {
			if !tokenChars.MatchString(part) {
				return fmt.Errorf("%w: unexpected characters", ErrInvalidCredential)
			}
		}
	case provider.KindOSM:
		if len(token) < osmMinKeyLength || len(token) > osmMaxKeyLength {
			return fmt.Errorf("%w: key must be %d to %d characters", ErrInvalidCredential, osmMinKeyLength, osmMaxKeyLength)
		}

		if !tokenChars.MatchString(token) {
			return fmt.Errorf("%w: unexpected characters", ErrInvalidCredential)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidCredential, kind)
	}

	return nil
}
