// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider describes the boundary of the interactive map SDK. The
// SDK owns its own object graph (markers, popups, camera); callers only hold
// handles and must release them explicitly.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/propmap/propmap/spatial"
)

// Kind identifies a map rendering provider.
type Kind string

const (
	KindGoogle Kind = "google"
	KindMapbox Kind = "mapbox"
	KindOSM    Kind = "osm"
)

// ParseKind validates a provider name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGoogle, KindMapbox, KindOSM:
		return k, nil
	default:
		return "", fmt.Errorf("unknown map provider %q", s)
	}
}

// RequiresCredential reports whether the provider refuses to load without
// a credential.
func (k Kind) RequiresCredential() bool {
	return k == KindGoogle || k == KindMapbox
}

// ErrRemoved is returned by handles whose native object is already gone.
var ErrRemoved = errors.New("provider: handle already removed")

// Event is a map level interaction reported by the SDK.
type Event string

const (
	EventDragStart Event = "dragstart"
	EventZoomStart Event = "zoomstart"
	EventClick     Event = "click" // click on the map background
)

// MarkerOptions describes a native marker to create.
type MarkerOptions struct {
	ID          string
	Position    spatial.Point
	ZIndex      int
	Label       string
	ListingType string
	Premium     bool
	OnClick     func()
}

// Anchor is the element a popup renders into. It detaches when its marker
// is removed.
type Anchor interface {
	Attached() bool
}

// Marker is a live native marker.
type Marker interface {
	SetPosition(p spatial.Point) error
	SetZIndex(z int) error
	Anchor() Anchor
	Remove() error
}

// Popup is a live native popup bound to a marker anchor.
type Popup interface {
	// Mount renders content into the popup. It fails with ErrRemoved if the
	// popup or its anchor is gone.
	Mount(content string) error
	Remove() error
}

// Map is an installed SDK instance.
type Map interface {
	AddMarker(opts MarkerOptions) (Marker, error)
	OpenPopup(anchor Marker) (Popup, error)
	FitBounds(b spatial.Bounds, padding int) error
	FlyTo(center spatial.Point, zoom float64) error
	// On registers fn for ev and returns a function that unregisters it.
	On(ev Event, fn func()) func()
	Remove() error
}

// Loader installs an SDK instance.
type Loader interface {
	Load(ctx context.Context, kind Kind, credential string) (Map, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, kind Kind, credential string) (Map, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, kind Kind, credential string) (Map, error) {
	return f(ctx, kind, credential)
}

// LoadError describes why the SDK could not be installed.
type LoadError struct {
	Kind       Kind
	StatusCode int // 0 for transport failures
	Message    string
	Err        error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("loading %s sdk: %s", e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("loading %s sdk: status %d: %s", e.Kind, e.StatusCode, e.Message)
	}

	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}

	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the provider rejected the credential.
func (e *LoadError) Unauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
