// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/propmap/propmap/metrics"
	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/spatial"
)

// MarkerHandle tracks one live native marker.
type MarkerHandle struct {
	Entity         MapEntity
	LastCoordinate spatial.Point
	ZIndex         int
	native         provider.Marker
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Created   int  `json:"created"`
	Moved     int  `json:"moved"`
	Unchanged int  `json:"unchanged"`
	Removed   int  `json:"removed"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Deferred  bool `json:"deferred,omitempty"`
}

// Reconciler is the only component that creates or destroys markers. Each
// pass makes the set of live markers equal to the resolvable entities of
// the desired list.
type Reconciler struct {
	m        provider.Map
	resolver *Resolver
	bus      *Bus
	log      zerolog.Logger
	metrics  *metrics.Metrics
	handles  map[string]*MarkerHandle
}

// NewReconciler returns a reconciler drawing on m.
func NewReconciler(m provider.Map, resolver *Resolver, bus *Bus, log zerolog.Logger, mt *metrics.Metrics) *Reconciler {
	return &Reconciler{
		m:        m,
		resolver: resolver,
		bus:      bus,
		log:      log,
		metrics:  mt,
		handles:  make(map[string]*MarkerHandle),
	}
}

// guard runs a provider call, turning a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()

	return fn()
}

// BaseZIndex returns the resting z-index of an entity's marker.
func BaseZIndex(e MapEntity) int {
	if e.IsPremium {
		return PremiumZIndex
	}

	return BaselineZIndex
}

// Reconcile applies entities. Entities without an id or a resolvable
// coordinate are skipped, duplicate ids keep their first occurrence, and a
// provider failure on one entity does not stop the others.
func (r *Reconciler) Reconcile(entities []MapEntity) ReconcileResult {
	start := time.Now()

	var res ReconcileResult

	desired := make(map[string]MapEntity, len(entities))
	order := make([]string, 0, len(entities))

	for _, e := range entities {
		if e.ID == "" {
			res.Skipped++

			continue
		}

		if _, dup := desired[e.ID]; dup {
			r.log.Debug().Str("entity", e.ID).Msg("duplicate entity id ignored")

			continue
		}

		desired[e.ID] = e
		order = append(order, e.ID)
	}

	for _, id := range r.Keys() {
		if _, ok := desired[id]; !ok {
			r.destroy(id)
			res.Removed++
		}
	}

	for _, id := range order {
		e := desired[id]

		p, ok := r.resolver.Resolve(e)
		if !ok {
			if _, live := r.handles[id]; live {
				r.destroy(id)
				res.Removed++
			}

			res.Skipped++

			continue
		}

		h, live := r.handles[id]
		if !live {
			if r.create(e, p) {
				res.Created++
			} else {
				res.Failed++
			}

			continue
		}

		h.Entity = e

		if h.ZIndex != RaisedZIndex {
			if err := r.SetZIndex(id, BaseZIndex(e)); err != nil {
				r.log.Debug().Err(err).Str("entity", id).Msg("failed to restack marker")
			}
		}

		if h.LastCoordinate == p {
			res.Unchanged++

			continue
		}

		switch err := guard(func() error { return h.native.SetPosition(p) }); {
		case err == nil:
			h.LastCoordinate = p
			res.Moved++
			r.metrics.MarkerOp("move")
		case errors.Is(err, provider.ErrRemoved):
			r.log.Debug().Err(&StaleHandleError{EntityID: id, Op: "move", Err: err}).Msg("recreating marker")
			delete(r.handles, id)

			if r.create(e, p) {
				res.Created++
			} else {
				res.Failed++
			}
		default:
			r.log.Warn().Err(err).Str("entity", id).Msg("failed to move marker")
			r.metrics.MarkerOp("error")

			res.Failed++
		}
	}

	r.metrics.ObserveReconcile(time.Since(start), len(r.handles))
	r.log.Debug().
		Int("created", res.Created).
		Int("moved", res.Moved).
		Int("removed", res.Removed).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("live", len(r.handles)).
		Msg("reconciled markers")

	return res
}

func (r *Reconciler) create(e MapEntity, p spatial.Point) bool {
	id := e.ID
	z := BaseZIndex(e)

	var native provider.Marker

	err := guard(func() error {
		var err error

		native, err = r.m.AddMarker(provider.MarkerOptions{
			ID:          id,
			Position:    p,
			ZIndex:      z,
			Label:       e.Title,
			ListingType: e.ListingType,
			Premium:     e.IsPremium,
			OnClick:     func() { r.bus.Publish(MarkerClicked{EntityID: id}) },
		})

		return err
	})
	if err == nil && native == nil {
		err = errors.New("provider returned no marker")
	}

	if err != nil {
		r.log.Warn().Err(err).Str("entity", id).Msg("failed to create marker")
		r.metrics.MarkerOp("error")

		return false
	}

	r.handles[id] = &MarkerHandle{Entity: e, LastCoordinate: p, ZIndex: z, native: native}
	r.metrics.MarkerOp("create")

	return true
}

func (r *Reconciler) destroy(id string) {
	h, ok := r.handles[id]
	if !ok {
		return
	}

	delete(r.handles, id)

	if err := guard(h.native.Remove); err != nil {
		if errors.Is(err, provider.ErrRemoved) {
			r.log.Debug().Err(&StaleHandleError{EntityID: id, Op: "remove", Err: err}).Msg("marker already gone")
		} else {
			r.log.Warn().Err(err).Str("entity", id).Msg("failed to remove marker")
		}
	}

	r.metrics.MarkerOp("remove")
	r.bus.Publish(MarkerRemoved{EntityID: id})
}

// DestroyAll removes every live marker.
func (r *Reconciler) DestroyAll() int {
	keys := r.Keys()
	for _, id := range keys {
		r.destroy(id)
	}

	r.metrics.ObserveReconcile(0, 0)

	return len(keys)
}

// Keys returns the ids of live markers in sorted order.
func (r *Reconciler) Keys() []string {
	keys := make([]string, 0, len(r.handles))
	for id := range r.handles {
		keys = append(keys, id)
	}

	sort.Strings(keys)

	return keys
}

// Len returns the number of live markers.
func (r *Reconciler) Len() int {
	return len(r.handles)
}

// Has reports whether id has a live marker.
func (r *Reconciler) Has(id string) bool {
	_, ok := r.handles[id]

	return ok
}

// Handle returns the live handle for id.
func (r *Reconciler) Handle(id string) (*MarkerHandle, bool) {
	h, ok := r.handles[id]

	return h, ok
}

// Coordinates returns the positions of all live markers.
func (r *Reconciler) Coordinates() []spatial.Point {
	points := make([]spatial.Point, 0, len(r.handles))
	for _, id := range r.Keys() {
		points = append(points, r.handles[id].LastCoordinate)
	}

	return points
}

// Entity implements popupSource.
func (r *Reconciler) Entity(id string) (MapEntity, provider.Marker, bool) {
	h, ok := r.handles[id]
	if !ok {
		return MapEntity{}, nil, false
	}

	return h.Entity, h.native, true
}

// SetZIndex changes the z-index of one marker.
func (r *Reconciler) SetZIndex(id string, z int) error {
	h, ok := r.handles[id]
	if !ok {
		return &StaleHandleError{EntityID: id, Op: "zindex"}
	}

	if h.ZIndex == z {
		return nil
	}

	if err := guard(func() error { return h.native.SetZIndex(z) }); err != nil {
		if errors.Is(err, provider.ErrRemoved) {
			return &StaleHandleError{EntityID: id, Op: "zindex", Err: err}
		}

		return err
	}

	h.ZIndex = z
	r.metrics.MarkerOp("zindex")

	return nil
}

// ResetZIndex returns every marker to its baseline z-index.
func (r *Reconciler) ResetZIndex() {
	for _, id := range r.Keys() {
		if err := r.SetZIndex(id, BaseZIndex(r.handles[id].Entity)); err != nil {
			r.log.Debug().Err(err).Str("entity", id).Msg("failed to reset z-index")
		}
	}
}
