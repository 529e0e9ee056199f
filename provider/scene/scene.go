// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package scene is a headless native object graph for the map provider.
// It keeps markers, popups and camera the way an SDK would and publishes
// every mutation as an Op so that browser viewers can mirror it.
package scene

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/spatial"
)

// Op types published to viewers.
const (
	OpMarkerAdd    = "marker.add"
	OpMarkerMove   = "marker.move"
	OpMarkerZIndex = "marker.zindex"
	OpMarkerRemove = "marker.remove"
	OpPopupOpen    = "popup.open"
	OpPopupMount   = "popup.mount"
	OpPopupRemove  = "popup.remove"
	OpFitBounds    = "camera.fit"
	OpFlyTo        = "camera.fly"
	OpMapRemove    = "map.remove"
)

// Op is one native mutation.
type Op struct {
	Seq         uint64          `json:"seq"`
	Type        string          `json:"type"`
	Handle      string          `json:"handle,omitempty"`
	EntityID    string          `json:"entityId,omitempty"`
	Position    *spatial.Point  `json:"position,omitempty"`
	ZIndex      int             `json:"zIndex,omitempty"`
	Label       string          `json:"label,omitempty"`
	ListingType string          `json:"listingType,omitempty"`
	Premium     bool            `json:"premium,omitempty"`
	Bounds      *spatial.Bounds `json:"bounds,omitempty"`
	Padding     int             `json:"padding,omitempty"`
	Zoom        float64         `json:"zoom,omitempty"`
	Content     string          `json:"content,omitempty"`
}

// Stats counts native operations since the scene was created.
type Stats struct {
	MarkersAdded   int
	MarkersRemoved int
	Moves          int
	ZIndexChanges  int
	PopupsOpened   int
	PopupsMounted  int
	PopupsRemoved  int
	Fits           int
	Flights        int
}

// Camera is the last camera command applied.
type Camera struct {
	Center  spatial.Point
	Zoom    float64
	Bounds  *spatial.Bounds
	Padding int
}

// Scene implements provider.Map.
type Scene struct {
	mu       sync.Mutex
	kind     provider.Kind
	seq      uint64
	nextID   int
	markers  map[string]*marker
	popups   map[string]*popup
	handlers map[provider.Event]map[int]func()
	nextSub  int
	camera   Camera
	stats    Stats
	removed  bool
	sink     func(Op)
}

var _ provider.Map = (*Scene)(nil)

// New creates an empty scene. sink receives every Op after it is applied;
// it may be nil.
func New(kind provider.Kind, sink func(Op)) *Scene {
	return &Scene{
		kind:     kind,
		markers:  make(map[string]*marker),
		popups:   make(map[string]*popup),
		handlers: make(map[provider.Event]map[int]func()),
		sink:     sink,
	}
}

// Kind returns the provider the scene stands in for.
func (s *Scene) Kind() provider.Kind {
	return s.kind
}

// record must be called with s.mu held; emit the returned op after unlocking.
func (s *Scene) record(op Op) Op {
	s.seq++
	op.Seq = s.seq

	return op
}

func (s *Scene) emit(op Op) {
	if s.sink != nil {
		s.sink(op)
	}
}

func (s *Scene) handle(prefix string) string {
	s.nextID++

	return fmt.Sprintf("%s%d", prefix, s.nextID)
}

// AddMarker implements provider.Map.
func (s *Scene) AddMarker(opts provider.MarkerOptions) (provider.Marker, error) {
	s.mu.Lock()

	if s.removed {
		s.mu.Unlock()

		return nil, provider.ErrRemoved
	}

	if !opts.Position.Valid() {
		s.mu.Unlock()

		return nil, fmt.Errorf("scene: invalid marker position %v", opts.Position)
	}

	m := &marker{scene: s, key: s.handle("m"), opts: opts}
	s.markers[m.key] = m
	s.stats.MarkersAdded++

	pos := opts.Position
	op := s.record(Op{
		Type:        OpMarkerAdd,
		Handle:      m.key,
		EntityID:    opts.ID,
		Position:    &pos,
		ZIndex:      opts.ZIndex,
		Label:       opts.Label,
		ListingType: opts.ListingType,
		Premium:     opts.Premium,
	})
	s.mu.Unlock()

	s.emit(op)

	return m, nil
}

// OpenPopup implements provider.Map.
func (s *Scene) OpenPopup(anchor provider.Marker) (provider.Popup, error) {
	m, ok := anchor.(*marker)
	if !ok || m.scene != s {
		return nil, errors.New("scene: popup anchor belongs to another map")
	}

	s.mu.Lock()

	if s.removed || m.removed {
		s.mu.Unlock()

		return nil, provider.ErrRemoved
	}

	p := &popup{scene: s, key: s.handle("p"), anchor: m}
	s.popups[p.key] = p
	s.stats.PopupsOpened++
	op := s.record(Op{Type: OpPopupOpen, Handle: p.key, EntityID: m.opts.ID})
	s.mu.Unlock()

	s.emit(op)

	return p, nil
}

// FitBounds implements provider.Map.
func (s *Scene) FitBounds(b spatial.Bounds, padding int) error {
	s.mu.Lock()

	if s.removed {
		s.mu.Unlock()

		return provider.ErrRemoved
	}

	s.camera = Camera{Center: b.Center(), Zoom: s.camera.Zoom, Bounds: &b, Padding: padding}
	s.stats.Fits++
	op := s.record(Op{Type: OpFitBounds, Bounds: &b, Padding: padding})
	s.mu.Unlock()

	s.emit(op)

	return nil
}

// FlyTo implements provider.Map.
func (s *Scene) FlyTo(center spatial.Point, zoom float64) error {
	s.mu.Lock()

	if s.removed {
		s.mu.Unlock()

		return provider.ErrRemoved
	}

	s.camera = Camera{Center: center, Zoom: zoom}
	s.stats.Flights++
	op := s.record(Op{Type: OpFlyTo, Position: &center, Zoom: zoom})
	s.mu.Unlock()

	s.emit(op)

	return nil
}

// On implements provider.Map.
func (s *Scene) On(ev provider.Event, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub

	if s.handlers[ev] == nil {
		s.handlers[ev] = make(map[int]func())
	}

	s.handlers[ev][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.handlers[ev], id)
	}
}

// Remove implements provider.Map. Remaining markers and popups detach.
func (s *Scene) Remove() error {
	s.mu.Lock()

	if s.removed {
		s.mu.Unlock()

		return provider.ErrRemoved
	}

	s.removed = true

	for _, m := range s.markers {
		m.removed = true
	}

	for _, p := range s.popups {
		p.removed = true
	}

	s.markers = map[string]*marker{}
	s.popups = map[string]*popup{}
	s.handlers = map[provider.Event]map[int]func(){}
	op := s.record(Op{Type: OpMapRemove})
	s.mu.Unlock()

	s.emit(op)

	return nil
}

// Emit delivers a map level interaction to the registered handlers.
func (s *Scene) Emit(ev provider.Event) {
	s.mu.Lock()

	ids := make([]int, 0, len(s.handlers[ev]))
	for id := range s.handlers[ev] {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.handlers[ev][id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ClickMarker simulates a user click on the marker showing entityID. It
// returns false if no live marker shows it.
func (s *Scene) ClickMarker(entityID string) bool {
	s.mu.Lock()

	var target *marker

	for _, m := range s.markers {
		if m.opts.ID == entityID {
			target = m

			break
		}
	}
	s.mu.Unlock()

	if target == nil || target.opts.OnClick == nil {
		return false
	}

	target.opts.OnClick()

	return true
}

// Stats returns the operation counters.
func (s *Scene) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// Camera returns the current camera.
func (s *Scene) Camera() Camera {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.camera
}

// MarkerIDs returns the entity ids of live markers, sorted.
func (s *Scene) MarkerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.markers))
	for _, m := range s.markers {
		ids = append(ids, m.opts.ID)
	}

	sort.Strings(ids)

	return ids
}

// MarkerZIndex returns the z-index of the live marker showing entityID.
func (s *Scene) MarkerZIndex(entityID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.markers {
		if m.opts.ID == entityID {
			return m.opts.ZIndex, true
		}
	}

	return 0, false
}

// OpenPopups returns the number of live popups.
func (s *Scene) OpenPopups() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.popups)
}

// Snapshot returns the ops that rebuild the current state from scratch, for
// viewers connecting late.
func (s *Scene) Snapshot() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return nil
	}

	keys := make([]string, 0, len(s.markers))
	for k := range s.markers {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	ops := make([]Op, 0, len(keys)+len(s.popups)+1)

	for _, k := range keys {
		m := s.markers[k]
		pos := m.opts.Position
		ops = append(ops, Op{
			Seq:         s.seq,
			Type:        OpMarkerAdd,
			Handle:      m.key,
			EntityID:    m.opts.ID,
			Position:    &pos,
			ZIndex:      m.opts.ZIndex,
			Label:       m.opts.Label,
			ListingType: m.opts.ListingType,
			Premium:     m.opts.Premium,
		})
	}

	for _, p := range s.popups {
		ops = append(ops, Op{Seq: s.seq, Type: OpPopupOpen, Handle: p.key, EntityID: p.anchor.opts.ID})
		if p.content != "" {
			ops = append(ops, Op{Seq: s.seq, Type: OpPopupMount, Handle: p.key, Content: p.content})
		}
	}

	if s.camera.Bounds != nil {
		ops = append(ops, Op{Seq: s.seq, Type: OpFitBounds, Bounds: s.camera.Bounds, Padding: s.camera.Padding})
	} else if s.camera.Zoom != 0 {
		center := s.camera.Center
		ops = append(ops, Op{Seq: s.seq, Type: OpFlyTo, Position: &center, Zoom: s.camera.Zoom})
	}

	return ops
}

type marker struct {
	scene   *Scene
	key     string
	opts    provider.MarkerOptions
	removed bool
}

func (m *marker) SetPosition(p spatial.Point) error {
	s := m.scene
	s.mu.Lock()

	if m.removed {
		s.mu.Unlock()

		return provider.ErrRemoved
	}

	m.opts.Position = p
	s.stats.Moves++
	op := s.record(Op{Type: OpMarkerMove, Handle: m.key, EntityID: m.opts.ID, Position: &p})
	s.mu.Unlock()

	s.emit(op)

	return nil
}

func (m *marker) SetZIndex(z int) error {
	s := m.scene
	s.mu.Lock()

	if m.removed {
		s.mu.Unlock()

		return provider.ErrRemoved
	}

	if m.opts.ZIndex == z {
		s.mu.Unlock()

		return nil
	}

	m.opts.ZIndex = z
	s.stats.ZIndexChanges++
	op := s.record(Op{Type: OpMarkerZIndex, Handle: m.key, EntityID: m.opts.ID, ZIndex: z})
	s.mu.Unlock()

	s.emit(op)

	return nil
}

func (m *marker) Anchor() provider.Anchor {
	return m
}

func (m *marker) Attached() bool {
	m.scene.mu.Lock()
	defer m.scene.mu.Unlock()

	return !m.removed
}

func (m *marker) Remove() error {
	s := m.scene
	s.mu.Lock()

	if m.removed {
		s.mu.Unlock()

		return provider.ErrRemoved
	}

	m.removed = true
	delete(s.markers, m.key)
	s.stats.MarkersRemoved++
	op := s.record(Op{Type: OpMarkerRemove, Handle: m.key, EntityID: m.opts.ID})
	s.mu.Unlock()

	s.emit(op)

	return nil
}

type popup struct {
	scene   *Scene
	key     string
	anchor  *marker
	content string
	removed bool
}

func (p *popup) Mount(content string) error {
	s := p.scene
	s.mu.Lock()

	if p.removed || p.anchor.removed {
		s.mu.Unlock()

		return provider.ErrRemoved
	}

	p.content = content
	s.stats.PopupsMounted++
	op := s.record(Op{Type: OpPopupMount, Handle: p.key, EntityID: p.anchor.opts.ID, Content: content})
	s.mu.Unlock()

	s.emit(op)

	return nil
}

func (p *popup) Remove() error {
	s := p.scene
	s.mu.Lock()

	if p.removed {
		s.mu.Unlock()

		return provider.ErrRemoved
	}

	p.removed = true
	delete(s.popups, p.key)
	s.stats.PopupsRemoved++
	op := s.record(Op{Type: OpPopupRemove, Handle: p.key, EntityID: p.anchor.opts.ID})
	s.mu.Unlock()

	s.emit(op)

	return nil
}
