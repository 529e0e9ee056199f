// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/provider/scene"
	"github.com/propmap/propmap/spatial"
)

var testRegion = spatial.Bounds{MinLat: 20, MaxLat: 38, MinLng: -15, MaxLng: 35}

func testResolver() *Resolver {
	center := DefaultCenter

	return NewResolver(testRegion, &center, DefaultJitter)
}

func pt(lat, lng float64) *spatial.Point {
	return &spatial.Point{Lat: lat, Lng: lng}
}

type manualScheduler struct {
	tasks []func()
}

func (s *manualScheduler) Defer(fn func()) {
	s.tasks = append(s.tasks, fn)
}

func (s *manualScheduler) RunAll() {
	for len(s.tasks) > 0 {
		fn := s.tasks[0]
		s.tasks = s.tasks[1:]
		fn()
	}
}

type recordingNavigator struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNavigator) GoToDetail(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.ids = append(n.ids, id)

	return nil
}

func (n *recordingNavigator) Visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.ids...)
}

type notification struct {
	Action  string
	Payload map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(_ context.Context, action string, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, notification{Action: action, Payload: payload})

	return nil
}

func (n *recordingNotifier) Sent() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]notification(nil), n.sent...)
}

// harness wires the components against a scene without the loop.
type harness struct {
	scene    *scene.Scene
	bus      *Bus
	rec      *Reconciler
	active   *ActiveController
	popup    *PopupManager
	camera   *Camera
	sched    *manualScheduler
	nav      *recordingNavigator
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	return newHarnessOn(t, scene.New(provider.KindOSM, nil), nil)
}

func newHarnessOn(t *testing.T, s *scene.Scene, loc Localizer) *harness {
	t.Helper()

	return newHarnessWith(t, s, s, loc)
}

func newHarnessWith(t *testing.T, s *scene.Scene, m provider.Map, loc Localizer) *harness {
	t.Helper()

	h := &harness{
		scene:    s,
		bus:      NewBus(),
		sched:    &manualScheduler{},
		nav:      &recordingNavigator{},
		notifier: &recordingNotifier{},
	}

	log := zerolog.Nop()
	h.rec = NewReconciler(m, testResolver(), h.bus, log, nil)
	h.active = NewActiveController(h.rec, h.bus, log)
	h.popup = NewPopupManager(m, h.rec, h.bus, PopupOptions{
		Scheduler: h.sched,
		Renderer:  NewRenderer(loc),
		Navigator: h.nav,
		Notifier:  h.notifier,
		Logger:    log,
	})
	h.camera = NewCamera(m, DefaultFitPadding, DefaultZoom, log, nil)

	return h
}

// flakyMap fails or panics when asked to create specific markers.
type flakyMap struct {
	provider.Map
	failID  string
	panicID string
}

func (f *flakyMap) AddMarker(opts provider.MarkerOptions) (provider.Marker, error) {
	switch opts.ID {
	case f.failID:
		return nil, errors.New("sdk refused marker")
	case f.panicID:
		panic("sdk exploded")
	}

	return f.Map.AddMarker(opts)
}

func (f *flakyMap) FitBounds(spatial.Bounds, int) error {
	return errors.New("fit failed")
}

// failingLocalizer makes the full popup template fail to render.
type failingLocalizer struct{}

func (failingLocalizer) Text(key string) string { return key }

func (failingLocalizer) Price(int64) string { panic("no currency") }
