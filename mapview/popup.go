// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/propmap/propmap/metrics"
	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/utils/htmlutils"
)

// PopupPhase is the lifecycle position of the popup.
type PopupPhase int

const (
	PopupPhaseClosed PopupPhase = iota
	PopupPhaseOpening
	PopupPhaseOpen
	PopupPhaseClosing
)

func (p PopupPhase) String() string {
	switch p {
	case PopupPhaseOpening:
		return "opening"
	case PopupPhaseOpen:
		return "open"
	case PopupPhaseClosing:
		return "closing"
	default:
		return "closed"
	}
}

// MarshalText renders the phase name.
func (p PopupPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// PopupState is the observable popup state. At most one popup exists.
type PopupState struct {
	EntityID       string     `json:"entityId,omitempty"`
	Phase          PopupPhase `json:"phase"`
	ContentMounted bool       `json:"contentMounted"`
}

// Navigator opens an entity's detail view.
type Navigator interface {
	GoToDetail(entityID string) error
}

// Notifier receives popup actions such as save or message.
type Notifier interface {
	Notify(ctx context.Context, action string, payload map[string]string) error
}

// Popup actions carried by data-action attributes.
const (
	ActionSave    = "save"
	ActionMessage = "message"
)

type popupSource interface {
	Entity(id string) (MapEntity, provider.Marker, bool)
}

// PopupManager owns the single popup. Content is mounted in a task deferred
// behind the one that opened the popup, so the native popup element exists
// by then; the mount is abandoned if the popup was closed or replaced, or
// its anchor detached, in between.
type PopupManager struct {
	m        provider.Map
	source   popupSource
	bus      *Bus
	sched    Scheduler
	renderer *Renderer
	nav      Navigator
	notifier Notifier
	log      zerolog.Logger
	metrics  *metrics.Metrics

	state   PopupState
	entity  MapEntity
	anchor  provider.Marker
	native  provider.Popup
	content string
	gen     uint64
	unsubs  []func()
}

// PopupOptions configures a PopupManager.
type PopupOptions struct {
	Scheduler Scheduler
	Renderer  *Renderer
	Navigator Navigator
	Notifier  Notifier
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// NewPopupManager subscribes a popup manager to bus and to the map's
// interaction events.
func NewPopupManager(m provider.Map, source popupSource, bus *Bus, opts PopupOptions) *PopupManager {
	if opts.Renderer == nil {
		opts.Renderer = NewRenderer(nil)
	}

	p := &PopupManager{
		m:        m,
		source:   source,
		bus:      bus,
		sched:    opts.Scheduler,
		renderer: opts.Renderer,
		nav:      opts.Navigator,
		notifier: opts.Notifier,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}

	bus.Subscribe(p.handle)

	for _, ev := range []provider.Event{provider.EventDragStart, provider.EventZoomStart, provider.EventClick} {
		p.unsubs = append(p.unsubs, m.On(ev, p.Close))
	}

	return p
}

func (p *PopupManager) handle(ev Event) {
	switch ev := ev.(type) {
	case PopupRequested:
		e, anchor, ok := p.source.Entity(ev.EntityID)
		if !ok {
			p.log.Debug().Str("entity", ev.EntityID).Msg("popup requested for unknown marker")

			return
		}

		if err := p.Open(e, anchor); err != nil {
			p.log.Warn().Err(err).Str("entity", ev.EntityID).Msg("failed to open popup")
		}
	case PopupCloseRequested:
		p.Close()
	case MarkerRemoved:
		if ev.EntityID == p.state.EntityID {
			p.Close()
		}
	}
}

// State returns the current popup state.
func (p *PopupManager) State() PopupState {
	return p.state
}

// Content returns the mounted markup, or "".
func (p *PopupManager) Content() string {
	return p.content
}

// Open shows a popup for e anchored on anchor. Any other popup is closed
// first. Opening the entity already shown is a no-op.
func (p *PopupManager) Open(e MapEntity, anchor provider.Marker) error {
	if p.state.Phase != PopupPhaseClosed {
		if p.state.EntityID == e.ID {
			return nil
		}

		p.teardown()
	}

	var native provider.Popup

	err := guard(func() error {
		var err error
		native, err = p.m.OpenPopup(anchor)

		return err
	})
	if err == nil && native == nil {
		err = errors.New("provider returned no popup")
	}

	if err != nil {
		if errors.Is(err, provider.ErrRemoved) {
			return &StaleHandleError{EntityID: e.ID, Op: "open popup", Err: err}
		}

		return err
	}

	p.gen++
	gen := p.gen
	p.entity = e
	p.anchor = anchor
	p.native = native
	p.state = PopupState{EntityID: e.ID, Phase: PopupPhaseOpening}
	p.metrics.PopupTransition(PopupPhaseOpening.String())

	p.sched.Defer(func() { p.mount(gen) })

	return nil
}

func (p *PopupManager) mount(gen uint64) {
	if gen != p.gen || p.state.Phase != PopupPhaseOpening {
		return
	}

	id := p.entity.ID

	if !p.anchor.Anchor().Attached() {
		p.log.Debug().Str("entity", id).Msg("popup anchor detached before mount")
		p.teardown()

		return
	}

	content, err := p.renderer.Render(p.entity)
	if err == nil {
		err = guard(func() error { return p.native.Mount(content) })
	}

	if err != nil {
		if errors.Is(err, provider.ErrRemoved) {
			p.log.Debug().Str("entity", id).Msg("popup removed before mount")
			p.teardown()

			return
		}

		p.log.Warn().Err(&RenderError{EntityID: id, Err: err}).Msg("falling back to minimal popup")

		content, err = p.renderer.RenderFallback(p.entity)
		if err == nil {
			err = guard(func() error { return p.native.Mount(content) })
		}

		if err != nil {
			p.log.Warn().Err(err).Str("entity", id).Msg("closing popup without content")
			p.teardown()

			return
		}
	}

	p.content = content
	p.state.Phase = PopupPhaseOpen
	p.state.ContentMounted = true
	p.metrics.PopupTransition(PopupPhaseOpen.String())
}

// Close tears the popup down. It is safe to call in any phase.
func (p *PopupManager) Close() {
	p.teardown()
}

func (p *PopupManager) teardown() {
	if p.state.Phase == PopupPhaseClosed || p.state.Phase == PopupPhaseClosing {
		return
	}

	id := p.state.EntityID
	p.state.Phase = PopupPhaseClosing
	p.gen++

	if p.native != nil {
		if err := guard(p.native.Remove); err != nil && !errors.Is(err, provider.ErrRemoved) {
			p.log.Warn().Err(err).Str("entity", id).Msg("failed to remove popup")
		}
	}

	p.native = nil
	p.anchor = nil
	p.entity = MapEntity{}
	p.content = ""
	p.state = PopupState{Phase: PopupPhaseClosed}
	p.metrics.PopupTransition(PopupPhaseClosed.String())

	p.bus.Publish(PopupClosed{EntityID: id})
}

// Detach closes the popup and drops the map listeners.
func (p *PopupManager) Detach() {
	p.teardown()

	for _, unsub := range p.unsubs {
		unsub()
	}

	p.unsubs = nil
}

// Click routes a click on the zone named zone inside the popup. Clicks that
// land in an action zone go to the notifier; any other click opens the
// detail view.
func (p *PopupManager) Click(ctx context.Context, zone string) error {
	if p.state.Phase != PopupPhaseOpen {
		return &StaleHandleError{EntityID: p.state.EntityID, Op: "popup click"}
	}

	id := p.state.EntityID

	action, err := actionFor(p.content, zone)
	if err != nil {
		return fmt.Errorf("reading popup content: %w", err)
	}

	switch action {
	case ActionSave, ActionMessage:
		if p.notifier == nil {
			return nil
		}

		return p.notifier.Notify(ctx, action, map[string]string{
			"entityId": id,
			"title":    p.entity.Title,
		})
	default:
		if p.nav == nil {
			return nil
		}

		return p.nav.GoToDetail(id)
	}
}

// actionFor finds the element marked data-zone=zone in content and returns
// the nearest data-action on it or its ancestors inside the popup root.
func actionFor(content, zone string) (string, error) {
	doc, err := htmlutils.AsNode(strings.NewReader(content))
	if err != nil {
		return "", err
	}

	target := htmlutils.Find(doc, htmlutils.HasAttr("data-zone", zone))
	hasAction := func(n *html.Node) bool { return htmlutils.Attr(n, "data-action") != "" }

	return htmlutils.Attr(htmlutils.Closest(target, hasAction, htmlutils.HasAttr("data-zone", "root")), "data-action"), nil
}
