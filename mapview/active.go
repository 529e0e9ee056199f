// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import "github.com/rs/zerolog"

// Z-index levels. The raised level sits above any baseline.
const (
	BaselineZIndex = 1
	PremiumZIndex  = 2
	RaisedZIndex   = 1000
)

// markerStack is the z-order surface the active controller needs.
type markerStack interface {
	Has(id string) bool
	SetZIndex(id string, z int) error
	ResetZIndex()
}

// ActiveController tracks the single highlighted entity.
type ActiveController struct {
	stack  markerStack
	bus    *Bus
	log    zerolog.Logger
	active string
}

// NewActiveController subscribes a controller to bus.
func NewActiveController(stack markerStack, bus *Bus, log zerolog.Logger) *ActiveController {
	a := &ActiveController{stack: stack, bus: bus, log: log}
	bus.Subscribe(a.handle)

	return a
}

func (a *ActiveController) handle(ev Event) {
	switch ev := ev.(type) {
	case MarkerClicked:
		if err := a.Activate(ev.EntityID); err != nil {
			a.log.Debug().Err(err).Msg("ignoring click")
		}
	case MarkerRemoved:
		if ev.EntityID == a.active {
			a.Clear()
		}
	case PopupClosed:
		if ev.EntityID == a.active {
			a.active = ""
			a.stack.ResetZIndex()
		}
	}
}

// Active returns the highlighted entity id, or "".
func (a *ActiveController) Active() string {
	return a.active
}

// Activate raises id above every other marker and requests its popup.
// Activating the entity that is already active only re-requests the popup,
// which the popup manager ignores when it is already showing it.
func (a *ActiveController) Activate(id string) error {
	if id == a.active {
		a.bus.Publish(PopupRequested{EntityID: id})

		return nil
	}

	if !a.stack.Has(id) {
		return &StaleHandleError{EntityID: id, Op: "activate"}
	}

	a.stack.ResetZIndex()

	if err := a.stack.SetZIndex(id, RaisedZIndex); err != nil {
		return err
	}

	a.active = id
	a.bus.Publish(PopupRequested{EntityID: id})

	return nil
}

// Clear drops the highlight and closes any popup.
func (a *ActiveController) Clear() {
	a.active = ""
	a.stack.ResetZIndex()
	a.bus.Publish(PopupCloseRequested{})
}
