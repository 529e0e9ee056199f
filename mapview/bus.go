// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import "sync"

// Event is a message exchanged between widget components.
type Event interface {
	event()
}

// MarkerClicked is published by a marker's native click listener.
type MarkerClicked struct{ EntityID string }

// MarkerRemoved is published after the reconciler destroys a marker.
type MarkerRemoved struct{ EntityID string }

// PopupRequested asks the popup manager to open over an entity's marker.
type PopupRequested struct{ EntityID string }

// PopupCloseRequested asks the popup manager to close.
type PopupCloseRequested struct{}

// PopupClosed is published once a popup has been torn down.
type PopupClosed struct{ EntityID string }

func (MarkerClicked) event()       {}
func (MarkerRemoved) event()       {}
func (PopupRequested) event()      {}
func (PopupCloseRequested) event() {}
func (PopupClosed) event()         {}

// Bus delivers events synchronously, in subscription order, on the caller's
// goroutine. Components talk to each other only through it.
type Bus struct {
	mu       sync.Mutex
	handlers []func(Event)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every published event.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = append(b.handlers, fn)
}

// Publish delivers ev to every handler. Handlers may publish further events.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := append([]func(Event){}, b.handlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
