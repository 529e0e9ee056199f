// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/propmap/propmap/mapview"
	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/provider/scene"
)

// Frame types exchanged with viewers.
const (
	FrameNavigate      = "navigate"
	FrameMarkerClick   = "marker.click"
	FrameMapEvent      = "map.event"
	FramePopupClick    = "popup.click"
	FrameProviderError = "provider.error"
)

const viewerCallTimeout = 10 * time.Second

// Navigator asks connected viewers to open a listing's detail page.
type Navigator struct {
	Hub *scene.Hub
}

var _ mapview.Navigator = Navigator{}

// GoToDetail implements mapview.Navigator.
func (n Navigator) GoToDetail(entityID string) error {
	n.Hub.Broadcast(scene.Envelope{
		Type: FrameNavigate,
		Payload: map[string]string{
			"entityId": entityID,
			"path":     "/listings/" + url.PathEscape(entityID),
		},
	})

	return nil
}

// inbound is a frame sent by a viewer.
type inbound struct {
	Type     string `json:"type"`
	EntityID string `json:"entityId,omitempty"`
	Event    string `json:"event,omitempty"`
	Zone     string `json:"zone,omitempty"`
	Status   int    `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) snapshot() []scene.Op {
	var ops []scene.Op

	_ = s.Widget().Interact(func(m provider.Map) {
		if sc, ok := m.(*scene.Scene); ok {
			ops = sc.Snapshot()
		}
	})

	return ops
}

func (s *Server) viewer(ctx *gin.Context) {
	if err := s.hub.Serve(ctx.Writer, ctx.Request, s.snapshot(), s.handleFrame); err != nil {
		s.log.Debug().Err(err).Msg("viewer upgrade failed")
	}
}

// handleFrame replays a viewer interaction into the widget.
func (s *Server) handleFrame(data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		s.log.Debug().Err(err).Msg("dropping malformed frame")

		return
	}

	w := s.Widget()

	var err error

	switch in.Type {
	case FrameMarkerClick:
		err = w.Interact(func(m provider.Map) {
			if sc, ok := m.(*scene.Scene); ok && !sc.ClickMarker(in.EntityID) {
				s.log.Debug().Str("entity", in.EntityID).Msg("click on unknown marker")
			}
		})
	case FrameMapEvent:
		err = w.Interact(func(m provider.Map) {
			if sc, ok := m.(*scene.Scene); ok {
				sc.Emit(provider.Event(in.Event))
			}
		})
	case FramePopupClick:
		ctx, cancel := context.WithTimeout(context.Background(), viewerCallTimeout)
		err = w.PopupClick(ctx, in.Zone)

		cancel()
	case FrameProviderError:
		loadErr := &provider.LoadError{
			Kind:       w.Status().Provider.Provider,
			StatusCode: in.Status,
			Message:    in.Message,
		}
		if w.ReportProviderError(loadErr) {
			s.log.Warn().Err(loadErr).Msg("provider rejected credential at runtime")
		}
	default:
		s.log.Debug().Str("type", in.Type).Msg("unknown frame")
	}

	if err != nil {
		s.log.Debug().Err(err).Str("type", in.Type).Msg("frame failed")
	}
}
