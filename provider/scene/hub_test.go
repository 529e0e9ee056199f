// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package scene

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/propmap/propmap/provider"
	"github.com/propmap/propmap/spatial"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubReplaysSnapshotAndStreams(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	s := New(provider.KindOSM, hub.Sink())

	_, err := s.AddMarker(provider.MarkerOptions{ID: "1", Position: spatial.Point{Lat: 1, Lng: 1}})
	require.NoError(t, err)

	received := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, s.Snapshot(), func(b []byte) { received <- string(b) })
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var env struct {
		Type    string `json:"type"`
		Payload Op     `json:"payload"`
	}

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "op", env.Type)
	assert.Equal(t, OpMarkerAdd, env.Payload.Type)
	assert.Equal(t, "1", env.Payload.EntityID)

	require.Eventually(t, func() bool { return hub.Viewers() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.FlyTo(spatial.Point{Lat: 3, Lng: 3}, 11))

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, OpFlyTo, env.Payload.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"marker.click"}`)))

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"type":"marker.click"}`, msg)
	case <-time.After(time.Second):
		t.Fatal("viewer message not delivered")
	}
}
