// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)

	return redis.NewIntResult(1, f.err)
}

func TestRedisNotify(t *testing.T) {
	pub := &fakePublisher{}
	n := NewRedis(pub, "")
	n.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, n.Notify(context.Background(), "save", map[string]string{"entityId": "42"}))
	assert.Equal(t, DefaultChannel, pub.channel)

	var got Action
	require.NoError(t, json.Unmarshal(pub.message, &got))
	assert.Equal(t, Action{Action: "save", Payload: map[string]string{"entityId": "42"}, At: n.now()}, got)
}

func TestRedisNotifyError(t *testing.T) {
	n := NewRedis(&fakePublisher{err: errors.New("connection refused")}, "custom")

	err := n.Notify(context.Background(), "message", nil)
	assert.ErrorContains(t, err, "publishing message action")
}

func TestLogNotify(t *testing.T) {
	var buf bytes.Buffer

	n := NewLog(zerolog.New(&buf))
	require.NoError(t, n.Notify(context.Background(), "message", map[string]string{"entityId": "7", "title": "Duplex"}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "message", line["action"])
	assert.Equal(t, "7", line["entityId"])
	assert.Equal(t, "popup action", line["message"])
}

func TestMulti(t *testing.T) {
	var buf bytes.Buffer

	failing := NewRedis(&fakePublisher{err: errors.New("down")}, "")
	m := Multi{failing, NewLog(zerolog.New(&buf))}

	err := m.Notify(context.Background(), "save", map[string]string{"entityId": "1"})
	assert.Error(t, err)
	assert.NotEmpty(t, buf.String())
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "http://not-redis")
	assert.ErrorContains(t, err, "parsing redis url")
}
