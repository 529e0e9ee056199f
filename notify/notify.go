// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify delivers popup actions such as "save" or "message" to the
// rest of the platform.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/propmap/propmap/mapview"
)

// DefaultChannel is the Redis channel popup actions are published on.
const DefaultChannel = "propmap:actions"

// Action is the message published for one popup action.
type Action struct {
	Action  string            `json:"action"`
	Payload map[string]string `json:"payload"`
	At      time.Time         `json:"at"`
}

// Log writes actions to the log only.
type Log struct {
	log zerolog.Logger
}

// NewLog returns a notifier logging to log.
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

// Notify implements mapview.Notifier.
func (l *Log) Notify(_ context.Context, action string, payload map[string]string) error {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	ev := l.log.Info().Str("action", action)
	for _, k := range keys {
		ev = ev.Str(k, payload[k])
	}

	ev.Msg("popup action")

	return nil
}

// Publisher is the part of a Redis client used to publish.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes actions as JSON on a pub/sub channel.
type Redis struct {
	pub     Publisher
	channel string
	now     func() time.Time
}

// NewRedis returns a notifier publishing on channel.
func NewRedis(pub Publisher, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}

	return &Redis{pub: pub, channel: channel, now: time.Now}
}

// Notify implements mapview.Notifier.
func (r *Redis) Notify(ctx context.Context, action string, payload map[string]string) error {
	data, err := json.Marshal(Action{Action: action, Payload: payload, At: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding action: %w", err)
	}

	if err := r.pub.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing %s action: %w", action, err)
	}

	return nil
}

// Dial connects to the Redis server at url (redis://host:port/db).
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return client, nil
}

// Multi fans an action out to several notifiers.
type Multi []mapview.Notifier

// Notify implements mapview.Notifier. Every notifier is tried.
func (m Multi) Notify(ctx context.Context, action string, payload map[string]string) error {
	var errs []error

	for _, n := range m {
		if err := n.Notify(ctx, action, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
