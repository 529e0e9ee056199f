// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Scheduler defers work until the current task has finished.
type Scheduler interface {
	Defer(fn func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(fn func())

// Defer implements Scheduler.
func (f SchedulerFunc) Defer(fn func()) {
	f(fn)
}

// Loop runs tasks one at a time on a dedicated goroutine. All widget state
// is owned by that goroutine.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
	log    zerolog.Logger
}

// NewLoop starts a loop.
func NewLoop(log zerolog.Logger) *Loop {
	l := &Loop{done: make(chan struct{}), log: log}
	l.cond = sync.NewCond(&l.mu)

	go l.run()

	return l
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}

		if len(l.queue) == 0 {
			l.mu.Unlock()

			return
		}

		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Str("panic", fmt.Sprint(r)).Msg("map task panicked")
		}
	}()

	fn()
}

// Post queues fn behind every task already queued. It reports false once
// the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}

	l.queue = append(l.queue, fn)
	l.cond.Signal()

	return true
}

// Defer implements Scheduler.
func (l *Loop) Defer(fn func()) {
	l.Post(fn)
}

// Do runs fn on the loop and waits for it. It must not be called from a
// task running on the loop.
func (l *Loop) Do(fn func()) error {
	done := make(chan struct{})

	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}

	<-done

	return nil
}

// Close stops accepting tasks, runs what is queued and waits for the loop
// goroutine to exit.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()

	<-l.done
}
