/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package loop provides the single logical thread every slot mutation runs on.
// Timers, engine callbacks and UI input post closures; Run executes them one at a time in order.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	applog "multiassistant/internal/log"
)

// ErrStopped is returned by Do after the loop has exited.
var ErrStopped = errors.New("event loop stopped")

// Loop is a FIFO of closures drained by a single goroutine.
type Loop struct {
	queue   chan func()
	done    chan struct{}
	stop    sync.Once
	running sync.Mutex
	log     *slog.Logger
}

// New returns a loop with a queue of the given capacity (minimum 1).
func New(capacity int) *Loop {
	if capacity < 1 {
		capacity = 1
	}
	return &Loop{
		queue: make(chan func(), capacity),
		done:  make(chan struct{}),
		log:   applog.WithComponent("loop"),
	}
}

// Post enqueues fn. It blocks while the queue is full and returns false once the loop has stopped.
// Post is safe from any goroutine, including the loop itself as long as the queue has room.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do posts fn and waits until it has run. It must not be called from the loop goroutine.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// fn may still have run if it was dequeued before the stop
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Run drains the queue until ctx is cancelled or Stop is called. Queued closures that have not
// started when the loop stops are dropped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.TryLock() {
		return errors.New("event loop already running")
	}
	defer l.running.Unlock()
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("task panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// Stop ends Run. It is idempotent.
func (l *Loop) Stop() { l.stop.Do(func() { close(l.done) }) }

// Done is closed once the loop has been stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }
