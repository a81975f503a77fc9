/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package unload releases the views of background slots after an idle delay.
package unload

import (
	"log/slog"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	applog "multiassistant/internal/log"
	"multiassistant/internal/slots"
)

// Unloader releases a slot's view, applying its own active/persisted guard.
type Unloader interface {
	Unload(slot int) bool
}

type entry struct {
	timer *clock.Timer
	gen   uint64
	due   time.Time
}

// Scheduler keeps at most one pending unload per slot. All methods must run on the event loop;
// expired timers hand their work back through dispatch.
type Scheduler struct {
	clk      clock.Clock
	reg      *slots.Registry
	target   Unloader
	dispatch func(func()) bool
	pending  map[int]*entry
	gen      uint64
	fired    int
	log      *slog.Logger
}

// New returns an idle scheduler. A nil clk uses the wall clock; a nil dispatch runs expiries on
// the timer goroutine, which is only safe when nothing else touches the scheduler.
func New(reg *slots.Registry, target Unloader, clk clock.Clock, dispatch func(func()) bool) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clk:      clk,
		reg:      reg,
		target:   target,
		dispatch: dispatch,
		pending:  make(map[int]*entry),
		log:      applog.WithComponent("unload"),
	}
}

// Arm schedules an unload of slot after delay, replacing any pending one. It does nothing when
// delay is not positive or the slot is disabled or persisted, and reports whether a timer was set.
func (s *Scheduler) Arm(slot int, delay time.Duration) bool {
	if delay <= 0 || !s.reg.Enabled(slot) || s.reg.Persisted(slot) {
		return false
	}
	s.Disarm(slot)
	s.gen++
	gen := s.gen
	e := &entry{gen: gen, due: s.clk.Now().Add(delay)}
	e.timer = s.clk.AfterFunc(delay, func() { s.expired(slot, gen) })
	s.pending[slot] = e
	s.log.Debug("unload armed", slog.Int("slot", slot), slog.Duration("delay", delay))
	return true
}

func (s *Scheduler) expired(slot int, gen uint64) {
	if s.dispatch == nil {
		s.fire(slot, gen)
		return
	}
	s.dispatch(func() { s.fire(slot, gen) })
}

// fire runs on the loop. A generation mismatch means the timer was disarmed or re-armed after it
// expired but before this task ran.
func (s *Scheduler) fire(slot int, gen uint64) {
	e, ok := s.pending[slot]
	if !ok || e.gen != gen {
		s.log.Debug("stale unload dropped", slog.Int("slot", slot))
		return
	}
	delete(s.pending, slot)
	s.fired++
	if !s.target.Unload(slot) {
		s.log.Debug("unload fired but slot kept", slog.Int("slot", slot))
	}
}

// Disarm cancels the pending unload of slot and reports whether one existed.
func (s *Scheduler) Disarm(slot int) bool {
	e, ok := s.pending[slot]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.pending, slot)
	s.log.Debug("unload disarmed", slog.Int("slot", slot))
	return true
}

// DisarmPersisted cancels the pending unloads of every persisted slot and returns how many were cancelled.
func (s *Scheduler) DisarmPersisted() int {
	n := 0
	for _, slot := range s.PendingSlots() {
		if s.reg.Persisted(slot) && s.Disarm(slot) {
			n++
		}
	}
	return n
}

// DisarmEvery cancels all pending unloads.
func (s *Scheduler) DisarmEvery() int {
	n := 0
	for _, slot := range s.PendingSlots() {
		if s.Disarm(slot) {
			n++
		}
	}
	return n
}

// Pending reports when the unload of slot is due.
func (s *Scheduler) Pending(slot int) (time.Time, bool) {
	e, ok := s.pending[slot]
	if !ok {
		return time.Time{}, false
	}
	return e.due, true
}

// PendingSlots lists slots with a pending unload in index order.
func (s *Scheduler) PendingSlots() []int {
	out := make([]int, 0, len(s.pending))
	for slot := range s.pending {
		out = append(out, slot)
	}
	sort.Ints(out)
	return out
}

// Fired counts timers that reached the loop while still current.
func (s *Scheduler) Fired() int { return s.fired }
