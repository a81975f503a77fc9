/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package switcher moves the active slot: it orders the load, timer and visibility steps of a tab change.
package switcher

import (
	"fmt"
	"log/slog"
	"time"

	"multiassistant/internal/lifecycle"
	applog "multiassistant/internal/log"
	"multiassistant/internal/slots"
)

// Focuser gives keyboard focus to the view of a slot.
type Focuser interface {
	RequestFocus(slot int)
}

// Views is the part of lifecycle.Manager the switcher drives.
type Views interface {
	EnsureLoaded(slot int) (lifecycle.View, error)
	ApplyZoom(slot int) error
}

// Timers is the part of unload.Scheduler the switcher drives.
type Timers interface {
	Arm(slot int, delay time.Duration) bool
	Disarm(slot int) bool
	DisarmEvery() int
}

// Switcher must be used from the event loop.
type Switcher struct {
	reg         *slots.Registry
	views       Views
	timers      Timers
	surface     lifecycle.Surface
	focus       Focuser
	delay       time.Duration
	persistOnly bool
	log         *slog.Logger
}

// New returns a switcher with unloading disabled until SetUnloadDelay is called.
// surface and focus may be nil.
func New(reg *slots.Registry, views Views, timers Timers, surface lifecycle.Surface, focus Focuser) *Switcher {
	return &Switcher{
		reg:     reg,
		views:   views,
		timers:  timers,
		surface: surface,
		focus:   focus,
		log:     applog.WithComponent("switcher"),
	}
}

// SetUnloadDelay sets the idle delay used for slots that lose focus. A non-positive delay means
// never: every pending unload is cancelled. Timers already running keep their deadline.
func (s *Switcher) SetUnloadDelay(d time.Duration) {
	if d <= 0 {
		d = 0
		if n := s.timers.DisarmEvery(); n > 0 {
			s.log.Info("pending unloads cancelled", slog.Int("count", n))
		}
	}
	s.delay = d
}

// UnloadDelay returns the current idle delay; zero means never.
func (s *Switcher) UnloadDelay() time.Duration { return s.delay }

// SetCycleFilter restricts Cycle to persisted slots.
func (s *Switcher) SetCycleFilter(persistOnly bool) { s.persistOnly = persistOnly }

// CycleFilter reports whether Cycle is restricted to persisted slots.
func (s *Switcher) CycleFilter() bool { return s.persistOnly }

// SwitchTo makes target the active slot. An invalid target is rejected before anything changes.
// If the target view cannot be created the active slot stays where it was.
func (s *Switcher) SwitchTo(target int) error {
	if !s.reg.Enabled(target) {
		return fmt.Errorf("switch to slot %d: %w", target, slots.ErrInvalidSlot)
	}
	old := s.reg.Active()
	if target == old {
		return nil
	}
	s.timers.Arm(old, s.delay)
	s.timers.Disarm(target)
	if _, err := s.views.EnsureLoaded(target); err != nil {
		s.timers.Disarm(old)
		s.log.Error("switch aborted", slog.Int("from", old), slog.Int("to", target), slog.Any("err", err))
		return fmt.Errorf("switch to slot %d: %w", target, err)
	}
	if _, err := s.reg.SetActive(target); err != nil {
		return err
	}
	s.show(old, target)
	s.log.Debug("switched", slog.Int("from", old), slog.Int("to", target))
	return nil
}

// Present forces slot to be the active, visible slot without arming the previous one. It is used at
// startup and when configuration removed the active slot.
func (s *Switcher) Present(slot int) error {
	if !s.reg.Enabled(slot) {
		return fmt.Errorf("present slot %d: %w", slot, slots.ErrInvalidSlot)
	}
	s.timers.Disarm(slot)
	if _, err := s.views.EnsureLoaded(slot); err != nil {
		return fmt.Errorf("present slot %d: %w", slot, err)
	}
	prev, err := s.reg.SetActive(slot)
	if err != nil {
		return err
	}
	s.show(prev, slot)
	return nil
}

func (s *Switcher) show(prev, next int) {
	if s.surface != nil {
		if prev != next {
			s.surface.SetVisible(prev, false)
		}
		s.surface.SetVisible(next, true)
	}
	if err := s.views.ApplyZoom(next); err != nil {
		s.log.Debug("apply zoom failed", slog.Int("slot", next), slog.Any("err", err))
	}
	if s.focus != nil {
		s.focus.RequestFocus(next)
	}
}

// CycleToNext switches to the next enabled slot after the active one, wrapping around. With
// persistOnly only persisted slots count. Fewer than two candidates is a no-op; an active slot that
// is not a candidate moves to the first candidate. It returns the resulting active slot.
func (s *Switcher) CycleToNext(persistOnly bool) (int, error) {
	eligible := s.reg.Eligible(persistOnly)
	cur := s.reg.Active()
	if len(eligible) < 2 {
		return cur, nil
	}
	next := eligible[0]
	for pos, idx := range eligible {
		if idx == cur {
			next = eligible[(pos+1)%len(eligible)]
			break
		}
	}
	if err := s.SwitchTo(next); err != nil {
		return s.reg.Active(), err
	}
	return next, nil
}

// Cycle is CycleToNext with the configured filter.
func (s *Switcher) Cycle() (int, error) { return s.CycleToNext(s.persistOnly) }
