/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package lifecycle owns the live view of every slot. It is the only place views are created or released.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"multiassistant/internal/appearance"
	applog "multiassistant/internal/log"
	"multiassistant/internal/slots"
)

// ErrResourceCreation wraps an engine failure to create a view. The slot stays unloaded.
var ErrResourceCreation = errors.New("view creation failed")

// Config wires a Manager to its collaborators.
type Config struct {
	Engine  Engine
	Surface Surface
	// Dispatch moves engine callbacks onto the event loop. Nil runs them inline (tests).
	Dispatch func(func()) bool
	// OnFinished is told when a navigation of the current view finished; refocus is set when the
	// slot is active and the load followed a reload or a crash.
	OnFinished func(slot int, refocus bool)
	// OnTerminated is told after a content process died and the view was released.
	OnTerminated func(slot int, reloaded bool)
	Logger       *slog.Logger
}

// Stats counts lifecycle transitions since start.
type Stats struct {
	Created      int
	Unloaded     int
	Evicted      int
	Terminated   int
	CreateFailed int
}

// Manager keeps one optional view per slot. Methods must be called on the event loop.
type Manager struct {
	reg       *slots.Registry
	cfg       Config
	views     []View
	ids       []string
	reloading []bool
	stats     Stats
	log       *slog.Logger
}

// New returns a Manager with no live views.
func New(reg *slots.Registry, cfg Config) *Manager {
	l := cfg.Logger
	if l == nil {
		l = applog.WithComponent("lifecycle")
	}
	n := reg.Len()
	return &Manager{
		reg:       reg,
		cfg:       cfg,
		views:     make([]View, n),
		ids:       make([]string, n),
		reloading: make([]bool, n),
		log:       l,
	}
}

func (m *Manager) inRange(i int) bool { return i >= 0 && i < len(m.views) }

// View returns the live view of slot i, or nil.
func (m *Manager) View(i int) View {
	if !m.inRange(i) {
		return nil
	}
	return m.views[i]
}

// Loaded reports whether slot i holds a live view.
func (m *Manager) Loaded(i int) bool { return m.View(i) != nil }

// LoadedSlots lists the slots holding a live view, in index order.
func (m *Manager) LoadedSlots() []int {
	var out []int
	for i, v := range m.views {
		if v != nil {
			out = append(out, i)
		}
	}
	return out
}

// Stats returns a copy of the transition counters.
func (m *Manager) Stats() Stats { return m.stats }

// EnsureLoaded returns the live view of slot i, creating and attaching one when absent.
// A disabled or out-of-range slot yields slots.ErrInvalidSlot.
func (m *Manager) EnsureLoaded(i int) (View, error) {
	if !m.reg.Enabled(i) {
		return nil, fmt.Errorf("ensure loaded slot %d: %w", i, slots.ErrInvalidSlot)
	}
	if v := m.views[i]; v != nil {
		return v, nil
	}
	s, _ := m.reg.Slot(i)
	id := uuid.NewString()
	v, err := m.cfg.Engine.Create(ViewSpec{Slot: i, ID: id, URL: s.LoadURL(), Notify: m.notify})
	if err == nil && v == nil {
		err = errors.New("engine returned no view")
	}
	if err != nil {
		m.stats.CreateFailed++
		m.log.Error("create view failed", slog.Int("slot", i), slog.Any("err", err))
		return nil, fmt.Errorf("%w: slot %d: %w", ErrResourceCreation, i, err)
	}
	m.views[i] = v
	m.ids[i] = id
	m.reloading[i] = false
	m.stats.Created++
	if m.cfg.Surface != nil {
		m.cfg.Surface.Attach(i, v)
	}
	m.log.Debug("view created", slog.Int("slot", i), slog.String("view", id), slog.String("url", s.LoadURL()))
	return v, nil
}

// Unload releases the view of slot i unless the slot is active or persisted.
// It reports whether a view was released.
func (m *Manager) Unload(i int) bool {
	if !m.inRange(i) || m.views[i] == nil {
		return false
	}
	if i == m.reg.Active() {
		m.log.Debug("unload skipped: slot is active", slog.Int("slot", i))
		return false
	}
	if m.reg.Persisted(i) {
		m.log.Debug("unload skipped: slot is persisted", slog.Int("slot", i))
		return false
	}
	m.release(i)
	m.stats.Unloaded++
	m.log.Info("view unloaded", slog.Int("slot", i))
	return true
}

// Evict releases the view of slot i without the active/persisted guard.
func (m *Manager) Evict(i int) bool {
	if !m.inRange(i) || m.views[i] == nil {
		return false
	}
	m.release(i)
	m.stats.Evicted++
	m.log.Info("view evicted", slog.Int("slot", i))
	return true
}

func (m *Manager) release(i int) {
	v := m.views[i]
	m.views[i] = nil
	m.ids[i] = ""
	m.reloading[i] = false
	if m.cfg.Surface != nil {
		m.cfg.Surface.Detach(i, v)
	}
	if err := v.Close(); err != nil {
		m.log.Warn("close view failed", slog.Int("slot", i), slog.Any("err", err))
	}
}

// Reload reloads the live view of slot i, or loads one if none exists. The next finished
// navigation of that view asks for focus again.
func (m *Manager) Reload(i int) error {
	if !m.inRange(i) {
		return fmt.Errorf("reload slot %d: %w", i, slots.ErrInvalidSlot)
	}
	v := m.views[i]
	if v == nil {
		_, err := m.EnsureLoaded(i)
		return err
	}
	m.reloading[i] = true
	if err := v.Reload(); err != nil {
		m.reloading[i] = false
		return fmt.Errorf("reload slot %d: %w", i, err)
	}
	return nil
}

// Navigate points the live view of slot i at the slot's current URL. Unloaded slots are left alone;
// they pick the URL up when created.
func (m *Manager) Navigate(i int) error {
	v := m.View(i)
	if v == nil {
		return nil
	}
	s, err := m.reg.Slot(i)
	if err != nil {
		return err
	}
	if err := v.Navigate(s.LoadURL()); err != nil {
		return fmt.Errorf("navigate slot %d: %w", i, err)
	}
	return nil
}

// ApplyZoom injects the stored zoom of slot i into its live view.
func (m *Manager) ApplyZoom(i int) error {
	v := m.View(i)
	if v == nil {
		return nil
	}
	z, err := m.reg.Zoom(i)
	if err != nil {
		return err
	}
	return v.Eval(appearance.ZoomScript(z))
}

// Eval runs script in every live view and returns the joined failures.
func (m *Manager) Eval(script string) error {
	var errs []error
	for i, v := range m.views {
		if v == nil {
			continue
		}
		if err := v.Eval(script); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) notify(ev Event) {
	if m.cfg.Dispatch == nil {
		m.HandleEvent(ev)
		return
	}
	if !m.cfg.Dispatch(func() { m.HandleEvent(ev) }) {
		m.log.Debug("event dropped: loop stopped", slog.String("kind", ev.Kind.String()), slog.Int("slot", ev.Slot))
	}
}

// HandleEvent applies an engine event. Events for a view that is no longer current are ignored.
func (m *Manager) HandleEvent(ev Event) {
	if !m.inRange(ev.Slot) || m.views[ev.Slot] == nil || m.ids[ev.Slot] != ev.ViewID {
		m.log.Debug("stale view event ignored", slog.String("kind", ev.Kind.String()), slog.Int("slot", ev.Slot))
		return
	}
	i := ev.Slot
	switch ev.Kind {
	case NavigationFinished:
		if err := m.ApplyZoom(i); err != nil {
			m.log.Debug("apply zoom failed", slog.Int("slot", i), slog.Any("err", err))
		}
		refocus := m.reloading[i] && i == m.reg.Active()
		m.reloading[i] = false
		if m.cfg.OnFinished != nil {
			m.cfg.OnFinished(i, refocus)
		}
	case NavigationFailed:
		m.reloading[i] = false
		m.log.Warn("navigation failed", slog.Int("slot", i), slog.Any("err", ev.Err))
	case ContentProcessTerminated:
		m.terminated(i)
	}
}

// terminated drops the dead view. Only the active slot is brought back; others reload lazily on
// their next activation.
func (m *Manager) terminated(i int) {
	m.stats.Terminated++
	m.log.Warn("content process terminated", slog.Int("slot", i))
	m.release(i)
	reloaded := false
	if i == m.reg.Active() && m.reg.Enabled(i) {
		if _, err := m.EnsureLoaded(i); err == nil {
			m.reloading[i] = true
			if m.cfg.Surface != nil {
				m.cfg.Surface.SetVisible(i, true)
			}
			reloaded = true
		}
	}
	if m.cfg.OnTerminated != nil {
		m.cfg.OnTerminated(i, reloaded)
	}
}

// Close releases every live view. Views are closed in parallel; the first close error is returned.
func (m *Manager) Close() error {
	var g errgroup.Group
	for i, v := range m.views {
		if v == nil {
			continue
		}
		m.views[i] = nil
		m.ids[i] = ""
		m.reloading[i] = false
		if m.cfg.Surface != nil {
			m.cfg.Surface.Detach(i, v)
		}
		m.stats.Evicted++
		g.Go(v.Close)
	}
	return g.Wait()
}
