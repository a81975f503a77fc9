/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package host assembles the slot registry, view lifecycle, unload scheduler and tab switcher on one
// event loop and exposes them to the UI and CLI. Every exported method is safe from any goroutine
// except the loop itself.
package host

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/benbjohnson/clock"

	"multiassistant/internal/appearance"
	"multiassistant/internal/lifecycle"
	applog "multiassistant/internal/log"
	"multiassistant/internal/loop"
	"multiassistant/internal/slots"
	"multiassistant/internal/state"
	"multiassistant/internal/switcher"
	"multiassistant/internal/unload"
)

// Store persists zoom, the active slot and the lifecycle journal. *state.Store implements it.
type Store interface {
	SaveZoom(ctx context.Context, slot int, zoom float64) error
	LoadZooms(ctx context.Context) (map[int]float64, error)
	SaveActive(ctx context.Context, slot int) error
	LoadActive(ctx context.Context) (int, bool, error)
	RecordEvent(ctx context.Context, ev state.Event) error
	RecentEvents(ctx context.Context, limit int) ([]state.Event, error)
}

// Options configures New. Engine is required.
type Options struct {
	Slots     int
	Clock     clock.Clock
	Engine    lifecycle.Engine
	Surface   lifecycle.Surface
	Focuser   switcher.Focuser
	Store     Store
	QueueSize int
	Logger    *slog.Logger
}

// Settings is everything the settings surface can change at once.
type Settings struct {
	Slots              []slots.Config
	UnloadDelay        time.Duration
	CyclePersistedOnly bool
	Appearance         appearance.Settings
}

// Host owns the core components. Fields are only touched on the loop goroutine.
type Host struct {
	loop   *loop.Loop
	reg    *slots.Registry
	views  *lifecycle.Manager
	sched  *unload.Scheduler
	sw     *switcher.Switcher
	store  Store
	focus  switcher.Focuser
	look   appearance.Settings
	counts counters
	log    *slog.Logger
}

type counters struct {
	switches int
	unloads  int
	zooms    int
	reloads  int
}

const storeTimeout = 2 * time.Second

// ErrNoEngine is returned by New without an engine.
var ErrNoEngine = errors.New("host: engine is required")

// New builds a host. Nothing runs until Run is called.
func New(opts Options) (*Host, error) {
	if opts.Engine == nil {
		return nil, ErrNoEngine
	}
	l := opts.Logger
	if l == nil {
		l = applog.WithComponent("host")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	h := &Host{
		loop:  loop.New(opts.QueueSize),
		reg:   slots.NewRegistry(opts.Slots),
		store: opts.Store,
		focus: opts.Focuser,
		look:  appearance.Defaults(),
		log:   l,
	}
	h.views = lifecycle.New(h.reg, lifecycle.Config{
		Engine:       opts.Engine,
		Surface:      opts.Surface,
		Dispatch:     h.loop.Post,
		OnFinished:   h.navigationFinished,
		OnTerminated: h.terminated,
		Logger:       opts.Logger,
	})
	h.sched = unload.New(h.reg, unloader{h}, opts.Clock, h.loop.Post)
	h.sw = switcher.New(h.reg, h.views, h.sched, opts.Surface, focuser{h})
	return h, nil
}

// Run drives the event loop until ctx is done or Shutdown is called.
func (h *Host) Run(ctx context.Context) error { return h.loop.Run(ctx) }

// Done is closed once the loop has stopped.
func (h *Host) Done() <-chan struct{} { return h.loop.Done() }

// do runs fn on the loop and returns its error.
func (h *Host) do(fn func() error) error {
	var err error
	if lerr := h.loop.Do(func() { err = fn() }); lerr != nil {
		return lerr
	}
	return err
}

// unloader journals idle unloads on their way to the lifecycle manager.
type unloader struct{ h *Host }

func (u unloader) Unload(slot int) bool {
	if !u.h.views.Unload(slot) {
		return false
	}
	u.h.counts.unloads++
	u.h.journal(slot, "unloaded", "idle")
	return true
}

// focuser forwards focus requests to the platform and focuses the prompt field inside the page.
type focuser struct{ h *Host }

func (f focuser) RequestFocus(slot int) {
	if f.h.focus != nil {
		f.h.focus.RequestFocus(slot)
	}
	if v := f.h.views.View(slot); v != nil {
		if err := v.Eval(appearance.FocusScript()); err != nil {
			f.h.log.Debug("focus script failed", slog.Int("slot", slot), slog.Any("err", err))
		}
	}
}

func (h *Host) navigationFinished(slot int, refocus bool) {
	if v := h.views.View(slot); v != nil && h.look.Bold {
		_ = v.Eval(appearance.BoldScript(true))
	}
	if refocus {
		focuser{h}.RequestFocus(slot)
	}
}

func (h *Host) terminated(slot int, reloaded bool) {
	detail := "released"
	if reloaded {
		detail = "reloaded"
	}
	h.journal(slot, "terminated", detail)
}

func (h *Host) journal(slot int, kind, detail string) {
	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.RecordEvent(ctx, state.Event{Slot: slot, Kind: kind, Detail: detail}); err != nil {
		h.log.Warn("journal write failed", slog.Any("err", err))
	}
}

func (h *Host) saveActive() {
	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.SaveActive(ctx, h.reg.Active()); err != nil {
		h.log.Warn("save active slot failed", slog.Any("err", err))
	}
}

// Start applies the initial settings, restores zoom and the last active slot from the store and
// presents the active slot. Invalid slot URLs are reported but do not stop the start.
func (h *Host) Start(s Settings) error {
	return h.do(func() error {
		_, cfgErr := h.reg.Configure(s.Slots)
		if cfgErr != nil {
			h.log.Warn("slot configuration rejected values", slog.Any("err", cfgErr))
		}
		h.restore()
		h.sw.SetUnloadDelay(s.UnloadDelay)
		h.sw.SetCycleFilter(s.CyclePersistedOnly)
		h.look = s.Appearance.Normalize()

		target, ok := h.reg.Active(), h.reg.Enabled(h.reg.Active())
		if h.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			if i, found, err := h.store.LoadActive(ctx); err == nil && found && h.reg.Enabled(i) {
				target, ok = i, true
			}
			cancel()
		}
		if !ok {
			target, ok = h.reg.FirstEnabled()
		}
		if !ok {
			h.log.Info("no slot enabled")
			return cfgErr
		}
		if err := h.sw.Present(target); err != nil {
			return errors.Join(cfgErr, err)
		}
		h.saveActive()
		h.log.Info("started", slog.Int("active", target))
		return cfgErr
	})
}

func (h *Host) restore() {
	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	zooms, err := h.store.LoadZooms(ctx)
	if err != nil {
		h.log.Warn("load zoom failed", slog.Any("err", err))
		return
	}
	for slot, z := range zooms {
		_, _ = h.reg.SetZoom(slot, z)
	}
}

// Apply pushes a complete settings change.
func (h *Host) Apply(s Settings) error {
	return h.do(func() error {
		err := h.configure(s.Slots)
		h.setUnloadDelay(s.UnloadDelay)
		h.sw.SetCycleFilter(s.CyclePersistedOnly)
		h.setAppearance(s.Appearance)
		return err
	})
}

// Configure replaces the slot configuration. Disabled slots lose their view even when persisted,
// newly persisted slots lose their pending unload, loaded slots follow URL changes and a disabled
// active slot hands over to the first enabled one. An active slot that is enabled again is shown again.
func (h *Host) Configure(cfgs []slots.Config) error {
	return h.do(func() error { return h.configure(cfgs) })
}

func (h *Host) configure(cfgs []slots.Config) error {
	ch, err := h.reg.Configure(cfgs)
	if ch.Empty() {
		h.log.Debug("slot configuration unchanged")
	}
	for _, i := range ch.Disabled {
		h.sched.Disarm(i)
		if h.views.Evict(i) {
			h.journal(i, "evicted", "disabled")
		}
	}
	for _, i := range ch.Persisted {
		h.sched.Disarm(i)
	}
	// a loaded background slot that lost its persist flag starts idling now
	for _, i := range ch.Unpersisted {
		if i != h.reg.Active() && h.views.Loaded(i) {
			h.sched.Arm(i, h.sw.UnloadDelay())
		}
	}
	for _, i := range ch.URLChanged {
		if nerr := h.views.Navigate(i); nerr != nil {
			h.log.Warn("navigate after url change failed", slog.Int("slot", i), slog.Any("err", nerr))
		}
	}
	target, present := h.reg.Active(), false
	switch {
	case !h.reg.Enabled(target):
		target, present = h.reg.FirstEnabled()
	case slices.Contains(ch.Enabled, target), !h.views.Loaded(target):
		// the active index survived while its slot was off, or nothing was enabled at start
		present = true
	}
	if present {
		if perr := h.sw.Present(target); perr != nil {
			err = errors.Join(err, perr)
		} else {
			h.saveActive()
		}
	}
	return err
}

// SetUnloadDelay changes the idle delay. Zero or negative means never and cancels pending unloads.
func (h *Host) SetUnloadDelay(d time.Duration) {
	_ = h.do(func() error { h.setUnloadDelay(d); return nil })
}

func (h *Host) setUnloadDelay(d time.Duration) {
	h.sw.SetUnloadDelay(d)
}

// SetCycleFilter restricts Cycle to persisted slots.
func (h *Host) SetCycleFilter(persistOnly bool) {
	_ = h.do(func() error { h.sw.SetCycleFilter(persistOnly); return nil })
}

// SetAppearance stores the look and toggles forced bold text in every live view.
func (h *Host) SetAppearance(s appearance.Settings) {
	_ = h.do(func() error { h.setAppearance(s); return nil })
}

func (h *Host) setAppearance(s appearance.Settings) {
	s = s.Normalize()
	changed := s.Bold != h.look.Bold
	h.look = s
	if changed {
		if err := h.views.Eval(appearance.BoldScript(s.Bold)); err != nil {
			h.log.Debug("bold script failed", slog.Any("err", err))
		}
	}
}

// Appearance returns the current look.
func (h *Host) Appearance() appearance.Settings {
	var s appearance.Settings
	_ = h.do(func() error { s = h.look; return nil })
	return s
}

// SwitchTo makes slot the active slot.
func (h *Host) SwitchTo(slot int) error {
	return h.do(func() error { return h.switchTo(slot) })
}

func (h *Host) switchTo(slot int) error {
	prev := h.reg.Active()
	if err := h.sw.SwitchTo(slot); err != nil {
		return err
	}
	if prev != slot {
		h.counts.switches++
		h.saveActive()
	}
	return nil
}

// Cycle moves to the next slot using the configured filter and returns the new active slot.
func (h *Host) Cycle() (int, error) {
	var next int
	err := h.do(func() error {
		var err error
		next, err = h.cycle(h.sw.CycleFilter())
		return err
	})
	return next, err
}

// CycleToNext moves to the next enabled slot, optionally only among persisted ones.
func (h *Host) CycleToNext(persistOnly bool) (int, error) {
	var next int
	err := h.do(func() error {
		var err error
		next, err = h.cycle(persistOnly)
		return err
	})
	return next, err
}

func (h *Host) cycle(persistOnly bool) (int, error) {
	prev := h.reg.Active()
	next, err := h.sw.CycleToNext(persistOnly)
	if err == nil && next != prev {
		h.counts.switches++
		h.saveActive()
	}
	return next, err
}

// ZoomIn, ZoomOut and ActualSize change the zoom of the active slot and return the new factor.
func (h *Host) ZoomIn() (float64, error)  { return h.zoomBy(slots.ZoomStep) }
func (h *Host) ZoomOut() (float64, error) { return h.zoomBy(-slots.ZoomStep) }
func (h *Host) ActualSize() (float64, error) {
	var z float64
	err := h.do(func() error {
		var err error
		z, err = h.setZoom(h.reg.Active(), slots.DefaultZoom)
		return err
	})
	return z, err
}

func (h *Host) zoomBy(delta float64) (float64, error) {
	var z float64
	err := h.do(func() error {
		cur, err := h.reg.Zoom(h.reg.Active())
		if err != nil {
			return err
		}
		z, err = h.setZoom(h.reg.Active(), slots.StepZoom(cur, delta))
		return err
	})
	return z, err
}

// SetZoom stores a zoom factor for slot, clamped, applies it if the slot is live and persists it.
func (h *Host) SetZoom(slot int, v float64) (float64, error) {
	var z float64
	err := h.do(func() error {
		var err error
		z, err = h.setZoom(slot, v)
		return err
	})
	return z, err
}

func (h *Host) setZoom(slot int, v float64) (float64, error) {
	z, err := h.reg.SetZoom(slot, v)
	if err != nil {
		return 0, err
	}
	h.counts.zooms++
	if err := h.views.ApplyZoom(slot); err != nil {
		h.log.Debug("apply zoom failed", slog.Int("slot", slot), slog.Any("err", err))
	}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := h.store.SaveZoom(ctx, slot, z); err != nil {
			h.log.Warn("save zoom failed", slog.Int("slot", slot), slog.Any("err", err))
		}
	}
	return z, nil
}

// Refresh reloads the active slot. Focus returns to the page once the reload finished.
func (h *Host) Refresh() error {
	return h.do(func() error {
		h.counts.reloads++
		return h.views.Reload(h.reg.Active())
	})
}

// Shutdown cancels pending unloads, saves the active slot, releases every view and stops the loop.
func (h *Host) Shutdown() error {
	err := h.do(func() error {
		h.sched.DisarmEvery()
		h.saveActive()
		return h.views.Close()
	})
	h.loop.Stop()
	if errors.Is(err, loop.ErrStopped) {
		return nil
	}
	return err
}
