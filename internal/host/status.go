/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package host

import (
	"context"
	"fmt"
	"strings"
	"time"

	"multiassistant/internal/lifecycle"
	"multiassistant/internal/shortcut"
	"multiassistant/internal/state"
)

// SlotStatus describes one slot at a point in time.
type SlotStatus struct {
	Index    int
	Label    string
	URL      string
	Enabled  bool
	Persist  bool
	Active   bool
	Loaded   bool
	Zoom     float64
	UnloadAt time.Time // zero when no unload is pending
}

// Status is a snapshot of the core.
type Status struct {
	Active             int
	Slots              []SlotStatus
	UnloadDelay        time.Duration
	CyclePersistedOnly bool
	Views              lifecycle.Stats
}

// Status returns a snapshot taken on the loop.
func (h *Host) Status() (Status, error) {
	var st Status
	err := h.do(func() error {
		st = h.status()
		return nil
	})
	return st, err
}

func (h *Host) status() Status {
	st := Status{
		Active:             h.reg.Active(),
		UnloadDelay:        h.sw.UnloadDelay(),
		CyclePersistedOnly: h.sw.CycleFilter(),
		Views:              h.views.Stats(),
	}
	for _, s := range h.reg.Slots() {
		ss := SlotStatus{
			Index:   s.Index,
			Label:   s.Label,
			URL:     s.URL,
			Enabled: s.Enabled,
			Persist: s.Persist,
			Active:  s.Index == st.Active,
			Loaded:  h.views.Loaded(s.Index),
			Zoom:    s.Zoom,
		}
		if due, ok := h.sched.Pending(s.Index); ok {
			ss.UnloadAt = due
		}
		st.Slots = append(st.Slots, ss)
	}
	return st
}

// Describe renders a one-line summary used in crash reports. It reads state without the loop, so it
// is only meant for a process that is already going down.
func (h *Host) Describe() string {
	var live []string
	for _, i := range h.views.LoadedSlots() {
		live = append(live, fmt.Sprint(i))
	}
	return fmt.Sprintf("active=%d live=[%s]", h.reg.Active(), strings.Join(live, " "))
}

// Counters returns lifecycle counters for the telemetry summary.
func (h *Host) Counters() map[string]int {
	var out map[string]int
	_ = h.do(func() error {
		vs := h.views.Stats()
		out = map[string]int{
			"switches":        h.counts.switches,
			"idle_unloads":    h.counts.unloads,
			"zoom_changes":    h.counts.zooms,
			"reloads":         h.counts.reloads,
			"views_created":   vs.Created,
			"views_evicted":   vs.Evicted,
			"terminations":    vs.Terminated,
			"create_failures": vs.CreateFailed,
		}
		return nil
	})
	return out
}

// HandleKey runs an in-window key press. ActionSettings is returned for the caller to handle.
func (h *Host) HandleKey(chars string, mods shortcut.Modifier, sheetOpen bool) (shortcut.KeyResult, error) {
	res := shortcut.Translate(chars, mods, sheetOpen)
	var err error
	switch res.Action {
	case shortcut.ActionCycle:
		_, err = h.Cycle()
	case shortcut.ActionRefresh:
		err = h.Refresh()
	case shortcut.ActionZoomIn:
		_, err = h.ZoomIn()
	case shortcut.ActionZoomOut:
		_, err = h.ZoomOut()
	case shortcut.ActionActualSize:
		_, err = h.ActualSize()
	case shortcut.ActionSelectSlot:
		err = h.SwitchTo(res.Slot)
	}
	return res, err
}

// Journal returns up to limit lifecycle journal entries, newest first. Without a store it is empty.
func (h *Host) Journal(limit int) ([]state.Event, error) {
	if h.store == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return h.store.RecentEvents(ctx, limit)
}
