/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package slots holds the fixed set of tab positions ("slots") and the index of the one on screen.
// It is a plain state container: it never creates or releases live views, it only reports which
// slots changed so the caller can act on them.
package slots

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultCount is the number of tab positions the shell offers.
	DefaultCount = 10

	MinZoom     = 0.5
	MaxZoom     = 3.0
	DefaultZoom = 1.0
	ZoomStep    = 0.1
)

var (
	// ErrInvalidSlot is returned for an index out of range or a disabled slot where an enabled one is required.
	ErrInvalidSlot = errors.New("invalid slot")
	// ErrInvalidURL is returned when a configured URL does not parse or uses a scheme other than http/https.
	ErrInvalidURL = errors.New("invalid url")
)

// Config is the user-editable part of a slot.
type Config struct {
	URL     string
	Label   string
	Enabled bool
	Persist bool
}

// Slot is a read-only copy of a slot's state.
type Slot struct {
	Index int
	Config
	Zoom float64
}

// Changes reports what a Configure call altered.
type Changes struct {
	// Disabled lists slots whose enabled flag flipped to false. Their live views must be released.
	Disabled []int
	// Enabled lists slots whose enabled flag flipped to true.
	Enabled []int
	// Persisted lists slots whose persist flag flipped to true. Pending unloads must be cancelled.
	Persisted []int
	// Unpersisted lists slots whose persist flag flipped to false.
	Unpersisted []int
	// URLChanged lists slots that now point at a different URL.
	URLChanged []int
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Disabled) == 0 && len(c.Enabled) == 0 && len(c.Persisted) == 0 &&
		len(c.Unpersisted) == 0 && len(c.URLChanged) == 0
}

// Registry is the single owner of slot configuration, zoom and the active index.
// It is not safe for concurrent use; callers serialise access on one event loop.
type Registry struct {
	slots  []Slot
	active int
}

// NewRegistry returns a registry with n disabled, empty slots at default zoom.
func NewRegistry(n int) *Registry {
	if n <= 0 {
		n = DefaultCount
	}
	r := &Registry{slots: make([]Slot, n)}
	for i := range r.slots {
		r.slots[i] = Slot{Index: i, Zoom: DefaultZoom}
	}
	return r
}

// Len returns the fixed number of slots.
func (r *Registry) Len() int { return len(r.slots) }

// Active returns the index of the slot on screen.
func (r *Registry) Active() int { return r.active }

func (r *Registry) inRange(i int) bool { return i >= 0 && i < len(r.slots) }

func invalid(i int) error { return fmt.Errorf("slot %d: %w", i, ErrInvalidSlot) }

// Slot returns a copy of slot i.
func (r *Registry) Slot(i int) (Slot, error) {
	if !r.inRange(i) {
		return Slot{}, invalid(i)
	}
	return r.slots[i], nil
}

// Slots returns a copy of all slots in index order.
func (r *Registry) Slots() []Slot {
	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

// Enabled reports whether i is in range and enabled.
func (r *Registry) Enabled(i int) bool { return r.inRange(i) && r.slots[i].Enabled }

// Persisted reports whether i is in range and persisted.
func (r *Registry) Persisted(i int) bool { return r.inRange(i) && r.slots[i].Persist }

// URL returns the configured URL of slot i, or "" when out of range.
func (r *Registry) URL(i int) string {
	if !r.inRange(i) {
		return ""
	}
	return r.slots[i].URL
}

// Configure replaces URL, label, enabled and persist for every slot. Entries beyond cfgs are disabled;
// entries beyond Len are ignored. A URL that fails validation is rejected and the slot keeps its
// previous URL while its other fields still apply; the returned error joins every rejection.
// Zoom and the active index are untouched.
func (r *Registry) Configure(cfgs []Config) (Changes, error) {
	var ch Changes
	var errs []error
	for i := range r.slots {
		var next Config
		if i < len(cfgs) {
			next = cfgs[i]
		}
		cur := &r.slots[i]
		u, err := NormalizeURL(next.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", i, err))
			u = cur.URL
		}
		if u != cur.URL {
			ch.URLChanged = append(ch.URLChanged, i)
		}
		switch {
		case cur.Enabled && !next.Enabled:
			ch.Disabled = append(ch.Disabled, i)
		case !cur.Enabled && next.Enabled:
			ch.Enabled = append(ch.Enabled, i)
		}
		switch {
		case !cur.Persist && next.Persist:
			ch.Persisted = append(ch.Persisted, i)
		case cur.Persist && !next.Persist:
			ch.Unpersisted = append(ch.Unpersisted, i)
		}
		cur.URL = u
		cur.Label = next.Label
		cur.Enabled = next.Enabled
		cur.Persist = next.Persist
	}
	return ch, errors.Join(errs...)
}

// SetActive makes i the active slot and returns the previous active index.
func (r *Registry) SetActive(i int) (int, error) {
	if !r.Enabled(i) {
		return r.active, invalid(i)
	}
	prev := r.active
	r.active = i
	return prev, nil
}

// Zoom returns the stored zoom factor of slot i.
func (r *Registry) Zoom(i int) (float64, error) {
	if !r.inRange(i) {
		return 0, invalid(i)
	}
	return r.slots[i].Zoom, nil
}

// SetZoom stores v clamped to [MinZoom, MaxZoom] and returns the stored value.
func (r *Registry) SetZoom(i int, v float64) (float64, error) {
	if !r.inRange(i) {
		return 0, invalid(i)
	}
	v = ClampZoom(v)
	r.slots[i].Zoom = v
	return v, nil
}

// FirstEnabled returns the lowest enabled index.
func (r *Registry) FirstEnabled() (int, bool) {
	for i := range r.slots {
		if r.slots[i].Enabled {
			return i, true
		}
	}
	return 0, false
}

// Eligible returns the enabled slots in index order, restricted to persisted ones when persistOnly is set.
func (r *Registry) Eligible(persistOnly bool) []int {
	var out []int
	for i := range r.slots {
		s := r.slots[i]
		if !s.Enabled || (persistOnly && !s.Persist) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// ClampZoom limits v to [MinZoom, MaxZoom]. NaN maps to DefaultZoom.
func ClampZoom(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultZoom
	}
	return math.Max(MinZoom, math.Min(MaxZoom, v))
}

// StepZoom adds delta to cur, rounds away float noise from repeated steps and clamps the result.
func StepZoom(cur, delta float64) float64 {
	return ClampZoom(math.Round((cur+delta)*100) / 100)
}
