/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package engine provides view engines: an in-memory one for headless runs and tests, and one that
// runs every view as an external browser process.
package engine

import (
	"errors"
	"sort"
	"sync"

	"multiassistant/internal/lifecycle"
)

// Memory is an engine whose views only record what was asked of them. Navigations finish immediately.
type Memory struct {
	mu    sync.Mutex
	live  map[string]*MemoryView
	fail  error
	total int
}

// NewMemory returns an empty in-memory engine.
func NewMemory() *Memory { return &Memory{live: make(map[string]*MemoryView)} }

// FailNext makes every Create return err until called again with nil.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *Memory) Create(spec lifecycle.ViewSpec) (lifecycle.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	v := &MemoryView{engine: m, spec: spec, url: spec.URL}
	m.live[spec.ID] = v
	m.total++
	v.finished()
	return v, nil
}

// Live returns the open views ordered by slot.
func (m *Memory) Live() []*MemoryView {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MemoryView, 0, len(m.live))
	for _, v := range m.live {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].spec.Slot < out[j].spec.Slot })
	return out
}

// ForSlot returns the open view of slot, or nil.
func (m *Memory) ForSlot(slot int) *MemoryView {
	for _, v := range m.Live() {
		if v.spec.Slot == slot {
			return v
		}
	}
	return nil
}

// Created counts every view ever created.
func (m *Memory) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Crash simulates the content process of slot's view dying. It reports whether a view was found.
func (m *Memory) Crash(slot int) bool {
	v := m.ForSlot(slot)
	if v == nil {
		return false
	}
	m.mu.Lock()
	delete(m.live, v.spec.ID)
	m.mu.Unlock()
	v.notify(lifecycle.Event{Kind: lifecycle.ContentProcessTerminated, Slot: slot, ViewID: v.spec.ID})
	return true
}

// MemoryView is a view of the Memory engine.
type MemoryView struct {
	engine  *Memory
	spec    lifecycle.ViewSpec
	mu      sync.Mutex
	url     string
	scripts []string
	reloads int
	closed  bool
}

func (v *MemoryView) ID() string { return v.spec.ID }

// Slot returns the slot the view was created for.
func (v *MemoryView) Slot() int { return v.spec.Slot }

// URL returns the last URL the view was pointed at.
func (v *MemoryView) URL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.url
}

// Scripts returns the scripts evaluated so far.
func (v *MemoryView) Scripts() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.scripts...)
}

var errClosed = errors.New("view closed")

func (v *MemoryView) Navigate(url string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errClosed
	}
	v.url = url
	v.mu.Unlock()
	v.finished()
	return nil
}

func (v *MemoryView) Reload() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errClosed
	}
	v.reloads++
	v.mu.Unlock()
	v.finished()
	return nil
}

func (v *MemoryView) Eval(script string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return errClosed
	}
	v.scripts = append(v.scripts, script)
	return nil
}

func (v *MemoryView) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.engine.mu.Lock()
	delete(v.engine.live, v.spec.ID)
	v.engine.mu.Unlock()
	return nil
}

// finished reports a completed navigation off the caller's goroutine, as a real engine would.
func (v *MemoryView) finished() {
	v.notify(lifecycle.Event{Kind: lifecycle.NavigationFinished, Slot: v.spec.Slot, ViewID: v.spec.ID})
}

func (v *MemoryView) notify(ev lifecycle.Event) {
	if v.spec.Notify != nil {
		go v.spec.Notify(ev)
	}
}
