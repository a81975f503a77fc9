/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package lifecycle

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	applog "multiassistant/internal/log"
	"multiassistant/internal/slots"
)

type fakeView struct {
	mu      sync.Mutex
	spec    ViewSpec
	closed  int
	reloads int
	urls    []string
	scripts []string
}

func (v *fakeView) ID() string { return v.spec.ID }
func (v *fakeView) Navigate(url string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.urls = append(v.urls, url)
	return nil
}
func (v *fakeView) Reload() error { v.reloads++; return nil }
func (v *fakeView) Eval(s string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scripts = append(v.scripts, s)
	return nil
}
func (v *fakeView) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed++
	return nil
}

type fakeEngine struct {
	created []*fakeView
	fail    error
}

func (e *fakeEngine) Create(spec ViewSpec) (View, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	v := &fakeView{spec: spec}
	e.created = append(e.created, v)
	return v, nil
}

type fakeSurface struct {
	attached map[int]View
	visible  map[int]bool
	detached int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{attached: map[int]View{}, visible: map[int]bool{}}
}
func (s *fakeSurface) Attach(slot int, v View) { s.attached[slot] = v }
func (s *fakeSurface) Detach(slot int, v View) {
	if s.attached[slot] == v {
		delete(s.attached, slot)
	}
	delete(s.visible, slot)
	s.detached++
}
func (s *fakeSurface) SetVisible(slot int, visible bool) { s.visible[slot] = visible }

type finished struct {
	slot    int
	refocus bool
}

func setup(t *testing.T) (*slots.Registry, *fakeEngine, *fakeSurface, *Manager, *[]finished) {
	t.Helper()
	reg := slots.NewRegistry(slots.DefaultCount)
	if _, err := reg.Configure([]slots.Config{
		{URL: "https://chat.openai.com/", Enabled: true},
		{URL: "https://gemini.google.com/app", Enabled: true},
		{URL: "https://claude.ai/", Enabled: true, Persist: true},
		{Enabled: true},
	}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	eng := &fakeEngine{}
	surf := newFakeSurface()
	var fin []finished
	m := New(reg, Config{
		Engine:     eng,
		Surface:    surf,
		OnFinished: func(slot int, refocus bool) { fin = append(fin, finished{slot, refocus}) },
		Logger:     applog.Discard(),
	})
	return reg, eng, surf, m, &fin
}

func TestEnsureLoadedIsIdempotent(t *testing.T) {
	_, eng, surf, m, _ := setup(t)
	v1, err := m.EnsureLoaded(1)
	if err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	v2, err := m.EnsureLoaded(1)
	if err != nil || v1 != v2 {
		t.Fatalf("second EnsureLoaded returned a different view or error: %v", err)
	}
	if len(eng.created) != 1 {
		t.Fatalf("engine created %d views, want 1", len(eng.created))
	}
	if surf.attached[1] != v1 {
		t.Fatalf("view was not attached to the surface")
	}
	if got := eng.created[0].spec.URL; got != "https://gemini.google.com/app" {
		t.Fatalf("view created with url %q", got)
	}
	if eng.created[0].spec.ID == "" {
		t.Fatalf("view created without an id")
	}
}

func TestEnsureLoadedRejectsDisabledAndUsesBlankForEmptyURL(t *testing.T) {
	_, eng, _, m, _ := setup(t)
	if _, err := m.EnsureLoaded(5); !errors.Is(err, slots.ErrInvalidSlot) {
		t.Fatalf("disabled slot err = %v", err)
	}
	if _, err := m.EnsureLoaded(42); !errors.Is(err, slots.ErrInvalidSlot) {
		t.Fatalf("out of range err = %v", err)
	}
	if len(eng.created) != 0 {
		t.Fatalf("no view should be created for invalid slots")
	}
	if _, err := m.EnsureLoaded(3); err != nil {
		t.Fatalf("EnsureLoaded(3): %v", err)
	}
	if got := eng.created[0].spec.URL; got != slots.BlankURL {
		t.Fatalf("empty slot url loaded %q, want %q", got, slots.BlankURL)
	}
}

func TestEnsureLoadedCreationFailure(t *testing.T) {
	_, eng, _, m, _ := setup(t)
	eng.fail = errors.New("out of memory")
	if _, err := m.EnsureLoaded(0); !errors.Is(err, ErrResourceCreation) {
		t.Fatalf("err = %v, want ErrResourceCreation", err)
	}
	if m.Loaded(0) {
		t.Fatalf("slot must stay unloaded after a creation failure")
	}
	eng.fail = nil
	if _, err := m.EnsureLoaded(0); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if st := m.Stats(); st.CreateFailed != 1 || st.Created != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestUnloadGuardsActiveAndPersisted(t *testing.T) {
	reg, eng, surf, m, _ := setup(t)
	for _, i := range []int{0, 1, 2} {
		if _, err := m.EnsureLoaded(i); err != nil {
			t.Fatalf("EnsureLoaded(%d): %v", i, err)
		}
	}
	if reg.Active() != 0 {
		t.Fatalf("precondition: active should be 0")
	}
	if m.Unload(0) {
		t.Fatalf("active slot must not unload")
	}
	if m.Unload(2) {
		t.Fatalf("persisted slot must not unload")
	}
	if !m.Unload(1) {
		t.Fatalf("inactive slot should unload")
	}
	if m.Unload(1) {
		t.Fatalf("second unload should report nothing released")
	}
	if eng.created[1].closed != 1 {
		t.Fatalf("view closed %d times", eng.created[1].closed)
	}
	if _, ok := surf.attached[1]; ok {
		t.Fatalf("unloaded view still attached")
	}
	if !reflect.DeepEqual(m.LoadedSlots(), []int{0, 2}) {
		t.Fatalf("LoadedSlots = %v", m.LoadedSlots())
	}
	if !m.Evict(2) || m.Loaded(2) {
		t.Fatalf("Evict must bypass the persist guard")
	}
}

func TestNavigationFinishedAppliesZoomAndIgnoresStaleViews(t *testing.T) {
	reg, eng, _, m, fin := setup(t)
	if _, err := reg.SetZoom(0, 1.5); err != nil {
		t.Fatal(err)
	}
	_, _ = m.EnsureLoaded(0)
	v := eng.created[0]
	m.HandleEvent(Event{Kind: NavigationFinished, Slot: 0, ViewID: v.ID()})
	if len(v.scripts) != 1 || v.scripts[0] != "document.documentElement.style.zoom = '150%';" {
		t.Fatalf("zoom not applied: %v", v.scripts)
	}
	if len(*fin) != 1 || (*fin)[0] != (finished{0, false}) {
		t.Fatalf("OnFinished calls = %v", *fin)
	}
	m.HandleEvent(Event{Kind: NavigationFinished, Slot: 0, ViewID: "some-old-id"})
	m.HandleEvent(Event{Kind: ContentProcessTerminated, Slot: 0, ViewID: "some-old-id"})
	if len(v.scripts) != 1 || !m.Loaded(0) || len(*fin) != 1 {
		t.Fatalf("stale events must be ignored")
	}
}

func TestTerminationOfInactiveSlotReleasesOnly(t *testing.T) {
	_, eng, _, m, _ := setup(t)
	_, _ = m.EnsureLoaded(1)
	v := eng.created[0]
	var term []int
	m.cfg.OnTerminated = func(slot int, reloaded bool) {
		if reloaded {
			t.Errorf("inactive slot must not be reloaded")
		}
		term = append(term, slot)
	}
	m.HandleEvent(Event{Kind: ContentProcessTerminated, Slot: 1, ViewID: v.ID()})
	if m.Loaded(1) || v.closed != 1 {
		t.Fatalf("terminated view should be released")
	}
	if len(eng.created) != 1 {
		t.Fatalf("inactive slot was recreated")
	}
	if !reflect.DeepEqual(term, []int{1}) {
		t.Fatalf("OnTerminated calls = %v", term)
	}
}

func TestTerminationOfActiveSlotReloadsAndRefocuses(t *testing.T) {
	_, eng, surf, m, fin := setup(t)
	_, _ = m.EnsureLoaded(0)
	old := eng.created[0]
	m.HandleEvent(Event{Kind: ContentProcessTerminated, Slot: 0, ViewID: old.ID()})
	if len(eng.created) != 2 {
		t.Fatalf("active slot should be recreated, created = %d", len(eng.created))
	}
	fresh := eng.created[1]
	if fresh.ID() == old.ID() {
		t.Fatalf("recreated view must get a new id")
	}
	if !surf.visible[0] {
		t.Fatalf("recreated active view should be visible")
	}
	m.HandleEvent(Event{Kind: NavigationFinished, Slot: 0, ViewID: fresh.ID()})
	if len(*fin) != 1 || !(*fin)[0].refocus {
		t.Fatalf("finish after crash should request focus: %v", *fin)
	}
	m.HandleEvent(Event{Kind: NavigationFinished, Slot: 0, ViewID: fresh.ID()})
	if (*fin)[1].refocus {
		t.Fatalf("refocus should be requested only once")
	}
}

func TestReloadMarksRefocus(t *testing.T) {
	_, eng, _, m, fin := setup(t)
	if err := m.Reload(0); err != nil {
		t.Fatalf("Reload of unloaded slot: %v", err)
	}
	if len(eng.created) != 1 {
		t.Fatalf("Reload of an unloaded slot should load it")
	}
	v := eng.created[0]
	if err := m.Reload(0); err != nil {
		t.Fatal(err)
	}
	if v.reloads != 1 {
		t.Fatalf("view reloads = %d", v.reloads)
	}
	m.HandleEvent(Event{Kind: NavigationFinished, Slot: 0, ViewID: v.ID()})
	if len(*fin) != 1 || !(*fin)[0].refocus {
		t.Fatalf("OnFinished = %v", *fin)
	}
}

func TestDispatchRoutesEngineNotifications(t *testing.T) {
	reg := slots.NewRegistry(2)
	_, _ = reg.Configure([]slots.Config{{URL: "https://a.example", Enabled: true}})
	eng := &fakeEngine{}
	var queued []func()
	m := New(reg, Config{
		Engine:   eng,
		Dispatch: func(fn func()) bool { queued = append(queued, fn); return true },
		Logger:   applog.Discard(),
	})
	_, _ = m.EnsureLoaded(0)
	v := eng.created[0]
	v.spec.Notify(Event{Kind: ContentProcessTerminated, Slot: 0, ViewID: v.ID()})
	if !m.Loaded(0) {
		t.Fatalf("event must not be handled before the loop runs it")
	}
	if len(queued) != 1 {
		t.Fatalf("queued = %d", len(queued))
	}
	queued[0]()
	if st := m.Stats(); st.Terminated != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	_, eng, surf, m, _ := setup(t)
	for _, i := range []int{0, 1, 2, 3} {
		_, _ = m.EnsureLoaded(i)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, v := range eng.created {
		if v.closed != 1 {
			t.Fatalf("view %s closed %d times", v.ID(), v.closed)
		}
	}
	if len(m.LoadedSlots()) != 0 || len(surf.attached) != 0 {
		t.Fatalf("views left after Close")
	}
}

func TestEvalAndNavigate(t *testing.T) {
	reg, eng, _, m, _ := setup(t)
	_, _ = m.EnsureLoaded(0)
	_, _ = m.EnsureLoaded(1)
	if err := m.Eval("1+1"); err != nil {
		t.Fatal(err)
	}
	for _, v := range eng.created {
		if len(v.scripts) != 1 {
			t.Fatalf("script not run in every view")
		}
	}
	cfgs := make([]slots.Config, reg.Len())
	for i, sl := range reg.Slots() {
		cfgs[i] = sl.Config
	}
	cfgs[1].URL = "https://bard.example"
	if ch, err := reg.Configure(cfgs); err != nil || !reflect.DeepEqual(ch.URLChanged, []int{1}) {
		t.Fatalf("Configure = %+v, %v", ch, err)
	}
	if err := m.Navigate(1); err != nil {
		t.Fatal(err)
	}
	if got := eng.created[1].urls; !reflect.DeepEqual(got, []string{"https://bard.example"}) {
		t.Fatalf("navigations = %v", got)
	}
	if err := m.Navigate(5); err != nil {
		t.Fatalf("Navigate of an unloaded slot should be a no-op: %v", err)
	}
}
