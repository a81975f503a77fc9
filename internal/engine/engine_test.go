/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package engine

import (
	"errors"
	"os/exec"
	"reflect"
	"testing"
	"time"

	"multiassistant/internal/lifecycle"
)

func collect() (func(lifecycle.Event), chan lifecycle.Event) {
	ch := make(chan lifecycle.Event, 16)
	return func(ev lifecycle.Event) { ch <- ev }, ch
}

func next(t *testing.T, ch chan lifecycle.Event) lifecycle.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("no event received")
		return lifecycle.Event{}
	}
}

func TestMemoryEngineLifecycle(t *testing.T) {
	m := NewMemory()
	notify, events := collect()
	v, err := m.Create(lifecycle.ViewSpec{Slot: 2, ID: "v1", URL: "https://a.example", Notify: notify})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ev := next(t, events); ev.Kind != lifecycle.NavigationFinished || ev.ViewID != "v1" || ev.Slot != 2 {
		t.Fatalf("first event = %+v", ev)
	}
	if err := v.Navigate("https://b.example"); err != nil {
		t.Fatal(err)
	}
	_ = next(t, events)
	mv := m.ForSlot(2)
	if mv == nil || mv.URL() != "https://b.example" {
		t.Fatalf("ForSlot(2) = %+v", mv)
	}
	_ = v.Eval("x()")
	if !reflect.DeepEqual(mv.Scripts(), []string{"x()"}) {
		t.Fatalf("scripts = %v", mv.Scripts())
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	if len(m.Live()) != 0 || m.Created() != 1 {
		t.Fatalf("live = %d created = %d", len(m.Live()), m.Created())
	}
	if err := v.Navigate("https://c.example"); err == nil {
		t.Fatalf("navigate after close should fail")
	}
}

func TestMemoryEngineCrashAndFailure(t *testing.T) {
	m := NewMemory()
	notify, events := collect()
	_, _ = m.Create(lifecycle.ViewSpec{Slot: 0, ID: "a", Notify: notify})
	_ = next(t, events)
	if !m.Crash(0) {
		t.Fatalf("Crash should find the view")
	}
	if ev := next(t, events); ev.Kind != lifecycle.ContentProcessTerminated || ev.ViewID != "a" {
		t.Fatalf("crash event = %+v", ev)
	}
	if m.Crash(0) {
		t.Fatalf("crashed view should no longer be live")
	}
	boom := errors.New("boom")
	m.FailNext(boom)
	if _, err := m.Create(lifecycle.ViewSpec{Slot: 1, ID: "b"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestProcessArgs(t *testing.T) {
	p, err := NewProcess("chromium --app={url} --new-window")
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Args("https://x.example"); !reflect.DeepEqual(got, []string{"chromium", "--app=https://x.example", "--new-window"}) {
		t.Fatalf("Args = %v", got)
	}
	p, _ = NewProcess("open -a Safari")
	if got := p.Args("https://y.example"); got[len(got)-1] != "https://y.example" {
		t.Fatalf("url should be appended when the template has no placeholder: %v", got)
	}
	if _, err := NewProcess("   "); !errors.Is(err, ErrNoCommand) {
		t.Fatalf("empty template err = %v", err)
	}
}

func requireSleep(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
}

// The URL doubles as the sleep duration so the test controls how long the "browser" lives.
func TestProcessViewCloseIsNotATermination(t *testing.T) {
	requireSleep(t)
	p, _ := NewProcess("sleep {url}")
	notify, events := collect()
	v, err := p.Create(lifecycle.ViewSpec{Slot: 1, ID: "p1", URL: "30", Notify: notify})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ev := next(t, events); ev.Kind != lifecycle.NavigationFinished {
		t.Fatalf("event = %+v", ev)
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after Close: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
	if !errors.Is(v.Eval("1"), errors.ErrUnsupported) {
		t.Fatalf("Eval should be unsupported")
	}
}

func TestProcessViewUnexpectedExitIsTermination(t *testing.T) {
	requireSleep(t)
	p, _ := NewProcess("sleep {url}")
	notify, events := collect()
	v, err := p.Create(lifecycle.ViewSpec{Slot: 4, ID: "p2", URL: "0", Notify: notify})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() { _ = v.Close() }()
	sawTerm := false
	for i := 0; i < 2; i++ {
		if ev := next(t, events); ev.Kind == lifecycle.ContentProcessTerminated && ev.ViewID == "p2" && ev.Slot == 4 {
			sawTerm = true
		}
	}
	if !sawTerm {
		t.Fatalf("process exit was not reported as a termination")
	}
}

func TestProcessCreateFailure(t *testing.T) {
	p, _ := NewProcess("/nonexistent/browser-binary {url}")
	if _, err := p.Create(lifecycle.ViewSpec{Slot: 0, ID: "x", URL: "https://a.example"}); err == nil {
		t.Fatalf("expected start failure")
	}
}

func TestProcessRestartFailureIsTermination(t *testing.T) {
	requireSleep(t)
	p, _ := NewProcess("sleep {url}")
	notify, events := collect()
	v, err := p.Create(lifecycle.ViewSpec{Slot: 2, ID: "p3", URL: "30", Notify: notify})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() { _ = v.Close() }()
	if ev := next(t, events); ev.Kind != lifecycle.NavigationFinished {
		t.Fatalf("event = %+v", ev)
	}

	p.argv = []string{"/nonexistent/browser-binary", URLPlaceholder}
	if err := v.Navigate("https://b.example"); err == nil {
		t.Fatalf("expected restart failure")
	}
	ev := next(t, events)
	if ev.Kind != lifecycle.ContentProcessTerminated || ev.ViewID != "p3" || ev.Slot != 2 || ev.Err == nil {
		t.Fatalf("restart failure reported as %+v", ev)
	}
}
