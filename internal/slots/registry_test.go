/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package slots

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func twoEnabled() *Registry {
	r := NewRegistry(DefaultCount)
	_, _ = r.Configure([]Config{
		{URL: "https://chat.openai.com/", Label: "ChatGPT", Enabled: true},
		{URL: "https://gemini.google.com/app", Label: "Gemini", Enabled: true},
	})
	return r
}

func TestNewRegistryDefaults(t *testing.T) {
	r := NewRegistry(0)
	if r.Len() != DefaultCount {
		t.Fatalf("Len() = %d, want %d", r.Len(), DefaultCount)
	}
	for _, s := range r.Slots() {
		if s.Enabled || s.Persist || s.URL != "" || s.Zoom != DefaultZoom {
			t.Fatalf("slot %d not at defaults: %#v", s.Index, s)
		}
	}
	if _, ok := r.FirstEnabled(); ok {
		t.Fatalf("FirstEnabled should report none on a fresh registry")
	}
}

func TestSetActiveRejectsOutOfRangeAndDisabled(t *testing.T) {
	r := twoEnabled()
	for _, idx := range []int{-1, 10, 2} {
		prev, err := r.SetActive(idx)
		if !errors.Is(err, ErrInvalidSlot) {
			t.Fatalf("SetActive(%d) err = %v, want ErrInvalidSlot", idx, err)
		}
		if prev != 0 || r.Active() != 0 {
			t.Fatalf("SetActive(%d) mutated active index to %d", idx, r.Active())
		}
	}
	prev, err := r.SetActive(1)
	if err != nil || prev != 0 || r.Active() != 1 {
		t.Fatalf("SetActive(1) = (%d, %v), active %d", prev, err, r.Active())
	}
}

func TestZoomRoundTripAndClamp(t *testing.T) {
	r := twoEnabled()
	for _, v := range []float64{0.5, 0.75, 1, 1.2345, 2.9, 3} {
		got, err := r.SetZoom(1, v)
		if err != nil || got != v {
			t.Fatalf("SetZoom(1, %v) = (%v, %v)", v, got, err)
		}
		if z, _ := r.Zoom(1); z != v {
			t.Fatalf("Zoom(1) = %v, want %v", z, v)
		}
	}
	cases := map[float64]float64{0.1: MinZoom, -4: MinZoom, 3.01: MaxZoom, 99: MaxZoom, math.NaN(): DefaultZoom}
	for in, want := range cases {
		got, _ := r.SetZoom(0, in)
		if got != want {
			t.Fatalf("SetZoom(0, %v) stored %v, want %v", in, got, want)
		}
	}
	if _, err := r.SetZoom(10, 1); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("SetZoom out of range err = %v", err)
	}
	if _, err := r.Zoom(-1); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("Zoom out of range err = %v", err)
	}
}

func TestStepZoom(t *testing.T) {
	z := DefaultZoom
	for i := 0; i < 3; i++ {
		z = StepZoom(z, ZoomStep)
	}
	if z != 1.3 {
		t.Fatalf("three steps from 1.0 = %v, want 1.3", z)
	}
	if got := StepZoom(MaxZoom, ZoomStep); got != MaxZoom {
		t.Fatalf("step above max = %v", got)
	}
	if got := StepZoom(MinZoom, -ZoomStep); got != MinZoom {
		t.Fatalf("step below min = %v", got)
	}
}

func TestConfigureReportsChanges(t *testing.T) {
	r := twoEnabled()
	ch, err := r.Configure([]Config{
		{URL: "https://chat.openai.com/", Enabled: false, Persist: true},
		{URL: "https://claude.ai/", Enabled: true},
		{URL: "https://example.com", Enabled: true},
	})
	if err != nil {
		t.Fatalf("Configure error: %v", err)
	}
	if !reflect.DeepEqual(ch.Disabled, []int{0}) {
		t.Fatalf("Disabled = %v", ch.Disabled)
	}
	if !reflect.DeepEqual(ch.Enabled, []int{2}) {
		t.Fatalf("Enabled = %v", ch.Enabled)
	}
	if !reflect.DeepEqual(ch.Persisted, []int{0}) {
		t.Fatalf("Persisted = %v", ch.Persisted)
	}
	if !reflect.DeepEqual(ch.URLChanged, []int{1, 2}) {
		t.Fatalf("URLChanged = %v", ch.URLChanged)
	}
	if r.Active() != 0 {
		t.Fatalf("Configure must not move the active index")
	}
}

func TestConfigureUnpersistAndNoChange(t *testing.T) {
	r := twoEnabled()
	cfgs := []Config{
		{URL: "https://chat.openai.com/", Enabled: true, Persist: true},
		{URL: "https://gemini.google.com/app", Enabled: true},
	}
	if _, err := r.Configure(cfgs); err != nil {
		t.Fatal(err)
	}
	ch, err := r.Configure(cfgs)
	if err != nil || !ch.Empty() {
		t.Fatalf("repeating a configuration reported %+v, %v", ch, err)
	}
	cfgs[0].Persist = false
	ch, _ = r.Configure(cfgs)
	if !reflect.DeepEqual(ch.Unpersisted, []int{0}) || ch.Empty() {
		t.Fatalf("Unpersisted = %v", ch.Unpersisted)
	}
}

func TestConfigureRejectsBadURLKeepsPrevious(t *testing.T) {
	r := twoEnabled()
	ch, err := r.Configure([]Config{
		{URL: "ftp://files.example.com", Label: "renamed", Enabled: true, Persist: true},
		{URL: "https://gemini.google.com/app", Enabled: true},
	})
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("Configure err = %v, want ErrInvalidURL", err)
	}
	s, _ := r.Slot(0)
	if s.URL != "https://chat.openai.com/" {
		t.Fatalf("rejected URL replaced previous value: %q", s.URL)
	}
	if s.Label != "renamed" || !s.Persist {
		t.Fatalf("other fields of the slot should still apply: %#v", s)
	}
	if len(ch.URLChanged) != 0 {
		t.Fatalf("URLChanged = %v, want none", ch.URLChanged)
	}
}

func TestNormalizeURL(t *testing.T) {
	ok := map[string]string{
		"":                          "",
		"  https://claude.ai/new  ": "https://claude.ai/new",
		"HTTP://example.com":        "HTTP://example.com",
	}
	for in, want := range ok {
		got, err := NormalizeURL(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeURL(%q) = (%q, %v), want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"javascript:alert(1)", "file:///etc/passwd", "chat.openai.com", "https://", "http://%zz"} {
		if _, err := NormalizeURL(bad); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("NormalizeURL(%q) err = %v, want ErrInvalidURL", bad, err)
		}
	}
}

func TestEligibleAndLoadURL(t *testing.T) {
	r := twoEnabled()
	_, _ = r.Configure([]Config{
		{URL: "https://a.example", Enabled: true},
		{URL: "https://b.example", Enabled: true, Persist: true},
		{Enabled: false, Persist: true},
		{Enabled: true, Persist: true},
	})
	if got := r.Eligible(false); !reflect.DeepEqual(got, []int{0, 1, 3}) {
		t.Fatalf("Eligible(false) = %v", got)
	}
	if got := r.Eligible(true); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Fatalf("Eligible(true) = %v", got)
	}
	s, _ := r.Slot(3)
	if s.LoadURL() != BlankURL {
		t.Fatalf("empty URL should load %q, got %q", BlankURL, s.LoadURL())
	}
}
