/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ui is the desktop control window. The Fyne implementation is only compiled with -tags fyne;
// everything in this file is shared by all builds.
package ui

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"multiassistant/internal/config"
	"multiassistant/internal/host"
	"multiassistant/internal/lifecycle"
	"multiassistant/internal/shortcut"
	"multiassistant/internal/switcher"
)

// StartFunc builds and starts the host once the window can provide the surface and focus target.
type StartFunc func(surface lifecycle.Surface, focus switcher.Focuser) (*host.Host, error)

// Options configures Run.
type Options struct {
	Config     config.AppConfig
	ConfigPath string
	Start      StartFunc
	// Apply pushes settings saved from the settings dialog into the running host.
	Apply func(config.AppConfig) error
}

// SlotTitle is the tab caption: the label, else the URL host, else "Slot N". Persisted slots get a marker.
func SlotTitle(s host.SlotStatus) string {
	title := strings.TrimSpace(s.Label)
	if title == "" && s.URL != "" {
		if u, err := url.Parse(s.URL); err == nil && u.Host != "" {
			title = strings.TrimPrefix(u.Host, "www.")
		}
	}
	if title == "" {
		title = fmt.Sprintf("Slot %d", s.Index+1)
	}
	if s.Persist {
		title += " •"
	}
	return title
}

// StatusLine summarises the active slot for the status bar.
func StatusLine(st host.Status) string {
	live := 0
	for _, s := range st.Slots {
		if s.Loaded {
			live++
		}
	}
	active := fmt.Sprintf("Slot %d", st.Active+1)
	if st.Active >= 0 && st.Active < len(st.Slots) {
		active = SlotTitle(st.Slots[st.Active])
		active = fmt.Sprintf("%s (%d%%)", active, int(st.Slots[st.Active].Zoom*100+0.5))
	}
	return fmt.Sprintf("%s · %d live · unload %s", active, live, DelayLabel(st.UnloadDelay))
}

type delayChoice struct {
	label string
	d     time.Duration
}

var delayChoices = []delayChoice{
	{"Never", 0},
	{"1 minute", time.Minute},
	{"5 minutes", 5 * time.Minute},
	{"15 minutes", 15 * time.Minute},
	{"30 minutes", 30 * time.Minute},
	{"1 hour", time.Hour},
}

// DelayLabels lists the choices offered for the idle unload delay.
func DelayLabels() []string {
	out := make([]string, len(delayChoices))
	for i, c := range delayChoices {
		out[i] = c.label
	}
	return out
}

// DelayLabel renders d; values that are not a preset fall back to a duration string.
func DelayLabel(d time.Duration) string {
	if d <= 0 {
		return "Never"
	}
	for _, c := range delayChoices {
		if c.d == d {
			return c.label
		}
	}
	return d.String()
}

// ParseDelay maps a label back to its duration.
func ParseDelay(label string) (time.Duration, bool) {
	for _, c := range delayChoices {
		if c.label == label {
			return c.d, true
		}
	}
	return 0, false
}

// Binding is an in-window key combination to register with the toolkit.
type Binding struct {
	Chars string
	Mods  shortcut.Modifier
}

// Bindings returns every combination the in-app key map reacts to.
func Bindings() []Binding {
	out := []Binding{
		{"1", shortcut.Command},
		{"r", shortcut.Command},
		{"=", shortcut.Command},
		{"+", shortcut.Command | shortcut.Shift},
		{"-", shortcut.Command},
		{"0", shortcut.Command},
		{",", shortcut.Command},
	}
	for _, c := range "1234567890" {
		out = append(out, Binding{string(c), shortcut.Command | shortcut.Option})
	}
	return out
}
