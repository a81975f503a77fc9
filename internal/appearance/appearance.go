/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package appearance holds the window look settings and the page scripts injected into live views
// (zoom, forced bold text, focus of the prompt field).
package appearance

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	MinAlpha            = 0.1
	MaxAlpha            = 1.0
	DefaultWindowAlpha  = 1.0
	DefaultContentAlpha = 0.8

	// NeutralTemperature means no colour overlay.
	NeutralTemperature = 50.0
	maxOverlayAlpha    = 0.25

	// BoldStyleID is the id of the <style> element added by BoldScript.
	BoldStyleID = "multiAssistantGlobalBoldStyle"
)

// ClampAlpha limits v to [MinAlpha, MaxAlpha]. NaN maps to MaxAlpha.
func ClampAlpha(v float64) float64 {
	if math.IsNaN(v) {
		return MaxAlpha
	}
	return math.Max(MinAlpha, math.Min(MaxAlpha, v))
}

// RGBA is an 8-bit colour with a float alpha in [0,1].
type RGBA struct {
	R, G, B uint8
	A       float64
}

var (
	systemBlue   = RGBA{R: 0, G: 122, B: 255}
	systemYellow = RGBA{R: 255, G: 204, B: 0}
)

// Overlay returns the tint drawn over the content for a colour temperature value in [0,100].
// Values within one unit of neutral produce no overlay (ok == false).
func Overlay(temperature float64) (c RGBA, ok bool) {
	v := math.Max(0, math.Min(100, temperature))
	var base RGBA
	switch {
	case v < NeutralTemperature-1:
		base = systemBlue
	case v > NeutralTemperature+1:
		base = systemYellow
	default:
		return RGBA{}, false
	}
	base.A = math.Abs(v-NeutralTemperature) / NeutralTemperature * maxOverlayAlpha
	return base, true
}

// DesktopAssignment controls on which desktops (spaces) the window appears.
type DesktopAssignment string

const (
	DesktopAll      DesktopAssignment = "all"
	DesktopCurrent  DesktopAssignment = "current"
	DesktopStandard DesktopAssignment = "standard"
)

// ParseDesktop maps a config value onto a DesktopAssignment; unknown values yield DesktopStandard.
func ParseDesktop(s string) DesktopAssignment {
	switch DesktopAssignment(strings.ToLower(strings.TrimSpace(s))) {
	case DesktopAll:
		return DesktopAll
	case DesktopCurrent, "this":
		return DesktopCurrent
	default:
		return DesktopStandard
	}
}

// Settings is the look of the window and its content.
type Settings struct {
	WindowAlpha  float64
	ContentAlpha float64
	Temperature  float64
	Bold         bool
	Desktop      DesktopAssignment
	Autohide     bool
}

// Defaults returns the initial appearance.
func Defaults() Settings {
	return Settings{
		WindowAlpha:  DefaultWindowAlpha,
		ContentAlpha: DefaultContentAlpha,
		Temperature:  NeutralTemperature,
		Desktop:      DesktopStandard,
	}
}

// Normalize clamps every numeric field into its range.
func (s Settings) Normalize() Settings {
	s.WindowAlpha = ClampAlpha(s.WindowAlpha)
	s.ContentAlpha = ClampAlpha(s.ContentAlpha)
	if math.IsNaN(s.Temperature) {
		s.Temperature = NeutralTemperature
	}
	s.Temperature = math.Max(0, math.Min(100, s.Temperature))
	s.Desktop = ParseDesktop(string(s.Desktop))
	return s
}

// ZoomScript returns the page script that applies scale (1.0 = 100%).
func ZoomScript(scale float64) string {
	pct := strconv.FormatFloat(math.Round(scale*1000)/10, 'f', -1, 64)
	return fmt.Sprintf("document.documentElement.style.zoom = '%s%%';", pct)
}

const boldCSS = `* { font-weight: 600 !important; }`

// BoldScript returns a script that adds (enabled) or removes the forced bold stylesheet.
// It is idempotent in both directions.
func BoldScript(enabled bool) string {
	if !enabled {
		return fmt.Sprintf(`(function(){var s=document.getElementById('%s');if(s){s.remove();}})();`, BoldStyleID)
	}
	return fmt.Sprintf(`(function(){var s=document.getElementById('%s');if(!s){s=document.createElement('style');s.id='%s';(document.head||document.documentElement).appendChild(s);}s.textContent=%s;})();`,
		BoldStyleID, BoldStyleID, strconv.Quote(boldCSS))
}

// TransparentBackgroundCSS is injected at document start so the window alpha shows through.
const TransparentBackgroundCSS = `html, body { background-color: transparent !important; }`

// focusSelectors are tried in order; the first visible match receives focus.
var focusSelectors = []string{
	"#prompt-textarea",
	"rich-textarea .ql-editor",
	"div[contenteditable='true']",
	"textarea",
	"input[type='text']",
	"input:not([type])",
}

// FocusScript returns the script that focuses the first prompt or text field of the page.
func FocusScript() string {
	quoted := make([]string, len(focusSelectors))
	for i, s := range focusSelectors {
		quoted[i] = strconv.Quote(s)
	}
	return `(function(){var sel=[` + strings.Join(quoted, ",") + `];for(var i=0;i<sel.length;i++){var el=document.querySelector(sel[i]);if(el&&el.offsetParent!==null){el.focus();return true;}}return false;})();`
}
