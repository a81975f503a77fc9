//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"multiassistant/internal/appearance"
	"multiassistant/internal/config"
	"multiassistant/internal/host"
	"multiassistant/internal/lifecycle"
	applog "multiassistant/internal/log"
	"multiassistant/internal/shortcut"
	"multiassistant/internal/slots"
	"multiassistant/internal/version"
)

// Run opens the control window and blocks until it is closed.
func Run(opts Options) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI")
	if opts.Start == nil {
		return fmt.Errorf("ui: no host starter configured")
	}

	fyneApp := app.NewWithID("multiassistant")
	w := fyneApp.NewWindow("MultiAssistant")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1000)
	winH := prefs.IntWithFallback("window.height", 760)
	if winW < 480 {
		winW = 480
	}
	if winH < 360 {
		winH = 360
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	surface := newSurface()
	look := opts.Config.AppearanceSettings()
	surface.setLook(look)

	h, err := opts.Start(surface, windowFocus{w})
	if err != nil {
		return err
	}

	cfg := opts.Config
	status := widget.NewLabel("Ready")
	tabBar := container.NewHBox()
	sheetOpen := false
	var mu sync.Mutex // guards sheetOpen against shortcut callbacks

	var refresh func()
	refresh = func() {
		go func() {
			st, err := h.Status()
			if err != nil {
				return
			}
			fyne.Do(func() {
				tabBar.Objects = tabButtons(st, func(i int) {
					go func() {
						if err := h.SwitchTo(i); err != nil {
							l.Warn("switch failed", slog.Int("slot", i), slog.Any("err", err))
						}
						refresh()
					}()
				})
				tabBar.Refresh()
				status.SetText(StatusLine(st))
			})
		}()
	}

	var showSettings func()
	run := func(name string, fn func() error) {
		go func() {
			if err := fn(); err != nil {
				l.Warn("action failed", slog.String("action", name), slog.Any("err", err))
				fyne.Do(func() { status.SetText(fmt.Sprintf("%s failed: %v", name, err)) })
			}
			refresh()
		}()
	}

	toolbar := container.NewHBox(
		widget.NewButton("Next", func() { run("cycle", func() error { _, err := h.Cycle(); return err }) }),
		widget.NewButton("Reload", func() { run("reload", h.Refresh) }),
		widget.NewButton("−", func() { run("zoom out", func() error { _, err := h.ZoomOut(); return err }) }),
		widget.NewButton("100%", func() { run("actual size", func() error { _, err := h.ActualSize(); return err }) }),
		widget.NewButton("+", func() { run("zoom in", func() error { _, err := h.ZoomIn(); return err }) }),
		widget.NewButton("Settings…", func() { showSettings() }),
	)
	top := container.NewBorder(nil, nil, nil, toolbar, container.NewHScroll(tabBar))
	w.SetContent(container.NewBorder(top, status, nil, nil, surface.root))

	for _, b := range Bindings() {
		b := b
		sc := &desktop.CustomShortcut{KeyName: keyName(b.Chars), Modifier: fyneModifiers(b.Mods)}
		w.Canvas().AddShortcut(sc, func(fyne.Shortcut) {
			mu.Lock()
			open := sheetOpen
			mu.Unlock()
			go func() {
				res, err := h.HandleKey(b.Chars, b.Mods, open)
				if err != nil {
					l.Warn("key action failed", slog.String("action", res.Action.String()), slog.Any("err", err))
				}
				if res.Action == shortcut.ActionSettings {
					fyne.Do(showSettings)
				}
				refresh()
			}()
		})
	}

	showSettings = func() {
		mu.Lock()
		if sheetOpen {
			mu.Unlock()
			return
		}
		sheetOpen = true
		mu.Unlock()
		d := settingsDialog(w, cfg, func(next config.AppConfig) {
			cfg = next
			look = next.AppearanceSettings()
			surface.setLook(look)
			if opts.ConfigPath != "" {
				if err := config.Save(opts.ConfigPath, next); err != nil {
					dialog.ShowError(err, w)
				}
			}
			run("apply settings", func() error {
				if opts.Apply != nil {
					return opts.Apply(next)
				}
				return nil
			})
		})
		d.SetOnClosed(func() {
			mu.Lock()
			sheetOpen = false
			mu.Unlock()
		})
		d.Show()
	}

	w.SetMainMenu(fyne.NewMainMenu(
		fyne.NewMenu("View",
			fyne.NewMenuItem("Next Tab", func() { run("cycle", func() error { _, err := h.Cycle(); return err }) }),
			fyne.NewMenuItem("Next Persisted Tab", func() {
				run("cycle", func() error { _, err := h.CycleToNext(true); return err })
			}),
			fyne.NewMenuItem("Reload", func() { run("reload", h.Refresh) }),
			fyne.NewMenuItemSeparator(),
			fyne.NewMenuItem("Settings…", func() { showSettings() }),
		),
		fyne.NewMenu("About", fyne.NewMenuItem("About MultiAssistant", func() {
			msg := fmt.Sprintf("MultiAssistant %s\nToggle shortcut: %s\n\nLicensed under the Apache License, Version 2.0.",
				version.String(), configuredShortcut(cfg))
			dialog.ShowInformation("About", msg, w)
		})),
	))

	fyneApp.Lifecycle().SetOnExitedForeground(func() {
		if look.Autohide {
			w.Hide()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.Done():
				return
			case <-t.C:
				refresh()
			}
		}
	}()

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		if err := h.Shutdown(); err != nil {
			l.Error("shutdown failed", slog.Any("err", err))
		}
		w.Close()
	})

	refresh()
	w.ShowAndRun()
	return nil
}

func configuredShortcut(cfg config.AppConfig) string {
	s, err := shortcut.Parse(cfg.Shortcut.Key, cfg.Shortcut.Modifiers)
	if err != nil {
		return shortcut.Default().String()
	}
	return s.String()
}

func tabButtons(st host.Status, onTap func(int)) []fyne.CanvasObject {
	var out []fyne.CanvasObject
	for _, s := range st.Slots {
		if !s.Enabled {
			continue
		}
		i := s.Index
		btn := widget.NewButton(SlotTitle(s), func() { onTap(i) })
		if s.Active {
			btn.Importance = widget.HighImportance
		} else if !s.Loaded {
			btn.Importance = widget.LowImportance
		}
		out = append(out, btn)
	}
	return out
}

// windowFocus raises the control window when the core asks for focus.
type windowFocus struct{ w fyne.Window }

func (f windowFocus) RequestFocus(int) {
	fyne.Do(func() { f.w.RequestFocus() })
}

func keyName(chars string) fyne.KeyName {
	switch chars {
	case "r":
		return fyne.KeyR
	case "=", "+":
		return fyne.KeyEqual
	case "-":
		return fyne.KeyMinus
	case ",":
		return fyne.KeyComma
	default:
		return fyne.KeyName(chars)
	}
}

func fyneModifiers(m shortcut.Modifier) fyne.KeyModifier {
	var out fyne.KeyModifier
	if m&shortcut.Control != 0 {
		out |= fyne.KeyModifierControl
	}
	if m&shortcut.Option != 0 {
		out |= fyne.KeyModifierAlt
	}
	if m&shortcut.Shift != 0 {
		out |= fyne.KeyModifierShift
	}
	if m&shortcut.Command != 0 {
		out |= fyne.KeyModifierSuper
	}
	return out
}

// surface stands in for the web content area: one pane per live view, stacked, at most one visible.
// The exported Surface methods are called from the host loop and hop onto the UI thread.
type surface struct {
	root    *fyne.Container
	stack   *fyne.Container
	overlay *canvas.Rectangle
	panes   map[int]*viewPane
	look    appearance.Settings
}

type viewPane struct {
	box   *fyne.Container
	bg    *canvas.Rectangle
	title *canvas.Text
}

func newSurface() *surface {
	s := &surface{
		stack:   container.NewStack(),
		overlay: canvas.NewRectangle(color.Transparent),
		panes:   make(map[int]*viewPane),
		look:    appearance.Defaults(),
	}
	s.root = container.NewStack(s.stack, s.overlay)
	return s
}

func (s *surface) Attach(slot int, v lifecycle.View) { fyne.Do(func() { s.attach(slot, v) }) }
func (s *surface) Detach(slot int, v lifecycle.View) { fyne.Do(func() { s.detach(slot) }) }
func (s *surface) SetVisible(slot int, visible bool) { fyne.Do(func() { s.setVisible(slot, visible) }) }

func (s *surface) attach(slot int, v lifecycle.View) {
	s.detach(slot)
	bg := canvas.NewRectangle(contentColor(s.look.ContentAlpha))
	title := canvas.NewText(fmt.Sprintf("Slot %d · view %s", slot+1, v.ID()), color.Gray{Y: 40})
	p := &viewPane{bg: bg, title: title, box: container.NewStack(bg, container.NewCenter(title))}
	p.box.Hide()
	s.panes[slot] = p
	s.stack.Add(p.box)
}

func (s *surface) detach(slot int) {
	p, ok := s.panes[slot]
	if !ok {
		return
	}
	delete(s.panes, slot)
	s.stack.Remove(p.box)
}

func (s *surface) setVisible(slot int, visible bool) {
	p, ok := s.panes[slot]
	if !ok {
		return
	}
	if visible {
		p.box.Show()
	} else {
		p.box.Hide()
	}
}

// setLook recolours the panes and the temperature overlay. Fyne cannot make the window itself
// translucent, so WindowAlpha is only carried through to the config.
func (s *surface) setLook(look appearance.Settings) {
	s.look = look.Normalize()
	for _, p := range s.panes {
		p.bg.FillColor = contentColor(s.look.ContentAlpha)
		p.bg.Refresh()
	}
	if c, ok := appearance.Overlay(s.look.Temperature); ok {
		s.overlay.FillColor = color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(c.A*255 + 0.5)}
	} else {
		s.overlay.FillColor = color.Transparent
	}
	s.overlay.Refresh()
}

func contentColor(alpha float64) color.Color {
	return color.NRGBA{R: 250, G: 250, B: 250, A: uint8(appearance.ClampAlpha(alpha)*255 + 0.5)}
}

// settingsDialog edits slots, tab behaviour and appearance. onSave receives the edited copy.
func settingsDialog(w fyne.Window, cfg config.AppConfig, onSave func(config.AppConfig)) dialog.Dialog {
	type slotRow struct {
		url, label       *widget.Entry
		enabled, persist *widget.Check
	}
	rows := make([]slotRow, slots.DefaultCount)
	grid := container.NewGridWithColumns(5,
		widget.NewLabel("#"), widget.NewLabel("URL"), widget.NewLabel("Label"),
		widget.NewLabel("On"), widget.NewLabel("Keep"))
	for i := range rows {
		var sc config.SlotConfig
		if i < len(cfg.Slots) {
			sc = cfg.Slots[i]
		}
		r := slotRow{
			url:     widget.NewEntry(),
			label:   widget.NewEntry(),
			enabled: widget.NewCheck("", nil),
			persist: widget.NewCheck("", nil),
		}
		r.url.SetText(sc.URL)
		r.url.SetPlaceHolder("https://…")
		r.label.SetText(sc.Label)
		r.enabled.SetChecked(sc.Enabled)
		r.persist.SetChecked(sc.Persist)
		rows[i] = r
		grid.Add(widget.NewLabel(fmt.Sprint(i + 1)))
		grid.Add(r.url)
		grid.Add(r.label)
		grid.Add(r.enabled)
		grid.Add(r.persist)
	}

	delay := widget.NewSelect(DelayLabels(), nil)
	delay.SetSelected(DelayLabel(cfg.UnloadDelay()))
	cyclePersisted := widget.NewCheck("Cycle only kept tabs", nil)
	cyclePersisted.SetChecked(cfg.Tabs.CyclePersistedOnly)

	windowAlpha := widget.NewSlider(appearance.MinAlpha, appearance.MaxAlpha)
	windowAlpha.Step = 0.05
	windowAlpha.SetValue(cfg.Window.Alpha)
	contentAlpha := widget.NewSlider(appearance.MinAlpha, appearance.MaxAlpha)
	contentAlpha.Step = 0.05
	contentAlpha.SetValue(cfg.Window.ContentAlpha)
	temperature := widget.NewSlider(0, 100)
	temperature.SetValue(cfg.Appearance.Temperature)
	bold := widget.NewCheck("Bold text", nil)
	bold.SetChecked(cfg.Appearance.Bold)
	autohide := widget.NewCheck("Hide when inactive", nil)
	autohide.SetChecked(cfg.Window.Autohide)
	desktopSel := widget.NewSelect([]string{
		string(appearance.DesktopStandard), string(appearance.DesktopAll), string(appearance.DesktopCurrent),
	}, nil)
	desktopSel.SetSelected(string(appearance.ParseDesktop(cfg.Window.Desktop)))

	items := []*widget.FormItem{
		widget.NewFormItem("Tabs", container.NewVScroll(grid)),
		widget.NewFormItem("Unload after", delay),
		widget.NewFormItem("", cyclePersisted),
		widget.NewFormItem("Window opacity", windowAlpha),
		widget.NewFormItem("Content opacity", contentAlpha),
		widget.NewFormItem("Temperature", temperature),
		widget.NewFormItem("", bold),
		widget.NewFormItem("", autohide),
		widget.NewFormItem("Desktop", desktopSel),
	}
	d := dialog.NewForm("Settings", "Save", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		next := cfg
		next.Slots = make([]config.SlotConfig, len(rows))
		for i, r := range rows {
			next.Slots[i] = config.SlotConfig{
				URL:     r.url.Text,
				Label:   r.label.Text,
				Enabled: r.enabled.Checked,
				Persist: r.persist.Checked,
			}
		}
		if dur, ok := ParseDelay(delay.Selected); ok {
			next.Tabs.UnloadDelaySeconds = int(dur / time.Second)
		}
		next.Tabs.CyclePersistedOnly = cyclePersisted.Checked
		next.Window.Alpha = windowAlpha.Value
		next.Window.ContentAlpha = contentAlpha.Value
		next.Window.Autohide = autohide.Checked
		next.Window.Desktop = desktopSel.Selected
		next.Appearance.Temperature = temperature.Value
		next.Appearance.Bold = bold.Checked
		onSave(next)
	}, w)
	d.Resize(fyne.NewSize(820, 640))
	return d
}
