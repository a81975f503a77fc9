/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"multiassistant/internal/config"
	"multiassistant/internal/crash"
	"multiassistant/internal/engine"
	"multiassistant/internal/host"
	"multiassistant/internal/lifecycle"
	applog "multiassistant/internal/log"
	"multiassistant/internal/state"
	"multiassistant/internal/switcher"
	"multiassistant/internal/telemetry"
	"multiassistant/internal/ui"
	"multiassistant/internal/version"
)

// journalKeep is how many lifecycle journal rows survive the prune at startup.
const journalKeep = 500

func usage() {
	fmt.Println("MultiAssistant — several chat assistants in one window")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  multiassistant version|-v|--version   Show version")
	fmt.Println("  multiassistant config [--path]        Print the effective configuration (or only its path)")
	fmt.Println("  multiassistant slots                  List configured slots")
	fmt.Println("  multiassistant run                    Run headless, reading commands from stdin (try: help)")
	fmt.Println("  multiassistant ui                     Launch desktop UI (build with -tags fyne for full UI)")
}

func main() {
	// initialize structured logging using environment defaults
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")

	var h *host.Host
	var store *state.Store
	// deferred directly so recover sees the panic; the closures read h and store as they are then
	defer crash.Recover(crash.Options{
		Dir:      crashDir(),
		Describe: func() string { return describe(h) },
		Flush:    func() error { return flush(h, store) },
	})

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("MultiAssistant")
		fmt.Println(version.String())
		return
	case "config":
		path, err := config.ConfigPath()
		if err != nil {
			exitErr(l, "resolve config path", err)
		}
		if len(args) > 2 && args[2] == "--path" {
			fmt.Println(path)
			return
		}
		cfg, err := config.LoadFile(path)
		if err != nil {
			fmt.Println("Warning:", err)
		}
		if err := printConfig(os.Stdout, cfg); err != nil {
			exitErr(l, "print config", err)
		}
		return
	case "slots":
		cfg, path := loadConfig(l)
		l.Debug("listing slots", slog.String("config", path))
		printSlots(os.Stdout, cfg)
		return
	case "run", "ui":
	default:
		usage()
		os.Exit(2)
	}

	cfg, path := loadConfig(l)
	initLogging(cfg)
	l = applog.WithComponent("cli")
	initTelemetry(cfg)

	var err error
	store, err = openStore(path)
	if err != nil {
		exitErr(l, "open state", err)
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := func(surface lifecycle.Surface, focus switcher.Focuser) (*host.Host, error) {
		var serr error
		h, serr = startHost(ctx, cfg, store, surface, focus)
		if serr != nil {
			return nil, serr
		}
		go watchConfig(ctx, path, h)
		return h, nil
	}

	switch args[1] {
	case "run":
		if _, err := start(nil, nil); err != nil {
			exitErr(l, "start", err)
		}
		err = runHeadless(ctx, h, os.Stdin, os.Stdout)
		if serr := h.Shutdown(); serr != nil {
			l.Warn("shutdown failed", slog.Any("err", serr))
		}
	case "ui":
		err = ui.Run(ui.Options{
			Config:     cfg,
			ConfigPath: path,
			Start:      start,
			Apply: func(next config.AppConfig) error {
				return h.Apply(settingsFrom(next))
			},
		})
	}
	if h != nil {
		telemetry.Counters("session_summary", h.Counters())
		fctx, cancel := context.WithTimeout(context.Background(), time.Second)
		telemetry.Flush(fctx)
		cancel()
	}
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

func exitErr(l *slog.Logger, what string, err error) {
	l.Error(what+" failed", slog.Any("err", err))
	fmt.Println("Error:", err)
	os.Exit(1)
}

// loadConfig reads the user config. A broken file is reported and the defaults are used.
func loadConfig(l *slog.Logger) (config.AppConfig, string) {
	path, err := config.ConfigPath()
	if err != nil {
		exitErr(l, "resolve config path", err)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		l.Warn("config not usable, running with defaults", slog.String("path", path), slog.Any("err", err))
	}
	return cfg, path
}

func initLogging(cfg config.AppConfig) {
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
}

func initTelemetry(cfg config.AppConfig) {
	tc := telemetry.FromEnv()
	tc.OptIn = tc.OptIn || cfg.General.TelemetryOptIn
	telemetry.NewDefault(tc)
}

func crashDir() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "crash")
}

// openStore opens the state database next to the config file and trims the journal.
func openStore(configPath string) (*state.Store, error) {
	s, err := state.Open(filepath.Join(filepath.Dir(configPath), state.FileName))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l := applog.WithComponent("cli")
	if v, err := s.SchemaVersion(ctx); err == nil {
		l.Debug("state opened", slog.String("path", s.Path()), slog.Int("schema", v))
	}
	if n, err := s.PruneEvents(ctx, journalKeep); err != nil {
		l.Warn("prune journal failed", slog.Any("err", err))
	} else if n > 0 {
		l.Debug("journal pruned", slog.Int64("rows", n))
	}
	return s, nil
}

func newEngine(cfg config.AppConfig) (lifecycle.Engine, error) {
	if cfg.Engine.Command == "" {
		return engine.NewMemory(), nil
	}
	return engine.NewProcess(cfg.Engine.Command)
}

func settingsFrom(cfg config.AppConfig) host.Settings {
	return host.Settings{
		Slots:              cfg.SlotConfigs(),
		UnloadDelay:        cfg.UnloadDelay(),
		CyclePersistedOnly: cfg.Tabs.CyclePersistedOnly,
		Appearance:         cfg.AppearanceSettings(),
	}
}

// startHost builds the core, runs its loop until ctx ends and presents the first slot.
// URL rejections are logged and do not stop the start.
func startHost(ctx context.Context, cfg config.AppConfig, store *state.Store, surface lifecycle.Surface, focus switcher.Focuser) (*host.Host, error) {
	eng, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	h, err := host.New(host.Options{Engine: eng, Surface: surface, Focuser: focus, Store: store})
	if err != nil {
		return nil, err
	}
	go func() {
		if err := h.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			applog.WithComponent("cli").Error("event loop ended", slog.Any("err", err))
		}
	}()
	if err := h.Start(settingsFrom(cfg)); err != nil {
		applog.WithComponent("cli").Warn("start reported problems", slog.Any("err", err))
	}
	return h, nil
}

// watchConfig applies every successful reload of the config file to h and the log level.
func watchConfig(ctx context.Context, path string, h *host.Host) {
	l := applog.WithComponent("cli")
	err := config.Watch(ctx, path, config.DefaultWatchDelay, func(cfg config.AppConfig, err error) {
		if err != nil {
			return
		}
		applog.SetLevel(cfg.Logging.Level)
		if err := h.Apply(settingsFrom(cfg)); err != nil {
			l.Warn("apply reloaded config", slog.Any("err", err))
		}
	})
	if err != nil {
		l.Warn("config watch stopped", slog.Any("err", err))
	}
}

func describe(h *host.Host) string {
	if h == nil {
		return ""
	}
	return h.Describe()
}

// flush shuts the host down if its loop still answers in time, then closes the store.
func flush(h *host.Host, store *state.Store) error {
	var err error
	if h != nil {
		done := make(chan error, 1)
		go func() { done <- h.Shutdown() }()
		select {
		case err = <-done:
		case <-time.After(2 * time.Second):
			err = errors.New("host did not shut down in time")
		}
	}
	if store != nil {
		err = errors.Join(err, store.Close())
	}
	return err
}
