/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	applog "multiassistant/internal/log"
)

// DefaultWatchDelay collapses the burst of events an editor produces on save.
const DefaultWatchDelay = 250 * time.Millisecond

// Watch reloads path whenever it changes and passes the result to onChange until ctx is done.
// The parent directory is watched so editors that replace the file are picked up.
// onChange runs on a timer goroutine.
func Watch(ctx context.Context, path string, delay time.Duration, onChange func(AppConfig, error)) error {
	l := applog.WithOperation(applog.WithComponent("config"), "watch").With(slog.String("path", path))
	if delay <= 0 {
		delay = DefaultWatchDelay
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(path)
	debounced := debounce.New(delay)
	reload := func() {
		if ctx.Err() != nil {
			return
		}
		cfg, err := LoadFile(path)
		if err != nil {
			l.Warn("config reload failed", slog.Any("err", err))
		} else {
			l.Info("config reloaded")
		}
		onChange(cfg, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				debounced(reload)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.Warn("watcher error", slog.Any("err", err))
		}
	}
}
