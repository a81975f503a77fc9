/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log holds the process-wide slog logger. Records go to a console
// handler (human readable or JSON) and optionally to a rotated JSON file; both
// pick up the slot index carried by a context.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"multiassistant/internal/version"
)

// Options selects where and how much is logged. FromEnv fills it from MA_LOG_LEVEL,
// MA_LOG_FORMAT (console|json), MA_LOG_SOURCE and MA_LOG_FILE.
type Options struct {
	Level     string
	Format    string
	AddSource bool
	// File enables a rotated JSON log next to the console output.
	File string
	// Console receives console output; nil means os.Stderr.
	Console io.Writer
}

// Rotation limits for the log file, in megabytes and days.
const (
	fileMaxMB      = 5
	fileMaxBackups = 3
	fileMaxDays    = 14
)

var (
	mu      sync.RWMutex
	current *slog.Logger
	level   = new(slog.LevelVar)
)

// L returns the process logger. The first call without Init configures it from the environment.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l == nil {
		Init(FromEnv())
		mu.RLock()
		l = current
		mu.RUnlock()
	}
	return l
}

// Init replaces the process logger and slog's default.
func Init(opts Options) {
	level.Set(parseLevel(opts.Level))

	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	var sinks []slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		sinks = append(sinks, slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}))
	} else {
		sinks = append(sinks, newConsoleHandler(out, level, opts.AddSource))
	}
	if path := strings.TrimSpace(opts.File); path != "" {
		rot := &lj.Logger{Filename: path, MaxSize: fileMaxMB, MaxBackups: fileMaxBackups, MaxAge: fileMaxDays, Compress: true}
		sinks = append(sinks, slog.NewJSONHandler(rot, &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}))
	}

	l := slog.New(slotHandler{next: fanout(sinks)}).With(
		slog.String("app", "multiassistant"),
		slog.String("ver", version.Version),
		slog.Int("pid", os.Getpid()),
	)
	mu.Lock()
	current = l
	mu.Unlock()
	slog.SetDefault(l)
}

// SetLevel changes the threshold of the running logger, e.g. after a config reload.
func SetLevel(s string) { level.Set(parseLevel(s)) }

// Level reports the current threshold.
func Level() slog.Level { return level.Level() }

// FromEnv reads Options from the MA_LOG_* variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("MA_LOG_LEVEL", "info"),
		Format:    getenv("MA_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("MA_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("MA_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// WithComponent returns the process logger tagged with a component name.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation tags l with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

// WithSlot tags l with a slot index.
func WithSlot(l *slog.Logger, index int) *slog.Logger { return l.With(slog.Int("slot", index)) }

// Discard returns a logger that drops every record.
func Discard() *slog.Logger { return slog.New(slog.DiscardHandler) }
