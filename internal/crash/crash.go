/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a crash report file plus a best-effort save of runtime state.
package crash

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	applog "multiassistant/internal/log"
	"multiassistant/internal/telemetry"
	"multiassistant/internal/version"
)

// ExitCode is the process status after a recovered panic.
const ExitCode = 2

// Replaced in tests.
var (
	exitFn           = os.Exit
	stderr io.Writer = os.Stderr
)

// Options tells Recover where to write and what to save.
type Options struct {
	// Dir receives the report; empty means the system temp dir.
	Dir string
	// Describe summarizes the shell state (active slot, live views) for the report.
	Describe func() string
	// Flush persists whatever state can still be saved.
	Flush func() error
}

// Report is the content of one crash file.
type Report struct {
	ID    string
	Time  time.Time
	Panic any
	State string
	Stack []byte
}

// NewReport captures the current goroutine's stack for v.
func NewReport(v any, state string) Report {
	return Report{ID: uuid.NewString(), Time: time.Now(), Panic: v, State: state, Stack: debug.Stack()}
}

// FileName is crash-<local time>-<first id block>.log.
func (r Report) FileName() string {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("crash-%s-%s.log", r.Time.Format("20060102-150405"), id)
}

// Bytes renders the report as plain text.
func (r Report) Bytes() []byte {
	var b bytes.Buffer
	b.WriteString("MultiAssistant Crash Report\n")
	fmt.Fprintf(&b, "ID: %s\n", r.ID)
	fmt.Fprintf(&b, "Timestamp: %s\n", r.Time.Format(time.RFC3339))
	fmt.Fprintf(&b, "Version: %s\n", version.String())
	fmt.Fprintf(&b, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if r.State != "" {
		fmt.Fprintf(&b, "State: %s\n", r.State)
	}
	fmt.Fprintf(&b, "\nPanic: %v\n\nStack:\n%s\n", r.Panic, r.Stack)
	return b.Bytes()
}

// Save writes r into dir and hands it to telemetry, which uploads only when the user opted in.
func Save(dir string, r Report) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("crash dir: %w", err)
	}
	path := filepath.Join(dir, r.FileName())
	body := r.Bytes()
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return path, fmt.Errorf("write crash report: %w", err)
	}
	telemetry.UploadCrash(body)
	return path, nil
}

// Recover must be deferred directly: defer crash.Recover(opts).
// On a panic it saves a report, runs Flush and exits with ExitCode.
func Recover(opts Options) {
	v := recover()
	if v == nil {
		return
	}
	l := applog.WithComponent("crash")
	rep := NewReport(v, safeDescribe(opts.Describe))
	l.Error("panic recovered", slog.String("id", rep.ID), slog.Any("panic", v), slog.String("stack", string(rep.Stack)))

	path, err := Save(opts.Dir, rep)
	if err != nil {
		l.Error("save crash report failed", slog.Any("err", err))
	}
	if opts.Flush != nil {
		if err := opts.Flush(); err != nil {
			l.Error("flush state after panic failed", slog.Any("err", err))
		} else {
			l.Info("state flushed after panic")
		}
	}
	_, _ = fmt.Fprintf(stderr, "MultiAssistant stopped after an internal error.\nReport: %s\nVersion: %s (%s/%s)\n",
		path, version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(ExitCode)
}

// safeDescribe calls fn, which may itself panic on broken state.
func safeDescribe(fn func() string) (s string) {
	if fn == nil {
		return ""
	}
	defer func() {
		if v := recover(); v != nil {
			s = fmt.Sprintf("<unavailable: %v>", v)
		}
	}()
	return fn()
}
