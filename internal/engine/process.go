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
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"multiassistant/internal/lifecycle"
	applog "multiassistant/internal/log"
)

// URLPlaceholder is replaced by the view URL in a process command template.
const URLPlaceholder = "{url}"

// ErrNoCommand is returned for an empty command template.
var ErrNoCommand = errors.New("engine command is empty")

// Process runs every view as its own external browser process, e.g. `chromium --app={url}`.
// The process dying without Close being called is reported as a content process termination.
type Process struct {
	argv []string
	log  *slog.Logger
}

// NewProcess parses a whitespace separated command template. The template must contain {url}
// somewhere; if it does not, the URL is appended as the last argument.
func NewProcess(template string) (*Process, error) {
	argv := strings.Fields(template)
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}
	found := false
	for _, a := range argv {
		if strings.Contains(a, URLPlaceholder) {
			found = true
			break
		}
	}
	if !found {
		argv = append(argv, URLPlaceholder)
	}
	return &Process{argv: argv, log: applog.WithComponent("engine")}, nil
}

// Args returns the command line used for url.
func (p *Process) Args(url string) []string {
	out := make([]string, len(p.argv))
	for i, a := range p.argv {
		out[i] = strings.ReplaceAll(a, URLPlaceholder, url)
	}
	return out
}

func (p *Process) Create(spec lifecycle.ViewSpec) (lifecycle.View, error) {
	v := &processView{engine: p, spec: spec}
	if err := v.start(spec.URL); err != nil {
		return nil, err
	}
	return v, nil
}

type processView struct {
	engine *Process
	spec   lifecycle.ViewSpec

	mu     sync.Mutex
	cmd    *exec.Cmd
	done   chan struct{}
	url    string
	closed bool
}

func (v *processView) ID() string { return v.spec.ID }

// start launches a process for url. Callers hold no lock.
func (v *processView) start(url string) error {
	args := v.engine.Args(url)
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", args[0], err)
	}
	done := make(chan struct{})
	v.mu.Lock()
	v.cmd = cmd
	v.done = done
	v.url = url
	v.mu.Unlock()
	v.engine.log.Debug("view process started", slog.Int("slot", v.spec.Slot), slog.Int("pid", cmd.Process.Pid))
	go v.wait(cmd, done)
	v.notify(lifecycle.Event{Kind: lifecycle.NavigationFinished, Slot: v.spec.Slot, ViewID: v.spec.ID})
	return nil
}

func (v *processView) wait(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	close(done)
	v.mu.Lock()
	expected := v.closed || v.cmd != cmd
	v.mu.Unlock()
	if expected {
		return
	}
	v.engine.log.Warn("view process exited", slog.Int("slot", v.spec.Slot), slog.Any("err", err))
	v.notify(lifecycle.Event{Kind: lifecycle.ContentProcessTerminated, Slot: v.spec.Slot, ViewID: v.spec.ID, Err: err})
}

// stop kills the current process and waits for it. The caller must have made the exit expected
// (closed set or cmd about to be replaced).
func (v *processView) stop(cmd *exec.Cmd, done chan struct{}) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	<-done
}

// Navigate restarts the process on url; an external browser cannot be steered once launched.
func (v *processView) Navigate(url string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errClosed
	}
	cmd, done := v.cmd, v.done
	v.cmd = nil
	v.mu.Unlock()
	v.stop(cmd, done)
	if err := v.start(url); err != nil {
		// the old process is gone, so the view is dead until the manager replaces it
		v.engine.log.Warn("view process restart failed", slog.Int("slot", v.spec.Slot), slog.Any("err", err))
		v.notify(lifecycle.Event{Kind: lifecycle.ContentProcessTerminated, Slot: v.spec.Slot, ViewID: v.spec.ID, Err: err})
		return err
	}
	return nil
}

func (v *processView) Reload() error {
	v.mu.Lock()
	url := v.url
	v.mu.Unlock()
	return v.Navigate(url)
}

func (v *processView) Eval(string) error {
	return fmt.Errorf("process view: %w", errors.ErrUnsupported)
}

func (v *processView) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	cmd, done := v.cmd, v.done
	v.mu.Unlock()
	v.stop(cmd, done)
	return nil
}

func (v *processView) notify(ev lifecycle.Event) {
	if v.spec.Notify != nil {
		go v.spec.Notify(ev)
	}
}
