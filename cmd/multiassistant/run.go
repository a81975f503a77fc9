/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"multiassistant/internal/config"
	"multiassistant/internal/host"
	"multiassistant/internal/state"
)

const headlessHelp = `commands:
  switch N        show slot N (1-based)
  next            cycle with the configured filter
  next-persisted  cycle among kept slots only
  zoom+ zoom- zoom0
  reload          reload the active slot
  status          print every slot
  journal [N]     last N lifecycle events (default 10)
  quit`

// errQuit ends the headless loop.
var errQuit = errors.New("quit")

// controller is the part of the host the headless runner drives.
type controller interface {
	SwitchTo(slot int) error
	Cycle() (int, error)
	CycleToNext(persistOnly bool) (int, error)
	ZoomIn() (float64, error)
	ZoomOut() (float64, error)
	ActualSize() (float64, error)
	Refresh() error
	Status() (host.Status, error)
	Journal(limit int) ([]state.Event, error)
}

// runHeadless reads one command per line from in until EOF, quit or ctx ends.
func runHeadless(ctx context.Context, c controller, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
		close(lines)
	}()
	_, _ = fmt.Fprintln(out, "ready (type help)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			err := execCommand(c, line, out)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				_, _ = fmt.Fprintln(out, "error:", err)
			}
		}
	}
}

func execCommand(c controller, line string, out io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])
	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		_, _ = fmt.Fprintln(out, headlessHelp)
		return nil
	case "switch":
		if len(fields) != 2 {
			return fmt.Errorf("usage: switch N")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("slot number: %w", err)
		}
		if err := c.SwitchTo(n - 1); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "active %d\n", n)
		return nil
	case "next", "next-persisted":
		var next int
		var err error
		if cmd == "next" {
			next, err = c.Cycle()
		} else {
			next, err = c.CycleToNext(true)
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "active %d\n", next+1)
		return nil
	case "zoom+", "zoom-", "zoom0":
		var z float64
		var err error
		switch cmd {
		case "zoom+":
			z, err = c.ZoomIn()
		case "zoom-":
			z, err = c.ZoomOut()
		default:
			z, err = c.ActualSize()
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "zoom %d%%\n", int(z*100+0.5))
		return nil
	case "reload":
		return c.Refresh()
	case "status":
		st, err := c.Status()
		if err != nil {
			return err
		}
		printStatus(out, st)
		return nil
	case "journal":
		n := 10
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return fmt.Errorf("usage: journal [N]")
			}
			n = v
		}
		evs, err := c.Journal(n)
		if err != nil {
			return err
		}
		printJournal(out, evs)
		return nil
	default:
		return fmt.Errorf("unknown command %q (type help)", fields[0])
	}
}

func printStatus(out io.Writer, st host.Status) {
	delay := "never"
	if st.UnloadDelay > 0 {
		delay = st.UnloadDelay.String()
	}
	_, _ = fmt.Fprintf(out, "unload delay %s, cycle persisted only %v, views created %d\n",
		delay, st.CyclePersistedOnly, st.Views.Created)
	for _, s := range st.Slots {
		if !s.Enabled {
			continue
		}
		mark := " "
		if s.Active {
			mark = "*"
		}
		state := "unloaded"
		if s.Loaded {
			state = "loaded"
		}
		line := fmt.Sprintf("%s %2d %-12s %-8s zoom %3d%%", mark, s.Index+1, s.Label, state, int(s.Zoom*100+0.5))
		if s.Persist {
			line += " kept"
		}
		if !s.UnloadAt.IsZero() {
			line += " unload at " + s.UnloadAt.Format("15:04:05")
		}
		_, _ = fmt.Fprintln(out, line)
	}
}

func printJournal(out io.Writer, evs []state.Event) {
	if len(evs) == 0 {
		_, _ = fmt.Fprintln(out, "journal empty")
		return
	}
	for _, ev := range evs {
		line := fmt.Sprintf("%s slot %2d %s", ev.At.Local().Format("15:04:05"), ev.Slot+1, ev.Kind)
		if ev.Detail != "" {
			line += " (" + ev.Detail + ")"
		}
		_, _ = fmt.Fprintln(out, line)
	}
}

func printConfig(out io.Writer, cfg config.AppConfig) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	for _, key := range config.Overridden() {
		env, _ := config.EnvOverrideFor(key)
		_, _ = fmt.Fprintf(out, "# %s comes from %s\n", key, env)
	}
	return nil
}

func printSlots(out io.Writer, cfg config.AppConfig) {
	for i, s := range cfg.SlotConfigs() {
		flags := []string{}
		if s.Enabled {
			flags = append(flags, "enabled")
		}
		if s.Persist {
			flags = append(flags, "kept")
		}
		u := s.URL
		if u == "" {
			u = "-"
		}
		_, _ = fmt.Fprintf(out, "%2d  %-12s %-40s %s\n", i+1, s.Label, u, strings.Join(flags, ","))
	}
}
