/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package state

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"multiassistant/internal/version"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", FileName))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenMigratesToCurrentSchema(t *testing.T) {
	s := openTemp(t)
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("schema = %d, want %d", v, schemaVersion)
	}
	var app string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key=?`, keyAppVersion).Scan(&app); err != nil || app != version.String() {
		t.Fatalf("app version = %q, %v", app, err)
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	if _, err := Open(path); err == nil || !strings.Contains(err.Error(), "newer than this build") {
		t.Fatalf("Open on newer schema = %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ctx := context.Background()
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveZoom(ctx, 3, 1.4); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveActive(ctx, 3); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	z, err := s2.LoadZooms(ctx)
	if err != nil || z[3] != 1.4 {
		t.Fatalf("LoadZooms = %v, %v", z, err)
	}
	a, ok, err := s2.LoadActive(ctx)
	if err != nil || !ok || a != 3 {
		t.Fatalf("LoadActive = (%d, %v, %v)", a, ok, err)
	}
}

func TestSaveZoomUpserts(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	_ = s.SaveZoom(ctx, 0, 1.1)
	_ = s.SaveZoom(ctx, 0, 0.9)
	_ = s.SaveZoom(ctx, 7, 2)
	z, err := s.LoadZooms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(z) != 2 || z[0] != 0.9 || z[7] != 2 {
		t.Fatalf("zooms = %v", z)
	}
}

func TestLoadActiveWhenUnset(t *testing.T) {
	s := openTemp(t)
	if _, ok, err := s.LoadActive(context.Background()); err != nil || ok {
		t.Fatalf("LoadActive on empty db = ok %v err %v", ok, err)
	}
}

func TestEventJournal(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	for i, kind := range []string{"created", "unloaded", "terminated", "created"} {
		if err := s.RecordEvent(ctx, Event{Slot: i, Kind: kind}); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}
	evs, err := s.RecentEvents(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Slot != 3 || evs[1].Kind != "terminated" {
		t.Fatalf("RecentEvents = %+v", evs)
	}
	if evs[0].At.IsZero() {
		t.Fatalf("timestamp not parsed")
	}
	n, err := s.PruneEvents(ctx, 1)
	if err != nil || n != 3 {
		t.Fatalf("PruneEvents = %d, %v", n, err)
	}
	evs, _ = s.RecentEvents(ctx, 10)
	if len(evs) != 1 || evs[0].Slot != 3 {
		t.Fatalf("after prune = %+v", evs)
	}
}
