/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package state persists runtime state that is not user configuration: per-slot zoom, the last
// active slot and a journal of view lifecycle events. It is a single SQLite file.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "multiassistant/internal/log"
	"multiassistant/internal/version"

	_ "modernc.org/sqlite"
)

const (
	FileName = "state.sqlite"

	keyActiveSlot = "active_slot"
	keyAppVersion = "app_version"
)

// Store is a handle on the state database. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// Event is one journal row.
type Event struct {
	ID     int64
	Slot   int
	Kind   string
	Detail string
	At     time.Time
}

// Open creates or opens the database at path, enables WAL and brings the schema up to date.
func Open(path string) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("state"), "open").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// the journal is written from one goroutine at a time anyway
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	from, to, err := migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		l.Error("schema migration failed", slog.Int("from", from), slog.Any("err", err))
		return nil, err
	}
	if from != to {
		l.Info("schema migrated", slog.Int("from", from), slog.Int("to", to))
	}
	if err := setMeta(ctx, db, keyAppVersion, version.String()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, log: applog.WithComponent("state")}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SchemaVersion returns the schema version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) { return userVersion(ctx, s.db) }

// SaveZoom stores the zoom factor of slot.
func (s *Store) SaveZoom(ctx context.Context, slot int, zoom float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slot_state (slot, zoom, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET zoom=excluded.zoom, updated_at=excluded.updated_at`,
		slot, zoom, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save zoom slot %d: %w", slot, err)
	}
	return nil
}

// LoadZooms returns every stored zoom factor keyed by slot.
func (s *Store) LoadZooms(ctx context.Context) (map[int]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot, zoom FROM slot_state ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("load zooms: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make(map[int]float64)
	for rows.Next() {
		var slot int
		var zoom float64
		if err := rows.Scan(&slot, &zoom); err != nil {
			return nil, fmt.Errorf("scan zoom: %w", err)
		}
		out[slot] = zoom
	}
	return out, rows.Err()
}

// SaveActive remembers the active slot for the next start.
func (s *Store) SaveActive(ctx context.Context, slot int) error {
	return setMeta(ctx, s.db, keyActiveSlot, strconv.Itoa(slot))
}

// LoadActive returns the remembered active slot; ok is false when none was stored.
func (s *Store) LoadActive(ctx context.Context) (slot int, ok bool, err error) {
	var v string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, keyActiveSlot).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load active slot: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.log.Warn("stored active slot is not a number", slog.String("value", v))
		return 0, false, nil
	}
	return n, true, nil
}

// RecordEvent appends an entry to the lifecycle journal. A zero At means now.
func (s *Store) RecordEvent(ctx context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO view_events (slot, kind, detail, at) VALUES(?, ?, ?, ?)`,
		ev.Slot, ev.Kind, ev.Detail, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit journal entries, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, slot, kind, detail, at FROM view_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var ev Event
		var at string
		if err := rows.Scan(&ev.ID, &ev.Slot, &ev.Kind, &ev.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneEvents keeps the newest keep entries and returns how many were deleted.
func (s *Store) PruneEvents(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM view_events WHERE id NOT IN (SELECT id FROM view_events ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
