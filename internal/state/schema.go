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
	"database/sql"
	"fmt"
)

// migrations[i] moves the schema from version i to i+1. Append only.
var migrations = [][]string{
	{
		`CREATE TABLE meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE slot_state (
			slot        INTEGER PRIMARY KEY,
			zoom        REAL NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE TABLE view_events (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			slot    INTEGER NOT NULL,
			kind    TEXT NOT NULL,
			detail  TEXT NOT NULL DEFAULT '',
			at      TEXT NOT NULL
		)`,
	},
	{
		`CREATE INDEX idx_view_events_at ON view_events(at)`,
		`CREATE INDEX idx_view_events_slot ON view_events(slot)`,
	},
}

// schemaVersion is the version a freshly opened database ends at.
var schemaVersion = len(migrations)

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// migrate runs the missing steps, one transaction each, and reports the versions before and after.
func migrate(ctx context.Context, db *sql.DB) (from, to int, err error) {
	from, err = userVersion(ctx, db)
	if err != nil {
		return 0, 0, err
	}
	if from > schemaVersion {
		return from, from, fmt.Errorf("state schema %d is newer than this build (%d)", from, schemaVersion)
	}
	for v := from; v < schemaVersion; v++ {
		if err := step(ctx, db, v); err != nil {
			return from, v, err
		}
	}
	return from, schemaVersion, nil
}

func step(ctx context.Context, db *sql.DB, v int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: %w", v+1, err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, q := range migrations[v] {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}
	// PRAGMA does not take bound parameters
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
		return fmt.Errorf("migration %d: set version: %w", v+1, err)
	}
	return tx.Commit()
}

func setMeta(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
