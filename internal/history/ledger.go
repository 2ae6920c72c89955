/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package history keeps a ledger of backup and restore runs in an embedded SQLite database
// at <data_dir>/.tasksphere/history.sqlite. The ledger is descriptive and disposable: an
// unreadable database is moved aside and recreated.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "tasksphere/internal/log"
	"tasksphere/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	DirName  = ".tasksphere"
	FileName = "history.sqlite"

	schemaVersion = 1
)

// Event kinds and statuses.
const (
	KindCreate  = "create"
	KindRestore = "restore"

	StatusOK    = "ok"
	StatusError = "error"
)

// Event is one backup or restore run.
type Event struct {
	ID       int64     `json:"id"`
	TS       time.Time `json:"ts"`
	Kind     string    `json:"kind"`
	Filename string    `json:"filename,omitempty"`
	Files    []string  `json:"files"`
	Location string    `json:"location,omitempty"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
}

// Ledger wraps the history database.
type Ledger struct {
	db   *sql.DB
	path string
}

// Path returns the ledger database path for a data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, DirName, FileName)
}

// Open opens or creates the ledger, recreating it when the existing file is unusable.
func Open(dataDir string) (*Ledger, error) {
	l := applog.WithOperation(applog.WithComponent("history"), "open").With(slog.String("dir", dataDir))
	if strings.TrimSpace(dataDir) == "" {
		return nil, errors.New("data directory is required")
	}
	path := Path(dataDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create %s dir: %w", DirName, err)
	}
	db, err := openDB(path)
	if err == nil {
		return &Ledger{db: db, path: path}, nil
	}
	l.Warn("history database unusable, recreating", slog.Any("err", err))
	moveAside(path)
	db, err = openDB(path)
	if err != nil {
		l.Error("history database open failed", slog.Any("err", err))
		return nil, err
	}
	return &Ledger{db: db, path: path}, nil
}

func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	var chk string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check;").Scan(&chk); err != nil || !strings.EqualFold(strings.TrimSpace(chk), "ok") {
		_ = db.Close()
		return nil, fmt.Errorf("quick_check failed: %q %v", chk, err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS backup_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			ts        TEXT NOT NULL,
			kind      TEXT NOT NULL,
			filename  TEXT NOT NULL DEFAULT '',
			files     TEXT NOT NULL DEFAULT '[]',
			location  TEXT NOT NULL DEFAULT '',
			status    TEXT NOT NULL,
			error     TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_backup_events_ts ON backup_events(ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// moveAside renames the database and its WAL files to timestamped .bak names.
func moveAside(path string) {
	stamp := time.Now().Format("20060102-150405")
	for _, suffix := range []string{"", "-wal", "-shm"} {
		p := path + suffix
		if _, err := os.Stat(p); err == nil {
			_ = os.Rename(p, fmt.Sprintf("%s.%s.bak", p, stamp))
		}
	}
}

// Close releases the database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
