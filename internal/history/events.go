/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package history

import (
	"context"
	"encoding/json"
	"time"
)

// language=SQL
// dialect=SQLite
const insertEventSQL = `INSERT INTO backup_events(ts, kind, filename, files, location, status, error) VALUES (?, ?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const listEventsSQL = `SELECT id, ts, kind, filename, files, location, status, error FROM backup_events ORDER BY id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneEventsSQL = `DELETE FROM backup_events WHERE id NOT IN (
	SELECT id FROM backup_events ORDER BY id DESC LIMIT ?
)`

// Record appends ev to the ledger and returns its id. A zero TS is stamped with the current time.
func (l *Ledger) Record(ctx context.Context, ev Event) (int64, error) {
	if ev.TS.IsZero() {
		ev.TS = time.Now()
	}
	files := ev.Files
	if files == nil {
		files = []string{}
	}
	fj, err := json.Marshal(files)
	if err != nil {
		return 0, err
	}
	res, err := l.db.ExecContext(ctx, insertEventSQL, ev.TS.UTC().Format(time.RFC3339Nano), ev.Kind, ev.Filename, string(fj), ev.Location, ev.Status, ev.Error)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// List returns up to limit events, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, listEventsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []Event{}
	for rows.Next() {
		var ev Event
		var ts, files string
		if err := rows.Scan(&ev.ID, &ts, &ev.Kind, &ev.Filename, &files, &ev.Location, &ev.Status, &ev.Error); err != nil {
			return nil, err
		}
		ev.TS, _ = time.Parse(time.RFC3339Nano, ts)
		if err := json.Unmarshal([]byte(files), &ev.Files); err != nil || ev.Files == nil {
			ev.Files = []string{}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Prune keeps at most keepLast events and deletes older ones.
func (l *Ledger) Prune(ctx context.Context, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := l.db.ExecContext(ctx, pruneEventsSQL, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
