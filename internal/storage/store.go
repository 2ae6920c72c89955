/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tasksphere/internal/domain"
	applog "tasksphere/internal/log"
)

// RecoveryDirName receives copies of unreadable collection files before they are overwritten.
const RecoveryDirName = ".recovery"

var (
	ErrUnknownEntityType = domain.ErrUnknownEntityType
	ErrDuplicateID       = errors.New("duplicate id")
	ErrInvalidCollection = errors.New("collection must be an array of objects")
)

// Store persists one JSON array per entity type under a data directory.
// Every mutation reads the whole collection, applies the change and rewrites the file.
type Store struct {
	dir   string
	locks *typeLocks
	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) Option { return func(s *Store) { s.newID = gen } }

// Open returns a Store rooted at dataDir, creating the directory if needed.
func Open(dataDir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		dir:   dataDir,
		locks: &typeLocks{dir: filepath.Join(dataDir, LocksDirName)},
		now:   time.Now,
		newID: uuid.NewString,
		log:   applog.WithComponent("storage").With(slog.String("dir", dataDir)),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the collection file for t.
func (s *Store) Path(t domain.EntityType) string { return filepath.Join(s.dir, t.FileName()) }

// GetAll returns the collection in file order. A missing or malformed file yields an empty collection.
func (s *Store) GetAll(t domain.EntityType) ([]*domain.Record, error) {
	c, err := s.load(t)
	if err != nil {
		return nil, err
	}
	return c.records, nil
}

// GetByID returns the first record whose id equals id.
func (s *Store) GetByID(t domain.EntityType, id string) (*domain.Record, bool, error) {
	recs, err := s.GetAll(t)
	if err != nil {
		return nil, false, err
	}
	if i := indexOf(recs, id); i >= 0 {
		return recs[i], true, nil
	}
	return nil, false, nil
}

// Create stores rec, assigning an id when none is supplied, and returns the stored record.
func (s *Store) Create(t domain.EntityType, rec *domain.Record) (*domain.Record, error) {
	if rec == nil {
		rec = domain.NewRecord()
	}
	item := rec.Clone()
	var out *domain.Record
	err := s.mutate(t, "create", func(recs []*domain.Record) ([]*domain.Record, bool, error) {
		if raw, ok := item.Get(domain.FieldID); !ok || isBlankID(raw) {
			item.SetString(domain.FieldID, s.newID())
		} else if hasID(recs, raw) {
			return nil, false, fmt.Errorf("%w: %s", ErrDuplicateID, raw)
		}
		ts := domain.Timestamp(s.now())
		if !item.Has(domain.FieldCreatedAt) {
			item.SetString(domain.FieldCreatedAt, ts)
		}
		item.SetString(domain.FieldUpdatedAt, ts)
		out = item
		return append(recs, item), true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update shallow-merges partial into the record with the given id. id and createdAt are never overwritten.
func (s *Store) Update(t domain.EntityType, id string, partial *domain.Record) (*domain.Record, bool, error) {
	var out *domain.Record
	err := s.mutate(t, "update", func(recs []*domain.Record) ([]*domain.Record, bool, error) {
		i := indexOf(recs, id)
		if i < 0 {
			return recs, false, nil
		}
		recs[i].Merge(partial, domain.FieldID, domain.FieldCreatedAt)
		recs[i].SetString(domain.FieldUpdatedAt, domain.Timestamp(s.now()))
		out = recs[i]
		return recs, true, nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Delete removes the record with the given id and reports whether anything was removed.
func (s *Store) Delete(t domain.EntityType, id string) (bool, error) {
	removed := false
	err := s.mutate(t, "delete", func(recs []*domain.Record) ([]*domain.Record, bool, error) {
		kept := recs[:0]
		for _, r := range recs {
			if matchesID(r, id) {
				removed = true
				continue
			}
			kept = append(kept, r)
		}
		return kept, removed, nil
	})
	return removed, err
}

// Collections maps entity types to their records. It marshals in canonical type order.
type Collections map[domain.EntityType][]*domain.Record

func (c Collections) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	first := true
	for _, t := range domain.EntityTypes() {
		recs, ok := c[t]
		if !ok {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&b, "%q:", string(t))
		if recs == nil {
			recs = []*domain.Record{}
		}
		enc := json.NewEncoder(&b)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(recs); err != nil {
			return nil, err
		}
		b.Truncate(b.Len() - 1)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// ExportAll snapshots all five collections.
func (s *Store) ExportAll() (Collections, error) {
	out := make(Collections, len(domain.EntityTypes()))
	for _, t := range domain.EntityTypes() {
		recs, err := s.GetAll(t)
		if err != nil {
			return nil, err
		}
		out[t] = recs
	}
	return out, nil
}

// ImportAll replaces, in document order, every collection whose value in doc is an array.
// Arrays are written as given (re-indented), without checking their elements.
// Unknown keys and non-array values are skipped. The first failure stops the import;
// collections already replaced stay replaced.
func (s *Store) ImportAll(doc []byte) error {
	l := applog.WithOperation(s.log, "import")
	dec := json.NewDecoder(bytes.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read import document: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("import document must be a JSON object")
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read import document: %w", err)
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("read %q: %w", key, err)
		}
		if len(raw) == 0 || raw[0] != '[' {
			l.Debug("skip non-array value", slog.String("key", key))
			continue
		}
		t, err := domain.ParseEntityType(key)
		if err != nil {
			l.Warn("skip unknown entity type", slog.String("key", key))
			continue
		}
		var b bytes.Buffer
		if err := json.Indent(&b, raw, "", "  "); err != nil {
			return fmt.Errorf("import %s: %w", t, err)
		}
		if err := s.WriteRaw(t, b.Bytes()); err != nil {
			return fmt.Errorf("import %s: %w", t, err)
		}
		l.Info("collection replaced", slog.String("type", string(t)), slog.Int("bytes", b.Len()))
	}
	return nil
}

// ClearAll deletes the backing file of every entity type.
func (s *Store) ClearAll() error {
	for _, t := range domain.EntityTypes() {
		if err := s.withLock(t, func() error {
			err := os.Remove(s.Path(t))
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			return nil
		}); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	s.log.Info("all collections cleared")
	return nil
}

// ReadRaw returns the collection file bytes verbatim; ok is false when the file does not exist.
func (s *Store) ReadRaw(t domain.EntityType) ([]byte, bool, error) {
	if !t.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownEntityType, string(t))
	}
	data, err := os.ReadFile(s.Path(t))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", t.FileName(), err)
	}
	return data, true, nil
}

// WriteRaw replaces the collection file with data verbatim.
func (s *Store) WriteRaw(t domain.EntityType, data []byte) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEntityType, string(t))
	}
	return s.withLock(t, func() error {
		c, err := s.load(t)
		if err != nil {
			return err
		}
		if c.corrupt {
			s.preserve(t)
		}
		return atomicWrite(s.Path(t), data)
	})
}

type collection struct {
	records []*domain.Record
	corrupt bool
}

func (s *Store) load(t domain.EntityType) (collection, error) {
	if !t.Valid() {
		return collection{}, fmt.Errorf("%w: %q", ErrUnknownEntityType, string(t))
	}
	data, err := os.ReadFile(s.Path(t))
	if errors.Is(err, os.ErrNotExist) {
		return collection{records: []*domain.Record{}}, nil
	}
	if err != nil {
		return collection{}, fmt.Errorf("read %s: %w", t.FileName(), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return collection{records: []*domain.Record{}}, nil
	}
	recs, err := decodeCollection(data)
	if err != nil {
		s.log.Warn("malformed collection treated as empty", slog.String("type", string(t)), slog.Any("err", err))
		return collection{records: []*domain.Record{}, corrupt: true}, nil
	}
	return collection{records: recs}, nil
}

// mutate runs fn on the current collection under the type lock and persists the result when fn reports a change.
func (s *Store) mutate(t domain.EntityType, op string, fn func([]*domain.Record) ([]*domain.Record, bool, error)) error {
	return s.withLock(t, func() error {
		c, err := s.load(t)
		if err != nil {
			return err
		}
		recs, changed, err := fn(c.records)
		if err != nil || !changed {
			return err
		}
		if c.corrupt {
			s.preserve(t)
		}
		if err := s.write(t, recs); err != nil {
			return err
		}
		s.log.Debug("collection written", slog.String("op", op), slog.String("type", string(t)), slog.Int("records", len(recs)))
		return nil
	})
}

func (s *Store) withLock(t domain.EntityType, fn func() error) error {
	release, err := s.locks.acquire(t)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (s *Store) write(t domain.EntityType, recs []*domain.Record) error {
	data, err := encodeCollection(recs)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.FileName(), err)
	}
	return atomicWrite(s.Path(t), data)
}

// preserve copies an unreadable collection file aside before it gets overwritten.
func (s *Store) preserve(t domain.EntityType) {
	stamp := s.now().UTC().Format("20060102-150405.000000000")
	dst := filepath.Join(s.dir, RecoveryDirName, fmt.Sprintf("%s.%s.corrupt", t.FileName(), stamp))
	if err := copyFile(s.Path(t), dst); err != nil {
		s.log.Error("preserve malformed collection failed", slog.String("type", string(t)), slog.Any("err", err))
		return
	}
	s.log.Warn("malformed collection preserved", slog.String("type", string(t)), slog.String("path", dst))
}

func decodeCollection(data []byte) ([]*domain.Record, error) {
	var recs []*domain.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r == nil {
			return nil, ErrInvalidCollection
		}
	}
	if recs == nil {
		recs = []*domain.Record{}
	}
	return recs, nil
}

// encodeCollection renders recs as a 2-space indented array without HTML or non-ASCII escaping.
func encodeCollection(recs []*domain.Record) ([]byte, error) {
	if recs == nil {
		recs = []*domain.Record{}
	}
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

func indexOf(recs []*domain.Record, id string) int {
	for i, r := range recs {
		if matchesID(r, id) {
			return i
		}
	}
	return -1
}

// matchesID reports whether r carries id as a JSON string; "" matches only an explicit empty id.
func matchesID(r *domain.Record, id string) bool {
	v, ok := r.String(domain.FieldID)
	return ok && v == id
}

func hasID(recs []*domain.Record, id json.RawMessage) bool {
	for _, r := range recs {
		if v, ok := r.Get(domain.FieldID); ok && bytes.Equal(compact(v), compact(id)) {
			return true
		}
	}
	return false
}

func isBlankID(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) == 0 || string(v) == "null" || string(v) == `""`
}

func compact(raw json.RawMessage) []byte {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return raw
	}
	return b.Bytes()
}
