/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backup packs selected collections of a data directory into a zip archive and
// restores them again. Collection files travel as opaque bytes, so a backup followed by a
// restore reproduces the files byte for byte.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tasksphere/internal/archive"
	"tasksphere/internal/blob"
	"tasksphere/internal/domain"
	"tasksphere/internal/history"
	applog "tasksphere/internal/log"
	"tasksphere/internal/metrics"
	"tasksphere/internal/storage"
)

const (
	ManifestName   = "backup_info.json"
	FormatVersion  = "1.0.0"
	AppName        = "TaskSphere"
	FilenamePrefix = "tasksphere-backup-"
	filenameLayout = "20060102_150405"
	archiveType    = "application/zip"
)

// Manifest describes an archive. It is informational only.
type Manifest struct {
	Timestamp     string   `json:"timestamp"`
	Version       string   `json:"version"`
	App           string   `json:"app"`
	Options       Options  `json:"options"`
	FilesIncluded []string `json:"files_included"`
}

// CreateResult is a freshly built archive.
type CreateResult struct {
	Filename string
	Data     []byte
	Manifest Manifest
	Location string // set when the archive was also put to the backup target
}

// RestoreResult lists the collection files that were replaced.
type RestoreResult struct {
	RestoredFiles []string
	Manifest      json.RawMessage // as found in the archive; {} when absent
}

// Service composes the storage engine, the archive codec and the optional backup target.
type Service struct {
	store   *storage.Store
	target  blob.Store
	ledger  *history.Ledger
	metrics *metrics.Recorder
	now     func() time.Time
	log     *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithTarget sets the blob store used by Create(store=true), RestoreFrom and List.
func WithTarget(t blob.Store) Option { return func(s *Service) { s.target = t } }

// WithLedger records every run in the history ledger.
func WithLedger(l *history.Ledger) Option { return func(s *Service) { s.ledger = l } }

// WithMetrics counts runs in m.
func WithMetrics(m *metrics.Recorder) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides the time source for manifest timestamps and file names.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService returns a Service over store.
func NewService(store *storage.Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now, log: applog.WithComponent("backup")}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create builds an archive of the selected collections that currently exist.
// With put set, the archive is also stored on the backup target under its file name.
func (s *Service) Create(ctx context.Context, opts Options, put bool) (res *CreateResult, err error) {
	start := time.Now()
	l := applog.WithOperation(s.log, "create")
	defer func() {
		s.metrics.Observe("create_backup", start, err)
		ev := history.Event{TS: start, Kind: history.KindCreate, Status: history.StatusOK}
		if res != nil {
			ev.Filename, ev.Files, ev.Location = res.Filename, res.Manifest.FilesIncluded, res.Location
		}
		if err != nil {
			ev.Status, ev.Error = history.StatusError, err.Error()
			l.Error("backup failed", slog.Any("err", err))
		}
		s.record(ctx, ev)
	}()

	if put && s.target == nil {
		return nil, blob.ErrNotConfigured
	}
	now := s.now()
	type entry struct {
		name string
		data []byte
	}
	var entries []entry
	for _, t := range domain.EntityTypes() {
		if !opts.Includes(t) {
			continue
		}
		data, ok, err := s.store.ReadRaw(t)
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, entry{name: t.FileName(), data: data})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := Manifest{
		Timestamp:     domain.Timestamp(now),
		Version:       FormatVersion,
		App:           AppName,
		Options:       opts,
		FilesIncluded: make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		m.FilesIncluded = append(m.FilesIncluded, e.name)
	}
	w := archive.NewWriter(now)
	if err := w.AddJSON(ManifestName, m); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := w.Add(e.name, e.data); err != nil {
			return nil, err
		}
	}
	data, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	res = &CreateResult{Filename: FilenamePrefix + now.Format(filenameLayout) + ".zip", Data: data, Manifest: m}
	s.metrics.BackupSize(len(data))

	if put {
		info, err := s.target.Put(ctx, res.Filename, bytes.NewReader(data), blob.PutOptions{ContentType: archiveType})
		if err != nil {
			return res, fmt.Errorf("store archive: %w", err)
		}
		res.Location = fmt.Sprintf("%s:%s", s.target.Driver(), info.Key)
	}
	l.Info("backup created", slog.String("filename", res.Filename), slog.Int("bytes", len(data)),
		slog.Any("files", m.FilesIncluded), slog.String("location", res.Location))
	return res, nil
}

// Restore extracts the archive into a scratch directory, then replaces every selected
// collection that the archive contains. Collections not selected or not archived stay untouched.
func (s *Service) Restore(ctx context.Context, data []byte, opts Options) (res *RestoreResult, err error) {
	start := time.Now()
	l := applog.WithOperation(s.log, "restore")
	defer func() {
		s.metrics.Observe("restore_backup", start, err)
		ev := history.Event{TS: start, Kind: history.KindRestore, Status: history.StatusOK}
		if res != nil {
			ev.Files = res.RestoredFiles
		}
		if err != nil {
			ev.Status, ev.Error = history.StatusError, err.Error()
			l.Error("restore failed", slog.Any("err", err))
		}
		s.record(ctx, ev)
	}()

	scratch, err := os.MkdirTemp("", "tasksphere-restore-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	if _, err := archive.Extract(data, scratch); err != nil {
		return nil, err
	}
	manifest := json.RawMessage("{}")
	if b, err := os.ReadFile(filepath.Join(scratch, ManifestName)); err == nil {
		if !json.Valid(b) {
			return nil, fmt.Errorf("%s is not valid JSON", ManifestName)
		}
		manifest = b
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", ManifestName, err)
	}

	res = &RestoreResult{RestoredFiles: []string{}, Manifest: manifest}
	for _, t := range domain.EntityTypes() {
		if !opts.Includes(t) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		b, err := os.ReadFile(filepath.Join(scratch, t.FileName()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("read archived %s: %w", t.FileName(), err)
		}
		if err := s.store.WriteRaw(t, b); err != nil {
			return res, fmt.Errorf("restore %s: %w", t.FileName(), err)
		}
		res.RestoredFiles = append(res.RestoredFiles, t.FileName())
	}
	l.Info("backup restored", slog.Any("files", res.RestoredFiles))
	return res, nil
}

// RestoreFrom restores the archive stored on the backup target under key.
func (s *Service) RestoreFrom(ctx context.Context, key string, opts Options) (*RestoreResult, error) {
	if s.target == nil {
		return nil, blob.ErrNotConfigured
	}
	_, rc, err := s.target.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(io.LimitReader(rc, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", key, err)
	}
	if len(data) > maxArchiveSize {
		return nil, fmt.Errorf("archive %s exceeds %d bytes", key, maxArchiveSize)
	}
	return s.Restore(ctx, data, opts)
}

// List returns the archives stored on the backup target.
func (s *Service) List(ctx context.Context) ([]blob.Info, error) {
	if s.target == nil {
		return nil, blob.ErrNotConfigured
	}
	infos, err := s.target.List(ctx, FilenamePrefix)
	if err != nil {
		return nil, err
	}
	if infos == nil {
		infos = []blob.Info{}
	}
	return infos, nil
}

const (
	maxArchiveSize = 1 << 30
	historyKeep    = 1000
)

func (s *Service) record(ctx context.Context, ev history.Event) {
	if s.ledger == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if _, err := s.ledger.Record(ctx, ev); err != nil {
		s.log.Warn("history record failed", slog.Any("err", err))
		return
	}
	if _, err := s.ledger.Prune(ctx, historyKeep); err != nil {
		s.log.Warn("history prune failed", slog.Any("err", err))
	}
}
