/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"tasksphere/internal/backup"
	"tasksphere/internal/blob"
	"tasksphere/internal/domain"
	"tasksphere/internal/history"
	"tasksphere/internal/metrics"
	"tasksphere/internal/storage"
	"tasksphere/internal/version"
)

const (
	maxRecordBody  = 16 << 20
	maxArchiveBody = 1 << 30
)

type api struct {
	store   *storage.Store
	backups *backup.Service
	ledger  *history.Ledger
	metrics *metrics.Recorder
	addr    string
	log     *slog.Logger
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.health)

	mux.HandleFunc("GET /api/backup/export", a.exportAll)
	mux.HandleFunc("POST /api/backup/import", a.importAll)
	mux.HandleFunc("DELETE /api/backup/clear", a.clearAll)
	mux.HandleFunc("POST /api/backup/export-zip", a.exportZip)
	mux.HandleFunc("POST /api/backup/import-zip", a.importZip)
	mux.HandleFunc("GET /api/backup/list", a.listBackups)
	mux.HandleFunc("GET /api/backup/history", a.backupHistory)

	mux.HandleFunc("GET /api/{entityType}", a.list)
	mux.HandleFunc("POST /api/{entityType}", a.create)
	mux.HandleFunc("GET /api/{entityType}/{id}", a.get)
	mux.HandleFunc("PUT /api/{entityType}/{id}", a.update)
	mux.HandleFunc("DELETE /api/{entityType}/{id}", a.remove)

	mux.Handle("GET /metrics", a.metrics.Handler())
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "TaskSphere server is running",
		"version": version.String(),
		"addr":    a.addr,
	})
}

// entityType resolves the {entityType} path value, answering 404 itself when it is unknown.
func (a *api) entityType(w http.ResponseWriter, r *http.Request) (domain.EntityType, bool) {
	et, err := domain.ParseEntityType(r.PathValue("entityType"))
	if err != nil {
		writeErrorf(w, http.StatusNotFound, "Unknown entity type: %s", r.PathValue("entityType"))
		return "", false
	}
	return et, true
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	et, ok := a.entityType(w, r)
	if !ok {
		return
	}
	recs, err := a.store.GetAll(et)
	if err != nil {
		a.fail(w, r, err, "Failed to get data")
		return
	}
	if recs == nil {
		recs = []*domain.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *api) get(w http.ResponseWriter, r *http.Request) {
	et, ok := a.entityType(w, r)
	if !ok {
		return
	}
	rec, found, err := a.store.GetByID(et, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err, "Failed to get item")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) create(w http.ResponseWriter, r *http.Request) {
	et, ok := a.entityType(w, r)
	if !ok {
		return
	}
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	out, err := a.store.Create(et, rec)
	if errors.Is(err, storage.ErrDuplicateID) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		a.fail(w, r, err, "Failed to create item")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) update(w http.ResponseWriter, r *http.Request) {
	et, ok := a.entityType(w, r)
	if !ok {
		return
	}
	partial, ok := readRecord(w, r)
	if !ok {
		return
	}
	out, found, err := a.store.Update(et, r.PathValue("id"), partial)
	if err != nil {
		a.fail(w, r, err, "Failed to update item")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) remove(w http.ResponseWriter, r *http.Request) {
	et, ok := a.entityType(w, r)
	if !ok {
		return
	}
	deleted, err := a.store.Delete(et, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err, "Failed to delete item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": deleted})
}

func (a *api) exportAll(w http.ResponseWriter, r *http.Request) {
	all, err := a.store.ExportAll()
	if err != nil {
		a.fail(w, r, err, "Failed to export data")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (a *api) importAll(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArchiveBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if err := a.store.ImportAll(body); err != nil {
		a.fail(w, r, err, "Failed to import data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *api) clearAll(w http.ResponseWriter, r *http.Request) {
	if err := a.store.ClearAll(); err != nil {
		a.fail(w, r, err, "Failed to clear data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type exportZipRequest struct {
	Options json.RawMessage `json:"options"`
	Store   bool            `json:"store"`
}

func (a *api) exportZip(w http.ResponseWriter, r *http.Request) {
	var req exportZipRequest
	if !readJSON(w, r, maxRecordBody, &req) {
		return
	}
	opts, ok := parseOptions(w, req.Options)
	if !ok {
		return
	}
	res, err := a.backups.Create(r.Context(), opts, req.Store)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, backup.CreateResponse(nil, err))
		return
	}
	writeJSON(w, http.StatusOK, backup.CreateResponse(res, nil))
}

type importZipRequest struct {
	ZipData string          `json:"zipData"`
	Key     string          `json:"key"`
	Options json.RawMessage `json:"options"`
}

func (a *api) importZip(w http.ResponseWriter, r *http.Request) {
	var req importZipRequest
	if !readJSON(w, r, maxArchiveBody, &req) {
		return
	}
	if req.ZipData == "" && req.Key == "" {
		writeError(w, http.StatusBadRequest, "zipData or key is required")
		return
	}
	opts, ok := parseOptions(w, req.Options)
	if !ok {
		return
	}
	var (
		res *backup.RestoreResult
		err error
	)
	if req.ZipData != "" {
		var data []byte
		if data, err = backup.DecodeArchive(req.ZipData); err == nil {
			res, err = a.backups.Restore(r.Context(), data, opts)
		}
	} else {
		res, err = a.backups.RestoreFrom(r.Context(), req.Key, opts)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, backup.RestoreResponse(nil, err))
		return
	}
	writeJSON(w, http.StatusOK, backup.RestoreResponse(res, nil))
}

func (a *api) listBackups(w http.ResponseWriter, r *http.Request) {
	infos, err := a.backups.List(r.Context())
	if errors.Is(err, blob.ErrNotConfigured) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		a.fail(w, r, err, "Failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (a *api) backupHistory(w http.ResponseWriter, r *http.Request) {
	if a.ledger == nil {
		writeJSON(w, http.StatusOK, []history.Event{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	evs, err := a.ledger.List(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err, "Failed to read backup history")
		return
	}
	if evs == nil {
		evs = []history.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

// fail logs err and answers 500 with a generic message.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	a.log.ErrorContext(r.Context(), msg, slog.String("path", r.URL.Path), slog.Any("err", err))
	writeError(w, http.StatusInternalServerError, msg)
}

func readRecord(w http.ResponseWriter, r *http.Request) (*domain.Record, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRecordBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return nil, false
	}
	rec, err := domain.ParseRecord(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object")
		return nil, false
	}
	return rec, true
}

// readJSON decodes an optional JSON object body into v; an empty body leaves v untouched.
func readJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object")
		return false
	}
	return true
}

// parseOptions answers 400 itself for an invalid document; absent options select every type.
func parseOptions(w http.ResponseWriter, raw json.RawMessage) (backup.Options, bool) {
	opts, err := backup.ParseOptions(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return backup.Options{}, false
	}
	return opts, true
}
