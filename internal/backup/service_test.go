/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"tasksphere/internal/archive"
	"tasksphere/internal/blob"
	"tasksphere/internal/domain"
	"tasksphere/internal/history"
	"tasksphere/internal/storage"
)

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

func seed(t *testing.T, dir string) *storage.Store {
	t.Helper()
	st, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	files := map[domain.EntityType]string{
		domain.Projects: `[{"id":"p1","name":"Alpha"}]`,
		domain.Tasks:    `[{"id":"t1","title":"Write docs","projectId":"p1"}]`,
		domain.Notes:    `[{"id":"n1","body":"<b>raw</b>"}]`,
	}
	for et, body := range files {
		if err := st.WriteRaw(et, []byte(body)); err != nil {
			t.Fatalf("seed %s: %v", et, err)
		}
	}
	return st
}

func TestCreateFullBackup(t *testing.T) {
	st := seed(t, t.TempDir())
	svc := NewService(st, WithClock(func() time.Time { return fixedNow }))

	res, err := svc.Create(context.Background(), DefaultOptions(), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Filename != "tasksphere-backup-20240305_140709.zip" {
		t.Fatalf("filename = %q", res.Filename)
	}
	want := []string{"projects.json", "tasks.json", "notes.json"}
	if !reflect.DeepEqual(res.Manifest.FilesIncluded, want) {
		t.Fatalf("files = %v", res.Manifest.FilesIncluded)
	}
	entries, err := archive.ReadEntries(res.Data)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d", len(entries))
	}
	var m map[string]any
	if err := json.Unmarshal(entries[ManifestName], &m); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if m["timestamp"] != "2024-03-05T14:07:09.000Z" || m["version"] != FormatVersion || m["app"] != AppName {
		t.Fatalf("manifest = %v", m)
	}
	opts, _ := m["options"].(map[string]any)
	if len(opts) != 5 || opts["includeConnections"] != true {
		t.Fatalf("default options not recorded: %v", m["options"])
	}
	if string(entries["notes.json"]) != `[{"id":"n1","body":"<b>raw</b>"}]` {
		t.Fatalf("notes archived as %s", entries["notes.json"])
	}
}

func TestSelectiveBackupAndRestore(t *testing.T) {
	src := seed(t, t.TempDir())
	opts, err := ParseOptions([]byte(`{"includeTasks":true,"includeProjects":false,"includeNotes":false,"includeProjectSteps":false,"includeConnections":false}`))
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	res, err := NewService(src).Create(context.Background(), opts, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !reflect.DeepEqual(res.Manifest.FilesIncluded, []string{"tasks.json"}) {
		t.Fatalf("files = %v", res.Manifest.FilesIncluded)
	}

	dstDir := t.TempDir()
	dst, _ := storage.Open(dstDir)
	if err := dst.WriteRaw(domain.Projects, []byte(`[{"id":"keep"}]`)); err != nil {
		t.Fatalf("seed dst: %v", err)
	}
	out, err := NewService(dst).Restore(context.Background(), res.Data, DefaultOptions())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !reflect.DeepEqual(out.RestoredFiles, []string{"tasks.json"}) {
		t.Fatalf("restored = %v", out.RestoredFiles)
	}
	b, _ := os.ReadFile(filepath.Join(dstDir, "tasks.json"))
	if string(b) != `[{"id":"t1","title":"Write docs","projectId":"p1"}]` {
		t.Fatalf("tasks.json = %s", b)
	}
	b, _ = os.ReadFile(filepath.Join(dstDir, "projects.json"))
	if string(b) != `[{"id":"keep"}]` {
		t.Fatalf("projects.json touched: %s", b)
	}
	var info struct {
		Options map[string]bool `json:"options"`
	}
	if err := json.Unmarshal(out.Manifest, &info); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if v, ok := info.Options["includeProjects"]; !ok || v || !info.Options["includeTasks"] {
		t.Fatalf("options not carried: %v", info.Options)
	}
}

func TestRestoreHonoursOptions(t *testing.T) {
	res, err := NewService(seed(t, t.TempDir())).Create(context.Background(), DefaultOptions(), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dstDir := t.TempDir()
	dst, _ := storage.Open(dstDir)
	out, err := NewService(dst).Restore(context.Background(), res.Data, OptionsFor(domain.Notes))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !reflect.DeepEqual(out.RestoredFiles, []string{"notes.json"}) {
		t.Fatalf("restored = %v", out.RestoredFiles)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "projects.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("projects.json should not exist: %v", err)
	}
}

func TestRestoreWithoutManifest(t *testing.T) {
	w := archive.NewWriter(fixedNow)
	if err := w.Add("connections.json", []byte(`[]`)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Add("readme.txt", []byte("ignored")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	data, _ := w.Bytes()
	dst, _ := storage.Open(t.TempDir())
	out, err := NewService(dst).Restore(context.Background(), data, DefaultOptions())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if string(out.Manifest) != "{}" {
		t.Fatalf("manifest = %s", out.Manifest)
	}
	if !reflect.DeepEqual(out.RestoredFiles, []string{"connections.json"}) {
		t.Fatalf("restored = %v", out.RestoredFiles)
	}
}

func TestRestoreRejectsUnsafeArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, _ := zw.Create("../tasks.json")
	_, _ = f.Write([]byte(`[]`))
	_ = zw.Close()

	dir := t.TempDir()
	dst, _ := storage.Open(filepath.Join(dir, "data"))
	_, err := NewService(dst).Restore(context.Background(), buf.Bytes(), DefaultOptions())
	if !errors.Is(err, archive.ErrUnsafeEntry) {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tasks.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("entry escaped: %v", err)
	}
}

func TestRestoreCorruptArchive(t *testing.T) {
	dst, _ := storage.Open(t.TempDir())
	if _, err := NewService(dst).Restore(context.Background(), []byte("not a zip"), DefaultOptions()); err == nil {
		t.Fatal("expected error")
	}
}

func TestTargetRoundTrip(t *testing.T) {
	ctx := context.Background()
	target := blob.NewMemory()
	svc := NewService(seed(t, t.TempDir()), WithTarget(target), WithClock(func() time.Time { return fixedNow }))

	res, err := svc.Create(ctx, DefaultOptions(), true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Location != "memory:"+res.Filename {
		t.Fatalf("location = %q", res.Location)
	}
	infos, err := svc.List(ctx)
	if err != nil || len(infos) != 1 || infos[0].Key != res.Filename {
		t.Fatalf("List = %v, %v", infos, err)
	}
	if _, err := svc.Create(ctx, DefaultOptions(), true); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("second put in same second: %v", err)
	}

	dstDir := t.TempDir()
	dst, _ := storage.Open(dstDir)
	out, err := NewService(dst, WithTarget(target)).RestoreFrom(ctx, res.Filename, DefaultOptions())
	if err != nil {
		t.Fatalf("RestoreFrom: %v", err)
	}
	if len(out.RestoredFiles) != 3 {
		t.Fatalf("restored = %v", out.RestoredFiles)
	}
	if _, err := NewService(dst, WithTarget(target)).RestoreFrom(ctx, "missing.zip", DefaultOptions()); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("missing key: %v", err)
	}
}

func TestNoTargetConfigured(t *testing.T) {
	svc := NewService(seed(t, t.TempDir()))
	ctx := context.Background()
	if _, err := svc.Create(ctx, DefaultOptions(), true); !errors.Is(err, blob.ErrNotConfigured) {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.List(ctx); !errors.Is(err, blob.ErrNotConfigured) {
		t.Fatalf("List: %v", err)
	}
	if _, err := svc.RestoreFrom(ctx, "x.zip", DefaultOptions()); !errors.Is(err, blob.ErrNotConfigured) {
		t.Fatalf("RestoreFrom: %v", err)
	}
}

func TestLedgerRecordsOperations(t *testing.T) {
	dir := t.TempDir()
	ledger, err := history.Open(dir)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer func() { _ = ledger.Close() }()
	svc := NewService(seed(t, dir), WithLedger(ledger))
	ctx := context.Background()

	res, err := svc.Create(ctx, DefaultOptions(), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Restore(ctx, res.Data, DefaultOptions()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	_, _ = svc.Restore(ctx, []byte("junk"), DefaultOptions())

	evs, err := ledger.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("events = %d", len(evs))
	}
	if evs[0].Kind != history.KindRestore || evs[0].Status != history.StatusError || evs[0].Error == "" {
		t.Fatalf("newest = %+v", evs[0])
	}
	if evs[2].Kind != history.KindCreate || evs[2].Filename != res.Filename {
		t.Fatalf("oldest = %+v", evs[2])
	}
}

func TestResponses(t *testing.T) {
	res, err := NewService(seed(t, t.TempDir())).Create(context.Background(), DefaultOptions(), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, _ := json.Marshal(CreateResponse(res, nil))
	var got map[string]any
	_ = json.Unmarshal(b, &got)
	if got["success"] != true || got["filename"] != res.Filename || got["info"] == nil {
		t.Fatalf("create response = %s", b)
	}
	if _, ok := got["location"]; ok {
		t.Fatalf("location should be omitted: %s", b)
	}
	data, err := DecodeArchive(got["data"].(string) + "\n")
	if err != nil || !bytes.Equal(data, res.Data) {
		t.Fatalf("DecodeArchive: %v", err)
	}

	b, _ = json.Marshal(CreateResponse(nil, errors.New("disk full")))
	if string(b) != `{"success":false,"error":"disk full"}` {
		t.Fatalf("failure = %s", b)
	}
	b, _ = json.Marshal(RestoreResponse(&RestoreResult{RestoredFiles: []string{}, Manifest: json.RawMessage("{}")}, nil))
	if string(b) != `{"success":true,"restored_files":[],"backup_info":{}}` {
		t.Fatalf("restore response = %s", b)
	}
	if _, err := DecodeArchive("%%%"); err == nil {
		t.Fatal("expected decode error")
	}
}
