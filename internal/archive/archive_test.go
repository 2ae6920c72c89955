/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func rawZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var b bytes.Buffer
	zw := zip.NewWriter(&b)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return b.Bytes()
}

func TestWriterRoundTripDeflated(t *testing.T) {
	w := NewWriter(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	payload := []byte("[\n  {\"id\": \"ä\", \"n\": 1.0}\n]")
	if err := w.AddJSON("backup_info.json", map[string]any{"app": "TaskSphere", "html": "<&>"}); err != nil {
		t.Fatalf("AddJSON: %v", err)
	}
	if err := w.Add("tasks.json", payload); err != nil {
		t.Fatalf("Add: %v", err)
	}
	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if err := w.Add("late.json", nil); err == nil {
		t.Fatalf("Add after Bytes should fail")
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip reader: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "backup_info.json" || zr.File[1].Name != "tasks.json" {
		t.Fatalf("unexpected entries")
	}
	for _, f := range zr.File {
		if f.Method != zip.Deflate {
			t.Fatalf("%s not deflated", f.Name)
		}
	}

	entries, err := ReadEntries(data)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if !bytes.Equal(entries["tasks.json"], payload) {
		t.Fatalf("payload changed: %q", entries["tasks.json"])
	}
	if want := "{\n  \"app\": \"TaskSphere\",\n  \"html\": \"<&>\"\n}"; string(entries["backup_info.json"]) != want {
		t.Fatalf("manifest = %q", entries["backup_info.json"])
	}
}

func TestExtractWritesFiles(t *testing.T) {
	data := rawZip(t, map[string]string{"projects.json": "[]", "sub/notes.json": "[1]"})
	dir := t.TempDir()
	names, err := Extract(data, dir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v", names)
	}
	b, err := os.ReadFile(filepath.Join(dir, "sub", "notes.json"))
	if err != nil || string(b) != "[1]" {
		t.Fatalf("extracted = %q, %v", b, err)
	}
}

func TestExtractRejectsUnsafeNamesBeforeWriting(t *testing.T) {
	for _, bad := range []string{"../escape.json", "/abs.json", `..\win.json`, "a/../../b.json"} {
		data := rawZip(t, map[string]string{"aaa.json": "[]", bad: "x"})
		dir := t.TempDir()
		if _, err := Extract(data, dir); !errors.Is(err, ErrUnsafeEntry) {
			t.Fatalf("%q: err = %v", bad, err)
		}
		if ents, _ := os.ReadDir(dir); len(ents) != 0 {
			t.Fatalf("%q: files written before rejection", bad)
		}
	}
}

func TestCorruptArchive(t *testing.T) {
	if _, err := ReadEntries([]byte("not a zip")); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Extract([]byte{}, t.TempDir()); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestAddRejectsUnsafeName(t *testing.T) {
	w := NewWriter(time.Now())
	if err := w.Add("../x", nil); !errors.Is(err, ErrUnsafeEntry) {
		t.Fatalf("err = %v", err)
	}
}
