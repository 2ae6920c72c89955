/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package archive builds and reads the zip containers used for backups.
// Entries are stored at the archive root, deflate-compressed, as opaque byte payloads.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxEntrySize bounds the uncompressed size of a single entry.
const MaxEntrySize = 256 << 20

var (
	ErrUnsafeEntry   = errors.New("unsafe archive entry name")
	ErrEntryTooLarge = errors.New("archive entry too large")
)

// Writer assembles an archive in memory.
type Writer struct {
	buf    bytes.Buffer
	zw     *zip.Writer
	names  []string
	mod    time.Time
	closed bool
}

// NewWriter returns a Writer whose entries carry modified as their timestamp.
func NewWriter(modified time.Time) *Writer {
	w := &Writer{mod: modified}
	w.zw = zip.NewWriter(&w.buf)
	return w
}

// Add stores data verbatim under name.
func (w *Writer) Add(name string, data []byte) error {
	if w.closed {
		return errors.New("archive already finalized")
	}
	if !safeName(name) {
		return fmt.Errorf("%w: %q", ErrUnsafeEntry, name)
	}
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: w.mod}
	fw, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("zip add %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("zip add %s: %w", name, err)
	}
	w.names = append(w.names, name)
	return nil
}

// AddJSON stores v as 2-space indented JSON under name.
func (w *Writer) AddJSON(name string, v any) error {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return w.Add(name, bytes.TrimRight(b.Bytes(), "\n"))
}

// Names lists the entries added so far, in order.
func (w *Writer) Names() []string { return append([]string(nil), w.names...) }

// Bytes finalizes the archive and returns its content. Further Adds fail.
func (w *Writer) Bytes() ([]byte, error) {
	if !w.closed {
		if err := w.zw.Close(); err != nil {
			return nil, fmt.Errorf("close zip: %w", err)
		}
		w.closed = true
	}
	return w.buf.Bytes(), nil
}

// ReadEntries returns every file entry of the archive keyed by name.
func ReadEntries(data []byte) (map[string][]byte, error) {
	zr, err := open(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		b, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		out[f.Name] = b
	}
	return out, nil
}

// Extract unpacks the archive into dir. Every entry name is validated before anything is written.
func Extract(data []byte, dir string) ([]string, error) {
	zr, err := open(data)
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if !safeName(f.Name) {
			return nil, fmt.Errorf("%w: %q", ErrUnsafeEntry, f.Name)
		}
	}
	var names []string
	for _, f := range zr.File {
		target := filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(f.Name, `\`, "/")))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		b, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(target, b, 0o644); err != nil {
			return nil, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		names = append(names, f.Name)
	}
	return names, nil
}

func open(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return zr, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > MaxEntrySize {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
	}
	if len(b) > MaxEntrySize {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	return b, nil
}

// safeName accepts relative names that stay inside the extraction directory.
func safeName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	n := strings.TrimSuffix(strings.ReplaceAll(name, `\`, "/"), "/")
	if n == "" {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(n))
}
