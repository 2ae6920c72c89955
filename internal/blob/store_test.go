/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package blob

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the shared contract against any driver.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	payload := []byte("PK\x03\x04 archive\r\nbytes")

	info, err := s.Put(ctx, "tasksphere-backup-20240101_000000.zip", bytes.NewReader(payload), PutOptions{
		ContentType: "application/zip",
		Metadata:    map[string]string{"files": "tasks.json"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tasksphere-backup-20240101_000000.zip", info.Key)
	assert.EqualValues(t, len(payload), info.Size)

	_, err = s.Put(ctx, "tasksphere-backup-20240101_000000.zip", bytes.NewReader([]byte("x")), PutOptions{})
	require.ErrorIs(t, err, ErrExists)

	_, err = s.Put(ctx, "other/keep.zip", bytes.NewReader([]byte("y")), PutOptions{})
	require.NoError(t, err)

	head, err := s.Head(ctx, "tasksphere-backup-20240101_000000.zip")
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), head.Size)

	_, rc, err := s.Get(ctx, "tasksphere-backup-20240101_000000.zip")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	list, err := s.List(ctx, "tasksphere-backup-")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tasksphere-backup-20240101_000000.zip", list[0].Key)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, _, err = s.Get(ctx, "missing.zip")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Head(ctx, "missing.zip")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Delete(ctx, "tasksphere-backup-20240101_000000.zip")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "tasksphere-backup-20240101_000000.zip")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	assert.Equal(t, DriverMemory, s.Driver())
	exerciseStore(t, s)
}

func TestFilesystemStore(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())
	exerciseStore(t, s)
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	for _, key := range []string{"", "../x.zip", "/abs.zip", `a\..\..\b.zip`, "x.zip.meta"} {
		_, err := s.Put(ctx, key, bytes.NewReader(nil), PutOptions{})
		assert.Error(t, err, "key %q", key)
	}
}

func TestNewFilesystemRequiresRoot(t *testing.T) {
	_, err := NewFilesystem("  ")
	require.Error(t, err)
}
