/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"tasksphere/internal/config"
	"tasksphere/internal/version"
)

type result struct {
	stdout, stderr string
	code           int
}

// newEnv isolates config and returns a fresh data directory.
func newEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfigPath, filepath.Join(dir, "config.yaml"))
	t.Setenv(config.EnvBackupDriver, "")
	t.Setenv(config.EnvDataDir, "")
	t.Setenv(config.EnvStoreByDefault, "")
	return filepath.Join(dir, "data")
}

func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	var out, errb bytes.Buffer
	code := run(args, &out, &errb)
	r := result{stdout: out.String(), stderr: errb.String(), code: code}
	lines := strings.Count(r.stdout, "\n") + strings.Count(r.stderr, "\n")
	require.Equal(t, 1, lines, "exactly one output line expected: %+v", r)
	if code == 0 {
		require.Empty(t, r.stderr)
	} else {
		require.Empty(t, r.stdout)
		require.True(t, strings.HasPrefix(r.stderr, "Error: "), r.stderr)
	}
	return r
}

func TestVersionCommand(t *testing.T) {
	r := runCLI(t, "--data-dir", newEnv(t), "version")
	assert.Equal(t, version.String()+"\n", r.stdout)
}

func TestGlobalFlagsPresent(t *testing.T) {
	cmd := NewRootCmd(nil, nil)
	for _, name := range []string{"data-dir", "config"} {
		if f := cmd.PersistentFlags().Lookup(name); f == nil {
			t.Fatalf("missing global flag --%s", name)
		}
	}
}

func TestRecordCommands(t *testing.T) {
	data := newEnv(t)
	dd := "--data-dir=" + data

	assert.Equal(t, "[]\n", runCLI(t, dd, "get", "tasks").stdout)
	assert.Equal(t, "null\n", runCLI(t, dd, "get", "tasks", "nope").stdout)

	r := runCLI(t, dd, "create", "tasks", `{"title":"Ship <it>","tags":["a", "b"]}`)
	var created map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Contains(t, r.stdout, `"title":"Ship <it>","tags":["a","b"],"id":`)
	assert.Equal(t, created["createdAt"], created["updatedAt"])

	assert.Equal(t, r.stdout, runCLI(t, dd, "get", "tasks", id).stdout)

	r = runCLI(t, dd, "update", "tasks", id, `{"done":true}`)
	assert.Contains(t, r.stdout, `"done":true`)
	assert.Equal(t, "null\n", runCLI(t, dd, "update", "tasks", "missing", `{"done":true}`).stdout)

	assert.Equal(t, "true\n", runCLI(t, dd, "delete", "tasks", id).stdout)
	assert.Equal(t, "false\n", runCLI(t, dd, "delete", "tasks", id).stdout)
	assert.Equal(t, "[]\n", runCLI(t, dd, "get", "tasks").stdout)
}

func TestRecordCommandErrors(t *testing.T) {
	dd := "--data-dir=" + newEnv(t)

	r := runCLI(t, dd, "get", "widgets")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "widgets")

	r = runCLI(t, dd, "create", "notes", `{"broken"`)
	assert.Equal(t, 1, r.code)

	r = runCLI(t, dd, "create", "notes", `[1]`)
	assert.Equal(t, 1, r.code)

	runCLI(t, dd, "create", "notes", `{"id":"n1"}`)
	r = runCLI(t, dd, "create", "notes", `{"id":"n1"}`)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "duplicate id")

	r = runCLI(t, dd, "update", "notes", "n1")
	assert.Equal(t, 1, r.code)
}

func TestExportImportClear(t *testing.T) {
	data := newEnv(t)
	dd := "--data-dir=" + data

	runCLI(t, dd, "create", "projects", `{"id":"p1"}`)
	r := runCLI(t, dd, "export")
	assert.True(t, strings.HasPrefix(r.stdout, `{"projects":[{"id":"p1",`), r.stdout)
	assert.Contains(t, r.stdout, `"project-steps":[]`)

	assert.Equal(t, "true\n", runCLI(t, dd, "import", `{"connections":[{"id":"c1"}],"other":[]}`).stdout)
	assert.Equal(t, `[{"id":"c1"}]`+"\n", runCLI(t, dd, "get", "connections").stdout)
	assert.Equal(t, "false\n", runCLI(t, dd, "import", `not json`).stdout)
	assert.Equal(t, "true\n", runCLI(t, dd, "import", `{"tasks":[1,"x",null]}`).stdout)
	raw, err := os.ReadFile(filepath.Join(data, "tasks.json"))
	require.NoError(t, err)
	assert.Equal(t, "[\n  1,\n  \"x\",\n  null\n]", string(raw))

	assert.Equal(t, "true\n", runCLI(t, dd, "clear").stdout)
	for _, et := range []string{"projects", "tasks", "notes", "project-steps", "connections"} {
		assert.Equal(t, "[]\n", runCLI(t, dd, "get", et).stdout, et)
	}
}

type createOut struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Data     string `json:"data"`
	Location string `json:"location"`
	Error    string `json:"error"`
	Info     struct {
		FilesIncluded []string `json:"files_included"`
	} `json:"info"`
}

type restoreOut struct {
	Success       bool            `json:"success"`
	RestoredFiles []string        `json:"restored_files"`
	BackupInfo    json.RawMessage `json:"backup_info"`
	Error         string          `json:"error"`
}

func TestBackupRoundTrip(t *testing.T) {
	src := newEnv(t)
	runCLI(t, "--data-dir="+src, "create", "tasks", `{"id":"t1","title":"é"}`)
	runCLI(t, "--data-dir="+src, "create", "projects", `{"id":"p1"}`)

	r := runCLI(t, "--data-dir="+src, "create_backup",
		`{"includeTasks":true,"includeProjects":false,"includeNotes":false,"includeProjectSteps":false,"includeConnections":false}`)
	var c createOut
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &c))
	require.True(t, c.Success, r.stdout)
	assert.True(t, strings.HasPrefix(c.Filename, "tasksphere-backup-"))
	assert.Equal(t, []string{"tasks.json"}, c.Info.FilesIncluded)

	dst := filepath.Join(t.TempDir(), "data")
	runCLI(t, "--data-dir="+dst, "create", "projects", `{"id":"keep"}`)
	r = runCLI(t, "--data-dir="+dst, "restore_backup", c.Data)
	var out restoreOut
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	require.True(t, out.Success, r.stdout)
	assert.Equal(t, []string{"tasks.json"}, out.RestoredFiles)

	want, _ := os.ReadFile(filepath.Join(src, "tasks.json"))
	got, _ := os.ReadFile(filepath.Join(dst, "tasks.json"))
	assert.Equal(t, string(want), string(got))
	assert.Contains(t, runCLI(t, "--data-dir="+dst, "get", "projects").stdout, `"keep"`)

	r = runCLI(t, "--data-dir="+dst, "backup_history")
	assert.Contains(t, r.stdout, `"kind":"restore"`)
}

func TestCreateBackupWithoutOptionsRecordsAllFlags(t *testing.T) {
	dd := "--data-dir=" + newEnv(t)
	r := runCLI(t, dd, "create_backup")
	var c struct {
		Success bool `json:"success"`
		Info    struct {
			Options map[string]bool `json:"options"`
		} `json:"info"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &c))
	require.True(t, c.Success, r.stdout)
	assert.Equal(t, map[string]bool{
		"includeProjects": true, "includeTasks": true, "includeNotes": true,
		"includeProjectSteps": true, "includeConnections": true,
	}, c.Info.Options)
}

func TestNoOperationIsUsageError(t *testing.T) {
	data := newEnv(t)
	t.Setenv(config.EnvDataDir, data)
	for _, args := range [][]string{nil, {"--data-dir", data}} {
		r := runCLI(t, args...)
		assert.Equal(t, 1, r.code)
		assert.Contains(t, r.stderr, "usage: tasksphere")
	}
	r := runCLI(t, "bogus")
	assert.Equal(t, 1, r.code)
}

func TestBackupFailures(t *testing.T) {
	dd := "--data-dir=" + newEnv(t)

	r := runCLI(t, dd, "create_backup", `{"includeTasks":"yes"}`)
	assert.Equal(t, 1, r.code)

	r = runCLI(t, dd, "restore_backup", "%%%")
	var out restoreOut
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)

	r = runCLI(t, dd, "restore_backup", "bm90IGEgemlw")
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	assert.False(t, out.Success)

	r = runCLI(t, dd, "create_backup", "--store")
	var c createOut
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &c))
	assert.False(t, c.Success)
	assert.Contains(t, c.Error, "no backup target configured")

	r = runCLI(t, dd, "restore_backup")
	assert.Equal(t, 1, r.code)

	r = runCLI(t, dd, "list_backups")
	assert.Equal(t, 1, r.code)
}

func TestStoredBackups(t *testing.T) {
	data := newEnv(t)
	t.Setenv(config.EnvBackupDriver, "fs")
	t.Setenv(config.EnvBackupFSRoot, t.TempDir())
	dd := "--data-dir=" + data

	runCLI(t, dd, "create", "notes", `{"id":"n1"}`)
	r := runCLI(t, dd, "create_backup", "--store")
	var c createOut
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &c))
	require.True(t, c.Success, r.stdout)
	assert.Equal(t, "fs:"+c.Filename, c.Location)

	assert.Contains(t, runCLI(t, dd, "list_backups").stdout, c.Filename)

	runCLI(t, dd, "clear")
	r = runCLI(t, dd, "restore_backup", "--from", c.Filename, `{"includeNotes":true}`)
	var out restoreOut
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	require.True(t, out.Success, r.stdout)
	assert.Equal(t, []string{"notes.json"}, out.RestoredFiles)

	r = runCLI(t, dd, "backup_history", "--limit", "1")
	var evs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &evs))
	require.Len(t, evs, 1)
	assert.Equal(t, "restore", evs[0]["kind"])
}

func TestStoreByDefault(t *testing.T) {
	data := newEnv(t)
	t.Setenv(config.EnvBackupDriver, "memory")
	t.Setenv(config.EnvStoreByDefault, "true")

	r := runCLI(t, "--data-dir="+data, "create_backup")
	var c createOut
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &c))
	require.True(t, c.Success, r.stdout)
	assert.Equal(t, "memory:"+c.Filename, c.Location)

	r = runCLI(t, "--data-dir="+data, "create_backup", "--store=false")
	var c2 createOut
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &c2))
	require.True(t, c2.Success, r.stdout)
	assert.Empty(t, c2.Location)
}

func TestSecretSetS3(t *testing.T) {
	keyring.MockInit()
	data := newEnv(t)
	t.Setenv(config.EnvS3SecretKey, "")

	assert.Equal(t, "true\n", runCLI(t, "--data-dir", data, "secret", "set-s3", "s3cr3t").stdout)
	v, err := config.S3Secret()
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)
}

func TestConfigFileDataDir(t *testing.T) {
	newEnv(t)
	data := filepath.Join(t.TempDir(), "fromfile")
	cfgPath := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  data_dir: "+data+"\n"), 0o644))

	runCLI(t, "--config", cfgPath, "create", "tasks", `{"id":"x"}`)
	_, err := os.Stat(filepath.Join(data, "tasks.json"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfgPath, []byte("storage: [broken"), 0o644))
	r := runCLI(t, "--config", cfgPath, "--data-dir", data, "get", "tasks")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "parse config")
}
