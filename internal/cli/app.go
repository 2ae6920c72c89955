/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tasksphere/internal/backup"
	"tasksphere/internal/blob"
	"tasksphere/internal/config"
	"tasksphere/internal/history"
	applog "tasksphere/internal/log"
	"tasksphere/internal/metrics"
	"tasksphere/internal/storage"
)

// app carries the per-invocation state shared by the commands.
type app struct {
	stdout, stderr io.Writer

	dataDirFlag string
	configFlag  string

	cfg    config.AppConfig
	log    *slog.Logger
	store  *storage.Store
	ledger *history.Ledger
}

// setup resolves configuration and logging before any command runs.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFlag)
	if err != nil {
		return err
	}
	if a.dataDirFlag != "" {
		cfg.Storage.DataDir = a.dataDirFlag
	}
	if abs, err := filepath.Abs(cfg.Storage.DataDir); err == nil {
		cfg.Storage.DataDir = abs
	}
	a.cfg = cfg
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.LogFile(),
		Console:   cfg.Logging.Console || cmd.Name() == "serve",
	})
	a.log = applog.WithComponent("cli")
	a.log.Debug("start", slog.String("cmd", cmd.CommandPath()), slog.String("data_dir", cfg.Storage.DataDir))
	return nil
}

// DataDir is the resolved data directory, or "" before setup.
func (a *app) DataDir() string { return a.cfg.Storage.DataDir }

func (a *app) logger() *slog.Logger {
	if a.log == nil {
		return applog.WithComponent("cli")
	}
	return a.log
}

func (a *app) openStore() (*storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	st, err := storage.Open(a.DataDir())
	if err != nil {
		return nil, err
	}
	a.store = st
	return st, nil
}

func (a *app) openLedger() (*history.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	l, err := history.Open(a.DataDir())
	if err != nil {
		return nil, err
	}
	a.ledger = l
	return l, nil
}

// backupService wires the store, the history ledger and the configured target.
// A missing target is not an error here; the service reports it when one is needed.
// The ledger is best effort.
func (a *app) backupService(ctx context.Context, m *metrics.Recorder) (*backup.Service, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	opts := []backup.Option{backup.WithMetrics(m)}
	if l, err := a.openLedger(); err != nil {
		a.logger().Warn("history ledger unavailable", slog.Any("err", err))
	} else {
		opts = append(opts, backup.WithLedger(l))
	}
	target, err := blob.Open(ctx, a.cfg.Backup.Target)
	switch {
	case errors.Is(err, blob.ErrNotConfigured):
	case err != nil:
		return nil, fmt.Errorf("open backup target: %w", err)
	default:
		opts = append(opts, backup.WithTarget(target))
	}
	return backup.NewService(st, opts...), nil
}

func (a *app) close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger().Warn("close history ledger", slog.Any("err", err))
		}
		a.ledger = nil
	}
	_ = applog.Close()
}

// printJSON writes v as one compact line without HTML escaping.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (a *app) printBool(b bool) error {
	_, err := fmt.Fprintln(a.stdout, b)
	return err
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
