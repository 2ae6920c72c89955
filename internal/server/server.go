/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server exposes the store and the backup service over HTTP for long-lived deployments.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tasksphere/internal/backup"
	"tasksphere/internal/history"
	applog "tasksphere/internal/log"
	"tasksphere/internal/metrics"
	"tasksphere/internal/storage"
)

const (
	// DefaultAddr is used when no bind address is configured.
	DefaultAddr     = ":3001"
	shutdownTimeout = 10 * time.Second
)

// Config holds server dependencies. Store and Backups are required.
type Config struct {
	Addr    string
	Store   *storage.Store
	Backups *backup.Service
	Ledger  *history.Ledger
	Metrics *metrics.Recorder
}

// Server serves the REST API.
type Server struct {
	api  *api
	http *http.Server
	log  *slog.Logger
}

// New wires the routes and middleware.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Backups == nil {
		return nil, errors.New("server: store and backup service are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	l := applog.WithComponent("server")
	a := &api{
		store:   cfg.Store,
		backups: cfg.Backups,
		ledger:  cfg.Ledger,
		metrics: cfg.Metrics,
		addr:    cfg.Addr,
		log:     l,
	}
	mux := http.NewServeMux()
	a.routes(mux)
	h := Chain(mux, Recover(l), RequestID(), Logging(l, cfg.Metrics))
	return &Server{
		api: a,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: l,
	}, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.api.addr = ln.Addr().String()
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()
	s.log.Info("listening", slog.String("addr", s.api.addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(sctx); err != nil {
		s.log.Error("shutdown", slog.Any("err", err))
		return err
	}
	<-errCh
	s.log.Info("stopped")
	return nil
}
