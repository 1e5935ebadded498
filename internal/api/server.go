/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package api serves the engine over local HTTP for editor plugins: one JSON
// endpoint per engine step, a generate call and a WebSocket that streams the
// reply while it arrives.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"screenwriter/internal/engine"
	applog "screenwriter/internal/log"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Addr   string
	Engine *engine.Engine
	// Token, when set, must be sent as "Authorization: Bearer <token>".
	Token     string
	Logger    *slog.Logger
	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = applog.WithComponent("api")
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.Addr,
			Handler:     NewRouter(cfg),
			ReadTimeout: 15 * time.Second,
			// generation and streaming run as long as the model takes
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", slog.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string { return s.httpServer.Addr }
