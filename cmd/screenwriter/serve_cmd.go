/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"screenwriter/internal/api"
	"screenwriter/internal/config"
	applog "screenwriter/internal/log"
	"screenwriter/internal/storage"
	"screenwriter/internal/undo"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over local HTTP for editor plugins",
	Long: `serve exposes detect, prompt, validate, normalize, plan, generate, apply,
undo and redo as JSON endpoints under /v1, and streams generations over a
WebSocket at /v1/generate/stream. Set server.token to require a bearer token.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l := applog.WithComponent("serve")

		so := sessionOptions{registry: true, history: undo.NewHistory(undo.Config{})}
		if cfg.Storage.JournalPath == "" {
			cp, err := config.ConfigPath()
			if err != nil {
				return err
			}
			so.journalFile = filepath.Join(filepath.Dir(cp), storage.JournalFileName)
		} else {
			so.journalFile = cfg.Storage.JournalPath
		}
		po, err := providerOptions()
		switch {
		case errors.Is(err, config.ErrNoAPIKey):
			l.Warn("no API key; generate calls will fail until one is configured")
		case err != nil:
			return err
		default:
			so.provider = &po
		}

		s, err := openSession(ctx, so)
		if err != nil {
			return err
		}
		defer s.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := api.NewServer(api.ServerConfig{Addr: addr, Engine: s.eng, Token: cfg.Server.Token, Logger: applog.WithComponent("api")})

		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()
		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("listening on http://%s", addr))

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Error("shutdown failed", slog.Any("err", err))
			return err
		}
		return <-errc
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address; overrides server.addr")
	rootCmd.AddCommand(serveCmd)
}
