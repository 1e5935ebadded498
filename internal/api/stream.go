/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"screenwriter/internal/engine"
	"screenwriter/internal/provider"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1" || host == "::1"
	},
}

// safeConn serializes writes; deltas and the final frame come from different goroutines.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *safeConn) send(m StreamMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(m)
}

// streamHandler upgrades to a WebSocket, reads one GenerateRequest and
// streams the reply as delta frames followed by a result or error frame.
func streamHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("err", err))
			return
		}
		defer func() { _ = conn.Close() }()
		sc := &safeConn{conn: conn}

		conn.SetReadLimit(maxBody)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		var req GenerateRequest
		if err := conn.ReadJSON(&req); err != nil {
			_ = sc.send(StreamMessage{Type: "error", Error: &ErrorResponse{Error: "invalid request", Code: "BAD_REQUEST"}})
			return
		}
		_ = conn.SetReadDeadline(time.Time{})

		// The request context outlives a hijacked connection; tie the
		// generation to the socket instead so a client that leaves aborts it.
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ctx = provider.WithDelta(ctx, func(chunk string) {
			if err := sc.send(StreamMessage{Type: "delta", Text: chunk}); err != nil {
				cfg.Logger.DebugContext(r.Context(), "delta dropped", slog.Any("err", err))
			}
		})
		out, err := cfg.Engine.Generate(ctx, engine.Document{Text: req.Text, Cursor: req.Cursor, Path: req.Path}, req.Scenes)
		if ctx.Err() != nil && r.Context().Err() == nil {
			cfg.Logger.InfoContext(r.Context(), "stream client left; generation cancelled")
			return
		}
		if err != nil {
			_, body := errorFor(err)
			_ = sc.send(StreamMessage{Type: "error", Error: &body})
		} else {
			res := outcomeToResponse(out)
			_ = sc.send(StreamMessage{Type: "result", Result: &res})
		}
		_ = sc.send(StreamMessage{Type: "done"})
		sc.mu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		sc.mu.Unlock()
	}
}
