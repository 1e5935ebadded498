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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"screenwriter/internal/engine"
	"screenwriter/internal/prompt"
	"screenwriter/internal/provider"
	"screenwriter/internal/scene"
	"screenwriter/internal/version"
)

// maxBody bounds request bodies; drafts are text.
const maxBody = 8 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Token, cfg.Logger))

		r.Post("/scene", sceneHandler(cfg))
		r.Post("/prompt", promptHandler(cfg))
		r.Post("/validate", validateHandler(cfg))
		r.Post("/normalize", normalizeHandler(cfg))
		r.Post("/plan", planHandler(cfg))
		r.Post("/generate", generateHandler(cfg))
		r.Get("/generate/stream", streamHandler(cfg))
		r.Post("/apply", applyHandler(cfg))
		r.Post("/undo", undoHandler(cfg, false))
		r.Post("/redo", undoHandler(cfg, true))
	})

	return r
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

// errorFor maps an engine or provider error to a status and body.
func errorFor(err error) (int, ErrorResponse) {
	var rej *engine.RejectedError
	var apiErr *provider.APIError
	switch {
	case errors.As(err, &rej):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: rej.Error(), Code: "REJECTED", Errors: rej.Errors, AttemptID: rej.AttemptID}
	case isInputError(err):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "BAD_REQUEST"}
	case errors.Is(err, engine.ErrNoGenerator):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "NO_GENERATOR"}
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "PROVIDER_ERROR"}
	case errors.Is(err, provider.ErrEmptyReply):
		return http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: "EMPTY_REPLY"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Code: "TIMEOUT"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL_ERROR"}
	}
}

func isInputError(err error) bool {
	for _, target := range []error{
		prompt.ErrNoRequests, prompt.ErrTooManyRequests, prompt.ErrEmptyLocation, prompt.ErrEmptyScenario,
		scene.ErrOffsetOutOfRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeErr(w http.ResponseWriter, err error) {
	status, body := errorFor(err)
	WriteJSON(w, status, body)
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version.String(),
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func sceneHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SceneRequest
		if !decode(w, r, &req) {
			return
		}
		cur, err := cfg.Engine.DetectScene(req.Text, req.Cursor)
		if err != nil {
			writeErr(w, err)
			return
		}
		resp := SceneResponse{Current: cur}
		if req.Previous {
			if resp.Previous, err = cfg.Engine.DetectPrevious(req.Text, req.Cursor); err != nil {
				writeErr(w, err)
				return
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func promptHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PromptRequest
		if !decode(w, r, &req) {
			return
		}
		e := cfg.Engine
		cur, err := e.DetectScene(req.Text, req.Cursor)
		if err != nil {
			writeErr(w, err)
			return
		}
		prev, _ := e.DetectPrevious(req.Text, req.Cursor)
		var names []string
		if cur != nil {
			names = cur.Characters
		}
		sums, err := e.Summaries(r.Context(), names)
		if err != nil {
			writeErr(w, err)
			return
		}
		p, err := e.BuildPrompt(req.Scenes, cur, prev, sums)
		if err != nil {
			writeErr(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, PromptResponse{System: e.SystemInstruction(), Prompt: p})
	}
}

func validateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ValidateRequest
		if !decode(w, r, &req) {
			return
		}
		res := cfg.Engine.Validate(req.Output, req.ContextBeforeCursor, req.Requested)
		// a rejected reply is a normal result here, not a failed call
		WriteJSON(w, http.StatusOK, ValidateResponse{
			Status:   res.Status.String(),
			Errors:   res.Errors,
			Warnings: res.Warnings,
			Scenes:   res.Scenes,
		})
	}
}

func normalizeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NormalizeRequest
		if !decode(w, r, &req) {
			return
		}
		if len(req.Scenes) > 0 {
			WriteJSON(w, http.StatusOK, TextResponse{Text: cfg.Engine.JoinScenes(req.Scenes)})
			return
		}
		WriteJSON(w, http.StatusOK, TextResponse{Text: cfg.Engine.Normalize(req.Content)})
	}
}

func planHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlanRequest
		if !decode(w, r, &req) {
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Engine.PlanInsertion(req.Text, req.Cursor, req.Block))
	}
}

func generateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if !decode(w, r, &req) {
			return
		}
		out, err := cfg.Engine.Generate(r.Context(), engine.Document{Text: req.Text, Cursor: req.Cursor, Path: req.Path}, req.Scenes)
		if err != nil {
			writeErr(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, outcomeToResponse(out))
	}
}

func applyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ApplyRequest
		if !decode(w, r, &req) {
			return
		}
		next := cfg.Engine.Apply(engine.Document{Text: req.Text, Path: req.Path}, req.Plan, req.AttemptID)
		WriteJSON(w, http.StatusOK, TextResponse{Text: next})
	}
}

func undoHandler(cfg ServerConfig, redo bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HistoryRequest
		if !decode(w, r, &req) {
			return
		}
		step := cfg.Engine.Undo
		if redo {
			step = cfg.Engine.Redo
		}
		text, ok := step(req.Path)
		if !ok {
			WriteError(w, http.StatusNotFound, "nothing to undo or redo for "+req.Path, "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, TextResponse{Text: text})
	}
}
