/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package api

import (
	"screenwriter/internal/engine"
	"screenwriter/internal/fountain"
	"screenwriter/internal/insertion"
	"screenwriter/internal/prompt"
	"screenwriter/internal/scene"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

// ErrorResponse is the body of every failed call. Errors and AttemptID are
// only set when a model reply was rejected.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Code      string   `json:"code,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	AttemptID string   `json:"attemptId,omitempty"`
}

// Document is the editor state sent with most calls; Cursor is a byte offset into Text.
type Document struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
}

type SceneRequest struct {
	Document
	Previous bool `json:"previous"`
}

type SceneResponse struct {
	Current  *scene.Context `json:"current"`
	Previous *scene.Context `json:"previous,omitempty"`
}

type PromptRequest struct {
	Document
	Scenes []prompt.SceneRequest `json:"scenes"`
}

type PromptResponse struct {
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

type ValidateRequest struct {
	Output              string `json:"output"`
	ContextBeforeCursor string `json:"contextBeforeCursor"`
	Requested           int    `json:"requested"`
}

type ValidateResponse struct {
	Status   string           `json:"status"`
	Errors   []string         `json:"errors,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
	Scenes   []fountain.Scene `json:"scenes,omitempty"`
}

// NormalizeRequest carries either one scene's Content or whole Scenes to join.
type NormalizeRequest struct {
	Content []string         `json:"content,omitempty"`
	Scenes  []fountain.Scene `json:"scenes,omitempty"`
}

type TextResponse struct {
	Text string `json:"text"`
}

type PlanRequest struct {
	Document
	Block string `json:"block"`
}

type GenerateRequest struct {
	Document
	// Path names the draft in the journal and the undo history.
	Path   string                `json:"path,omitempty"`
	Scenes []prompt.SceneRequest `json:"scenes"`
}

type GenerateResponse struct {
	AttemptID string           `json:"attemptId"`
	Status    string           `json:"status"`
	Scenes    []fountain.Scene `json:"scenes"`
	Block     string           `json:"block"`
	Plan      insertion.Plan   `json:"plan"`
	Warnings  []string         `json:"warnings,omitempty"`
	Current   *scene.Context   `json:"current"`
	Previous  *scene.Context   `json:"previous,omitempty"`
}

func outcomeToResponse(o *engine.Outcome) GenerateResponse {
	return GenerateResponse{
		AttemptID: o.AttemptID,
		Status:    o.Status.String(),
		Scenes:    o.Scenes,
		Block:     o.Block,
		Plan:      o.Plan,
		Warnings:  o.Warnings,
		Current:   o.Current,
		Previous:  o.Previous,
	}
}

type ApplyRequest struct {
	Path      string         `json:"path"`
	Text      string         `json:"text"`
	Plan      insertion.Plan `json:"plan"`
	AttemptID string         `json:"attemptId,omitempty"`
}

type HistoryRequest struct {
	Path string `json:"path"`
}

// StreamMessage is one frame on the generate WebSocket:
// "delta" frames carry reply text, then one "result" or "error" frame ends the call.
type StreamMessage struct {
	Type   string            `json:"type"`
	Text   string            `json:"text,omitempty"`
	Result *GenerateResponse `json:"result,omitempty"`
	Error  *ErrorResponse    `json:"error,omitempty"`
}
