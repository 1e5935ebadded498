/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"screenwriter/internal/engine"
	"screenwriter/internal/insertion"
	"screenwriter/internal/prompt"
	"screenwriter/internal/provider"
	"screenwriter/internal/undo"
)

const cabinReply = `{"scenes":[{"heading":"INT. CABIN - NIGHT","content":["She enters.","JANE","Hello?"]}],"totalLines":3}`

type stubGenerator struct {
	reply string
	err   error
}

func (s stubGenerator) Generate(context.Context, string, string) (string, error) {
	return s.reply, s.err
}

func newTestServer(t *testing.T, gen engine.Generator, token string) *httptest.Server {
	t.Helper()
	e, err := engine.New(engine.Options{Generator: gen, History: undo.NewHistory(undo.Config{})})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewRouter(ServerConfig{Engine: e, Token: token, Logger: logger, StartTime: time.Now()}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path string, body any, out any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, "secret")
	var h HealthResponse
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	_ = json.NewDecoder(resp.Body).Decode(&h)
	if resp.StatusCode != http.StatusOK || h.Status != "ok" {
		t.Fatalf("health = %d %+v", resp.StatusCode, h)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, nil, "secret")
	var e ErrorResponse
	if code := post(t, srv, "/v1/scene", SceneRequest{}, &e); code != http.StatusUnauthorized || e.Code != "UNAUTHORIZED" {
		t.Fatalf("status %d %+v", code, e)
	}

	b, _ := json.Marshal(SceneRequest{Document: Document{Text: "INT. A - DAY\n\nRain.", Cursor: 18}})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/scene", bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized call: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authorized status %d", resp.StatusCode)
	}
}

func TestScene(t *testing.T) {
	srv := newTestServer(t, nil, "")
	doc := "INT. A - DAY\n\nJANE\nHi.\n\nEXT. B - NIGHT\n\nRain."
	var got SceneResponse
	if code := post(t, srv, "/v1/scene", SceneRequest{Document: Document{Text: doc, Cursor: len(doc)}, Previous: true}, &got); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if got.Current == nil || got.Current.Heading != "EXT. B - NIGHT" {
		t.Fatalf("current = %+v", got.Current)
	}
	if got.Previous == nil || got.Previous.Heading != "INT. A - DAY" {
		t.Fatalf("previous = %+v", got.Previous)
	}

	var e ErrorResponse
	if code := post(t, srv, "/v1/scene", SceneRequest{Document: Document{Text: doc, Cursor: len(doc) + 1}}, &e); code != http.StatusBadRequest {
		t.Fatalf("out of range cursor gave %d %+v", code, e)
	}
}

func TestPromptRejectsEmptyRequests(t *testing.T) {
	srv := newTestServer(t, nil, "")
	var e ErrorResponse
	if code := post(t, srv, "/v1/prompt", PromptRequest{Document: Document{Text: "x", Cursor: 1}}, &e); code != http.StatusBadRequest || e.Code != "BAD_REQUEST" {
		t.Fatalf("status %d %+v", code, e)
	}
}

func TestPrompt(t *testing.T) {
	srv := newTestServer(t, nil, "")
	var got PromptResponse
	req := PromptRequest{
		Document: Document{Text: "INT. A - DAY\n\nRain.", Cursor: 18},
		Scenes:   []prompt.SceneRequest{{Location: "the cabin", Scenario: "Jane arrives"}},
	}
	if code := post(t, srv, "/v1/prompt", req, &got); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if got.System == "" || !strings.Contains(got.Prompt, "the cabin") {
		t.Fatalf("prompt = %+v", got)
	}
}

func TestValidateReportsRejection(t *testing.T) {
	srv := newTestServer(t, nil, "")
	var got ValidateResponse
	if code := post(t, srv, "/v1/validate", ValidateRequest{Output: "not json", Requested: 1}, &got); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if got.Status != "rejected" || len(got.Errors) == 0 {
		t.Fatalf("validate = %+v", got)
	}
}

func TestNormalize(t *testing.T) {
	srv := newTestServer(t, nil, "")
	var got TextResponse
	post(t, srv, "/v1/normalize", NormalizeRequest{Content: []string{"She enters.", "JANE", "Hello?"}}, &got)
	if got.Text != "She enters.\n\nJANE\n\nHello?" {
		t.Fatalf("normalize = %q", got.Text)
	}
}

func TestPlanApplyUndoRedo(t *testing.T) {
	srv := newTestServer(t, nil, "")
	doc := "Some text."
	var plan insertion.Plan
	post(t, srv, "/v1/plan", PlanRequest{Document: Document{Text: doc, Cursor: len(doc)}, Block: "INT. A - DAY"}, &plan)
	if plan.At != len(doc) || plan.Text != "\n\nINT. A - DAY" {
		t.Fatalf("plan = %+v", plan)
	}

	var applied TextResponse
	post(t, srv, "/v1/apply", ApplyRequest{Path: "draft.fountain", Text: doc, Plan: plan}, &applied)
	if applied.Text != "Some text.\n\nINT. A - DAY" {
		t.Fatalf("apply = %q", applied.Text)
	}

	var undone TextResponse
	if code := post(t, srv, "/v1/undo", HistoryRequest{Path: "draft.fountain"}, &undone); code != http.StatusOK || undone.Text != doc {
		t.Fatalf("undo = %d %q", code, undone.Text)
	}
	var redone TextResponse
	if code := post(t, srv, "/v1/redo", HistoryRequest{Path: "draft.fountain"}, &redone); code != http.StatusOK || redone.Text != applied.Text {
		t.Fatalf("redo = %d %q", code, redone.Text)
	}
	if code := post(t, srv, "/v1/redo", HistoryRequest{Path: "draft.fountain"}, nil); code != http.StatusNotFound {
		t.Fatalf("empty redo = %d", code)
	}
}

func TestGenerate(t *testing.T) {
	srv := newTestServer(t, stubGenerator{reply: cabinReply}, "")
	req := GenerateRequest{
		Document: Document{Text: "Some text.", Cursor: 10},
		Scenes:   []prompt.SceneRequest{{Location: "cabin", Scenario: "Jane arrives"}},
	}
	var got GenerateResponse
	if code := post(t, srv, "/v1/generate", req, &got); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if got.Status != "accepted" || got.Plan.At != 10 || !strings.HasPrefix(got.Block, "INT. CABIN - NIGHT") {
		t.Fatalf("generate = %+v", got)
	}
}

func TestGenerateErrors(t *testing.T) {
	req := GenerateRequest{
		Document: Document{Text: "Some text.", Cursor: 10},
		Scenes:   []prompt.SceneRequest{{Location: "cabin", Scenario: "Jane arrives"}},
	}
	cases := []struct {
		name string
		gen  engine.Generator
		code int
		want string
	}{
		{"rejected", stubGenerator{reply: `{"scenes":[]}`}, http.StatusUnprocessableEntity, "REJECTED"},
		{"no generator", nil, http.StatusServiceUnavailable, "NO_GENERATOR"},
		{"provider", stubGenerator{err: &provider.APIError{StatusCode: 500, Body: "down"}}, http.StatusBadGateway, "PROVIDER_ERROR"},
	}
	for _, c := range cases {
		srv := newTestServer(t, c.gen, "")
		var e ErrorResponse
		if code := post(t, srv, "/v1/generate", req, &e); code != c.code || e.Code != c.want {
			t.Fatalf("%s: %d %+v", c.name, code, e)
		}
		if c.want == "REJECTED" && len(e.Errors) == 0 {
			t.Fatalf("rejection without errors: %+v", e)
		}
	}
}

func sseProvider(t *testing.T, chunks ...string) *provider.Client {
	t.Helper()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, c := range chunks {
			ev, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]string{"content": c}}}})
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(up.Close)
	c, err := provider.New(provider.Options{BaseURL: up.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}
	return c
}

func TestGenerateStream(t *testing.T) {
	half := len(cabinReply) / 2
	srv := newTestServer(t, sseProvider(t, cabinReply[:half], cabinReply[half:]), "")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/generate/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := GenerateRequest{
		Document: Document{Text: "Some text.", Cursor: 10},
		Scenes:   []prompt.SceneRequest{{Location: "cabin", Scenario: "Jane arrives"}},
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var streamed strings.Builder
	var result *GenerateResponse
	for {
		var m StreamMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch m.Type {
		case "delta":
			streamed.WriteString(m.Text)
		case "result":
			result = m.Result
		case "error":
			t.Fatalf("stream error: %+v", m.Error)
		}
		if m.Type == "done" {
			break
		}
	}
	if streamed.String() != cabinReply {
		t.Fatalf("deltas = %q", streamed.String())
	}
	if result == nil || result.Status != "accepted" {
		t.Fatalf("result = %+v", result)
	}
}

func TestStreamRejectsForeignOrigin(t *testing.T) {
	srv := newTestServer(t, nil, "")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/generate/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("handshake response = %+v", resp)
	}
}

type blockingGenerator struct {
	started   chan struct{}
	cancelled chan struct{}
}

func (b blockingGenerator) Generate(ctx context.Context, _, _ string) (string, error) {
	close(b.started)
	<-ctx.Done()
	close(b.cancelled)
	return "", ctx.Err()
}

func TestStreamCancelsGenerationWhenClientLeaves(t *testing.T) {
	gen := blockingGenerator{started: make(chan struct{}), cancelled: make(chan struct{})}
	srv := newTestServer(t, gen, "")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/generate/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	req := GenerateRequest{
		Document: Document{Text: "Some text.", Cursor: 10},
		Scenes:   []prompt.SceneRequest{{Location: "cabin", Scenario: "Jane arrives"}},
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("generation never started")
	}
	_ = conn.Close()

	select {
	case <-gen.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatalf("generation kept running after the client left")
	}
}

func TestStreamAcceptsQueryToken(t *testing.T) {
	srv := newTestServer(t, stubGenerator{reply: cabinReply}, "secret")
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/generate/stream"

	if _, resp, err := websocket.DefaultDialer.Dial(base, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake without token: err=%v resp=%v", err, resp)
	}
	if _, resp, err := websocket.DefaultDialer.Dial(base+"?token=wrong", nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake with wrong token: err=%v resp=%v", err, resp)
	}
	conn, _, err := websocket.DefaultDialer.Dial(base+"?token=secret", nil)
	if err != nil {
		t.Fatalf("dial with query token: %v", err)
	}
	_ = conn.Close()

	// plain HTTP calls still need the header
	resp, err := http.Post(srv.URL+"/v1/normalize?token=secret", "application/json", strings.NewReader(`{"content":["a"]}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("query token accepted on a plain request: %d", resp.StatusCode)
	}
}
