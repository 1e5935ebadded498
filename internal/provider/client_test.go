/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
	c, err := New(Options{APIKey: "k"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if c.Model() != DefaultModel {
		t.Fatalf("default model not applied: %q", c.Model())
	}
}

func TestGenerateSendsChatRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"{\"scenes\":[]}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL + "/api/v1/", APIKey: "secret", Model: "m/1", Temperature: 0.5, MaxTokens: 100})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	text, err := c.Generate(context.Background(), "SYS", "PROMPT")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if text != `{"scenes":[]}` {
		t.Fatalf("text = %q", text)
	}
	if got.Model != "m/1" || len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "PROMPT" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != 0.5 || got.MaxTokens != 100 || got.Stream {
		t.Fatalf("unexpected options: %+v", got)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("json response format not requested")
	}
}

func TestGenerateAPIError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := New(Options{BaseURL: srv.URL, APIKey: "k", RetryDelay: time.Millisecond})
	_, err := c.Generate(context.Background(), "s", "p")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != 429 || !apiErr.Temporary() || !strings.Contains(apiErr.Body, "rate limited") {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if got := calls.Load(); got != DefaultMaxRetries+1 {
		t.Fatalf("calls = %d, want %d", got, DefaultMaxRetries+1)
	}
}

func TestGenerateRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	c, _ := New(Options{BaseURL: srv.URL, APIKey: "k", RetryDelay: time.Millisecond})
	text, err := c.Generate(context.Background(), "s", "p")
	if err != nil || text != "{}" {
		t.Fatalf("text=%q err=%v", text, err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestGenerateDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := New(Options{BaseURL: srv.URL, APIKey: "k", RetryDelay: time.Millisecond})
	_, err := c.Generate(context.Background(), "s", "p")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("expected 401 *APIError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestGenerateRetriesDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(Options{BaseURL: srv.URL, APIKey: "k", MaxRetries: -1})
	if _, err := c.Generate(context.Background(), "s", "p"); err == nil {
		t.Fatalf("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestGenerateEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, _ := New(Options{BaseURL: srv.URL, APIKey: "k"})
	if _, err := c.Generate(context.Background(), "s", "p"); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}

func TestGenerateStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{`{\"sce`, `nes\":`, `[]}`} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%s\"}}]}\n\n", chunk)
		}
		fmt.Fprint(w, ": keep-alive\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	var chunks []string
	c, _ := New(Options{BaseURL: srv.URL, APIKey: "k", OnDelta: func(s string) { chunks = append(chunks, s) }})
	text, err := c.Generate(context.Background(), "s", "p")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if text != `{"scenes":[]}` || len(chunks) != 3 {
		t.Fatalf("text=%q chunks=%q", text, chunks)
	}
}

func TestGenerateStreamsToContextDelta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Errorf("request should ask for a stream")
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"{}\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	var got strings.Builder
	c, _ := New(Options{BaseURL: srv.URL, APIKey: "k"})
	ctx := WithDelta(context.Background(), func(s string) { got.WriteString(s) })
	text, err := c.Generate(ctx, "s", "p")
	if err != nil || text != "{}" || got.String() != "{}" {
		t.Fatalf("text=%q delta=%q err=%v", text, got.String(), err)
	}
}

func TestGenerateHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := New(Options{BaseURL: srv.URL, APIKey: "k"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Generate(ctx, "s", "p"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
