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
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	applog "screenwriter/internal/log"
)

// DefaultOllamaModel is asked when no model is configured for a local server.
const DefaultOllamaModel = "llama3.1"

// Ollama generates through a local Ollama server. Its Options reuse the
// chat client's; APIKey is ignored.
type Ollama struct {
	opts Options
	api  *ollama.Client
	log  *slog.Logger
}

// NewOllama returns a generator for the server at opts.BaseURL, or the one
// named by OLLAMA_HOST when BaseURL is empty.
func NewOllama(opts Options) (*Ollama, error) {
	if opts.Model == "" {
		opts.Model = DefaultOllamaModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	var client *ollama.Client
	if strings.TrimSpace(opts.BaseURL) == "" {
		c, err := ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("could not create ollama client: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
		if err != nil {
			return nil, fmt.Errorf("parse ollama url: %w", err)
		}
		hc := opts.HTTPClient
		if hc == nil {
			hc = http.DefaultClient
		}
		client = ollama.NewClient(u, hc)
	}
	return &Ollama{opts: opts, api: client, log: applog.WithComponent("provider").With(slog.String("backend", "ollama"))}, nil
}

// Model returns the model the server is asked to run.
func (o *Ollama) Model() string { return o.opts.Model }

// Generate sends one chat turn in JSON mode and returns the reply text.
func (o *Ollama) Generate(ctx context.Context, system, prompt string) (string, error) {
	l := applog.WithOperation(o.log, "generate").With(slog.String("model", o.opts.Model))
	onDelta := deltaFrom(ctx, o.opts.OnDelta)
	stream := onDelta != nil
	req := &ollama.ChatRequest{
		Model: o.opts.Model,
		Messages: []ollama.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream:  &stream,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{},
	}
	if o.opts.Temperature > 0 {
		req.Options["temperature"] = o.opts.Temperature
	}
	if o.opts.MaxTokens > 0 {
		req.Options["num_predict"] = o.opts.MaxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	start := time.Now()
	var full strings.Builder
	err := o.api.Chat(ctx, req, func(res ollama.ChatResponse) error {
		if res.Message.Content == "" {
			return nil
		}
		full.WriteString(res.Message.Content)
		if onDelta != nil {
			onDelta(res.Message.Content)
		}
		return nil
	})
	if err != nil {
		var se ollama.StatusError
		if errors.As(err, &se) {
			l.WarnContext(ctx, "api error", slog.Int("status", se.StatusCode))
			return "", &APIError{StatusCode: se.StatusCode, Body: se.ErrorMessage}
		}
		l.WarnContext(ctx, "ollama chat failed", slog.Any("err", err))
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	l.InfoContext(ctx, "reply received", slog.Int("chars", len(text)), slog.Duration("took", time.Since(start)))
	return text, nil
}
