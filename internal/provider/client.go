/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package provider talks to an OpenAI-compatible chat-completions endpoint
// (OpenRouter by default) to turn an assembled prompt into the model's raw
// reply. It knows nothing about scenes; the engine validates what comes back.
package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	applog "screenwriter/internal/log"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "anthropic/claude-3.5-sonnet"
	DefaultTimeout = 2 * time.Minute

	// DefaultMaxRetries is how often a 429, a 5xx or a network error is retried.
	DefaultMaxRetries = 2
	DefaultRetryDelay = time.Second

	// maxErrorBody caps how much of a failed response is kept in APIError.
	maxErrorBody = 4 << 10
)

// ErrNoAPIKey is returned by New when no API key is given.
var ErrNoAPIKey = errors.New("provider: API key is required")

// ErrEmptyReply is returned when the model answers with no content.
var ErrEmptyReply = errors.New("provider: empty reply")

// APIError is a non-2xx answer from the endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider: API error %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options configures a Client. Zero fields take the defaults.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// MaxRetries < 0 disables retries. RetryDelay is the first backoff interval.
	MaxRetries int
	RetryDelay time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
	// OnDelta, when set, switches to streaming and receives each content chunk.
	OnDelta func(chunk string)
}

// Client is safe for concurrent use.
type Client struct {
	opts Options
	http *http.Client
	log  *slog.Logger
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{opts: opts, http: hc, log: applog.WithComponent("provider")}, nil
}

// Model returns the model the client asks.
func (c *Client) Model() string { return c.opts.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate sends system and prompt as one chat turn and returns the reply text.
// Cancelling ctx aborts the request. The reply is streamed when ctx carries a
// delta callback (see WithDelta) or Options.OnDelta is set.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	l := applog.WithOperation(c.log, "generate").With(slog.String("model", c.opts.Model))
	onDelta := deltaFrom(ctx, c.opts.OnDelta)
	req := chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      c.opts.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
		Stream:         onDelta != nil,
	}
	if c.opts.Temperature > 0 {
		t := c.opts.Temperature
		req.Temperature = &t
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	resp, err := backoff.Retry(ctx,
		func() (*http.Response, error) { return c.post(ctx, l, body, req.Stream) },
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(uint(c.opts.MaxRetries)+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			l.WarnContext(ctx, "retrying", slog.Any("err", err), slog.Duration("wait", wait))
		}),
	)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var text string
	if req.Stream {
		text, err = readStream(resp.Body, onDelta)
	} else {
		text, err = readReply(resp.Body, l)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	l.InfoContext(ctx, "reply received", slog.Int("chars", len(text)), slog.Duration("took", time.Since(start)))
	return text, nil
}

func (c *Client) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryDelay
	b.MaxInterval = 30 * time.Second
	return b
}

// post sends one attempt. Only answers worth repeating come back as plain
// errors; everything else is wrapped with backoff.Permanent. Nothing has been
// read from a returned response, so a retry never repeats a delta.
func (c *Client) post(ctx context.Context, l *slog.Logger, body []byte, stream bool) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		l.WarnContext(ctx, "request failed", slog.Any("err", err))
		err = fmt.Errorf("do request: %w", err)
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		l.WarnContext(ctx, "api error", slog.Int("status", resp.StatusCode))
		if !apiErr.Temporary() {
			return nil, backoff.Permanent(apiErr)
		}
		return nil, apiErr
	}
	return resp, nil
}

func readReply(r io.Reader, l *slog.Logger) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var cr chatResponse
	if err := json.Unmarshal(b, &cr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", ErrEmptyReply
	}
	l.Debug("usage", slog.Int("prompt_tokens", cr.Usage.PromptTokens), slog.Int("completion_tokens", cr.Usage.CompletionTokens))
	return cr.Choices[0].Message.Content, nil
}

// readStream consumes server-sent events until [DONE] or EOF.
func readStream(r io.Reader, onDelta func(string)) (string, error) {
	var full strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			// keep-alive comments and vendor extras
			continue
		}
		for _, ch := range ev.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			full.WriteString(ch.Delta.Content)
			onDelta(ch.Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	return full.String(), nil
}
