/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"screenwriter/internal/version"
)

func TestFileCopyCarriesContextAsJSON(t *testing.T) {
	// lumberjack keeps the file open, so stay out of t.TempDir on Windows.
	fpath := filepath.Join(os.TempDir(), fmt.Sprintf("spw_log_%d.json", time.Now().UnixNano()))
	t.Cleanup(func() {
		Init(Options{Level: "error", Output: &bytes.Buffer{}})
		_ = os.Remove(fpath)
	})

	var console bytes.Buffer
	Init(Options{Level: "info", File: fpath, Output: &console})

	ctx := ContextWith(context.Background(), slog.String("attempt", "a1"))
	l := WithOperation(WithComponent("storage"), "write_screenplay")
	l.DebugContext(ctx, "below level")
	l.InfoContext(ctx, "screenplay saved", slog.Int("bytes", 42))

	if out := console.String(); !strings.Contains(out, "INF screenplay saved") || strings.Contains(out, "below level") {
		t.Fatalf("console output = %q", out)
	}

	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 1 {
		t.Fatalf("want one JSON record, got %d: %q", len(lines), b)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	want := map[string]any{
		"app":       "screenwriter",
		"ver":       version.String(),
		"component": "storage",
		"op":        "write_screenplay",
		"attempt":   "a1",
		"msg":       "screenplay saved",
		"bytes":     float64(42),
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s = %v, want %v (record %v)", k, m[k], v, m)
		}
	}
}

func TestJSONFormatWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "warn", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Options{Level: "error", Output: &bytes.Buffer{}}) })

	L().Info("dropped")
	WithComponent("api").Warn("slow request")

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if m["level"] != "WARN" || m["component"] != "api" || m["msg"] != "slow request" {
		t.Fatalf("record = %v", m)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SPW_LOG_LEVEL", "debug")
	t.Setenv("SPW_LOG_FORMAT", "json")
	t.Setenv("SPW_LOG_SOURCE", "TRUE")
	t.Setenv("SPW_LOG_FILE", "/tmp/spw.log")
	got := FromEnv()
	if got.Level != "debug" || got.Format != "json" || !got.AddSource || got.File != "/tmp/spw.log" {
		t.Fatalf("FromEnv = %+v", got)
	}

	t.Setenv("SPW_LOG_LEVEL", "")
	t.Setenv("SPW_LOG_FORMAT", "")
	t.Setenv("SPW_LOG_SOURCE", "")
	t.Setenv("SPW_LOG_FILE", "")
	if got := FromEnv(); got.Level != "info" || got.Format != "console" || got.AddSource || got.File != "" {
		t.Fatalf("defaults = %+v", got)
	}
}
