/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in the CLI into a report file and a rescue copy
// of the draft being edited, then exits non-zero.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	applog "screenwriter/internal/log"
	"screenwriter/internal/storage"
	"screenwriter/internal/version"
)

// exitFn is swapped in tests.
var exitFn = os.Exit

// Draft is the screenplay a command is working on. Text holds the in-memory
// version, which may differ from the file; it is rescued when non-empty.
type Draft struct {
	Path string
	Text string
}

// Recover must be deferred directly:
//
//	defer crash.Recover(draft)
func Recover(d *Draft) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(d, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if d != nil && d.Path != "" && strings.TrimSpace(d.Text) != "" {
		if path, err := rescue(d); err != nil {
			l.Error("rescue draft failed", slog.Any("err", err))
		} else {
			l.Info("draft rescued", slog.String("path", path))
			_, _ = fmt.Fprintf(os.Stderr, "Unsaved text was rescued to: %s\n", path)
		}
	}
	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func reportDir(d *Draft) string {
	if d != nil && d.Path != "" {
		dir := storage.BackupDir(d.Path)
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return dir
		}
	}
	return os.TempDir()
}

func writeReport(d *Draft, panicVal any, stack []byte) (string, error) {
	path := filepath.Join(reportDir(d), fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Screenwriter Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if d != nil && d.Path != "" {
		_, _ = fmt.Fprintf(&buf, "Screenplay: %s\n", d.Path)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	return path, nil
}

// rescue writes d.Text beside the backups without touching the draft itself.
func rescue(d *Draft) (string, error) {
	path := filepath.Join(storage.BackupDir(d.Path), fmt.Sprintf("%s.crash-%s", filepath.Base(d.Path), time.Now().Format("20060102-150405")))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(d.Text), 0o644)
}
