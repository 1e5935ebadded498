/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	applog "screenwriter/internal/log"
)

const (
	// StateDirName holds per-draft state next to the screenplay file.
	StateDirName   = ".screenwriter"
	BackupsDirName = "backups"

	backupStamp = "20060102-150405.000000000"
)

// ErrNoBackup is returned when a draft has no backup to restore.
var ErrNoBackup = errors.New("no backups found")

// BackupDir returns the backup directory for the screenplay at path.
func BackupDir(path string) string {
	return filepath.Join(filepath.Dir(path), StateDirName, BackupsDirName)
}

// ReadScreenplay returns the draft text at path with CRLF line endings
// converted to LF, so that byte offsets match what the editor reports.
func ReadScreenplay(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("screenplay path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read screenplay: %w", err)
	}
	return strings.ReplaceAll(string(b), "\r\n", "\n"), nil
}

// WriteScreenplay replaces the draft at path with text. The previous content,
// if any, is copied to a timestamped backup first; the new content is written
// to a temp file in the same directory and renamed over the target.
func WriteScreenplay(path, text string) error {
	l := applog.WithOperation(applog.WithComponent("storage"), "write_screenplay").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return errors.New("screenplay path is required")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create screenplay dir: %w", err)
	}

	if _, statErr := os.Stat(path); statErr == nil {
		bdir := BackupDir(path)
		if err := os.MkdirAll(bdir, 0o755); err != nil {
			return fmt.Errorf("ensure backups dir: %w", err)
		}
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), time.Now().Format(backupStamp)))
		if err := copyFile(path, bpath); err != nil {
			l.Error("backup failed", slog.Any("err", err))
			return fmt.Errorf("backup current screenplay: %w", err)
		}
		l.Debug("backup written", slog.String("backup", bpath))
	}

	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, []byte(text)); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp screenplay: %w", err)
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace screenplay: %w", err)
	}
	l.Info("screenplay saved", slog.Int("bytes", len(text)))
	return nil
}

// Backups lists the backups of the screenplay at path, oldest first.
func Backups(path string) ([]string, error) {
	bdir := BackupDir(path)
	ents, err := os.ReadDir(bdir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	prefix := filepath.Base(path) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if !e.IsDir() && isBackupOf(name, prefix) {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	// the timestamp in the name sorts lexicographically
	sort.Strings(out)
	return out, nil
}

// isBackupOf reports whether name is exactly <prefix><stamp>.bak. Sibling
// drafts such as pilot.fountain.v2 share the prefix but not the shape.
func isBackupOf(name, prefix string) bool {
	mid, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return false
	}
	mid, ok = strings.CutSuffix(mid, ".bak")
	if !ok {
		return false
	}
	_, err := time.Parse(backupStamp, mid)
	return err == nil
}

// RestoreLatestBackup writes the newest backup back over path and returns the
// restored text. The replaced content is itself backed up.
func RestoreLatestBackup(path string) (string, error) {
	list, err := Backups(path)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", ErrNoBackup
	}
	b, err := os.ReadFile(list[len(list)-1])
	if err != nil {
		return "", fmt.Errorf("read latest backup: %w", err)
	}
	if err := WriteScreenplay(path, string(b)); err != nil {
		return "", err
	}
	return string(b), nil
}

// writeFileSync writes data and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies src to dst, overwriting dst.
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
