/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	applog "screenwriter/internal/log"
	"screenwriter/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	JournalFileName = "journal.sqlite"

	// journalSchemaVersion is bumped together with a new step in migrateJournal.
	journalSchemaVersion = 2
)

// JournalPath returns the default journal location for the screenplay at path.
func JournalPath(screenplay string) string {
	return filepath.Join(filepath.Dir(screenplay), StateDirName, JournalFileName)
}

// Attempt is one generation run as recorded in the journal.
type Attempt struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Document  string    `json:"document,omitempty"`
	Model     string    `json:"model,omitempty"`
	Status    string    `json:"status"`
	Requested int       `json:"requested"`
	Scenes    int       `json:"scenes"`
	Prompt    string    `json:"prompt,omitempty"`
	Output    string    `json:"output,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	InsertAt  int       `json:"insertAt"`
	Inserted  string    `json:"inserted,omitempty"`
}

// language=SQL
// dialect=SQLite
const insertAttemptSQL = `INSERT INTO attempts(id, ts, document, model, status, requested, scenes, prompt, output, errors, warnings, insert_at, inserted)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const attemptColumns = `id, ts, document, model, status, requested, scenes, prompt, output, errors, warnings, insert_at, inserted`

// language=SQL
// dialect=SQLite
const selectAttemptSQL = `SELECT ` + attemptColumns + ` FROM attempts WHERE id = ?`

// language=SQL
// dialect=SQLite
const listAttemptsSQL = `SELECT ` + attemptColumns + ` FROM attempts ORDER BY ts DESC, rowid DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneAttemptsSQL = `DELETE FROM attempts WHERE id NOT IN (
	SELECT id FROM attempts ORDER BY ts DESC, rowid DESC LIMIT ?
)`

// Journal is the SQLite-backed history of generation attempts. It is safe for
// concurrent use.
type Journal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenJournal opens or creates the journal database at path, enables WAL and
// brings the schema up to date.
func OpenJournal(path string) (*Journal, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "journal_open").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureJournalVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure version failed", slog.Any("err", err))
		return nil, err
	}
	if err := migrateJournal(ctx, db); err != nil {
		_ = db.Close()
		l.Error("migrate failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("journal ready")
	return &Journal{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file backing j.
func (j *Journal) Path() string { return j.path }

// Close releases the database.
func (j *Journal) Close() error { return j.db.Close() }

func ensureJournalVersion(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS version (
		id         INTEGER PRIMARY KEY CHECK(id=1),
		schema     INTEGER NOT NULL,
		app        TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 0, ?, ?, ?)`, version.String(), now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, version.String(), now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// migrateJournal applies each schema step above the stored version in its own transaction.
func migrateJournal(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	steps := map[int][]string{
		1: {
			`CREATE TABLE IF NOT EXISTS attempts (
				id        TEXT PRIMARY KEY,
				ts        TEXT    NOT NULL,
				document  TEXT    NOT NULL DEFAULT '',
				status    TEXT    NOT NULL,
				requested INTEGER NOT NULL,
				scenes    INTEGER NOT NULL,
				prompt    TEXT    NOT NULL DEFAULT '',
				output    TEXT    NOT NULL DEFAULT '',
				errors    TEXT    NOT NULL DEFAULT '[]',
				warnings  TEXT    NOT NULL DEFAULT '[]',
				insert_at INTEGER NOT NULL DEFAULT 0,
				inserted  TEXT    NOT NULL DEFAULT ''
			);`,
			`CREATE INDEX IF NOT EXISTS idx_attempts_ts ON attempts(ts);`,
		},
		2: {
			`ALTER TABLE attempts ADD COLUMN model TEXT NOT NULL DEFAULT '';`,
		},
	}
	for next := cur + 1; next <= journalSchemaVersion; next++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range steps[next] {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
	}
	return nil
}

// Record stores a and returns its ID. Missing IDs and timestamps are filled in.
func (j *Journal) Record(ctx context.Context, a Attempt) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = j.now()
	}
	errs, err := json.Marshal(nonNil(a.Errors))
	if err != nil {
		return "", fmt.Errorf("encode errors: %w", err)
	}
	warns, err := json.Marshal(nonNil(a.Warnings))
	if err != nil {
		return "", fmt.Errorf("encode warnings: %w", err)
	}
	if _, err := j.db.ExecContext(ctx, insertAttemptSQL,
		a.ID, a.At.UTC().Format(time.RFC3339Nano), a.Document, a.Model, a.Status, a.Requested, a.Scenes,
		a.Prompt, a.Output, string(errs), string(warns), a.InsertAt, a.Inserted,
	); err != nil {
		return "", fmt.Errorf("insert attempt: %w", err)
	}
	return a.ID, nil
}

// Get returns the attempt with id; ok is false when there is none.
func (j *Journal) Get(ctx context.Context, id string) (Attempt, bool, error) {
	a, err := scanAttempt(j.db.QueryRowContext(ctx, selectAttemptSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

// Recent returns up to limit attempts, newest first. limit <= 0 means 50.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, listAttemptsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune keeps the keepLast newest attempts and deletes the rest.
func (j *Journal) Prune(ctx context.Context, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := j.db.ExecContext(ctx, pruneAttemptsSQL, keepLast)
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s rowScanner) (Attempt, error) {
	var (
		a           Attempt
		ts          string
		errs, warns string
	)
	if err := s.Scan(&a.ID, &ts, &a.Document, &a.Model, &a.Status, &a.Requested, &a.Scenes,
		&a.Prompt, &a.Output, &errs, &warns, &a.InsertAt, &a.Inserted); err != nil {
		return Attempt{}, err
	}
	a.At, _ = time.Parse(time.RFC3339Nano, ts)
	if err := json.Unmarshal([]byte(errs), &a.Errors); err != nil {
		return Attempt{}, fmt.Errorf("decode errors of %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(warns), &a.Warnings); err != nil {
		return Attempt{}, fmt.Errorf("decode warnings of %s: %w", a.ID, err)
	}
	return a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
