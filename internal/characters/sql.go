/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package characters

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "screenwriter/internal/log"

	// Postgres driver registered as "pgx"
	_ "github.com/jackc/pgx/v5/stdlib"
	// libSQL/Turso remote driver registered as "libsql"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder style and pragmas.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
	// LibSQL speaks SQLite SQL over the network.
	LibSQL
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case LibSQL:
		return "libsql"
	default:
		return "sqlite"
	}
}

// language=SQL
const createCharactersSQL = `CREATE TABLE IF NOT EXISTS characters (
	name        TEXT PRIMARY KEY,
	role        TEXT NOT NULL DEFAULT '',
	age         TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	traits      TEXT NOT NULL DEFAULT '[]',
	aliases     TEXT NOT NULL DEFAULT '[]'
)`

// language=SQL
const upsertCharacterSQL = `INSERT INTO characters(name, role, age, description, traits, aliases)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	role = excluded.role,
	age = excluded.age,
	description = excluded.description,
	traits = excluded.traits,
	aliases = excluded.aliases`

// language=SQL
const selectCharacterSQL = `SELECT name, role, age, description, traits, aliases FROM characters WHERE name = ?`

// language=SQL
const listCharactersSQL = `SELECT name, role, age, description, traits, aliases FROM characters ORDER BY name`

// SQLRegistry stores characters in SQLite, libSQL or Postgres through database/sql.
// Names are stored upper-cased; alias matches fall back to a full scan.
type SQLRegistry struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

// NewSQLRegistry wraps an open database. Call EnsureSchema before first use.
func NewSQLRegistry(db *sql.DB, dialect Dialect) *SQLRegistry {
	return &SQLRegistry{db: db, dialect: dialect, log: applog.WithComponent("characters").With(slog.String("dialect", dialect.String()))}
}

// OpenSQLite opens (creating if needed) a registry database file, enables WAL
// and ensures the schema exists.
func OpenSQLite(path string) (*SQLRegistry, error) {
	l := applog.WithOperation(applog.WithComponent("characters"), "open_sqlite").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("registry path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
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
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	r := NewSQLRegistry(db, SQLite)
	if err := r.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	l.Debug("registry ready")
	return r, nil
}

// OpenPostgres connects through the pgx stdlib driver and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQLRegistry, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	r := NewSQLRegistry(db, Postgres)
	if err := r.EnsureSchema(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// OpenLibSQL connects to a libSQL server (for example a Turso database URL
// with its authToken query parameter) and ensures the schema.
func OpenLibSQL(ctx context.Context, url string) (*SQLRegistry, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("libsql url is required")
	}
	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql: %w", err)
	}
	r := NewSQLRegistry(db, LibSQL)
	if err := r.EnsureSchema(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// EnsureSchema creates the characters table when missing.
func (r *SQLRegistry) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createCharactersSQL); err != nil {
		r.log.Error("create characters table failed", slog.Any("err", err))
		return fmt.Errorf("create characters table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a character keyed by its normalized name.
func (r *SQLRegistry) Upsert(ctx context.Context, c Character) error {
	name := key(c.Name)
	if name == "" {
		return errors.New("character name is required")
	}
	traits, err := json.Marshal(nonNil(c.Traits))
	if err != nil {
		return fmt.Errorf("marshal traits: %w", err)
	}
	aliases, err := json.Marshal(nonNil(c.Aliases))
	if err != nil {
		return fmt.Errorf("marshal aliases: %w", err)
	}
	_, err = r.db.ExecContext(ctx, r.rebind(upsertCharacterSQL), name, c.Role, c.Age, c.Description, string(traits), string(aliases))
	if err != nil {
		return fmt.Errorf("upsert character %s: %w", name, err)
	}
	return nil
}

func (r *SQLRegistry) Lookup(ctx context.Context, name string) (Character, bool, error) {
	k := key(name)
	if k == "" {
		return Character{}, false, nil
	}
	c, err := scanCharacter(r.db.QueryRowContext(ctx, r.rebind(selectCharacterSQL), k))
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Character{}, false, fmt.Errorf("select character: %w", err)
	}
	all, err := r.List(ctx)
	if err != nil {
		return Character{}, false, err
	}
	for _, c := range all {
		for _, a := range c.Aliases {
			if key(a) == k {
				return c, true, nil
			}
		}
	}
	return Character{}, false, nil
}

// List returns all characters ordered by name.
func (r *SQLRegistry) List(ctx context.Context) ([]Character, error) {
	rows, err := r.db.QueryContext(ctx, listCharactersSQL)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close releases the underlying database.
func (r *SQLRegistry) Close() error { return r.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanCharacter(s scanner) (Character, error) {
	var c Character
	var traits, aliases string
	if err := s.Scan(&c.Name, &c.Role, &c.Age, &c.Description, &traits, &aliases); err != nil {
		return Character{}, err
	}
	if err := json.Unmarshal([]byte(traits), &c.Traits); err != nil {
		return Character{}, fmt.Errorf("decode traits for %s: %w", c.Name, err)
	}
	if err := json.Unmarshal([]byte(aliases), &c.Aliases); err != nil {
		return Character{}, fmt.Errorf("decode aliases for %s: %w", c.Name, err)
	}
	if len(c.Traits) == 0 {
		c.Traits = nil
	}
	if len(c.Aliases) == 0 {
		c.Aliases = nil
	}
	return c, nil
}

// rebind rewrites '?' placeholders to $n for Postgres.
func (r *SQLRegistry) rebind(q string) string {
	if r.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
