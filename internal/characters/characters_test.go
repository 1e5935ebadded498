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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildFollowsSceneOrderAndSkipsUnknown(t *testing.T) {
	reg := NewMemoryRegistry(
		Character{Name: "Bob", Role: "foreman", Description: "Tired of the night shift"},
		Character{Name: "Jane", Role: "guard", Age: "30s", Traits: []string{"wary", "dry humour"}},
	)
	got, err := Builder{}.Build(context.Background(), []string{"JANE", "STRANGER", "BOB"}, reg)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 summaries, got %d: %+v", len(got), got)
	}
	if got[0].Name != "JANE" || got[1].Name != "BOB" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Text != "guard, 30s. Traits: wary, dry humour." {
		t.Fatalf("unexpected JANE summary: %q", got[0].Text)
	}
	if got[1].Text != "foreman. Tired of the night shift." {
		t.Fatalf("unexpected BOB summary: %q", got[1].Text)
	}
}

func TestBuildWithoutRegistry(t *testing.T) {
	got, err := Builder{}.Build(context.Background(), []string{"JANE"}, nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil without registry; got %v, %v", got, err)
	}
}

type failingRegistry struct{}

func (failingRegistry) Lookup(context.Context, string) (Character, bool, error) {
	return Character{}, false, errors.New("boom")
}

func TestBuildPropagatesLookupError(t *testing.T) {
	if _, err := (Builder{}).Build(context.Background(), []string{"JANE"}, failingRegistry{}); err == nil {
		t.Fatalf("expected lookup error")
	}
}

func TestSummarizeTruncates(t *testing.T) {
	c := Character{Name: "X", Description: strings.Repeat("word ", 100)}
	s := Summarize(c, 40)
	if len([]rune(s)) > 40 || !strings.HasSuffix(s, "...") {
		t.Fatalf("expected truncated summary, got %q", s)
	}
}

func TestMemoryRegistryAliases(t *testing.T) {
	reg := NewMemoryRegistry(Character{Name: "Dr. Martinez", Aliases: []string{"MARTINEZ"}})
	for _, n := range []string{"dr.  martinez", "MARTINEZ", " martinez "} {
		if _, ok, _ := reg.Lookup(context.Background(), n); !ok {
			t.Fatalf("expected lookup of %q to succeed", n)
		}
	}
	if _, ok, _ := reg.Lookup(context.Background(), "JANE"); ok {
		t.Fatalf("unexpected match for JANE")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.yaml")
	data := `characters:
  - name: JANE
    role: night guard
    age: 30s
    traits: [wary]
  - name: BOB
    aliases: [ROBERT]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	reg, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML error: %v", err)
	}
	if len(reg.List()) != 2 {
		t.Fatalf("expected 2 characters, got %d", len(reg.List()))
	}
	c, ok, _ := reg.Lookup(context.Background(), "robert")
	if !ok || c.Name != "BOB" {
		t.Fatalf("alias lookup failed: %+v %v", c, ok)
	}
	if _, err := ParseYAML([]byte("characters: [")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := LoadYAML(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSQLiteRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg, err := OpenSQLite(filepath.Join(t.TempDir(), "registry", "characters.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	defer func() { _ = reg.Close() }()

	if err := reg.Upsert(ctx, Character{Name: "jane", Role: "guard", Traits: []string{"wary"}, Aliases: []string{"JANIE"}}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := reg.Upsert(ctx, Character{Name: "JANE", Role: "head guard", Aliases: []string{"JANIE"}}); err != nil {
		t.Fatalf("second Upsert error: %v", err)
	}
	if err := reg.Upsert(ctx, Character{Name: "  "}); err == nil {
		t.Fatalf("expected error for empty name")
	}

	c, ok, err := reg.Lookup(ctx, "Jane")
	if err != nil || !ok {
		t.Fatalf("Lookup failed: %v %v", ok, err)
	}
	if c.Role != "head guard" || c.Traits != nil {
		t.Fatalf("upsert did not replace row: %+v", c)
	}
	if c, ok, err = reg.Lookup(ctx, "janie"); err != nil || !ok || c.Name != "JANE" {
		t.Fatalf("alias lookup failed: %+v %v %v", c, ok, err)
	}
	if _, ok, err = reg.Lookup(ctx, "BOB"); err != nil || ok {
		t.Fatalf("expected miss for BOB, got %v %v", ok, err)
	}
	all, err := reg.List(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("List: %v %v", all, err)
	}

	sums, err := Builder{}.Build(ctx, []string{"JANE"}, reg)
	if err != nil || len(sums) != 1 || sums[0].Text != "head guard." {
		t.Fatalf("Build over sqlite registry: %+v %v", sums, err)
	}
}

func TestRebindPostgres(t *testing.T) {
	r := &SQLRegistry{dialect: Postgres}
	if got := r.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("rebind = %q", got)
	}
	for _, d := range []Dialect{SQLite, LibSQL} {
		r.dialect = d
		if got := r.rebind("a = ?"); got != "a = ?" {
			t.Fatalf("%s rebind should be identity, got %q", d, got)
		}
	}
}

func TestLibSQLRegistry(t *testing.T) {
	url := os.Getenv("SPW_LIBSQL_URL")
	if url == "" {
		t.Skip("SPW_LIBSQL_URL not set")
	}
	ctx := context.Background()
	reg, err := OpenLibSQL(ctx, url)
	if err != nil {
		t.Skipf("libsql not available: %v", err)
	}
	defer func() { _ = reg.Close() }()
	if err := reg.Upsert(ctx, Character{Name: "LIBSQL TEST", Aliases: []string{"LT"}}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if c, ok, err := reg.Lookup(ctx, "lt"); err != nil || !ok || c.Name != "LIBSQL TEST" {
		t.Fatalf("alias Lookup: %+v %v %v", c, ok, err)
	}
}

func TestPostgresRegistry(t *testing.T) {
	dsn := os.Getenv("SPW_PG_DSN")
	if dsn == "" {
		t.Skip("SPW_PG_DSN not set")
	}
	ctx := context.Background()
	reg, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer func() { _ = reg.Close() }()
	if err := reg.Upsert(ctx, Character{Name: "PG TEST", Role: "stand-in"}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	c, ok, err := reg.Lookup(ctx, "pg test")
	if err != nil || !ok || c.Role != "stand-in" {
		t.Fatalf("Lookup: %+v %v %v", c, ok, err)
	}
}
