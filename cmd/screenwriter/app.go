/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"screenwriter/internal/characters"
	"screenwriter/internal/config"
	"screenwriter/internal/engine"
	"screenwriter/internal/prompt"
	"screenwriter/internal/provider"
	"screenwriter/internal/storage"
	"screenwriter/internal/undo"
)

// registry is a character registry the CLI may have to close.
type registry interface {
	characters.Registry
	io.Closer
}

type memoryRegistry struct{ *characters.MemoryRegistry }

func (memoryRegistry) Close() error { return nil }

// openRegistry opens the configured character registry; nil when none is configured.
func openRegistry(ctx context.Context, sc config.StorageConfig) (registry, error) {
	dsn := strings.TrimSpace(sc.RegistryDSN)
	if dsn == "" {
		return nil, nil
	}
	switch sc.RegistryDriver {
	case "", "yaml":
		m, err := characters.LoadYAML(dsn)
		if err != nil {
			return nil, err
		}
		return memoryRegistry{m}, nil
	case "sqlite":
		return characters.OpenSQLite(dsn)
	case "postgres":
		return characters.OpenPostgres(ctx, dsn)
	case "libsql":
		return characters.OpenLibSQL(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown registry driver %q", sc.RegistryDriver)
	}
}

func engineOptions() engine.Options {
	ec := cfg.Engine
	return engine.Options{
		CharsPerPage:     ec.CharsPerPage,
		MinContentLines:  ec.MinContentLines,
		TargetMinLines:   ec.TargetMinLines,
		TargetMaxLines:   ec.TargetMaxLines,
		MaxContextChars:  ec.MaxContextChars,
		MaxSummaryChars:  ec.MaxSummaryChars,
		LineTolerancePct: ec.LineTolerancePct,
		Model:            cfg.Provider.Model,
	}
}

// session bundles an engine with the resources it holds open.
type session struct {
	eng     *engine.Engine
	journal *storage.Journal
	closers []io.Closer
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

type sessionOptions struct {
	registry bool
	journal  string // screenplay path the journal belongs to; "" for none
	// journalFile names the journal database directly and wins over journal.
	journalFile string
	provider    *provider.Options
	history     *undo.History
}

func openSession(ctx context.Context, so sessionOptions) (*session, error) {
	s := &session{}
	opts := engineOptions()
	if so.registry {
		reg, err := openRegistry(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open character registry: %w", err)
		}
		if reg != nil {
			opts.Registry = reg
			s.closers = append(s.closers, reg)
		}
	}
	if so.journal != "" || so.journalFile != "" {
		path := so.journalFile
		if path == "" {
			path = cfg.Storage.JournalPath
		}
		if path == "" {
			path = storage.JournalPath(so.journal)
		}
		j, err := storage.OpenJournal(path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.journal = j
		opts.Journal = j
		s.closers = append(s.closers, j)
	}
	if so.provider != nil {
		g, err := newGenerator(*so.provider)
		if err != nil {
			s.Close()
			return nil, err
		}
		opts.Generator = g
		opts.Model = g.Model()
	}
	opts.History = so.history
	eng, err := engine.New(opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.eng = eng
	return s, nil
}

type generator interface {
	engine.Generator
	Model() string
}

func newGenerator(po provider.Options) (generator, error) {
	switch cfg.Provider.Kind {
	case "", "openrouter", "openai":
		return provider.New(po)
	case "ollama":
		return provider.NewOllama(po)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}

func providerOptions() (provider.Options, error) {
	pc := cfg.Provider
	if pc.Kind == "ollama" {
		// the hosted defaults mean nothing to a local server
		def := config.Defaults().Provider
		po := provider.Options{BaseURL: pc.BaseURL, Model: pc.Model, Temperature: pc.Temperature, MaxTokens: pc.MaxTokens, Timeout: pc.ProviderTimeout()}
		if po.BaseURL == def.BaseURL {
			po.BaseURL = ""
		}
		if po.Model == def.Model {
			po.Model = ""
		}
		return po, nil
	}
	key, err := config.APIKey(".env")
	if errors.Is(err, config.ErrNoAPIKey) {
		return provider.Options{}, fmt.Errorf("%w: set %s, run 'screenwriter config set-key' or add it to .env", err, config.EnvAPIKey)
	}
	if err != nil {
		return provider.Options{}, err
	}
	return provider.Options{
		BaseURL:     pc.BaseURL,
		APIKey:      key,
		Model:       pc.Model,
		Temperature: pc.Temperature,
		MaxTokens:   pc.MaxTokens,
		MaxRetries:  pc.MaxRetries,
		Timeout:     pc.ProviderTimeout(),
	}, nil
}

// readInput reads a file, or stdin for "-".
func readInput(in io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.ReplaceAll(string(b), "\r\n", "\n"), nil
	}
	return storage.ReadScreenplay(path)
}

// cursorAt resolves the --at flag; negative means the end of text.
func cursorAt(text string, at int) (int, error) {
	if at < 0 {
		return len(text), nil
	}
	if at > len(text) {
		return 0, fmt.Errorf("--at %d is past the end of the document (%d bytes)", at, len(text))
	}
	return at, nil
}

// parseSceneFlag reads "location|scenario[|direction]".
func parseSceneFlag(s string) (prompt.SceneRequest, error) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) < 2 {
		return prompt.SceneRequest{}, fmt.Errorf("--scene %q: want \"location|scenario[|direction]\"", s)
	}
	r := prompt.SceneRequest{Location: strings.TrimSpace(parts[0]), Scenario: strings.TrimSpace(parts[1])}
	if len(parts) == 3 {
		r.Direction = strings.TrimSpace(parts[2])
	}
	return r, nil
}

// loadRequests merges requests from a YAML or JSON file with --scene flags.
func loadRequests(file string, flags []string) ([]prompt.SceneRequest, error) {
	var reqs []prompt.SceneRequest
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read requests: %w", err)
		}
		var doc struct {
			Scenes []prompt.SceneRequest `yaml:"scenes" json:"scenes"`
		}
		if strings.HasSuffix(file, ".json") {
			err = json.Unmarshal(b, &doc)
		} else {
			err = yaml.Unmarshal(b, &doc)
		}
		if err != nil {
			return nil, fmt.Errorf("parse requests %s: %w", file, err)
		}
		reqs = append(reqs, doc.Scenes...)
	}
	for _, f := range flags {
		r, err := parseSceneFlag(f)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, prompt.ValidateRequests(reqs)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
