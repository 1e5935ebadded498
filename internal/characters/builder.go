/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package characters cross-references the names found in a scene against a
// character registry and produces short summaries for prompt context.
package characters

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Character is a registry entry. Name is matched case-insensitively; Aliases
// cover cue variants such as "DR. MARTINEZ" vs "MARTINEZ".
type Character struct {
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Role        string   `yaml:"role,omitempty" json:"role,omitempty"`
	Age         string   `yaml:"age,omitempty" json:"age,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Traits      []string `yaml:"traits,omitempty" json:"traits,omitempty"`
}

// Summary is the prompt-ready description of one scene character.
type Summary struct {
	Name string
	Text string
}

// Registry resolves a cue name to a known character.
type Registry interface {
	Lookup(ctx context.Context, name string) (Character, bool, error)
}

// DefaultMaxSummaryChars bounds a single summary.
const DefaultMaxSummaryChars = 240

// Builder turns scene character names into summaries.
type Builder struct {
	MaxSummaryChars int
}

// Build looks up every name and returns summaries in the order of names.
// Names the registry does not know are skipped; a lookup error aborts.
func (b Builder) Build(ctx context.Context, names []string, reg Registry) ([]Summary, error) {
	if reg == nil || len(names) == 0 {
		return nil, nil
	}
	max := b.MaxSummaryChars
	if max == 0 {
		max = DefaultMaxSummaryChars
	}
	out := make([]Summary, 0, len(names))
	for _, n := range names {
		c, ok, err := reg.Lookup(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("lookup %q: %w", n, err)
		}
		if !ok {
			continue
		}
		out = append(out, Summary{Name: strings.TrimSpace(n), Text: Summarize(c, max)})
	}
	return out, nil
}

// Summarize renders "role, age. description. Traits: a, b." cut to max runes
// (max <= 3 means no limit).
func Summarize(c Character, max int) string {
	var parts []string
	var head []string
	if r := strings.TrimSpace(c.Role); r != "" {
		head = append(head, r)
	}
	if a := strings.TrimSpace(c.Age); a != "" {
		head = append(head, a)
	}
	if len(head) > 0 {
		parts = append(parts, sentence(strings.Join(head, ", ")))
	}
	if d := strings.TrimSpace(c.Description); d != "" {
		parts = append(parts, sentence(d))
	}
	if len(c.Traits) > 0 {
		parts = append(parts, sentence("Traits: "+strings.Join(c.Traits, ", ")))
	}
	s := strings.Join(parts, " ")
	if max > 3 && utf8.RuneCountInString(s) > max {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:max-3])) + "..."
	}
	return s
}

func sentence(s string) string {
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		return s
	}
	return s + "."
}

// key is the normalized lookup key for names and aliases.
func key(name string) string { return strings.ToUpper(strings.Join(strings.Fields(name), " ")) }
