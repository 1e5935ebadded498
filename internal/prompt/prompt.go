/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package prompt assembles the natural-language generation request from the
// requested scenes and the detected screenplay context. It performs no I/O.
package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"screenwriter/internal/characters"
	"screenwriter/internal/scene"
)

// SceneRequest is the user's description of one scene to generate.
// Direction is optional.
type SceneRequest struct {
	Location  string `json:"location" yaml:"location"`
	Scenario  string `json:"scenario" yaml:"scenario"`
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
}

// MaxRequests is the number of scenes one generation call may ask for.
const MaxRequests = 3

// Input errors, reported before any model call.
var (
	ErrNoRequests      = errors.New("at least one scene request is required")
	ErrTooManyRequests = fmt.Errorf("at most %d scene requests are allowed", MaxRequests)
	ErrEmptyLocation   = errors.New("location is required")
	ErrEmptyScenario   = errors.New("scenario is required")
)

// ValidateRequests checks the caller's input. All field problems are joined.
func ValidateRequests(reqs []SceneRequest) error {
	if len(reqs) == 0 {
		return ErrNoRequests
	}
	if len(reqs) > MaxRequests {
		return fmt.Errorf("%w: got %d", ErrTooManyRequests, len(reqs))
	}
	var errs []error
	for i, r := range reqs {
		if strings.TrimSpace(r.Location) == "" {
			errs = append(errs, fmt.Errorf("scene %d: %w", i+1, ErrEmptyLocation))
		}
		if strings.TrimSpace(r.Scenario) == "" {
			errs = append(errs, fmt.Errorf("scene %d: %w", i+1, ErrEmptyScenario))
		}
	}
	return errors.Join(errs...)
}

// DefaultMaxContextChars caps each context section (previous scene, current scene).
const DefaultMaxContextChars = 6000

// Assembler builds the user prompt. MaxContextChars < 0 disables truncation;
// zero uses DefaultMaxContextChars.
type Assembler struct {
	MaxContextChars int
}

// Assemble orders the prompt as previous scene, current scene up to the cursor,
// character summaries, then one block per request. Missing context sections are
// omitted; it never fails.
func (a Assembler) Assemble(reqs []SceneRequest, current, previous *scene.Context, summaries []characters.Summary) string {
	var b strings.Builder
	b.Grow(1024)

	if previous != nil {
		b.WriteString("## Previous scene\n")
		b.WriteString(previous.Heading)
		b.WriteString("\n")
		if body := strings.TrimSpace(previous.ContentBeforeOffset); body != "" {
			b.WriteString("\n")
			b.WriteString(a.truncate(body))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if current != nil {
		b.WriteString("## Current scene (text before the cursor)\n")
		b.WriteString(current.Heading)
		b.WriteString("\n")
		if meta := describe(current); meta != "" {
			b.WriteString(meta)
			b.WriteString("\n")
		}
		if body := strings.TrimSpace(current.ContentBeforeOffset); body != "" {
			b.WriteString("\n")
			b.WriteString(a.truncate(body))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(summaries) > 0 {
		b.WriteString("## Characters\n")
		for _, s := range summaries {
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Scenes to write\n")
	noun := "scene"
	if len(reqs) != 1 {
		noun = "scenes"
	}
	fmt.Fprintf(&b, "Write %d new %s that continue the screenplay at the cursor, in this order.\n", len(reqs), noun)
	for i, r := range reqs {
		fmt.Fprintf(&b, "\n### Scene %d\n", i+1)
		fmt.Fprintf(&b, "Location: %s\n", strings.TrimSpace(r.Location))
		fmt.Fprintf(&b, "Scenario: %s\n", strings.TrimSpace(r.Scenario))
		if d := strings.TrimSpace(r.Direction); d != "" {
			fmt.Fprintf(&b, "Direction: %s\n", d)
		}
	}
	return b.String()
}

func describe(c *scene.Context) string {
	var parts []string
	if c.Act != nil {
		parts = append(parts, "Act "+strconv.Itoa(*c.Act))
	}
	if c.PageNumber != nil {
		parts = append(parts, "Page "+strconv.Itoa(*c.PageNumber))
	}
	if len(c.Characters) > 0 {
		parts = append(parts, "Characters present: "+strings.Join(c.Characters, ", "))
	}
	return strings.Join(parts, " | ")
}

// truncate keeps the tail of s, starting at a line boundary when possible.
func (a Assembler) truncate(s string) string {
	max := a.MaxContextChars
	if max == 0 {
		max = DefaultMaxContextChars
	}
	if max < 0 || len(s) <= max {
		return s
	}
	cut := len(s) - max
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	if i := strings.IndexByte(s[cut:], '\n'); i >= 0 && cut+i+1 < len(s) {
		cut += i + 1
	}
	return "[...]\n" + s[cut:]
}
