/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package validate checks a model's JSON reply against the scene-array schema.
//
// Checks come in two tiers. Hard checks (parseable object, non-empty scenes,
// non-blank headings, enough content lines) decide whether the content is
// usable at all. Soft checks (declared line count, scene count, repeated
// heading) only produce warnings, because models reliably miscount.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"screenwriter/internal/fountain"
)

// Status is the outcome tier of a validation.
type Status int

const (
	Rejected Status = iota
	AcceptedWithWarnings
	Accepted
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case AcceptedWithWarnings:
		return "accepted_with_warnings"
	default:
		return "rejected"
	}
}

// ErrInvalidJSON is the message used when no JSON object can be parsed.
const ErrInvalidJSON = "invalid JSON"

// MaxOutputBytes caps the reply size Validate inspects. A reply of a few
// scenes is a few kilobytes.
const MaxOutputBytes = 1 << 20

// Result is the tagged outcome. Scenes is only set when Status is not Rejected;
// Errors holds hard-check failures, Warnings soft-check failures.
type Result struct {
	Status   Status
	Scenes   []fountain.Scene
	Errors   []string
	Warnings []string
	Raw      map[string]any
}

// Valid reports that both tiers passed.
func (r Result) Valid() bool { return r.Status == Accepted }

// Usable reports that the hard tier passed and Scenes may be inserted.
func (r Result) Usable() bool { return r.Status != Rejected }

// Messages returns every recorded problem, hard ones first.
func (r Result) Messages() []string {
	out := make([]string, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

// FirstError returns the first critical message, or "" when there is none.
func (r Result) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}

// Defaults for the tolerance of the soft line-count check.
const (
	DefaultMinContentLines  = 3
	DefaultLineTolerancePct = 10
	DefaultMinLineTolerance = 2
)

// Options tunes the validator.
type Options struct {
	MinContentLines  int
	LineTolerancePct int
	MinLineTolerance int
}

// Validator is safe for concurrent use; the compiled schema is read-only.
type Validator struct {
	opts   Options
	schema *gojsonschema.Schema
}

// New compiles the hard-tier schema. Zero option fields take the defaults.
func New(opts Options) (*Validator, error) {
	if opts.MinContentLines <= 0 {
		opts.MinContentLines = DefaultMinContentLines
	}
	if opts.LineTolerancePct <= 0 {
		opts.LineTolerancePct = DefaultLineTolerancePct
	}
	if opts.MinLineTolerance <= 0 {
		opts.MinLineTolerance = DefaultMinLineTolerance
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(hardSchema(opts.MinContentLines)))
	if err != nil {
		return nil, fmt.Errorf("compile scene schema: %w", err)
	}
	return &Validator{opts: opts, schema: schema}, nil
}

// MustNew is New for the built-in schema, which always compiles.
func MustNew(opts Options) *Validator {
	v, err := New(opts)
	if err != nil {
		panic(err)
	}
	return v
}

func hardSchema(minContent int) string {
	return fmt.Sprintf(`{
  "type": "object",
  "required": ["scenes"],
  "properties": {
    "scenes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["heading", "content"],
        "properties": {
          "heading": {"type": "string", "pattern": "\\S"},
          "content": {"type": "array", "minItems": %d, "items": {"type": "string"}}
        }
      }
    }
  }
}`, minContent)
}

// Validate parses output, applies the hard tier and, when it passes, the soft tier.
// contextBeforeCursor is the document text up to the insertion point and
// requested the number of scenes asked for (<= 0 skips the count check).
func (v *Validator) Validate(output, contextBeforeCursor string, requested int) Result {
	if len(output) > MaxOutputBytes {
		return Result{Status: Rejected, Errors: []string{fmt.Sprintf("reply too large: %d bytes (max %d)", len(output), MaxOutputBytes)}}
	}
	text, ok := ExtractJSONObject(output)
	if !ok {
		return Result{Status: Rejected, Errors: []string{ErrInvalidJSON}}
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Result{Status: Rejected, Errors: []string{ErrInvalidJSON}}
	}

	res, err := v.schema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return Result{Status: Rejected, Errors: []string{ErrInvalidJSON}, Raw: raw}
	}
	if !res.Valid() {
		errs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			errs = append(errs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
		}
		return Result{Status: Rejected, Errors: errs, Raw: raw}
	}

	var payload struct {
		Scenes []fountain.Scene `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Result{Status: Rejected, Errors: []string{ErrInvalidJSON}, Raw: raw}
	}
	scenes := make([]fountain.Scene, len(payload.Scenes))
	for i, s := range payload.Scenes {
		scenes[i] = fountain.Scene{Heading: strings.TrimSpace(s.Heading), Content: s.Content}
	}

	warnings := v.soft(raw, scenes, contextBeforeCursor, requested)
	st := Accepted
	if len(warnings) > 0 {
		st = AcceptedWithWarnings
	}
	return Result{Status: st, Scenes: scenes, Warnings: warnings, Raw: raw}
}

func (v *Validator) soft(raw map[string]any, scenes []fountain.Scene, before string, requested int) []string {
	var w []string

	actual := 0
	for _, s := range scenes {
		actual += len(s.Content)
	}
	switch tl := raw["totalLines"].(type) {
	case nil:
		w = append(w, "totalLines: missing")
	case float64:
		if tl != math.Trunc(tl) {
			w = append(w, fmt.Sprintf("totalLines: %v is not an integer", tl))
			break
		}
		declared := int(tl)
		if diff := declared - actual; diff > v.tolerance(actual) || -diff > v.tolerance(actual) {
			w = append(w, fmt.Sprintf("totalLines: declared %d, actual %d", declared, actual))
		}
	default:
		w = append(w, fmt.Sprintf("totalLines: expected a number, got %T", tl))
	}

	if requested > 0 && len(scenes) != requested {
		w = append(w, fmt.Sprintf("scenes: requested %d, got %d", requested, len(scenes)))
	}

	if h := lastHeading(before); h != "" && len(scenes) > 0 && strings.EqualFold(h, scenes[0].Heading) {
		w = append(w, fmt.Sprintf("scenes.0.heading: repeats the current scene heading %q", h))
	}
	return w
}

func (v *Validator) tolerance(actual int) int {
	t := actual * v.opts.LineTolerancePct / 100
	if t < v.opts.MinLineTolerance {
		t = v.opts.MinLineTolerance
	}
	return t
}

// lastHeading returns the nearest scene heading at or above the end of text.
func lastHeading(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if fountain.IsSceneHeading(lines[i]) {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
