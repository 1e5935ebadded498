/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package scene locates the scene surrounding a cursor offset in a Fountain
// screenplay and extracts the context a generation request needs.
package scene

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"screenwriter/internal/fountain"
)

// DefaultCharsPerPage is a rough screenplay page estimate. Page numbers are cosmetic.
const DefaultCharsPerPage = 3000

// ErrOffsetOutOfRange is returned when the offset does not address a position in the text.
var ErrOffsetOutOfRange = errors.New("offset out of range")

// Context describes the scene a cursor sits in.
// StartLine is the 0-based index of the heading line; ContentBeforeOffset is the
// scene text after the heading line up to the offset.
type Context struct {
	Heading             string   `json:"heading"`
	Act                 *int     `json:"act,omitempty"`
	PageNumber          *int     `json:"page,omitempty"`
	Characters          []string `json:"characters"`
	StartLine           int      `json:"startLine"`
	StartOffset         int      `json:"startOffset"`
	ContentBeforeOffset string   `json:"contentBeforeOffset"`
}

// Detector finds scene headings around byte offsets. The zero value is usable
// and falls back to the default matchers; CharsPerPage <= 0 disables page numbers.
type Detector struct {
	CharsPerPage int
	Headings     fountain.SceneHeadingMatcher
	Cues         fountain.CharacterCueMatcher
}

// NewDetector returns a Detector with default matchers and page estimate.
func NewDetector() *Detector {
	return &Detector{CharsPerPage: DefaultCharsPerPage, Headings: fountain.DefaultHeadings, Cues: fountain.DefaultCues}
}

// line is a physical line of the document; end is the index of its '\n' (or len(text)).
type line struct {
	start int
	end   int
	text  string
}

func splitLines(text string) []line {
	lines := make([]line, 0, strings.Count(text, "\n")+1)
	start := 0
	for {
		i := strings.IndexByte(text[start:], '\n')
		if i < 0 {
			lines = append(lines, line{start: start, end: len(text), text: strings.TrimRight(text[start:], "\r")})
			return lines
		}
		end := start + i
		lines = append(lines, line{start: start, end: end, text: strings.TrimRight(text[start:end], "\r")})
		start = end + 1
	}
}

// lineAt returns the index of the line containing offset. An offset right after
// a newline belongs to the next line.
func lineAt(lines []line, offset int) int {
	i := sort.Search(len(lines), func(i int) bool { return lines[i].start > offset })
	return i - 1
}

// Detect returns the scene containing offset, or nil when no heading precedes it.
// The cursor line itself is examined first, so an offset inside a heading uses
// that heading. Only an offset outside [0, len(text)] is an error.
func (d *Detector) Detect(text string, offset int) (*Context, error) {
	if offset < 0 || offset > len(text) {
		return nil, fmt.Errorf("%w: %d not in [0,%d]", ErrOffsetOutOfRange, offset, len(text))
	}
	if offset == 0 {
		return nil, nil
	}
	lines := splitLines(text)
	for i := lineAt(lines, offset); i >= 0; i-- {
		if d.headings().MatchHeading(lines[i].text) {
			return d.build(text, lines, i, offset), nil
		}
	}
	return nil, nil
}

// Previous returns the scene that ends right before startLine, or nil when
// startLine is at the document start or no earlier heading exists.
func (d *Detector) Previous(text string, startLine int) *Context {
	lines := splitLines(text)
	if startLine > len(lines) {
		startLine = len(lines)
	}
	for i := startLine - 1; i >= 0; i-- {
		if !d.headings().MatchHeading(lines[i].text) {
			continue
		}
		end := len(text)
		if startLine < len(lines) {
			end = lines[startLine].start
		}
		c := d.build(text, lines, i, end)
		c.ContentBeforeOffset = strings.TrimRight(c.ContentBeforeOffset, "\r\n")
		return c
	}
	return nil
}

func (d *Detector) build(text string, lines []line, h, offset int) *Context {
	hl := lines[h]
	content := ""
	if from := hl.end + 1; offset > from {
		content = text[from:offset]
	}
	c := &Context{
		Heading:             strings.TrimSpace(hl.text),
		StartLine:           h,
		StartOffset:         hl.start,
		ContentBeforeOffset: content,
		Characters:          d.characters(content),
		Act:                 actBefore(lines, h),
	}
	if d.CharsPerPage > 0 {
		p := offset/d.CharsPerPage + 1
		c.PageNumber = &p
	}
	return c
}

// characters returns cue lines in first-seen order without duplicates.
func (d *Detector) characters(content string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, l := range strings.Split(content, "\n") {
		if !d.cues().MatchCue(l) {
			continue
		}
		name := strings.TrimSpace(l)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func (d *Detector) headings() fountain.SceneHeadingMatcher {
	if d == nil || d.Headings == nil {
		return fountain.DefaultHeadings
	}
	return d.Headings
}

func (d *Detector) cues() fountain.CharacterCueMatcher {
	if d == nil || d.Cues == nil {
		return fountain.DefaultCues
	}
	return d.Cues
}

// Act markers: "ACT ONE", "# ACT 2", "ACT III".
var reAct = regexp.MustCompile(`(?i)^#*\s*ACT\s+(ONE|TWO|THREE|FOUR|FIVE|SIX|SEVEN|[0-9]+|[IVX]+)\b`)

var actWords = map[string]int{"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5, "SIX": 6, "SEVEN": 7}

var romans = map[string]int{"I": 1, "II": 2, "III": 3, "IV": 4, "V": 5, "VI": 6, "VII": 7, "VIII": 8, "IX": 9, "X": 10}

func actBefore(lines []line, h int) *int {
	for i := h - 1; i >= 0; i-- {
		m := reAct.FindStringSubmatch(strings.TrimSpace(lines[i].text))
		if m == nil {
			continue
		}
		tok := strings.ToUpper(m[1])
		if n, ok := actWords[tok]; ok {
			return &n
		}
		if n, ok := romans[tok]; ok {
			return &n
		}
		if n, err := strconv.Atoi(tok); err == nil {
			return &n
		}
		return nil
	}
	return nil
}
