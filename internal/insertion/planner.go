/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package insertion computes the splice that merges a normalized scene block
// into a document at the cursor without breaking Fountain spacing.
package insertion

import (
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"

	"screenwriter/internal/fountain"
)

// Plan is the text to insert and where. The planner never deletes; collapsing a
// selection before planning is the caller's job.
type Plan struct {
	Text string `json:"textToInsert"`
	At   int    `json:"insertAt"`
}

// HeadingLookback is how far back (in bytes of trimmed text) a heading right
// before the cursor is recognized.
const HeadingLookback = 100

// Leading conditions, evaluated in order.
type leadCondition int

const (
	leadTextOnLine leadCondition = iota
	leadHeadingBefore
	leadDefault
)

// Every condition currently asks for a blank line. They stay separate so one
// can change without re-deriving the others.
var leadingTarget = map[leadCondition]int{
	leadTextOnLine:    2,
	leadHeadingBefore: 2,
	leadDefault:       2,
}

// headingGap is the newline count required between content and a following heading.
const headingGap = 2

// Planner is stateless; the zero value uses the default heading matcher.
type Planner struct {
	Headings fountain.SceneHeadingMatcher
}

// Plan pads block so that it joins the surrounding text cleanly. The cursor is
// clamped into the document; Plan never fails.
func (p *Planner) Plan(document string, cursor int, block string) Plan {
	cursor = clamp(cursor, len(document))
	before, after := document[:cursor], document[cursor:]

	lead := pad(leadingTarget[p.leadingCondition(before)], trailingNewlines(before))
	return Plan{Text: lead + block + p.trailing(after), At: cursor}
}

func (p *Planner) leadingCondition(before string) leadCondition {
	lineStart := strings.LastIndexByte(before, '\n') + 1
	if strings.TrimSpace(before[lineStart:]) != "" {
		return leadTextOnLine
	}
	trimmed := strings.TrimRightFunc(before, unicode.IsSpace)
	window := trimmed
	if len(window) > HeadingLookback {
		window = window[len(window)-HeadingLookback:]
	}
	last := window[strings.LastIndexByte(window, '\n')+1:]
	if p.headings().MatchHeading(last) {
		return leadHeadingBefore
	}
	return leadDefault
}

func (p *Planner) trailing(after string) string {
	if strings.TrimSpace(after) == "" {
		return ""
	}
	rest := strings.TrimLeftFunc(after, unicode.IsSpace)
	first := rest
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		first = rest[:i]
	}
	if p.headings().MatchHeading(first) {
		return pad(headingGap, leadingNewlines(after))
	}
	if !strings.HasPrefix(after, "\n") {
		return "\n"
	}
	return ""
}

func (p *Planner) headings() fountain.SceneHeadingMatcher {
	if p == nil || p.Headings == nil {
		return fountain.DefaultHeadings
	}
	return p.Headings
}

// pad returns the newlines still missing to reach want when have are already present.
func pad(want, have int) string {
	if have >= want {
		return ""
	}
	return strings.Repeat("\n", want-have)
}

// trailingNewlines counts newlines in the whitespace run that ends s.
func trailingNewlines(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == '\n' {
			n++
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' {
			continue
		}
		break
	}
	return n
}

// leadingNewlines counts newlines in the whitespace run that starts s.
func leadingNewlines(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\n' {
			n++
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' {
			continue
		}
		break
	}
	return n
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// Apply splices plan into document.
func Apply(document string, plan Plan) string {
	at := clamp(plan.At, len(document))
	return document[:at] + plan.Text + document[at:]
}

// Preview renders the change plan makes to document as a colored inline diff.
func Preview(document string, plan Plan) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(document, Apply(document, plan), false)
	return dmp.DiffPrettyText(dmp.DiffCleanupSemantic(diffs))
}
