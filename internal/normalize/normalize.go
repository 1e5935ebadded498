/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package normalize rewrites generated scene lines to Fountain conventions:
// it repairs action lines the model wrote in ALL CAPS and enforces the
// inter-element spacing before scenes are joined into one block.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"screenwriter/internal/fountain"
)

// Description pattern: a comma followed by an age or duration, or a common action verb.
var (
	reAgeToken   = regexp.MustCompile(`(?i),\s*(?:(?:early|mid|late)[\s-]*)?\d+`)
	reActionVerb = regexp.MustCompile(`(?i)\b(?:exits|enters|walks|runs|sits|stands|grabs|takes|opens|closes|weathered|years)\b`)
)

// Normalizer is stateless; the zero value uses the default matchers.
type Normalizer struct {
	Headings fountain.SceneHeadingMatcher
	Cues     fountain.CharacterCueMatcher
}

// New returns a Normalizer with the default matchers.
func New() *Normalizer {
	return &Normalizer{Headings: fountain.DefaultHeadings, Cues: fountain.DefaultCues}
}

// NeedsCaseRepair reports whether line is an action line the model wrote in caps:
// the text up to the first comma has letters and none of them lower-case, it
// reads like a description, and it is neither a heading nor a pure cue.
func (n *Normalizer) NeedsCaseRepair(line string) bool {
	s := strings.TrimSpace(line)
	if !upperLead(s) {
		return false
	}
	if !reAgeToken.MatchString(s) && !reActionVerb.MatchString(s) {
		return false
	}
	if n.headings().MatchHeading(s) {
		return false
	}
	return !n.cues().MatchCue(s)
}

// RepairCase returns line in sentence case when NeedsCaseRepair holds and
// unchanged otherwise. Proper nouns past the first letter are lower-cased too.
func (n *Normalizer) RepairCase(line string) string {
	if !n.NeedsCaseRepair(line) {
		return line
	}
	return sentenceCase(strings.TrimSpace(line))
}

// Lines repairs capitalization and applies the spacing rules; blank separators
// are "" entries. Lines(Lines(x)) == Lines(x).
func (n *Normalizer) Lines(content []string) []string {
	flat := fountain.SplitLines(content)
	for i, l := range flat {
		flat[i] = n.RepairCase(l)
	}
	return fountain.Space(flat)
}

// Text is Lines joined with newlines.
func (n *Normalizer) Text(content []string) string {
	return strings.Join(n.Lines(content), "\n")
}

// Join renders scenes as heading, blank line, normalized content, with a blank
// line between consecutive scenes. The result has no leading or trailing newlines.
func (n *Normalizer) Join(scenes []fountain.Scene) string {
	parts := make([]string, 0, len(scenes))
	for _, s := range scenes {
		h := strings.TrimSpace(s.Heading)
		body := n.Text(s.Content)
		switch {
		case h == "":
			if body != "" {
				parts = append(parts, body)
			}
		case body == "":
			parts = append(parts, h)
		default:
			parts = append(parts, h+"\n\n"+body)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (n *Normalizer) headings() fountain.SceneHeadingMatcher {
	if n == nil || n.Headings == nil {
		return fountain.DefaultHeadings
	}
	return n.Headings
}

func (n *Normalizer) cues() fountain.CharacterCueMatcher {
	if n == nil || n.Cues == nil {
		return fountain.DefaultCues
	}
	return n.Cues
}

func upperLead(s string) bool {
	lead := s
	if i := strings.IndexByte(s, ','); i >= 0 {
		lead = s[:i]
	}
	letters := false
	for _, r := range lead {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters = true
		}
	}
	return letters
}

// sentenceCase lower-cases s and upper-cases its first rune. Casers are not
// safe for concurrent use, so one is built per call.
func sentenceCase(s string) string {
	lower := cases.Lower(language.Und).String(s)
	_, size := utf8.DecodeRuneInString(lower)
	if size == 0 {
		return lower
	}
	return cases.Upper(language.Und).String(lower[:size]) + lower[size:]
}
