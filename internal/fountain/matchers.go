/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SceneHeadingMatcher decides whether a single line is a scene heading.
type SceneHeadingMatcher interface {
	MatchHeading(line string) bool
}

// CharacterCueMatcher decides whether a single line is a pure character name.
type CharacterCueMatcher interface {
	MatchCue(line string) bool
}

// Patterns
var (
	reHeading    = regexp.MustCompile(`(?i)^(INT\.|EXT\.|I/E\.)\s+.+-\s+(DAY|NIGHT|CONTINUOUS|LATER|MOMENTS LATER)`)
	reCue        = regexp.MustCompile(`^[A-Z][A-Z\s#0-9']+$`)
	reTransition = regexp.MustCompile(`^(?:[A-Z][A-Z\s'\-]*TO:|FADE (?:IN|OUT)[:.]?|FADE TO BLACK\.?)$`)
)

const (
	minCueLen = 2
	maxCueLen = 50
)

// HeadingMatcher is the regex-backed SceneHeadingMatcher used by default.
type HeadingMatcher struct{}

func (HeadingMatcher) MatchHeading(line string) bool {
	return reHeading.MatchString(strings.TrimSpace(line))
}

// CueMatcher is the default CharacterCueMatcher. A cue is 2-50 runes of upper-case
// letters, digits, spaces, '#' and apostrophes, with no parenthetical extension.
type CueMatcher struct{}

func (CueMatcher) MatchCue(line string) bool {
	s := strings.TrimSpace(line)
	n := utf8.RuneCountInString(s)
	if n < minCueLen || n > maxCueLen {
		return false
	}
	if strings.ContainsRune(s, '(') {
		return false
	}
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
	}
	return reCue.MatchString(s)
}

// Default matchers; callers tuning the heuristics pass their own implementations.
var (
	DefaultHeadings SceneHeadingMatcher = HeadingMatcher{}
	DefaultCues     CharacterCueMatcher = CueMatcher{}
)

// IsSceneHeading reports whether line is a scene heading using DefaultHeadings.
func IsSceneHeading(line string) bool { return DefaultHeadings.MatchHeading(line) }

// IsCharacterCue reports whether line is a pure character name using DefaultCues.
func IsCharacterCue(line string) bool { return DefaultCues.MatchCue(line) }

// IsTransition reports lines such as "CUT TO:" or "FADE OUT.".
func IsTransition(line string) bool { return reTransition.MatchString(strings.TrimSpace(line)) }

// IsParenthetical reports lines wrapped in parentheses, e.g. "(quietly)".
func IsParenthetical(line string) bool {
	s := strings.TrimSpace(line)
	return len(s) >= 2 && strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
}

// Classify returns the element type of a single line. Transitions are checked
// before cues because "FADE IN" would otherwise look like a name.
func Classify(line string) ElementType {
	s := strings.TrimSpace(line)
	switch {
	case s == "":
		return ElementBlank
	case IsSceneHeading(s):
		return ElementHeading
	case IsTransition(s):
		return ElementTransition
	case IsParenthetical(s):
		return ElementParenthetical
	case IsCharacterCue(s):
		return ElementCharacter
	default:
		return ElementText
	}
}
