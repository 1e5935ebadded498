/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package fountain holds the line classifiers shared by scene detection and
// normalization. Fountain drafts have no enforced grammar, so everything here is
// a heuristic over single lines rather than a parser.
package fountain

// Scene is one generated scene: a heading plus its screenplay lines
// (action, character cue, dialogue, parenthetical or transition).
type Scene struct {
	Heading string   `json:"heading"`
	Content []string `json:"content"`
}

// ElementType indicates the kind of a screenplay line.
// Heading:       INT./EXT./I/E. location - time of day
// Transition:    CUT TO:, FADE OUT.
// Character:     ALL CAPS cue
// Parenthetical: (beat)
// Text:          action or dialogue; indistinguishable without context

type ElementType int

const (
	ElementBlank ElementType = iota
	ElementHeading
	ElementTransition
	ElementCharacter
	ElementParenthetical
	ElementText
)

func (t ElementType) String() string {
	switch t {
	case ElementBlank:
		return "blank"
	case ElementHeading:
		return "heading"
	case ElementTransition:
		return "transition"
	case ElementCharacter:
		return "character"
	case ElementParenthetical:
		return "parenthetical"
	case ElementText:
		return "text"
	default:
		return "unknown"
	}
}
