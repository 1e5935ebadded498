/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import (
	"reflect"
	"strings"
	"testing"
)

func TestSceneHeadingCorpus(t *testing.T) {
	yes := []string{
		"INT. WAREHOUSE - NIGHT",
		"EXT. BEACH - DAY",
		"I/E. CAR - CONTINUOUS",
		"int. kitchen - later",
		"INT. KITCHEN - MOMENTS LATER",
		"   INT. HALLWAY - NIGHT   ",
		"INT. DINER - BOOTH - DAY",
	}
	no := []string{
		"",
		"INT WAREHOUSE - NIGHT",
		"INT. WAREHOUSE",
		"INTERIOR. WAREHOUSE - NIGHT",
		"She walks into the INT. office - DAY",
		"EXT. ROOF - DUSK",
	}
	for _, s := range yes {
		if !IsSceneHeading(s) {
			t.Fatalf("expected heading: %q", s)
		}
	}
	for _, s := range no {
		if IsSceneHeading(s) {
			t.Fatalf("unexpected heading: %q", s)
		}
	}
}

func TestCharacterCueCorpus(t *testing.T) {
	yes := []string{"JANE", "BOB", "GUARD #2", "O'BRIEN", "MAN 1", "  SARAH  "}
	no := []string{
		"J",                            // too short
		"Jane",                         // lowercase
		"JANE (V.O.)",                  // parenthetical extension
		"DR. MARTINEZ",                 // period is outside the cue alphabet
		"CUT TO:",                      // colon
		"1ST GUARD",                    // must start with a letter
		strings.Repeat("A", 51),        // too long
		"INT. WAREHOUSE - NIGHT",       // heading
		"DR. MARTINEZ, 50S, WEATHERED", // description
	}
	for _, s := range yes {
		if !IsCharacterCue(s) {
			t.Fatalf("expected cue: %q", s)
		}
	}
	for _, s := range no {
		if IsCharacterCue(s) {
			t.Fatalf("unexpected cue: %q", s)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]ElementType{
		"":                    ElementBlank,
		"   ":                 ElementBlank,
		"EXT. FIELD - DAY":    ElementHeading,
		"CUT TO:":             ElementTransition,
		"FADE OUT.":           ElementTransition,
		"FADE IN:":            ElementTransition,
		"(whispering)":        ElementParenthetical,
		"JANE":                ElementCharacter,
		"She enters.":         ElementText,
		"Hello? Anyone here?": ElementText,
	}
	for in, want := range cases {
		if got := Classify(in); got != want {
			t.Fatalf("Classify(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSpaceSeparatesElementsWithSingleBlankLine(t *testing.T) {
	got := Space([]string{"", "She enters.", "JANE", "", "", "Hello?", ""})
	want := []string{"She enters.", "", "JANE", "", "Hello?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Space = %q, want %q", got, want)
	}
}

func TestSpaceAttachesParenthetical(t *testing.T) {
	got := Space([]string{"JANE", "(quietly)", "Hello?", "He turns."})
	want := []string{"JANE", "(quietly)", "", "Hello?", "", "He turns."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Space = %q, want %q", got, want)
	}
}

func TestSpaceSplitsEmbeddedNewlines(t *testing.T) {
	got := Space([]string{"She enters.\r\nJANE", "  Hello?  "})
	want := []string{"She enters.", "", "JANE", "", "Hello?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Space = %q, want %q", got, want)
	}
}

func TestSpaceIsIdempotent(t *testing.T) {
	inputs := [][]string{
		{"She enters.", "JANE", "(beat)", "Hello?", "CUT TO:"},
		{"", "", ""},
		{"A", "", "", "B", "(c)", "(d)"},
		nil,
	}
	for _, in := range inputs {
		once := Space(in)
		twice := Space(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("Space not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}
