/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package prompt

import (
	"errors"
	"strings"
	"testing"

	"screenwriter/internal/characters"
	"screenwriter/internal/scene"
)

func TestValidateRequests(t *testing.T) {
	ok := []SceneRequest{{Location: "Cabin", Scenario: "Jane arrives"}}
	if err := ValidateRequests(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateRequests(nil); !errors.Is(err, ErrNoRequests) {
		t.Fatalf("expected ErrNoRequests, got %v", err)
	}
	four := make([]SceneRequest, 4)
	for i := range four {
		four[i] = ok[0]
	}
	if err := ValidateRequests(four); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests, got %v", err)
	}
	err := ValidateRequests([]SceneRequest{ok[0], {Location: "  ", Scenario: ""}})
	if !errors.Is(err, ErrEmptyLocation) || !errors.Is(err, ErrEmptyScenario) {
		t.Fatalf("expected both field errors, got %v", err)
	}
	if !strings.Contains(err.Error(), "scene 2") {
		t.Fatalf("error should name the scene: %v", err)
	}
}

func TestAssembleOrdersSections(t *testing.T) {
	act, page := 2, 14
	prev := &scene.Context{Heading: "INT. WAREHOUSE - NIGHT", ContentBeforeOffset: "\nRain hammers the roof.\n"}
	cur := &scene.Context{
		Heading:             "EXT. LOADING DOCK - CONTINUOUS",
		Act:                 &act,
		PageNumber:          &page,
		Characters:          []string{"JANE"},
		ContentBeforeOffset: "\nJane steps out.\n",
	}
	sums := []characters.Summary{{Name: "JANE", Text: "guard, 30s."}}
	reqs := []SceneRequest{
		{Location: "Rooftop", Scenario: "Jane spots the thief", Direction: "tense"},
		{Location: "Street", Scenario: "Chase"},
	}
	out := Assembler{}.Assemble(reqs, cur, prev, sums)

	order := []string{
		"## Previous scene", "Rain hammers the roof.",
		"## Current scene", "Act 2 | Page 14 | Characters present: JANE", "Jane steps out.",
		"## Characters", "- JANE: guard, 30s.",
		"## Scenes to write", "Write 2 new scenes",
		"### Scene 1", "Location: Rooftop", "Scenario: Jane spots the thief", "Direction: tense",
		"### Scene 2", "Location: Street", "Scenario: Chase",
	}
	pos := 0
	for _, s := range order {
		i := strings.Index(out[pos:], s)
		if i < 0 {
			t.Fatalf("missing or out of order %q in prompt:\n%s", s, out)
		}
		pos += i + len(s)
	}
	if strings.Count(out, "Direction:") != 1 {
		t.Fatalf("direction should only appear for scene 1:\n%s", out)
	}
}

func TestAssembleWithoutContext(t *testing.T) {
	reqs := []SceneRequest{{Location: "A", Scenario: "B"}, {Location: "C", Scenario: "D"}}
	out := Assembler{}.Assemble(reqs, nil, nil, nil)
	for _, s := range []string{"## Previous scene", "## Current scene", "## Characters"} {
		if strings.Contains(out, s) {
			t.Fatalf("unexpected section %q:\n%s", s, out)
		}
	}
	if !strings.HasPrefix(out, "## Scenes to write") || !strings.Contains(out, "### Scene 2") {
		t.Fatalf("unexpected prompt:\n%s", out)
	}
}

func TestAssembleTruncatesLongContext(t *testing.T) {
	body := strings.Repeat("line of action\n", 100) + "LAST LINE"
	prev := &scene.Context{Heading: "INT. A - DAY", ContentBeforeOffset: body}
	out := Assembler{MaxContextChars: 100}.Assemble([]SceneRequest{{Location: "x", Scenario: "y"}}, nil, prev, nil)
	if !strings.Contains(out, "[...]\n") || !strings.Contains(out, "LAST LINE") {
		t.Fatalf("expected tail truncation:\n%s", out)
	}
	if strings.Count(out, "line of action") > 7 {
		t.Fatalf("context not truncated:\n%s", out)
	}
	full := Assembler{MaxContextChars: -1}.Assemble([]SceneRequest{{Location: "x", Scenario: "y"}}, nil, prev, nil)
	if strings.Count(full, "line of action") != 100 {
		t.Fatalf("negative limit should disable truncation")
	}
}

func TestSystemInstructionMentionsSchema(t *testing.T) {
	s := SystemInstruction(0, 0)
	for _, want := range []string{`"scenes"`, `"heading"`, `"content"`, `"totalLines"`, "5 to 30"} {
		if !strings.Contains(s, want) {
			t.Fatalf("system instruction missing %q", want)
		}
	}
}
