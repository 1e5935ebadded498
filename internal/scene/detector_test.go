/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const draft = `Title: Night Shift

ACT ONE

INT. WAREHOUSE - NIGHT

Rain hammers the roof.

JANE
Anyone here?

BOB
(off)
Back here.

JANE
Bob?

EXT. LOADING DOCK - CONTINUOUS

Jane steps out into the rain.

SARAH
You're late.
`

func TestDetectFindsEnclosingScene(t *testing.T) {
	d := NewDetector()
	off := strings.Index(draft, "Bob?") + len("Bob?")
	c, err := d.Detect(draft, off)
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if c == nil {
		t.Fatalf("expected scene context")
	}
	if c.Heading != "INT. WAREHOUSE - NIGHT" {
		t.Fatalf("unexpected heading: %q", c.Heading)
	}
	if !reflect.DeepEqual(c.Characters, []string{"JANE", "BOB"}) {
		t.Fatalf("unexpected characters: %v", c.Characters)
	}
	if c.StartLine != 4 {
		t.Fatalf("expected heading on line 4, got %d", c.StartLine)
	}
	if c.StartOffset != strings.Index(draft, "INT. WAREHOUSE") {
		t.Fatalf("unexpected start offset %d", c.StartOffset)
	}
	if !strings.HasPrefix(c.ContentBeforeOffset, "\nRain hammers the roof.") || !strings.HasSuffix(c.ContentBeforeOffset, "Bob?") {
		t.Fatalf("unexpected content before offset: %q", c.ContentBeforeOffset)
	}
	if c.Act == nil || *c.Act != 1 {
		t.Fatalf("expected act 1, got %v", c.Act)
	}
	if c.PageNumber == nil || *c.PageNumber != 1 {
		t.Fatalf("expected page 1, got %v", c.PageNumber)
	}
}

func TestDetectNoHeadingReturnsNil(t *testing.T) {
	d := NewDetector()
	text := "Some text.\nMore text."
	c, err := d.Detect(text, len(text))
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil context, got %+v", c)
	}
}

func TestDetectAtDocumentStartReturnsNil(t *testing.T) {
	d := NewDetector()
	c, err := d.Detect(draft, 0)
	if err != nil || c != nil {
		t.Fatalf("expected nil, nil at start; got %+v, %v", c, err)
	}
	c, err = d.Detect("INT. ROOM - DAY\nText", 0)
	if err != nil || c != nil {
		t.Fatalf("expected nil, nil at start of heading document; got %+v, %v", c, err)
	}
}

func TestDetectOffsetInsideHeadingUsesThatHeading(t *testing.T) {
	d := NewDetector()
	off := strings.Index(draft, "LOADING") + 3
	c, err := d.Detect(draft, off)
	if err != nil || c == nil {
		t.Fatalf("expected context, got %v, %v", c, err)
	}
	if c.Heading != "EXT. LOADING DOCK - CONTINUOUS" {
		t.Fatalf("unexpected heading: %q", c.Heading)
	}
	if c.ContentBeforeOffset != "" {
		t.Fatalf("expected empty content, got %q", c.ContentBeforeOffset)
	}
	if len(c.Characters) != 0 {
		t.Fatalf("expected no characters, got %v", c.Characters)
	}
}

func TestDetectOutOfRangeOffset(t *testing.T) {
	d := NewDetector()
	for _, off := range []int{-1, len(draft) + 1} {
		if _, err := d.Detect(draft, off); !errors.Is(err, ErrOffsetOutOfRange) {
			t.Fatalf("offset %d: expected ErrOffsetOutOfRange, got %v", off, err)
		}
	}
}

func TestDetectDisambiguatesIdenticalHeadingsByPosition(t *testing.T) {
	d := NewDetector()
	text := "INT. ROOM - DAY\n\nALICE\nHi.\n\nINT. ROOM - DAY\n\nBOB\nHey."
	c, err := d.Detect(text, len(text))
	if err != nil || c == nil {
		t.Fatalf("expected context, got %v, %v", c, err)
	}
	if c.StartLine != 5 {
		t.Fatalf("expected second heading (line 5), got %d", c.StartLine)
	}
	if !reflect.DeepEqual(c.Characters, []string{"BOB"}) {
		t.Fatalf("unexpected characters: %v", c.Characters)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	d := NewDetector()
	for off := 0; off <= len(draft); off += 7 {
		a, errA := d.Detect(draft, off)
		b, errB := d.Detect(draft, off)
		if !reflect.DeepEqual(a, b) || !reflect.DeepEqual(errA, errB) {
			t.Fatalf("Detect not deterministic at offset %d", off)
		}
	}
}

func TestPreviousReturnsEarlierScene(t *testing.T) {
	d := NewDetector()
	c, err := d.Detect(draft, len(draft))
	if err != nil || c == nil {
		t.Fatalf("expected context, got %v, %v", c, err)
	}
	prev := d.Previous(draft, c.StartLine)
	if prev == nil {
		t.Fatalf("expected previous scene")
	}
	if prev.Heading != "INT. WAREHOUSE - NIGHT" {
		t.Fatalf("unexpected previous heading: %q", prev.Heading)
	}
	if !strings.HasSuffix(prev.ContentBeforeOffset, "Bob?") {
		t.Fatalf("previous body should end at the next heading, got %q", prev.ContentBeforeOffset)
	}
	if strings.Contains(prev.ContentBeforeOffset, "LOADING DOCK") {
		t.Fatalf("previous body must not include the current heading")
	}
	if !reflect.DeepEqual(prev.Characters, []string{"JANE", "BOB"}) {
		t.Fatalf("unexpected previous characters: %v", prev.Characters)
	}
	if d.Previous(draft, prev.StartLine) != nil {
		t.Fatalf("expected no scene before the first heading")
	}
	if d.Previous(draft, 0) != nil {
		t.Fatalf("expected nil at document start")
	}
}

func TestPageNumberEstimate(t *testing.T) {
	d := &Detector{CharsPerPage: 10}
	text := "INT. A - DAY\n" + strings.Repeat("x", 40)
	c, err := d.Detect(text, len(text))
	if err != nil || c == nil {
		t.Fatalf("expected context, got %v, %v", c, err)
	}
	if c.PageNumber == nil || *c.PageNumber != len(text)/10+1 {
		t.Fatalf("unexpected page number: %v", c.PageNumber)
	}
	d.CharsPerPage = 0
	c, _ = d.Detect(text, len(text))
	if c.PageNumber != nil {
		t.Fatalf("expected page numbers disabled")
	}
}

func TestActMarkers(t *testing.T) {
	d := NewDetector()
	for marker, want := range map[string]int{"ACT TWO": 2, "# ACT 3": 3, "act iv": 4} {
		text := marker + "\n\nINT. A - DAY\nText"
		c, err := d.Detect(text, len(text))
		if err != nil || c == nil {
			t.Fatalf("%s: expected context, got %v, %v", marker, c, err)
		}
		if c.Act == nil || *c.Act != want {
			t.Fatalf("%s: expected act %d, got %v", marker, want, c.Act)
		}
	}
}
