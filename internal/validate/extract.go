/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package validate

import (
	"encoding/json"
	"sort"
)

// maxCandidates bounds how many balanced brace spans are checked with
// json.Valid and maxRestarts how often the scan starts over past a brace that
// never closed. Together they keep extraction linear in the input.
const (
	maxCandidates = 64
	maxRestarts   = 8
)

type span struct{ start, end int }

// ExtractJSONObject returns the first balanced, syntactically valid top-level
// JSON object in s. Models wrap their output in prose or code fences despite
// instructions, so braces inside leading prose are skipped when they do not
// start a valid object. Spans are ordered by their opening brace, so an outer
// object wins over the objects nested in it.
func ExtractJSONObject(s string) (string, bool) {
	checked := 0
	for from, pass := 0, 0; pass <= maxRestarts && from < len(s); pass++ {
		spans, unclosed := braceSpans(s[from:])
		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		for _, sp := range spans {
			if checked == maxCandidates {
				return "", false
			}
			checked++
			cand := s[from+sp.start : from+sp.end+1]
			if json.Valid([]byte(cand)) {
				return cand, true
			}
		}
		// A quote in prose inside an unclosed brace can hide a later object
		// in a bogus string literal; look again past that brace.
		if unclosed < 0 {
			break
		}
		from += unclosed + 1
	}
	return "", false
}

// braceSpans pairs every '{' with its closing '}' in one pass. String literals
// are skipped only inside an open brace; quotes in surrounding prose are text.
// unclosed is the first brace left open at the end, or -1.
func braceSpans(s string) (spans []span, unclosed int) {
	var open []int
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = len(open) > 0
		case '{':
			open = append(open, i)
		case '}':
			if n := len(open); n > 0 {
				spans = append(spans, span{start: open[n-1], end: i})
				open = open[:n-1]
			}
		}
	}
	if len(open) == 0 {
		return spans, -1
	}
	return spans, open[0]
}
