/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package fountain

import "strings"

// SplitLines flattens content entries that carry embedded newlines into single
// physical lines. Carriage returns are dropped.
func SplitLines(content []string) []string {
	out := make([]string, 0, len(content))
	for _, c := range content {
		for _, l := range strings.Split(c, "\n") {
			out = append(out, strings.TrimRight(l, "\r"))
		}
	}
	return out
}

// Space applies the inter-element spacing rules to a line sequence:
//   - existing blank lines are discarded and every line is trimmed
//   - adjacent elements are separated by exactly one blank line
//   - a parenthetical sits directly under the cue or dialogue it belongs to
//   - the result never starts or ends with a blank line
//
// Blank separators are returned as "" entries. Space is idempotent.
func Space(lines []string) []string {
	out := make([]string, 0, len(lines)*2)
	prev := ElementBlank
	for _, raw := range SplitLines(lines) {
		l := strings.TrimSpace(raw)
		if l == "" {
			continue
		}
		t := Classify(l)
		if len(out) > 0 && !attaches(prev, t) {
			out = append(out, "")
		}
		out = append(out, l)
		prev = t
	}
	return out
}

func attaches(prev, next ElementType) bool {
	return next == ElementParenthetical && (prev == ElementCharacter || prev == ElementText)
}
