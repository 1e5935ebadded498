/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package prompt

import "fmt"

// Content length bounds asked of the model. Only the validator's minimum is enforced.
const (
	DefaultMinContentLines = 5
	DefaultMaxContentLines = 30
)

// SystemInstruction returns the system message that mandates the JSON reply shape.
func SystemInstruction(minLines, maxLines int) string {
	if minLines <= 0 {
		minLines = DefaultMinContentLines
	}
	if maxLines < minLines {
		maxLines = DefaultMaxContentLines
	}
	return fmt.Sprintf(`You are a professional screenwriter writing in Fountain format.

Write the requested scenes so they continue the screenplay naturally from the cursor.
Keep established characters consistent with the context you are given.

Return ONLY a JSON object (no markdown, no explanation) in this exact format:
{"scenes": [{"heading": "INT. LOCATION - DAY", "content": ["line", "line", ...]}], "totalLines": 0}

Rules:
1. One entry in "scenes" per requested scene, in the requested order
2. "heading" is a Fountain scene heading: INT./EXT./I/E. location - DAY|NIGHT|CONTINUOUS|LATER|MOMENTS LATER
3. "content" holds %d to %d entries; each entry is exactly one screenplay line
4. Character cues are ALL CAPS on their own line, followed by their dialogue as the next entry
5. Action lines use normal sentence case; do not write action in ALL CAPS
6. Parentheticals are their own entry, e.g. "(quietly)"
7. Do not include blank entries; spacing is handled for you
8. "totalLines" is the total number of content entries across all scenes`, minLines, maxLines)
}
