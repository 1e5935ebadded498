/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package version reports the build version, set at link time with
// -ldflags "-X screenwriter/internal/version.Version=v1.2.3".
package version

import "runtime/debug"

// Version and Commit are overridden by the release build.
var (
	Version = "dev"
	Commit  = ""
)

// String returns Version, falling back to the module version recorded in the
// build info, with the short commit appended when known.
func String() string {
	v := Version
	if v == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	if c := Commit; c != "" {
		if len(c) > 7 {
			c = c[:7]
		}
		v += "+" + c
	}
	return v
}
