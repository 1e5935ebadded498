/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"screenwriter/internal/scene"
)

var (
	detectAt       int
	detectPrevious bool
)

var detectCmd = &cobra.Command{
	Use:   "detect <draft.fountain|->",
	Short: "Show the scene enclosing a cursor offset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		at, err := cursorAt(text, detectAt)
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context(), sessionOptions{})
		if err != nil {
			return err
		}
		defer s.Close()

		cur, err := s.eng.DetectScene(text, at)
		if err != nil {
			return err
		}
		var prev *scene.Context
		if detectPrevious {
			prev, err = s.eng.DetectPrevious(text, at)
			if err != nil {
				return err
			}
		}
		w := cmd.OutOrStdout()
		if jsonFlag {
			out := map[string]any{"current": cur}
			if detectPrevious {
				out["previous"] = prev
			}
			return printJSON(w, out)
		}
		printScene(cmd, "Current scene", cur)
		if detectPrevious {
			printScene(cmd, "Previous scene", prev)
		}
		return nil
	},
}

func printScene(cmd *cobra.Command, title string, c *scene.Context) {
	w := cmd.OutOrStdout()
	if c == nil {
		printTitle(w, title, "(none)")
		return
	}
	printTitle(w, title, fmt.Sprintf("line %d", c.StartLine+1))
	printField(w, "heading", c.Heading)
	if c.Act != nil {
		printField(w, "act", strconv.Itoa(*c.Act))
	}
	if c.PageNumber != nil {
		printField(w, "page", strconv.Itoa(*c.PageNumber))
	}
	if len(c.Characters) > 0 {
		printField(w, "characters", strings.Join(c.Characters, ", "))
	}
}

func init() {
	detectCmd.Flags().IntVar(&detectAt, "at", -1, "Cursor byte offset (default: end of draft)")
	detectCmd.Flags().BoolVar(&detectPrevious, "previous", false, "Also show the scene before")
	rootCmd.AddCommand(detectCmd)
}
