/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"screenwriter/internal/storage"
)

var (
	historyLimit int
	historyShow  string
	historyPrune int
)

var historyCmd = &cobra.Command{
	Use:   "history <draft.fountain>",
	Short: "List past generation attempts for a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Storage.JournalPath
		if path == "" {
			path = storage.JournalPath(args[0])
		}
		j, err := storage.OpenJournal(path)
		if err != nil {
			return err
		}
		defer j.Close()
		ctx := cmd.Context()
		w := cmd.OutOrStdout()

		if historyPrune > 0 {
			n, err := j.Prune(ctx, historyPrune)
			if err != nil {
				return err
			}
			printSuccess(w, fmt.Sprintf("removed %d attempt(s)", n))
			return nil
		}
		if historyShow != "" {
			a, ok, err := j.Get(ctx, historyShow)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("attempt not found: " + historyShow)
			}
			if jsonFlag {
				return printJSON(w, a)
			}
			printTitle(w, a.ID, a.At.Local().Format("2006-01-02 15:04:05"))
			printField(w, "status", a.Status)
			printField(w, "model", a.Model)
			printErrors(w, a.Errors)
			printWarnings(w, a.Warnings)
			fmt.Fprintln(w, box(colorMuted, a.Prompt))
			fmt.Fprintln(w, box(colorInfo, a.Output))
			return nil
		}

		list, err := j.Recent(ctx, historyLimit)
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(w, list)
		}
		for _, a := range list {
			status := styleSuccess.Render(a.Status)
			if a.Status == "rejected" {
				status = styleError.Render(a.Status)
			} else if len(a.Warnings) > 0 {
				status = styleWarning.Render(a.Status)
			}
			fmt.Fprintf(w, "%s  %s  %s  %d/%d scene(s)\n",
				styleMuted.Render(a.At.Local().Format("2006-01-02 15:04")), a.ID, status, a.Scenes, a.Requested)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of attempts to list")
	historyCmd.Flags().StringVar(&historyShow, "show", "", "Show one attempt in full")
	historyCmd.Flags().IntVar(&historyPrune, "prune", 0, "Keep only the newest N attempts")
	rootCmd.AddCommand(historyCmd)
}
