/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"screenwriter/internal/engine"
	"screenwriter/internal/insertion"
	applog "screenwriter/internal/log"
	"screenwriter/internal/storage"
)

// requestFlags are shared by prompt and generate.
type requestFlags struct {
	at     int
	scenes []string
	file   string
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.at, "at", -1, "Cursor byte offset (default: end of draft)")
	cmd.Flags().StringArrayVar(&f.scenes, "scene", nil, `Scene request "location|scenario[|direction]" (repeatable)`)
	cmd.Flags().StringVar(&f.file, "requests", "", "YAML or JSON file with a scenes: list")
}

var promptFlags requestFlags
var promptSystem bool

var promptCmd = &cobra.Command{
	Use:   "prompt <draft.fountain|->",
	Short: "Print the prompt a generation would send, without calling the model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reqs, err := loadRequests(promptFlags.file, promptFlags.scenes)
		if err != nil {
			return err
		}
		text, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		at, err := cursorAt(text, promptFlags.at)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, err := openSession(ctx, sessionOptions{registry: true})
		if err != nil {
			return err
		}
		defer s.Close()

		cur, err := s.eng.DetectScene(text, at)
		if err != nil {
			return err
		}
		prev, err := s.eng.DetectPrevious(text, at)
		if err != nil {
			return err
		}
		var names []string
		if cur != nil {
			names = cur.Characters
		}
		sums, err := s.eng.Summaries(ctx, names)
		if err != nil {
			return err
		}
		p, err := s.eng.BuildPrompt(reqs, cur, prev, sums)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jsonFlag {
			out := map[string]string{"prompt": p}
			if promptSystem {
				out["system"] = s.eng.SystemInstruction()
			}
			return printJSON(w, out)
		}
		if promptSystem {
			fmt.Fprintln(w, s.eng.SystemInstruction())
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, p)
		return nil
	},
}

var (
	genFlags  requestFlags
	genApply  bool
	genDiff   bool
	genStream bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <draft.fountain>",
	Short: "Generate scenes at the cursor and show or apply the insertion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		reqs, err := loadRequests(genFlags.file, genFlags.scenes)
		if err != nil {
			return err
		}
		text, err := storage.ReadScreenplay(path)
		if err != nil {
			return err
		}
		at, err := cursorAt(text, genFlags.at)
		if err != nil {
			return err
		}
		po, err := providerOptions()
		if err != nil {
			return err
		}
		errw := cmd.ErrOrStderr()
		if genStream {
			po.OnDelta = func(chunk string) { fmt.Fprint(errw, styleMuted.Render(chunk)) }
		}
		ctx := cmd.Context()
		s, err := openSession(ctx, sessionOptions{registry: true, journal: path, provider: &po})
		if err != nil {
			return err
		}
		defer s.Close()

		out, err := s.eng.Generate(ctx, engine.Document{Text: text, Cursor: at, Path: path}, reqs)
		if genStream {
			fmt.Fprintln(errw)
		}
		pruneJournal(ctx, s)
		var rej *engine.RejectedError
		if errors.As(err, &rej) {
			if jsonFlag {
				_ = printJSON(cmd.OutOrStdout(), map[string]any{"status": "rejected", "attemptId": rej.AttemptID, "errors": rej.Errors})
			} else {
				printErrors(errw, rej.Errors)
			}
			return fmt.Errorf("reply rejected (attempt %s)", rej.AttemptID)
		}
		if err != nil {
			return err
		}
		return reportOutcome(cmd, s, path, text, out)
	},
}

func reportOutcome(cmd *cobra.Command, s *session, path, text string, out *engine.Outcome) error {
	w := cmd.OutOrStdout()
	if jsonFlag {
		if err := printJSON(w, map[string]any{
			"attemptId": out.AttemptID,
			"status":    out.Status.String(),
			"scenes":    out.Scenes,
			"plan":      out.Plan,
			"warnings":  out.Warnings,
		}); err != nil {
			return err
		}
	} else {
		printWarnings(cmd.ErrOrStderr(), out.Warnings)
		if genDiff {
			fmt.Fprintln(w, insertion.Preview(text, out.Plan))
		} else {
			fmt.Fprintln(w, box(colorSuccess, out.Block))
		}
	}
	if !genApply {
		return nil
	}
	return applyPlan(cmd, s, engine.Document{Text: text, Path: path}, out.Plan, out.AttemptID)
}

// applyPlan writes the spliced draft. The new text is parked in draft first
// so a crash during the write leaves a rescue copy.
func applyPlan(cmd *cobra.Command, s *session, doc engine.Document, plan insertion.Plan, attemptID string) error {
	path := doc.Path
	next := s.eng.Apply(doc, plan, attemptID)
	draft.Path, draft.Text = path, next
	if err := storage.WriteScreenplay(path, next); err != nil {
		return err
	}
	draft.Path, draft.Text = "", ""
	if !jsonFlag {
		printSuccess(cmd.ErrOrStderr(), fmt.Sprintf("inserted %d bytes at offset %d into %s", len(plan.Text), plan.At, path))
	}
	return nil
}

func pruneJournal(ctx context.Context, s *session) {
	if s.journal == nil || cfg.Storage.JournalKeep <= 0 {
		return
	}
	if n, err := s.journal.Prune(ctx, cfg.Storage.JournalKeep); err != nil {
		applog.WithComponent("cli").Warn("journal prune failed", slog.Any("err", err))
	} else if n > 0 {
		applog.WithComponent("cli").Debug("journal pruned", slog.Int64("removed", n))
	}
}

var (
	validateDoc       string
	validateAt        int
	validateRequested int
)

var validateCmd = &cobra.Command{
	Use:   "validate <reply.json|->",
	Short: "Check a model reply against the hard and soft rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		var before string
		if validateDoc != "" {
			text, err := storage.ReadScreenplay(validateDoc)
			if err != nil {
				return err
			}
			at, err := cursorAt(text, validateAt)
			if err != nil {
				return err
			}
			before = text[:at]
		}
		s, err := openSession(cmd.Context(), sessionOptions{})
		if err != nil {
			return err
		}
		defer s.Close()

		res := s.eng.Validate(reply, before, validateRequested)
		w := cmd.OutOrStdout()
		if jsonFlag {
			if err := printJSON(w, map[string]any{
				"status":   res.Status.String(),
				"errors":   res.Errors,
				"warnings": res.Warnings,
				"scenes":   res.Scenes,
			}); err != nil {
				return err
			}
		} else {
			printErrors(w, res.Errors)
			printWarnings(w, res.Warnings)
			if res.Usable() {
				printSuccess(w, fmt.Sprintf("%s: %d scene(s)", res.Status, len(res.Scenes)))
			}
		}
		if !res.Usable() {
			return errors.New("reply rejected")
		}
		return nil
	},
}

var normalizeScenes bool

var normalizeCmd = &cobra.Command{
	Use:   "normalize <lines.txt|->",
	Short: "Apply case repair and Fountain spacing to scene content",
	Long: `Reads content lines and prints them normalized. With --scenes the input
is a model reply; its scenes are joined into the block that would be inserted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context(), sessionOptions{})
		if err != nil {
			return err
		}
		defer s.Close()

		w := cmd.OutOrStdout()
		if !normalizeScenes {
			fmt.Fprintln(w, s.eng.Normalize(strings.Split(in, "\n")))
			return nil
		}
		res := s.eng.Validate(in, "", 0)
		if !res.Usable() {
			printErrors(cmd.ErrOrStderr(), res.Errors)
			return errors.New("reply rejected")
		}
		fmt.Fprintln(w, s.eng.JoinScenes(res.Scenes))
		return nil
	},
}

var (
	planAt    int
	planBlock string
	planApply bool
	planDiff  bool
)

var planCmd = &cobra.Command{
	Use:   "plan <draft.fountain>",
	Short: "Compute the padded insertion of a block at the cursor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if planBlock == "" {
			return errors.New("--block is required")
		}
		text, err := storage.ReadScreenplay(path)
		if err != nil {
			return err
		}
		block, err := readInput(cmd.InOrStdin(), planBlock)
		if err != nil {
			return err
		}
		at, err := cursorAt(text, planAt)
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context(), sessionOptions{})
		if err != nil {
			return err
		}
		defer s.Close()

		plan := s.eng.PlanInsertion(text, at, strings.Trim(block, "\n"))
		w := cmd.OutOrStdout()
		switch {
		case jsonFlag:
			if err := printJSON(w, plan); err != nil {
				return err
			}
		case planDiff:
			fmt.Fprintln(w, insertion.Preview(text, plan))
		default:
			printField(w, "insertAt", fmt.Sprint(plan.At))
			printField(w, "textToInsert", fmt.Sprintf("%q", plan.Text))
		}
		if planApply {
			return applyPlan(cmd, s, engine.Document{Text: text, Path: path}, plan, "")
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <draft.fountain>",
	Short: "Put the newest backup of a draft back in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := storage.RestoreLatestBackup(args[0])
		if err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("restored %s (%d bytes)", args[0], len(text)))
		return nil
	},
}

func init() {
	promptFlags.bind(promptCmd)
	promptCmd.Flags().BoolVar(&promptSystem, "system", false, "Also print the system instruction")

	genFlags.bind(generateCmd)
	generateCmd.Flags().BoolVar(&genApply, "apply", false, "Write the insertion into the draft (a backup is kept)")
	generateCmd.Flags().BoolVar(&genDiff, "diff", false, "Show the change as an inline diff")
	generateCmd.Flags().BoolVar(&genStream, "stream", false, "Stream the raw reply to stderr while it arrives")

	validateCmd.Flags().StringVar(&validateDoc, "doc", "", "Draft the reply is meant for (enables the continuity check)")
	validateCmd.Flags().IntVar(&validateAt, "at", -1, "Cursor byte offset in --doc")
	validateCmd.Flags().IntVar(&validateRequested, "requested", 0, "Number of scenes requested (0 skips the count check)")

	normalizeCmd.Flags().BoolVar(&normalizeScenes, "scenes", false, "Input is a model reply")

	planCmd.Flags().IntVar(&planAt, "at", -1, "Cursor byte offset (default: end of draft)")
	planCmd.Flags().StringVar(&planBlock, "block", "", "File with the scene block, or - for stdin")
	planCmd.Flags().BoolVar(&planApply, "apply", false, "Write the insertion into the draft")
	planCmd.Flags().BoolVar(&planDiff, "diff", false, "Show the change as an inline diff")

	rootCmd.AddCommand(promptCmd, generateCmd, validateCmd, normalizeCmd, planCmd, restoreCmd)
}
