/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command screenwriter writes new Fountain scenes into a draft at a cursor
// position using a language model, and exposes each engine step on its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"screenwriter/internal/config"
	"screenwriter/internal/crash"
	applog "screenwriter/internal/log"
)

var (
	// draft holds the text an editing command is about to write, so a crash can rescue it.
	draft = &crash.Draft{}

	cfg          config.AppConfig
	logLevelFlag string
	jsonFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "screenwriter",
	Short: "Generate screenplay scenes in context and insert them into a Fountain draft",
	Long: `screenwriter reads a Fountain draft, finds the scene around the cursor,
asks a language model for new scenes and splices them in with correct spacing.

Workflow:
  screenwriter detect draft.fountain --at 1200
  screenwriter generate draft.fountain --at 1200 --scene "Cabin|Jane arrives at night"
  screenwriter generate draft.fountain --at 1200 --scene "Cabin|Jane arrives" --apply

Each step is also available on its own: prompt, validate, normalize, plan.
The API key is read from SPW_API_KEY, the OS keyring (config set-key) or .env.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		opts := applog.Options{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			AddSource: cfg.Logging.Source,
			File:      cfg.Logging.File,
		}
		if logLevelFlag != "" {
			opts.Level = logLevelFlag
		}
		applog.Init(opts)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug|info|warn|error); overrides config")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print machine-readable JSON")
}

func main() { os.Exit(run()) }

func run() int {
	defer crash.Recover(draft)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("error: ")+err.Error())
		return 1
	}
	return 0
}
