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
	"strings"

	"github.com/spf13/cobra"

	"screenwriter/internal/characters"
)

var charactersCmd = &cobra.Command{
	Use:   "characters",
	Short: "Inspect and fill the character registry",
}

func listCharacters(cmd *cobra.Command, reg registry) ([]characters.Character, error) {
	switch r := reg.(type) {
	case memoryRegistry:
		return r.List(), nil
	case *characters.SQLRegistry:
		return r.List(cmd.Context())
	default:
		return nil, fmt.Errorf("registry %T cannot be listed", reg)
	}
}

func requireRegistry(cmd *cobra.Command) (registry, error) {
	reg, err := openRegistry(cmd.Context(), cfg.Storage)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, errors.New("no character registry configured (set storage.registry_dsn)")
	}
	return reg, nil
}

var charactersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered characters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := requireRegistry(cmd)
		if err != nil {
			return err
		}
		defer reg.Close()
		list, err := listCharacters(cmd, reg)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jsonFlag {
			return printJSON(w, list)
		}
		for _, c := range list {
			line := styleKey.Render(c.Name)
			if c.Role != "" {
				line += " " + styleMuted.Render(c.Role)
			}
			if len(c.Aliases) > 0 {
				line += styleMuted.Render(" (aka " + strings.Join(c.Aliases, ", ") + ")")
			}
			fmt.Fprintln(w, line)
		}
		return nil
	},
}

var charactersShowCmd = &cobra.Command{
	Use:   "show <name>...",
	Short: "Print the prompt summary for characters",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), sessionOptions{registry: true})
		if err != nil {
			return err
		}
		defer s.Close()
		sums, err := s.eng.Summaries(cmd.Context(), args)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jsonFlag {
			return printJSON(w, sums)
		}
		if len(sums) == 0 {
			fmt.Fprintln(w, styleMuted.Render("no matching characters"))
		}
		for _, sm := range sums {
			printField(w, sm.Name, sm.Text)
		}
		return nil
	},
}

var charactersImportCmd = &cobra.Command{
	Use:   "import <characters.yaml>",
	Short: "Copy characters from a YAML file into the database registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := characters.LoadYAML(args[0])
		if err != nil {
			return err
		}
		reg, err := requireRegistry(cmd)
		if err != nil {
			return err
		}
		defer reg.Close()
		dst, ok := reg.(*characters.SQLRegistry)
		if !ok {
			return fmt.Errorf("registry driver %q is read-only; configure a database driver", cfg.Storage.RegistryDriver)
		}
		ctx := cmd.Context()
		list := src.List()
		for _, c := range list {
			if err := dst.Upsert(ctx, c); err != nil {
				return fmt.Errorf("import %s: %w", c.Name, err)
			}
		}
		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("imported %d character(s)", len(list)))
		return nil
	},
}

func init() {
	charactersCmd.AddCommand(charactersListCmd, charactersShowCmd, charactersImportCmd)
	rootCmd.AddCommand(charactersCmd)
}
