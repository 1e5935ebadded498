/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"screenwriter/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonFlag {
			return printJSON(cmd.OutOrStdout(), cfg)
		}
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), p)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable keys",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		for _, k := range config.Keys() {
			line := k
			if env, ok := config.EnvOverrideFor(k); ok {
				line += styleMuted.Render("  $" + env)
			}
			fmt.Fprintln(w, line)
		}
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting in the configuration file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Edit the file as stored so environment overrides are not persisted.
		stored, err := config.LoadFile()
		if err != nil {
			return err
		}
		if err := stored.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(stored); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		printSuccess(w, fmt.Sprintf("%s = %s", args[0], args[1]))
		if env, ok := config.EnvOverrideFor(args[0]); ok {
			printWarnings(w, []string{fmt.Sprintf("$%s overrides this setting", env)})
		}
		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [key]",
	Short: "Store the provider API key in the OS keyring",
	Long:  "Stores the key in the OS keyring. Without an argument the key is read from stdin. An empty key removes it.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			key = string(b)
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("no key on stdin")
			}
			key = line
		}
		key = strings.TrimSpace(key)
		if err := config.SetAPIKey(key); err != nil {
			return err
		}
		if key == "" {
			printSuccess(cmd.OutOrStdout(), "API key removed from keyring")
		} else {
			printSuccess(cmd.OutOrStdout(), "API key stored in keyring")
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd, configKeysCmd, configGetCmd, configSetCmd, configSetKeyCmd)
	rootCmd.AddCommand(configCmd)
}
