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
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

var (
	colorSuccess = lipgloss.Color("#00D787")
	colorError   = lipgloss.Color("#FF5F87")
	colorWarning = lipgloss.Color("#FFAF00")
	colorInfo    = lipgloss.Color("#5FAFFF")
	colorMuted   = lipgloss.Color("#888888")
)

var (
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleTitle   = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	styleKey     = lipgloss.NewStyle().Foreground(colorInfo)
)

func terminalWidth() int {
	w, _, err := term.GetSize(os.Stdout.Fd())
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// box frames body with a border in color, sized to the terminal.
func box(color lipgloss.Color, body string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Width(terminalWidth() - 2).
		Render(body)
}

func printTitle(w io.Writer, title, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "%s %s\n", styleTitle.Render(title), styleMuted.Render(detail))
		return
	}
	fmt.Fprintln(w, styleTitle.Render(title))
}

func printField(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %s %s\n", styleKey.Render(key+":"), value)
}

func printSuccess(w io.Writer, msg string) { fmt.Fprintln(w, styleSuccess.Render("✓ ")+msg) }

func printWarnings(w io.Writer, warnings []string) {
	for _, m := range warnings {
		fmt.Fprintln(w, styleWarning.Render("! ")+m)
	}
}

func printErrors(w io.Writer, errs []string) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintln(w, box(colorError, styleError.Render("Rejected")+"\n"+strings.Join(errs, "\n")))
}
