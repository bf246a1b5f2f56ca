// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cortexpipe/internal/ui/styles"
)

// RenderTabs draws a tab strip. Each tab is prefixed with its number key.
func RenderTabs(theme *styles.Theme, names []string, active int) string {
	tabs := make([]string, len(names))
	for i, name := range names {
		label := strconv.Itoa(i+1) + " " + name
		if i == active {
			tabs[i] = theme.TabActive.Render(label)
		} else {
			tabs[i] = theme.TabInactive.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}
