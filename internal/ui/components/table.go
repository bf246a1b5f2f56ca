// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jeranaias/cortexpipe/internal/ui/styles"
)

// Table renders rows under a header. Cells are truncated to MaxCell
// columns when it is set.
type Table struct {
	Headers []string
	Rows    [][]string
	MaxCell int
	Width   int
}

// Render draws the table, or the empty message when there are no rows.
func (t Table) Render(theme *styles.Theme, empty string) string {
	if len(t.Rows) == 0 {
		return theme.Muted.Render(empty)
	}

	rows := t.Rows
	if t.MaxCell > 0 {
		rows = make([][]string, len(t.Rows))
		for i, r := range t.Rows {
			rows[i] = make([]string, len(r))
			for j, cell := range r {
				rows[i][j] = truncateCell(cell, t.MaxCell)
			}
		}
	}

	header := lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan).Padding(0, 1)
	cell := lipgloss.NewStyle().Foreground(styles.TextPrimary).Padding(0, 1)

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.OverlayDim)).
		Headers(t.Headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	if t.Width > 0 {
		tbl = tbl.Width(t.Width)
	}
	return tbl.Render()
}
