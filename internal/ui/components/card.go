// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cortexpipe/internal/ui/styles"
)

// =============================================================================
// METRIC CARD
// =============================================================================

// MetricCard is one headline figure.
type MetricCard struct {
	Label string
	Value string
	Level styles.Level
}

// Render draws the card. Graded cards carry the level indicator beside the
// value.
func (c MetricCard) Render(theme *styles.Theme) string {
	value := theme.CardValue.Render(c.Value)
	if c.Level != styles.LevelInfo {
		value = styles.LevelStyle(c.Level).Render(c.Level.Indicator()) + " " + value
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		theme.CardLabel.Render(c.Label),
		value,
	)
	return theme.CardFor(c.Level).Render(body)
}

// RenderCards lays cards out in a row, or two per row on medium terminals
// and one per row on narrow ones.
func RenderCards(theme *styles.Theme, cards []MetricCard) string {
	perRow := len(cards)
	switch theme.GetLayoutMode() {
	case styles.LayoutNarrow:
		perRow = 1
	case styles.LayoutMedium:
		perRow = 2
	}
	if perRow < 1 {
		return ""
	}

	var rows []string
	for i := 0; i < len(cards); i += perRow {
		end := min(i+perRow, len(cards))
		rendered := make([]string, 0, end-i)
		for _, c := range cards[i:end] {
			rendered = append(rendered, c.Render(theme))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
