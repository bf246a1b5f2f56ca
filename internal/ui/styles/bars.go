// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	BarFull    = "#"
	BarEmpty   = "-"
	BarPartial = []string{".", ":", "+"}
)

// BarString draws a width-wide bar filled to percent (0-100) without color.
func BarString(width int, percent float64) string {
	if width <= 0 {
		return ""
	}
	percent = max(0, min(percent, 100))

	filled := float64(width) * percent / 100
	full := int(filled)
	partial := int((filled - float64(full)) * float64(len(BarPartial)+1))

	var sb strings.Builder
	sb.Grow(width)
	sb.WriteString(strings.Repeat(BarFull, full))
	if full < width && partial > 0 {
		sb.WriteString(BarPartial[partial-1])
		full++
	}
	sb.WriteString(strings.Repeat(BarEmpty, width-full))
	return sb.String()
}

// RenderBar draws a bar in the default accent color.
func RenderBar(width int, percent float64) string {
	return RenderLevelBar(width, percent, LevelInfo)
}

// RenderLevelBar draws a bar whose filled part is in the level's color.
func RenderLevelBar(width int, percent float64, l Level) string {
	bar := BarString(width, percent)
	split := strings.Index(bar, BarEmpty)
	if split < 0 {
		split = len(bar)
	}
	fill := lipgloss.NewStyle().Foreground(l.Color())
	empty := lipgloss.NewStyle().Foreground(Overlay)
	return fill.Render(bar[:split]) + empty.Render(bar[split:])
}
