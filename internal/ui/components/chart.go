// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/jeranaias/cortexpipe/internal/ui/styles"
	"github.com/jeranaias/cortexpipe/internal/util"
)

// =============================================================================
// BAR CHART
// =============================================================================

// Bar is one row of a BarChart. Display is shown after the bar; Value
// sets its length.
type Bar struct {
	Label   string
	Value   float64
	Display string
	Level   styles.Level
}

// BarChart draws horizontal bars scaled to the largest value, or to Max
// when it is set.
type BarChart struct {
	Title      string
	Bars       []Bar
	Max        float64
	Width      int
	LabelWidth int
}

// NewBarChart creates a chart fitting width columns.
func NewBarChart(title string, width int) *BarChart {
	return &BarChart{Title: title, Width: width, LabelWidth: 28}
}

// Add appends a bar.
func (c *BarChart) Add(b Bar) {
	c.Bars = append(c.Bars, b)
}

// barWidth leaves room for the label and a ten-column value.
func (c *BarChart) barWidth() int {
	w := c.Width - c.LabelWidth - 14
	return max(10, min(w, 50))
}

func (c *BarChart) scale() float64 {
	if c.Max > 0 {
		return c.Max
	}
	var m float64
	for _, b := range c.Bars {
		m = max(m, b.Value)
	}
	return m
}

// Render draws the chart. An empty chart renders as the title alone.
func (c *BarChart) Render(theme *styles.Theme) string {
	var sb strings.Builder
	if c.Title != "" {
		sb.WriteString(theme.Section.Render(c.Title))
		sb.WriteString("\n")
	}

	scale := c.scale()
	width := c.barWidth()
	for _, b := range c.Bars {
		percent := 0.0
		if scale > 0 {
			percent = b.Value / scale * 100
		}
		label := util.PadRight(util.TruncateWidth(b.Label, c.LabelWidth), c.LabelWidth)
		sb.WriteString(theme.Label.Render(label))
		sb.WriteString(" ")
		sb.WriteString(styles.RenderLevelBar(width, percent, b.Level))
		sb.WriteString(" ")
		sb.WriteString(theme.Value.Render(b.Display))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
