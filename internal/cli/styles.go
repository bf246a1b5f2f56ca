// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cortexpipe/internal/ui/styles"
)

func init() {
	lipgloss.SetColorProfile(stdoutConsole().profile())
}

// =============================================================================
// REPORT STYLES
// =============================================================================

// Command output shares the dashboard palette so a report printed by
// "telemetry --metrics" reads like the dashboard overview.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(styles.Purple)
	SectionStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan).MarginTop(1)
	LabelStyle   = lipgloss.NewStyle().Foreground(styles.TextSecondary).Width(24)
	ValueStyle   = lipgloss.NewStyle().Foreground(styles.TextPrimary)
	DimStyle     = lipgloss.NewStyle().Foreground(styles.TextMuted)

	SuccessStyle = styles.LevelStyle(styles.LevelGood).Bold(true)
	WarningStyle = styles.LevelStyle(styles.LevelWarning)
	ErrorStyle   = styles.LevelStyle(styles.LevelBad).Bold(true)

	ruleStyle = lipgloss.NewStyle().Foreground(styles.OverlayDim)
)

// RenderSeparator draws a rule between report blocks, 60 columns unless a
// width is given.
func RenderSeparator(width ...int) string {
	w := 60
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return ruleStyle.Render(strings.Repeat("-", w))
}

// RenderStatus renders [OK] or [FAIL].
func RenderStatus(ok bool) string {
	if ok {
		return SuccessStyle.Render("[OK]")
	}
	return ErrorStyle.Render("[FAIL]")
}

// RenderField renders one aligned "label value" line.
func RenderField(label string, value any) string {
	return LabelStyle.Render(label) + ValueStyle.Render(toString(value))
}
