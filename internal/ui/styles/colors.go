// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// PRIMARY ACCENT COLORS
// =============================================================================

// Purple - Primary accent, titles, active tab
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// PurpleDeep - Darker purple for backgrounds
var PurpleDeep = lipgloss.AdaptiveColor{Light: "#5B21B6", Dark: "#4C1D95"}

// Cyan - Brand color, info, section headers
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - Healthy metrics
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// =============================================================================
// SEMANTIC COLORS
// =============================================================================

// Rose - Errors and metrics that need attention
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - Warnings and acceptable metrics
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// =============================================================================
// SURFACE COLORS
// =============================================================================

// SurfaceDim - Headers and the status bar
var SurfaceDim = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}

// Overlay - Borders, separators, empty bar segments
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// OverlayDim - Card borders
var OverlayDim = lipgloss.AdaptiveColor{Light: "#D4D4D4", Dark: "#45475A"}

// =============================================================================
// TEXT COLORS
// =============================================================================

// TextPrimary - Main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextSecondary - Labels
var TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}

// TextMuted - Hints and timestamps
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// =============================================================================
// HEALTH LEVELS
// =============================================================================

// Level grades a metric.
type Level int

const (
	LevelGood Level = iota
	LevelWarning
	LevelBad
	LevelInfo
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelGood:
		return "good"
	case LevelWarning:
		return "warning"
	case LevelBad:
		return "bad"
	default:
		return "info"
	}
}

// Color returns the color for l.
func (l Level) Color() lipgloss.AdaptiveColor {
	switch l {
	case LevelGood:
		return Emerald
	case LevelWarning:
		return Amber
	case LevelBad:
		return Rose
	default:
		return Cyan
	}
}

// Indicator is a shape shown beside colored status text so the level is
// readable without color.
func (l Level) Indicator() string {
	switch l {
	case LevelGood:
		return "[OK]"
	case LevelWarning:
		return "[!]"
	case LevelBad:
		return "[X]"
	default:
		return "[i]"
	}
}

// LevelStyle returns a bold style in the level's color.
func LevelStyle(l Level) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(l.Color()).Bold(true)
}

// RenderStatus renders message with the level's indicator and color.
func RenderStatus(l Level, message string) string {
	return LevelStyle(l).Render(l.Indicator() + " " + message)
}

// RenderSuccess renders a success message.
func RenderSuccess(message string) string { return RenderStatus(LevelGood, message) }

// RenderWarning renders a warning message.
func RenderWarning(message string) string { return RenderStatus(LevelWarning, message) }

// RenderError renders an error message.
func RenderError(message string) string { return RenderStatus(LevelBad, message) }

// RenderInfo renders an informational message.
func RenderInfo(message string) string { return RenderStatus(LevelInfo, message) }
