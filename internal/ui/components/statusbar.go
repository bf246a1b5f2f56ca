// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cortexpipe/internal/ui/styles"
)

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// Status represents what the dashboard is doing.
type Status int

const (
	StatusReady Status = iota
	StatusLoading
	StatusQuerying
	StatusError
)

// String returns the display string for the status
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusLoading:
		return "Loading..."
	case StatusQuerying:
		return "Querying..."
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Level maps the status onto a health level for coloring.
func (s Status) Level() styles.Level {
	switch s {
	case StatusReady:
		return styles.LevelGood
	case StatusError:
		return styles.LevelBad
	default:
		return styles.LevelInfo
	}
}

// Shortcut is one key hint.
type Shortcut struct {
	Key  string
	Desc string
}

// StatusBar is the bottom line of the dashboard.
type StatusBar struct {
	Status      Status
	Window      string
	LastRefresh time.Time
	Shortcuts   []Shortcut
	Width       int
}

// Render draws the bar. Shortcuts are dropped from the right until the
// line fits Width.
func (s StatusBar) Render(theme *styles.Theme) string {
	left := styles.LevelStyle(s.Status.Level()).Render(s.Status.String())
	if s.Window != "" {
		left += theme.Muted.Render("  window: ") + theme.Value.Render(s.Window)
	}
	if !s.LastRefresh.IsZero() {
		left += theme.Muted.Render("  refreshed " + s.LastRefresh.Format("15:04:05"))
	}

	shortcuts := s.Shortcuts
	for {
		right := renderShortcuts(theme, shortcuts)
		gap := s.Width - lipgloss.Width(left) - lipgloss.Width(right) - 2
		if gap >= 1 || len(shortcuts) == 0 {
			line := left + strings.Repeat(" ", max(gap, 1)) + right
			return theme.StatusBar.Width(max(s.Width, 0)).Render(line)
		}
		shortcuts = shortcuts[:len(shortcuts)-1]
	}
}

func renderShortcuts(theme *styles.Theme, shortcuts []Shortcut) string {
	parts := make([]string, len(shortcuts))
	for i, sc := range shortcuts {
		parts[i] = theme.ShortcutKey.Render(sc.Key) + " " + theme.ShortcutDesc.Render(sc.Desc)
	}
	return strings.Join(parts, "  ")
}
