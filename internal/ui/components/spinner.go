// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cortexpipe/internal/ui/styles"
)

// =============================================================================
// SPINNER MODEL
// =============================================================================

// Spinner shows that a warehouse request is in flight, with the elapsed
// time.
type Spinner struct {
	spinner   spinner.Model
	message   string
	startTime time.Time
	active    bool
}

// NewSpinner creates an ASCII line spinner.
func NewSpinner() Spinner {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	return Spinner{spinner: s, message: "Loading"}
}

// Start activates the spinner with message and returns its first tick.
func (s *Spinner) Start(message string) tea.Cmd {
	s.active = true
	s.message = message
	s.startTime = time.Now()
	return s.spinner.Tick
}

// Stop deactivates the spinner.
func (s *Spinner) Stop() {
	s.active = false
}

// IsActive returns whether the spinner is running.
func (s Spinner) IsActive() bool {
	return s.active
}

// Update advances the animation. Inactive spinners drop their ticks.
func (s Spinner) Update(msg tea.Msg) (Spinner, tea.Cmd) {
	if !s.active {
		return s, nil
	}
	var cmd tea.Cmd
	s.spinner, cmd = s.spinner.Update(msg)
	return s, cmd
}

// View renders the spinner, or nothing when inactive.
func (s Spinner) View() string {
	if !s.active {
		return ""
	}
	frame := lipgloss.NewStyle().Foreground(styles.Purple).Render(s.spinner.View())
	msg := lipgloss.NewStyle().Foreground(styles.TextSecondary).Render(s.message + "...")
	elapsed := lipgloss.NewStyle().Foreground(styles.TextMuted).
		Render(" (" + formatElapsed(time.Since(s.startTime)) + ")")
	return frame + " " + msg + elapsed
}

// formatElapsed renders durations as "4s" or "1m05s".
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return d.String()
	}
	return fmt.Sprintf("%dm%02ds", int(d/time.Minute), int((d%time.Minute)/time.Second))
}
