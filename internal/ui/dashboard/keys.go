// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/jeranaias/cortexpipe/internal/ui/components"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines the dashboard key bindings.
type KeyMap struct {
	NextTab  key.Binding
	PrevTab  key.Binding
	Window   key.Binding
	Refresh  key.Binding
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding

	// Query tab
	Focus        key.Binding
	Blur         key.Binding
	Submit       key.Binding
	ToggleSearch key.Binding
	TopKUp       key.Binding
	TopKDown     key.Binding
	TempUp       key.Binding
	TempDown     key.Binding
	Example      key.Binding
	Suggestion   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextTab: key.NewBinding(
			key.WithKeys("tab", "right", "l"),
			key.WithHelp("tab", "next tab"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("shift+tab", "left", "h"),
			key.WithHelp("S-tab", "prev tab"),
		),
		Window: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "time window"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "scroll down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("PgUp", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("PgDn", "page down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Focus: key.NewBinding(
			key.WithKeys("/", "i"),
			key.WithHelp("/", "type query"),
		),
		Blur: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "leave input"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "run query"),
		),
		ToggleSearch: key.NewBinding(
			key.WithKeys("s", "ctrl+s"),
			key.WithHelp("s", "toggle search"),
		),
		TopKUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+/-", "top-k"),
		),
		TopKDown: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "top-k down"),
		),
		TempUp: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("[/]", "temperature"),
		),
		TempDown: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "temperature down"),
		),
		Example: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "example query"),
		),
		Suggestion: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "use suggestion"),
		),
	}
}

// Shortcuts returns the status bar hints for a tab and input state.
func (k KeyMap) Shortcuts(tab Tab, typing bool) []components.Shortcut {
	hint := func(b key.Binding) components.Shortcut {
		h := b.Help()
		return components.Shortcut{Key: h.Key, Desc: h.Desc}
	}
	if typing {
		return []components.Shortcut{hint(k.Submit), hint(k.Blur), hint(k.Suggestion)}
	}
	out := []components.Shortcut{hint(k.Quit), hint(k.NextTab), hint(k.Window), hint(k.Refresh)}
	if tab == TabQuery {
		out = append(out, hint(k.Focus), hint(k.ToggleSearch), hint(k.TopKUp), hint(k.TempUp), hint(k.Example))
	}
	return out
}
