// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the color palette and lipgloss styles shared by the
terminal dashboard and the CLI.

All colors are lipgloss AdaptiveColor values so they read on both light and
dark terminals. Health levels (good, warning, bad) map onto Emerald, Amber
and Rose.

# Usage

	theme := styles.NewTheme()
	fmt.Println(theme.Title.Render("Dashboard Overview"))
	fmt.Println(styles.LevelStyle(styles.LevelGood).Render("97.0%"))
	fmt.Println(styles.RenderBar(20, 65))
*/
package styles
