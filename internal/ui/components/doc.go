// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the reusable widgets of the analytics dashboard.

Every component renders to a string with Lip Gloss and holds no Bubble Tea
state of its own except Spinner, which wraps the bubbles spinner.

# Display Components

MetricCard (card.go) - Bordered label/value tile colored by health level.
BarChart (chart.go) - Horizontal bars with labels and trailing values.
Tabs (tabs.go) - Tab strip with one active tab.
StatusBar (statusbar.go) - Bottom bar with status, time window and shortcuts.
Table (table.go) - Header plus rows, built on lipgloss/table.
CodeBlock (codeblock.go) - Chroma-highlighted SQL.

# Formatting

FormatNumber, FormatPercent, FormatLatency and FormatCost (format.go) give
every tab the same number formats.
*/
package components
