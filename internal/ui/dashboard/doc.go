// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dashboard provides the terminal analytics dashboard.
//
// The dashboard is a Bubble Tea program with five tabs:
//   - Overview: headline metrics, a health banner and error analysis
//   - Performance: success rate and latency per operation
//   - Costs: spend distribution and operations per dollar
//   - Query: run the Cortex pipeline interactively
//   - Documents: loaded document and embedding statistics
//
// All warehouse reads run in tea.Cmd functions so the UI never blocks.
// Results are tagged with the time window that requested them and stale
// ones are dropped.
//
// Usage:
//
//	m := dashboard.New(ctx, dashboard.Options{
//		Hours:     24,
//		Reporter:  analyzer,
//		Querier:   orchestrator,
//		Documents: ingestor,
//	})
//	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
//	_, err := p.Run()
package dashboard
