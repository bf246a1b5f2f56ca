// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"math"
	"strconv"

	"github.com/jeranaias/cortexpipe/internal/analytics"
	"github.com/jeranaias/cortexpipe/internal/ui/styles"
)

// =============================================================================
// TABS
// =============================================================================

// Tab identifies a dashboard tab.
type Tab int

const (
	TabOverview Tab = iota
	TabPerformance
	TabCosts
	TabQuery
	TabDocuments
	tabCount
)

// String returns the tab title.
func (t Tab) String() string {
	switch t {
	case TabOverview:
		return "Overview"
	case TabPerformance:
		return "Performance"
	case TabCosts:
		return "Costs"
	case TabQuery:
		return "Query"
	case TabDocuments:
		return "Documents"
	default:
		return "Unknown"
	}
}

func tabNames() []string {
	names := make([]string, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		names[t] = t.String()
	}
	return names
}

// =============================================================================
// TIME WINDOWS
// =============================================================================

// Window is a selectable reporting period.
type Window struct {
	Hours int
	Label string
}

// DefaultWindows are the periods the window key cycles through.
var DefaultWindows = []Window{
	{1, "Last 1 Hour"},
	{6, "Last 6 Hours"},
	{24, "Last 24 Hours"},
	{168, "Last 7 Days"},
}

// windowsFor returns DefaultWindows and the index of hours in it. An
// unlisted period is inserted in order. Non-positive hours select 24.
func windowsFor(hours int) ([]Window, int) {
	if hours <= 0 {
		hours = 24
	}
	windows := make([]Window, 0, len(DefaultWindows)+1)
	idx := -1
	for _, w := range DefaultWindows {
		if idx < 0 && hours < w.Hours {
			idx = len(windows)
			windows = append(windows, Window{hours, "Last " + strconv.Itoa(hours) + " Hours"})
		}
		if w.Hours == hours {
			idx = len(windows)
		}
		windows = append(windows, w)
	}
	if idx < 0 {
		idx = len(windows)
		windows = append(windows, Window{hours, "Last " + strconv.Itoa(hours) + " Hours"})
	}
	return windows, idx
}

// =============================================================================
// HEALTH GRADING
// =============================================================================

// SuccessLevel grades a success rate percentage.
func SuccessLevel(rate float64) styles.Level {
	switch {
	case rate >= 95:
		return styles.LevelGood
	case rate >= 85:
		return styles.LevelWarning
	default:
		return styles.LevelBad
	}
}

// LatencyLevel grades an average latency in milliseconds.
func LatencyLevel(ms float64) styles.Level {
	switch {
	case ms <= 2000:
		return styles.LevelGood
	case ms <= 5000:
		return styles.LevelWarning
	default:
		return styles.LevelBad
	}
}

// Health returns the banner for a summary.
func Health(s analytics.Summary) (styles.Level, string) {
	switch {
	case s.TotalOperations == 0:
		return styles.LevelInfo, "No operations recorded in this time period"
	case s.OverallSuccessRate >= 97 && s.AverageLatencyMs <= 2000:
		return styles.LevelGood, "System performing excellently!"
	case s.OverallSuccessRate >= 90 && s.AverageLatencyMs <= 5000:
		return styles.LevelWarning, "System performance is acceptable"
	default:
		return styles.LevelBad, "System performance needs attention"
	}
}

// =============================================================================
// QUERY SETTINGS
// =============================================================================

const (
	MinTopK            = 1
	MaxTopK            = 10
	DefaultTopK        = 5
	DefaultTemperature = 0.7
	temperatureStep    = 0.1
)

// clampTopK keeps k within [MinTopK, MaxTopK].
func clampTopK(k int) int {
	return max(MinTopK, min(k, MaxTopK))
}

// stepTemperature moves t by steps of 0.1 within [0, 1], rounded to one
// decimal so repeated steps do not drift.
func stepTemperature(t float64, steps int) float64 {
	t = math.Round((t+float64(steps)*temperatureStep)*10) / 10
	return max(0, min(t, 1))
}

// ExampleQueries are offered on the query tab.
var ExampleQueries = []string{
	"What are the benefits of AI automation?",
	"How does Snowflake Cortex work?",
	"What is a good GenAI strategy?",
	"Explain vector embeddings",
}
