// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"math"
	"strconv"
)

// =============================================================================
// NUMBER FORMATTING
// =============================================================================

// FormatNumber formats n with thousand separators.
func FormatNumber(n int64) string {
	if n == math.MinInt64 {
		return "-9,223,372,036,854,775,808"
	}
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	out := make([]byte, 0, len(s)+len(s)/3)
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	out = append(out, s[:lead]...)
	for i := lead; i < len(s); i += 3 {
		out = append(out, ',')
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}

// FormatPercent formats a percentage with one decimal place.
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}

// FormatLatency formats milliseconds as "850ms", switching to seconds at
// ten seconds.
func FormatLatency(ms float64) string {
	if ms >= 10000 {
		return strconv.FormatFloat(ms/1000, 'f', 1, 64) + "s"
	}
	return strconv.FormatFloat(ms, 'f', 0, 64) + "ms"
}

// FormatCost formats a dollar amount to four decimal places.
func FormatCost(usd float64) string {
	return fmt.Sprintf("$%.4f", usd)
}

// FormatRate formats a per-dollar efficiency figure.
func FormatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
