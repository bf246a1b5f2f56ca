// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"github.com/jeranaias/cortexpipe/internal/analytics"
	"github.com/jeranaias/cortexpipe/internal/cortex"
	"github.com/jeranaias/cortexpipe/internal/ingest"
)

// =============================================================================
// LOAD MESSAGES
// =============================================================================

// ReportsMsg carries the telemetry reports for one time window.
type ReportsMsg struct {
	Hours       int
	Performance *analytics.PerformanceReport
	Errors      *analytics.ErrorReport
	Costs       *analytics.CostReport
	Err         error
}

// DocumentsMsg carries document and embedding statistics.
type DocumentsMsg struct {
	Documents  *ingest.DocumentStats
	Embeddings *ingest.EmbeddingStats
	Err        error
}

// RefreshMsg triggers a periodic reload.
type RefreshMsg struct{}

// =============================================================================
// QUERY MESSAGES
// =============================================================================

// QueryResultMsg carries a finished pipeline run.
type QueryResultMsg struct {
	Response *cortex.Response
	Err      error
}

// suggestTickMsg fires after typing pauses. Partial is the input when the
// tick was scheduled.
type suggestTickMsg struct {
	Partial string
}

// SuggestionsMsg carries suggestions for a partial query.
type SuggestionsMsg struct {
	Partial string
	Items   []string
}
