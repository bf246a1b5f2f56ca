// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/cortexpipe/internal/util"
)

// Text caps, counted in characters.
const (
	MaxQueryText    = 1000
	MaxResponseText = 2000
)

// Well-known operation kinds logged by the orchestrator.
const (
	OpQueryEmbedding = "query_embedding"
	OpSemanticSearch = "semantic_search"
	OpLLMCompletion  = "llm_completion"
	OpQueryPipeline  = "complete_query_pipeline"
	OpDocumentLoad   = "document_load"
	OpChunkEmbedding = "chunk_embedding"
)

// =============================================================================
// RECORD
// =============================================================================

// Record is one completed operation. Records are never modified after
// Log creates them.
type Record struct {
	ID            string         `json:"telemetry_id"`
	SessionID     string         `json:"session_id"`
	OperationType string         `json:"operation_type"`
	ModelName     string         `json:"model_name,omitempty"`
	InputTokens   int            `json:"input_tokens"`
	OutputTokens  int            `json:"output_tokens"`
	LatencyMs     float64        `json:"latency_ms"`
	CostUSD       float64        `json:"cost_usd"`
	Success       bool           `json:"success_flag"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	QueryText     string         `json:"query_text,omitempty"`
	ResponseText  string         `json:"response_text,omitempty"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"timestamp"`
}

// TotalTokens returns input plus output tokens.
func (r Record) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Entry holds the caller supplied fields of a record.
type Entry struct {
	OperationType string
	ModelName     string
	InputTokens   int
	OutputTokens  int
	LatencyMs     float64
	CostUSD       float64
	Success       bool
	ErrorMessage  string
	QueryText     string
	ResponseText  string
	Metadata      map[string]any
}

// newRecord normalizes an entry into a record: text is truncated, latency
// and cost are rounded, negatives are clamped to zero, and the error message
// is kept only for failures.
func newRecord(e Entry, sessionID string, now time.Time) Record {
	meta := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		meta[k] = v
	}

	errMsg := ""
	if !e.Success {
		errMsg = e.ErrorMessage
		if errMsg == "" {
			errMsg = "unknown error"
		}
	}

	return Record{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		OperationType: e.OperationType,
		ModelName:     e.ModelName,
		InputTokens:   max(e.InputTokens, 0),
		OutputTokens:  max(e.OutputTokens, 0),
		LatencyMs:     util.Round(max(e.LatencyMs, 0), 2),
		CostUSD:       util.Round(max(e.CostUSD, 0), 6),
		Success:       e.Success,
		ErrorMessage:  errMsg,
		QueryText:     util.TruncateRunesNoEllipsis(e.QueryText, MaxQueryText),
		ResponseText:  util.TruncateRunesNoEllipsis(e.ResponseText, MaxResponseText),
		Metadata:      meta,
		CreatedAt:     now,
	}
}
