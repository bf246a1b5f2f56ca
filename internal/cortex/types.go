// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cortex

import (
	"errors"
	"time"

	"github.com/jeranaias/cortexpipe/internal/config"
)

// Sentinel errors for easy checking.
var (
	ErrEmptyEmbedding  = errors.New("failed to generate query embedding")
	ErrEmptyCompletion = errors.New("no completion generated by Cortex")
	ErrEmptyQuery      = errors.New("query is empty")
	ErrInvalidTable    = errors.New("invalid embeddings table name")
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings holds the model and search parameters of an Orchestrator.
type Settings struct {
	EmbeddingModel      string
	LLMModel            string
	MaxTokens           int
	Temperature         float64
	TopP                float64
	TopK                int
	SimilarityThreshold float64
	EmbeddingsTable     string

	// RequestsPerSecond paces Batch. 0 means unlimited.
	RequestsPerSecond float64
}

// SettingsFrom extracts orchestrator settings from cfg.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		EmbeddingModel:      cfg.Cortex.Embedding.Model,
		LLMModel:            cfg.Cortex.LLM.Model,
		MaxTokens:           cfg.Cortex.LLM.MaxTokens,
		Temperature:         cfg.Cortex.LLM.Temperature,
		TopP:                cfg.Cortex.LLM.TopP,
		TopK:                cfg.Cortex.Search.TopK,
		SimilarityThreshold: cfg.Cortex.Search.SimilarityThreshold,
		EmbeddingsTable:     cfg.Data.Tables.Embeddings,
		RequestsPerSecond:   cfg.Cortex.RequestsPerSecond,
	}
}

// DefaultSettings returns SettingsFrom(config.Default()).
func DefaultSettings() Settings {
	return SettingsFrom(config.Default())
}

// =============================================================================
// RESULT TYPES
// =============================================================================

// Embedding is a query vector with its metrics.
type Embedding struct {
	Vector     []float64 `json:"embedding"`
	TokenCount int       `json:"token_count"`
	Dimension  int       `json:"embedding_dimension"`
}

// SearchResult is one chunk returned by semantic search.
type SearchResult struct {
	DocID              string    `json:"doc_id"`
	Filename           string    `json:"filename"`
	ContentChunk       string    `json:"content_chunk"`
	ChunkIndex         int       `json:"chunk_index"`
	EmbeddingModel     string    `json:"embedding_model"`
	TokenCount         int       `json:"token_count"`
	SimilarityScore    float64   `json:"similarity_score"`
	EmbeddingTimestamp time.Time `json:"embedding_timestamp"`
}

// CompletionOptions overrides the configured generation parameters. Zero
// values and a nil Temperature use the settings.
type CompletionOptions struct {
	MaxTokens   int
	Temperature *float64
}

// Completion is the result of Complete.
type Completion struct {
	Text              string  `json:"completion"`
	InputTokens       int     `json:"input_tokens"`
	OutputTokens      int     `json:"output_tokens"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	EnhancedPrompt    string  `json:"enhanced_prompt"`
	ContextChunksUsed int     `json:"context_chunks_used"`
}

// QueryOptions controls one pipeline run.
type QueryOptions struct {
	UseSearch   bool
	TopK        int
	Temperature *float64
}

// Temperature returns a pointer to t, for option structs.
func Temperature(t float64) *float64 { return &t }

// ModelInfo names the models a response used. EmbeddingModel is empty
// when search was disabled.
type ModelInfo struct {
	EmbeddingModel string  `json:"embedding_model"`
	LLMModel       string  `json:"llm_model"`
	Temperature    float64 `json:"temperature"`
}

// Metrics summarizes a pipeline run.
type Metrics struct {
	TotalLatencyMs     float64 `json:"total_latency_ms"`
	SearchResultsCount int     `json:"search_results_count"`
	ContextChunksUsed  int     `json:"context_chunks_used"`
	InputTokens        int     `json:"input_tokens"`
	OutputTokens       int     `json:"output_tokens"`
	TotalTokens        int     `json:"total_tokens"`
}

// CostEstimate is the estimated spend of a pipeline run.
type CostEstimate struct {
	TotalUSD float64 `json:"total_usd"`
}

// Response is the consolidated result of Query.
type Response struct {
	Query         string         `json:"query"`
	Answer        string         `json:"answer"`
	ContextUsed   bool           `json:"context_used"`
	SearchResults []SearchResult `json:"search_results"`
	ModelInfo     ModelInfo      `json:"model_info"`
	Metrics       Metrics        `json:"metrics"`
	CostEstimate  CostEstimate   `json:"cost_estimate"`
}

// BatchResult is one entry of Batch. On failure Error is set and the
// response holds only the query.
type BatchResult struct {
	Response
	BatchIndex int    `json:"batch_index"`
	Error      string `json:"error,omitempty"`
}

// Failed reports whether the query failed.
func (r BatchResult) Failed() bool { return r.Error != "" }
