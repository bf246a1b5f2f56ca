// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cortex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"golang.org/x/time/rate"

	"github.com/jeranaias/cortexpipe/internal/config"
	"github.com/jeranaias/cortexpipe/internal/pricing"
	"github.com/jeranaias/cortexpipe/internal/telemetry"
	"github.com/jeranaias/cortexpipe/internal/util"
	"github.com/jeranaias/cortexpipe/internal/warehouse"
)

// Model names recorded for scopes that wrap more than one model call.
const (
	SearchModel   = "vector_similarity"
	PipelineModel = "full_pipeline"
)

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs embedding, search and completion through the
// warehouse, recording one telemetry record per step.
type Orchestrator struct {
	sess     *warehouse.Session
	tel      *telemetry.Batcher
	settings Settings
	limiter  *rate.Limiter
	logger   *log.Logger
}

// New creates an Orchestrator. Unknown models only log a warning since
// Cortex adds models faster than the price table.
func New(sess *warehouse.Session, tel *telemetry.Batcher, s Settings, logger *log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.Default()
	}
	if !config.IsIdentifier(s.EmbeddingsTable) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, s.EmbeddingsTable)
	}

	def := DefaultSettings()
	if s.MaxTokens <= 0 {
		s.MaxTokens = def.MaxTokens
	}
	if s.TopK <= 0 {
		s.TopK = def.TopK
	}
	if s.SimilarityThreshold <= 0 {
		s.SimilarityThreshold = def.SimilarityThreshold
	}

	for _, m := range []struct {
		name string
		kind pricing.Kind
	}{{s.EmbeddingModel, pricing.KindEmbedding}, {s.LLMModel, pricing.KindLLM}} {
		if !pricing.IsSupported(m.name) {
			logger.Printf("CORTEX_MODEL_UNKNOWN | model=%s | known=%s | pricing falls back to default rate",
				m.name, strings.Join(pricing.Models(m.kind), ","))
		}
	}

	o := &Orchestrator{
		sess:     sess,
		tel:      tel,
		settings: s,
		logger:   logger,
	}
	if s.RequestsPerSecond > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(s.RequestsPerSecond), 1)
	}
	return o, nil
}

// Settings returns the effective settings.
func (o *Orchestrator) Settings() Settings { return o.settings }

// =============================================================================
// EMBEDDING
// =============================================================================

func (o *Orchestrator) embedSQL(query string) string {
	return fmt.Sprintf("SELECT %s AS embedding",
		o.sess.Dialect().EmbedExpr(o.settings.EmbeddingModel, warehouse.Quote(query)))
}

// EmbedQuery embeds query text with the configured embedding model.
func (o *Orchestrator) EmbedQuery(ctx context.Context, query string) (*Embedding, error) {
	var out *Embedding
	err := o.tel.Track(ctx, telemetry.OpQueryEmbedding, o.settings.EmbeddingModel, func(ctx context.Context, op *telemetry.Operation) error {
		var raw any
		if err := o.sess.QueryRowContext(ctx, o.embedSQL(query)).Scan(&raw); err != nil {
			o.logger.Printf("CORTEX_EMBED_FAILED | error=%v", err)
			return fmt.Errorf("failed to generate query embedding: %w", err)
		}

		vec, err := parseVector(raw)
		if err != nil {
			return err
		}
		if len(vec) == 0 {
			return ErrEmptyEmbedding
		}

		tokens := pricing.EstimateTokens(query)
		op.SetTokens(tokens, 0)
		op.SetQuery(query)
		op.AddMetadata("query_length", util.RuneLen(query))

		out = &Embedding{Vector: vec, TokenCount: tokens, Dimension: len(vec)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// parseVector decodes the driver representation of a vector column.
func parseVector(v any) ([]float64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []float64:
		return t, nil
	case []float32:
		out := make([]float64, len(t))
		for i, f := range t {
			out[i] = float64(f)
		}
		return out, nil
	case []byte:
		return parseVector(string(t))
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		var vec []float64
		if err := json.Unmarshal([]byte(t), &vec); err != nil {
			return nil, fmt.Errorf("failed to decode embedding: %w", err)
		}
		return vec, nil
	default:
		return nil, fmt.Errorf("unexpected embedding type %T", v)
	}
}

// =============================================================================
// SEARCH
// =============================================================================

func (o *Orchestrator) searchSQL(vectorJSON string, topK int, threshold float64) string {
	d := o.sess.Dialect()
	sim := d.CosineExpr("embedding", d.VectorLiteral(vectorJSON))
	return fmt.Sprintf(`SELECT
    doc_id,
    filename,
    content_chunk,
    chunk_index,
    embedding_model,
    token_count,
    %s AS similarity_score,
    embedding_timestamp
FROM %s
WHERE %s >= %s
ORDER BY similarity_score DESC
LIMIT %d`, sim, o.settings.EmbeddingsTable, sim, warehouse.Float(threshold), topK)
}

// Search returns the chunks most similar to query. A zero topK or
// threshold uses the settings.
func (o *Orchestrator) Search(ctx context.Context, query string, topK int, threshold float64) ([]SearchResult, error) {
	if topK <= 0 {
		topK = o.settings.TopK
	}
	if threshold <= 0 {
		threshold = o.settings.SimilarityThreshold
	}

	var results []SearchResult
	err := o.tel.Track(ctx, telemetry.OpSemanticSearch, SearchModel, func(ctx context.Context, op *telemetry.Operation) error {
		emb, err := o.EmbedQuery(ctx, query)
		if err != nil {
			return err
		}
		vecJSON, err := json.Marshal(emb.Vector)
		if err != nil {
			return fmt.Errorf("failed to encode query embedding: %w", err)
		}

		results, err = o.runSearch(ctx, o.searchSQL(string(vecJSON), topK, threshold))
		if err != nil {
			o.logger.Printf("CORTEX_SEARCH_FAILED | error=%v", err)
			return err
		}

		best := 0.0
		if len(results) > 0 {
			best = results[0].SimilarityScore
		}
		op.SetTokens(emb.TokenCount, 0)
		op.SetQuery(query)
		op.AddMetadataMap(map[string]any{
			"results_count":        len(results),
			"top_k":                topK,
			"similarity_threshold": threshold,
			"best_score":           best,
		})

		o.logger.Printf("CORTEX_SEARCH | results=%d | query=%q", len(results), util.TruncateRunes(query, 50))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) runSearch(ctx context.Context, query string) ([]SearchResult, error) {
	rows, err := o.sess.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var (
			r                      SearchResult
			filename, model        sql.NullString
			chunkIndex, tokenCount sql.NullInt64
			ts                     any
		)
		if err := rows.Scan(&r.DocID, &filename, &r.ContentChunk, &chunkIndex, &model, &tokenCount, &r.SimilarityScore, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		r.Filename = filename.String
		r.EmbeddingModel = model.String
		r.ChunkIndex = int(chunkIndex.Int64)
		r.TokenCount = int(tokenCount.Int64)
		r.EmbeddingTimestamp = warehouse.AsTime(ts)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return results, nil
}

// =============================================================================
// COMPLETION
// =============================================================================

func (o *Orchestrator) completeSQL(prompt string, maxTokens int, temperature float64) string {
	return fmt.Sprintf("SELECT %s AS completion", o.sess.Dialect().CompleteExpr(
		o.settings.LLMModel, warehouse.Quote(prompt), maxTokens, temperature, o.settings.TopP))
}

func (o *Orchestrator) temperature(t *float64) float64 {
	if t == nil {
		return o.settings.Temperature
	}
	return *t
}

// Complete answers prompt with the configured LLM, grounding it on chunks
// when any are given.
func (o *Orchestrator) Complete(ctx context.Context, prompt string, chunks []string, opts CompletionOptions) (*Completion, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.settings.MaxTokens
	}
	temperature := o.temperature(opts.Temperature)

	var out *Completion
	err := o.tel.Track(ctx, telemetry.OpLLMCompletion, o.settings.LLMModel, func(ctx context.Context, op *telemetry.Operation) error {
		enhanced := BuildPrompt(prompt, chunks)

		var text sql.NullString
		if err := o.sess.QueryRowContext(ctx, o.completeSQL(enhanced, maxTokens, temperature)).Scan(&text); err != nil {
			o.logger.Printf("CORTEX_COMPLETE_FAILED | error=%v", err)
			return fmt.Errorf("completion failed: %w", err)
		}
		if strings.TrimSpace(text.String) == "" {
			return ErrEmptyCompletion
		}

		in := pricing.EstimateTokens(enhanced)
		outTokens := pricing.EstimateTokens(text.String)
		op.SetTokens(in, outTokens)
		op.SetQuery(prompt)
		op.SetResponse(text.String)
		op.AddMetadataMap(map[string]any{
			"context_chunks_count": len(chunks),
			"prompt_length":        util.RuneLen(enhanced),
			"completion_length":    util.RuneLen(text.String),
			"temperature":          temperature,
			"max_tokens":           maxTokens,
		})

		out = &Completion{
			Text:              text.String,
			InputTokens:       in,
			OutputTokens:      outTokens,
			Model:             o.settings.LLMModel,
			Temperature:       temperature,
			EnhancedPrompt:    enhanced,
			ContextChunksUsed: len(chunks),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// PIPELINE
// =============================================================================

// Query runs the full pipeline: optional search, then a grounded
// completion.
func (o *Orchestrator) Query(ctx context.Context, query string, opts QueryOptions) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	var resp *Response
	err := o.tel.Track(ctx, telemetry.OpQueryPipeline, PipelineModel, func(ctx context.Context, op *telemetry.Operation) error {
		results := []SearchResult{}
		var chunks []string
		if opts.UseSearch {
			var err error
			results, err = o.Search(ctx, query, opts.TopK, 0)
			if err != nil {
				return err
			}
			for _, r := range results {
				chunks = append(chunks, r.ContentChunk)
			}
		}

		completion, err := o.Complete(ctx, query, chunks, CompletionOptions{Temperature: opts.Temperature})
		if err != nil {
			return err
		}

		latency := float64(op.Elapsed().Microseconds()) / 1000
		total := completion.InputTokens + completion.OutputTokens

		info := ModelInfo{LLMModel: o.settings.LLMModel, Temperature: completion.Temperature}
		if opts.UseSearch {
			info.EmbeddingModel = o.settings.EmbeddingModel
		}

		resp = &Response{
			Query:         query,
			Answer:        completion.Text,
			ContextUsed:   len(chunks) > 0,
			SearchResults: results,
			ModelInfo:     info,
			Metrics: Metrics{
				TotalLatencyMs:     util.Round(latency, 2),
				SearchResultsCount: len(results),
				ContextChunksUsed:  len(chunks),
				InputTokens:        completion.InputTokens,
				OutputTokens:       completion.OutputTokens,
				TotalTokens:        total,
			},
			CostEstimate: CostEstimate{TotalUSD: pricing.Cost(total, o.settings.LLMModel)},
		}

		op.SetTokens(completion.InputTokens, completion.OutputTokens)
		op.SetQuery(query)
		op.SetResponse(completion.Text)
		op.AddMetadataMap(map[string]any{
			"search_enabled":      opts.UseSearch,
			"context_chunks":      len(chunks),
			"search_results":      len(results),
			"pipeline_latency_ms": latency,
		})

		o.logger.Printf("CORTEX_QUERY | latency_ms=%.1f | context_chunks=%d", latency, len(chunks))
		return nil
	})
	if err != nil {
		o.logger.Printf("CORTEX_QUERY_FAILED | error=%v", err)
		return nil, err
	}
	return resp, nil
}

// Batch runs Query for each entry. A failed query is recorded in its
// result and processing continues; only context cancellation stops the
// batch early, returning the results so far.
func (o *Orchestrator) Batch(ctx context.Context, queries []string, useSearch bool) ([]BatchResult, error) {
	o.logger.Printf("CORTEX_BATCH_START | queries=%d", len(queries))

	results := make([]BatchResult, 0, len(queries))
	succeeded := 0
	for i, q := range queries {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return results, err
			}
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		resp, err := o.Query(ctx, q, QueryOptions{UseSearch: useSearch})
		if err != nil {
			o.logger.Printf("CORTEX_BATCH_ITEM_FAILED | index=%d | query=%q | error=%v", i, util.TruncateRunes(q, 50), err)
			results = append(results, BatchResult{Response: Response{Query: q}, BatchIndex: i, Error: err.Error()})
		} else {
			results = append(results, BatchResult{Response: *resp, BatchIndex: i})
			succeeded++
		}

		if (i+1)%5 == 0 {
			o.logger.Printf("CORTEX_BATCH_PROGRESS | processed=%d/%d", i+1, len(queries))
		}
	}

	o.logger.Printf("CORTEX_BATCH_DONE | successful=%d/%d", succeeded, len(queries))
	return results, nil
}

// =============================================================================
// EXPLAIN
// =============================================================================

// Explain returns the statements Query would issue for query without
// running them. The search statement shows a placeholder vector.
func (o *Orchestrator) Explain(query string, useSearch bool) []string {
	var stmts []string
	var chunks []string
	if useSearch {
		stmts = append(stmts,
			o.embedSQL(query),
			o.searchSQL("[<query embedding>]", o.settings.TopK, o.settings.SimilarityThreshold))
		chunks = []string{"<search result chunks>"}
	}
	stmts = append(stmts, o.completeSQL(BuildPrompt(query, chunks), o.settings.MaxTokens, o.settings.Temperature))
	return stmts
}
