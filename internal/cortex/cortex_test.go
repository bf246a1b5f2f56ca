// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cortex

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/cortexpipe/internal/pricing"
	"github.com/jeranaias/cortexpipe/internal/telemetry"
	"github.com/jeranaias/cortexpipe/internal/warehouse"
)

const (
	cortexChunk = "Snowflake Cortex provides managed AI functions inside the warehouse. It exposes embedding and completion as SQL. Data never leaves the platform."
	gardenChunk = "Tomatoes grow best in full sun with regular watering."
)

type recorder struct {
	mu      sync.Mutex
	records []telemetry.Record
}

func (r *recorder) WriteBatch(_ context.Context, records []telemetry.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return nil
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.OperationType
	}
	return out
}

func (r *recorder) byKind(kind string) []telemetry.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []telemetry.Record
	for _, rec := range r.records {
		if rec.OperationType == kind {
			out = append(out, rec)
		}
	}
	return out
}

type fixture struct {
	o    *Orchestrator
	tel  *telemetry.Batcher
	rec  *recorder
	logs *bytes.Buffer
	sess *warehouse.Session
}

func newFixture(t *testing.T, withTable bool) *fixture {
	t.Helper()
	ctx := context.Background()
	logs := &bytes.Buffer{}
	logger := log.New(logs, "", 0)

	sess, err := warehouse.OpenLocal(ctx, filepath.Join(t.TempDir(), "wh.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	if withTable {
		_, err = sess.ExecContext(ctx, `CREATE TABLE media_embeddings (
            doc_id TEXT, filename TEXT, content_chunk TEXT, chunk_index INTEGER,
            embedding_model TEXT, token_count INTEGER, embedding TEXT,
            embedding_timestamp TEXT DEFAULT (datetime('now')))`)
		require.NoError(t, err)
		for i, chunk := range []string{cortexChunk, gardenChunk} {
			_, err = sess.ExecContext(ctx, `INSERT INTO media_embeddings
                (doc_id, filename, content_chunk, chunk_index, embedding_model, token_count, embedding)
                VALUES (?, ?, ?, 0, 'text-embedding-ada-002', ?, cortex_embed_text_768('text-embedding-ada-002', ?))`,
				[]string{"doc_cortex", "doc_garden"}[i], []string{"cortex.txt", "garden.txt"}[i], chunk, pricing.EstimateTokens(chunk), chunk)
			require.NoError(t, err)
		}
	}

	rec := &recorder{}
	tel := telemetry.NewBatcher(rec, 1000, telemetry.WithLogger(logger))
	o, err := New(sess, tel, DefaultSettings(), logger)
	require.NoError(t, err)

	return &fixture{o: o, tel: tel, rec: rec, logs: logs, sess: sess}
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, f.tel.Flush(context.Background()))
}

// =============================================================================
// PROMPT
// =============================================================================

func TestBuildPrompt_WithContext(t *testing.T) {
	got := BuildPrompt("What is Cortex?", []string{"chunk one", "chunk two"})
	want := "You are a helpful AI assistant that answers questions based on provided context. \n" +
		"Use the context information to provide accurate, relevant responses. If the context doesn't contain \n" +
		"enough information to fully answer the question, say so clearly.\n\n" +
		"Context Information:\n" +
		"Context 1:\nchunk one\n\n" +
		"Context 2:\nchunk two\n\n" +
		"User Question: What is Cortex?\n\n" +
		"Please provide a comprehensive answer based on the context above:"
	assert.Equal(t, want, got)
}

func TestBuildPrompt_NoContext(t *testing.T) {
	got := BuildPrompt("Hi?", nil)
	assert.Equal(t, SystemPrompt+"\n\nUser Question: Hi?\n\nPlease provide a helpful answer:", got)
}

// =============================================================================
// EMBEDDING AND SEARCH
// =============================================================================

func TestEmbedQuery(t *testing.T) {
	f := newFixture(t, false)

	emb, err := f.o.EmbedQuery(context.Background(), "it's a test query")
	require.NoError(t, err)
	assert.Equal(t, warehouse.EmbeddingDimension, emb.Dimension)
	assert.Len(t, emb.Vector, warehouse.EmbeddingDimension)
	assert.Equal(t, pricing.EstimateTokens("it's a test query"), emb.TokenCount)

	f.flush(t)
	recs := f.rec.byKind(telemetry.OpQueryEmbedding)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Success)
	assert.Equal(t, "text-embedding-ada-002", recs[0].ModelName)
	assert.Equal(t, 17, recs[0].Metadata["query_length"])
}

func TestSearch_RanksAndFilters(t *testing.T) {
	f := newFixture(t, true)

	results, err := f.o.Search(context.Background(), cortexChunk, 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1, "unrelated chunk must fall below the threshold")
	assert.Equal(t, "doc_cortex", results[0].DocID)
	assert.Equal(t, "cortex.txt", results[0].Filename)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
	assert.False(t, results[0].EmbeddingTimestamp.IsZero())

	f.flush(t)
	// The nested embedding scope ends before the search scope.
	assert.Equal(t, []string{telemetry.OpQueryEmbedding, telemetry.OpSemanticSearch}, f.rec.kinds())
	search := f.rec.byKind(telemetry.OpSemanticSearch)[0]
	assert.Equal(t, SearchModel, search.ModelName)
	assert.Equal(t, 1, search.Metadata["results_count"])
	assert.Equal(t, 5, search.Metadata["top_k"])
	assert.Equal(t, 0.8, search.Metadata["similarity_threshold"])
}

func TestSearch_MissingTableRecordsFailure(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.o.Search(context.Background(), "anything", 3, 0.5)
	require.Error(t, err)

	f.flush(t)
	search := f.rec.byKind(telemetry.OpSemanticSearch)
	require.Len(t, search, 1)
	assert.False(t, search[0].Success)
	assert.NotEmpty(t, search[0].ErrorMessage)
	assert.Contains(t, f.logs.String(), "CORTEX_SEARCH_FAILED")
}

// =============================================================================
// COMPLETION AND PIPELINE
// =============================================================================

func TestComplete(t *testing.T) {
	f := newFixture(t, false)

	c, err := f.o.Complete(context.Background(), "What is Cortex?", []string{cortexChunk}, CompletionOptions{Temperature: Temperature(0)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.Text, "Based on the provided context:"))
	assert.Equal(t, "mistral-large", c.Model)
	assert.Zero(t, c.Temperature, "an explicit zero temperature is kept")
	assert.Equal(t, 1, c.ContextChunksUsed)
	assert.Equal(t, pricing.EstimateTokens(c.EnhancedPrompt), c.InputTokens)
	assert.Equal(t, pricing.EstimateTokens(c.Text), c.OutputTokens)

	f.flush(t)
	recs := f.rec.byKind(telemetry.OpLLMCompletion)
	require.Len(t, recs, 1)
	assert.Equal(t, 4096, recs[0].Metadata["max_tokens"])
	assert.Equal(t, 1, recs[0].Metadata["context_chunks_count"])
	assert.Greater(t, recs[0].CostUSD, 0.0)
}

func TestQuery_WithSearch(t *testing.T) {
	f := newFixture(t, true)

	resp, err := f.o.Query(context.Background(), cortexChunk, QueryOptions{UseSearch: true})
	require.NoError(t, err)
	assert.True(t, resp.ContextUsed)
	assert.Len(t, resp.SearchResults, 1)
	assert.Equal(t, "text-embedding-ada-002", resp.ModelInfo.EmbeddingModel)
	assert.Equal(t, 0.7, resp.ModelInfo.Temperature)
	assert.Equal(t, resp.Metrics.InputTokens+resp.Metrics.OutputTokens, resp.Metrics.TotalTokens)
	assert.InDelta(t, pricing.Cost(resp.Metrics.TotalTokens, "mistral-large"), resp.CostEstimate.TotalUSD, 1e-12)
	assert.Contains(t, resp.Answer, "Snowflake Cortex provides managed AI functions")

	f.flush(t)
	assert.Equal(t, []string{
		telemetry.OpQueryEmbedding,
		telemetry.OpSemanticSearch,
		telemetry.OpLLMCompletion,
		telemetry.OpQueryPipeline,
	}, f.rec.kinds())
	pipeline := f.rec.byKind(telemetry.OpQueryPipeline)[0]
	assert.Equal(t, PipelineModel, pipeline.ModelName)
	assert.Equal(t, true, pipeline.Metadata["search_enabled"])
}

func TestQuery_WithoutSearch(t *testing.T) {
	f := newFixture(t, false)

	resp, err := f.o.Query(context.Background(), "Hello there", QueryOptions{})
	require.NoError(t, err)
	assert.False(t, resp.ContextUsed)
	assert.Empty(t, resp.SearchResults)
	assert.Empty(t, resp.ModelInfo.EmbeddingModel)
	assert.Contains(t, resp.Answer, "No document context")

	_, err = f.o.Query(context.Background(), "   ", QueryOptions{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestQuery_FailurePropagates(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.o.Query(context.Background(), "needs search", QueryOptions{UseSearch: true})
	require.Error(t, err)

	f.flush(t)
	pipeline := f.rec.byKind(telemetry.OpQueryPipeline)
	require.Len(t, pipeline, 1)
	assert.False(t, pipeline[0].Success)
	assert.Empty(t, f.rec.byKind(telemetry.OpLLMCompletion))
}

func TestBatch(t *testing.T) {
	f := newFixture(t, true)

	queries := []string{cortexChunk, "", "a", "b", "c", "d"}
	results, err := f.o.Batch(context.Background(), queries, false)
	require.NoError(t, err)
	require.Len(t, results, len(queries))

	for i, r := range results {
		assert.Equal(t, i, r.BatchIndex)
		assert.Equal(t, queries[i], r.Query)
	}
	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.Empty(t, results[1].Answer)
	assert.Contains(t, f.logs.String(), "CORTEX_BATCH_PROGRESS | processed=5/6")
	assert.Contains(t, f.logs.String(), "CORTEX_BATCH_DONE | successful=5/6")
}

func TestBatch_Cancelled(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.o.Batch(ctx, []string{"a", "b"}, false)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, results)
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

func TestSuggestFromChunks(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "statement becomes question",
			chunks: []string{"Vector search finds similar documents. Short one. Third sentence is ignored here."},
			want:   []string{"What is vector search finds similar documents?"},
		},
		{
			name:   "existing question kept",
			chunks: []string{"How does the pipeline handle failures?"},
			want:   []string{"How does the pipeline handle failures?"},
		},
		{
			name:   "length bounds are exclusive",
			chunks: []string{strings.Repeat("a", 20) + ". " + strings.Repeat("b", 100)},
			want:   []string{},
		},
		{
			name:   "dedupe across chunks",
			chunks: []string{"Embeddings capture meaning well. x", "Embeddings capture meaning well. y"},
			want:   []string{"What is embeddings capture meaning well?"},
		},
		{
			name: "capped at five",
			chunks: []string{
				"First sentence long enough here. Second sentence long enough here.",
				"Third sentence long enough here. Fourth sentence long enough here.",
				"Fifth sentence long enough here. Sixth sentence long enough here.",
			},
			want: []string{
				"What is first sentence long enough here?",
				"What is second sentence long enough here?",
				"What is third sentence long enough here?",
				"What is fourth sentence long enough here?",
				"What is fifth sentence long enough here?",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestFromChunks(tt.chunks))
		})
	}
}

func TestSuggestions(t *testing.T) {
	f := newFixture(t, true)

	assert.Empty(t, f.o.Suggestions(context.Background(), " ab "))

	got := f.o.Suggestions(context.Background(), cortexChunk)
	assert.Equal(t, []string{
		"What is snowflake cortex provides managed ai functions inside the warehouse?",
		"What is it exposes embedding and completion as sql?",
	}, got)
}

func TestSuggestions_SearchFailureIsEmpty(t *testing.T) {
	f := newFixture(t, false)
	assert.Empty(t, f.o.Suggestions(context.Background(), "what about this"))
	assert.Contains(t, f.logs.String(), "CORTEX_SUGGEST_FAILED")
}

// =============================================================================
// MISC
// =============================================================================

func TestParseVector(t *testing.T) {
	vec, err := parseVector("[0.5, -0.25]")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.25}, vec)

	vec, err = parseVector([]float32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, vec)

	vec, err = parseVector(nil)
	require.NoError(t, err)
	assert.Empty(t, vec)

	_, err = parseVector("not json")
	assert.Error(t, err)
	_, err = parseVector(42)
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	var logs bytes.Buffer
	s := DefaultSettings()
	s.LLMModel = "made-up-model"
	s.TopK = 0

	o, err := New(nil, nil, s, log.New(&logs, "", 0))
	require.NoError(t, err)
	assert.Equal(t, 5, o.Settings().TopK)
	assert.Contains(t, logs.String(), "CORTEX_MODEL_UNKNOWN | model=made-up-model")
	assert.Contains(t, logs.String(), "mistral-large")

	s.EmbeddingsTable = "x; DROP"
	_, err = New(nil, nil, s, nil)
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestExplain(t *testing.T) {
	f := newFixture(t, false)

	stmts := f.o.Explain("it's", true)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "cortex_embed_text_768('text-embedding-ada-002', 'it''s')")
	assert.Contains(t, stmts[1], "LIMIT 5")
	assert.Contains(t, stmts[1], ">= 0.8")
	assert.Contains(t, stmts[2], "cortex_complete('mistral-large'")

	assert.Len(t, f.o.Explain("q", false), 1)
}
