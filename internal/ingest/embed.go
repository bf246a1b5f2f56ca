// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jeranaias/cortexpipe/internal/pricing"
	"github.com/jeranaias/cortexpipe/internal/telemetry"
	"github.com/jeranaias/cortexpipe/internal/util"
)

// Chunk splits text into windows of size words, each starting overlap
// words before the previous one ended. The last window may be shorter.
func Chunk(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		return []string{strings.Join(words, " ")}
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

type pendingDoc struct {
	id, filename, content string
}

// EmbedPending chunks every raw document that has no embeddings yet and
// stores one embedding row per chunk. Each document is written in its own
// transaction. It returns the number of chunks embedded.
func (in *Ingestor) EmbedPending(ctx context.Context) (int, error) {
	docs, err := in.pending(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, d := range docs {
		n, err := in.embedDocument(ctx, d)
		if err != nil {
			return total, err
		}
		total += n
	}

	in.logger.Printf("INGEST_EMBED | documents=%d | chunks=%d", len(docs), total)
	return total, nil
}

func (in *Ingestor) pending(ctx context.Context) ([]pendingDoc, error) {
	q := fmt.Sprintf(`SELECT r.doc_id, r.filename, r.content
FROM %s r
WHERE NOT EXISTS (SELECT 1 FROM %s e WHERE e.doc_id = r.doc_id)
ORDER BY r.doc_id`, in.opts.RawTable, in.opts.EmbeddingsTable)

	rows, err := in.sess.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending documents: %w", err)
	}
	defer rows.Close()

	var docs []pendingDoc
	for rows.Next() {
		var (
			d        pendingDoc
			filename sql.NullString
		)
		if err := rows.Scan(&d.id, &filename, &d.content); err != nil {
			return nil, err
		}
		d.filename = filename.String
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (in *Ingestor) embedDocument(ctx context.Context, d pendingDoc) (int, error) {
	chunks := Chunk(d.content, in.opts.ChunkSize, in.opts.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, nil
	}

	q := fmt.Sprintf(`INSERT INTO %s (doc_id, filename, content_chunk, chunk_index, embedding_model, token_count, embedding)
SELECT ?, ?, ?, ?, ?, ?, %s`, in.opts.EmbeddingsTable, in.sess.Dialect().EmbedExpr(in.opts.EmbeddingModel, "?"))

	err := in.tel.Track(ctx, telemetry.OpChunkEmbedding, in.opts.EmbeddingModel, func(ctx context.Context, op *telemetry.Operation) error {
		op.AddMetadataMap(map[string]any{"doc_id": d.id, "chunks": len(chunks)})

		tx, err := in.sess.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		tokens := 0
		for i, chunk := range chunks {
			n := pricing.EstimateTokens(chunk)
			tokens += n
			if _, err := tx.ExecContext(ctx, q, d.id, d.filename, chunk, i, in.opts.EmbeddingModel, n, chunk); err != nil {
				return fmt.Errorf("failed to embed chunk %d of %s: %w", i, d.id, err)
			}
		}
		op.SetTokens(tokens, 0)
		return tx.Commit()
	})
	if err != nil {
		in.logger.Printf("INGEST_EMBED_FAILED | doc_id=%s | error=%v", d.id, err)
		return 0, err
	}
	return len(chunks), nil
}

// EmbeddingStats describes the embeddings table.
type EmbeddingStats struct {
	TotalEmbeddings   int     `json:"total_embeddings"`
	UniqueDocuments   int     `json:"unique_documents"`
	AvgTokensPerChunk float64 `json:"avg_tokens_per_chunk"`
	AvgChunkSize      float64 `json:"avg_chunk_size"`
}

// EmbeddingStats aggregates the embeddings table.
func (in *Ingestor) EmbeddingStats(ctx context.Context) (*EmbeddingStats, error) {
	q := fmt.Sprintf(`SELECT
    COUNT(*) AS total_embeddings,
    COUNT(DISTINCT doc_id) AS unique_documents,
    AVG(token_count) AS avg_tokens_per_chunk,
    AVG(LENGTH(content_chunk)) AS avg_chunk_size
FROM %s`, in.opts.EmbeddingsTable)

	var (
		st             EmbeddingStats
		tokens, length sql.NullFloat64
	)
	if err := in.sess.QueryRowContext(ctx, q).Scan(&st.TotalEmbeddings, &st.UniqueDocuments, &tokens, &length); err != nil {
		return nil, fmt.Errorf("failed to query embedding stats: %w", err)
	}
	st.AvgTokensPerChunk = util.Round(tokens.Float64, 2)
	st.AvgChunkSize = util.Round(length.Float64, 2)
	return &st, nil
}
