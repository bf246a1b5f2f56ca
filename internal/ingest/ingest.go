// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/cortexpipe/internal/config"
	"github.com/jeranaias/cortexpipe/internal/telemetry"
	"github.com/jeranaias/cortexpipe/internal/util"
	"github.com/jeranaias/cortexpipe/internal/warehouse"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrUnsupported      = errors.New("unsupported file type")
	ErrEmptyContent     = errors.New("no text content extracted")
	ErrInvalidName      = errors.New("invalid table or stage name")
	ErrStageUnavailable = errors.New("stages are not available on this warehouse")
)

// =============================================================================
// INGESTOR
// =============================================================================

// Options names the warehouse objects and chunking parameters.
type Options struct {
	Stage           string
	RawTable        string
	EmbeddingsTable string
	TelemetryTable  string
	EmbeddingModel  string
	ChunkSize       int
	ChunkOverlap    int
}

// OptionsFrom reads Options from settings.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Stage:           cfg.Data.RawStage,
		RawTable:        cfg.Data.Tables.Raw,
		EmbeddingsTable: cfg.Data.Tables.Embeddings,
		TelemetryTable:  cfg.Data.Tables.Telemetry,
		EmbeddingModel:  cfg.Cortex.Embedding.Model,
		ChunkSize:       cfg.Embedding.ChunkSize,
		ChunkOverlap:    cfg.Embedding.ChunkOverlap,
	}
}

// Ingestor loads documents into the raw table and embeds them.
type Ingestor struct {
	sess   *warehouse.Session
	tel    *telemetry.Batcher
	opts   Options
	logger *log.Logger
	now    func() time.Time
}

// New validates opts and returns an Ingestor. A nil batcher discards
// telemetry.
func New(sess *warehouse.Session, tel *telemetry.Batcher, opts Options, logger *log.Logger) (*Ingestor, error) {
	if logger == nil {
		logger = log.Default()
	}
	for _, name := range []string{opts.RawTable, opts.EmbeddingsTable, opts.TelemetryTable, strings.TrimPrefix(opts.Stage, "@")} {
		if !config.IsIdentifier(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	if !strings.HasPrefix(opts.Stage, "@") {
		opts.Stage = "@" + opts.Stage
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 200
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	if tel == nil {
		tel = telemetry.NewBatcher(telemetry.SinkFunc(func(context.Context, []telemetry.Record) error { return nil }), 1000)
	}
	return &Ingestor{sess: sess, tel: tel, opts: opts, logger: logger, now: time.Now}, nil
}

// Options returns the effective options.
func (in *Ingestor) Options() Options { return in.opts }

// =============================================================================
// SETUP
// =============================================================================

const snowflakeRawDDL = `CREATE TABLE IF NOT EXISTS %s (
    doc_id STRING PRIMARY KEY,
    filename STRING,
    content STRING,
    file_type STRING,
    file_size_bytes NUMBER,
    upload_timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP(),
    metadata VARIANT
)
COMMENT = 'Raw document content for GenAI processing'`

const localRawDDL = `CREATE TABLE IF NOT EXISTS %s (
    doc_id TEXT PRIMARY KEY,
    filename TEXT,
    content TEXT,
    file_type TEXT,
    file_size_bytes INTEGER,
    upload_timestamp TEXT DEFAULT (datetime('now')),
    metadata TEXT
)`

const snowflakeEmbeddingsDDL = `CREATE TABLE IF NOT EXISTS %s (
    doc_id STRING,
    filename STRING,
    content_chunk STRING,
    chunk_index NUMBER,
    embedding_model STRING,
    token_count NUMBER,
    embedding VECTOR(FLOAT, 768),
    embedding_timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP()
)
COMMENT = 'Chunk embeddings for semantic search'`

const localEmbeddingsDDL = `CREATE TABLE IF NOT EXISTS %s (
    doc_id TEXT,
    filename TEXT,
    content_chunk TEXT,
    chunk_index INTEGER,
    embedding_model TEXT,
    token_count INTEGER,
    embedding TEXT,
    embedding_timestamp TEXT DEFAULT (datetime('now'))
)`

// Setup creates the stage (Snowflake only), the raw and embeddings tables
// and the telemetry table. Existing objects are left untouched.
func (in *Ingestor) Setup(ctx context.Context) error {
	raw, emb := localRawDDL, localEmbeddingsDDL
	if in.sess.Dialect() == warehouse.Snowflake {
		raw, emb = snowflakeRawDDL, snowflakeEmbeddingsDDL

		stage := fmt.Sprintf(`CREATE STAGE IF NOT EXISTS %s
DIRECTORY = (ENABLE = TRUE)
COMMENT = 'Stage for GenAI document uploads'`, strings.TrimPrefix(in.opts.Stage, "@"))
		if _, err := in.sess.ExecContext(ctx, stage); err != nil {
			return fmt.Errorf("failed to create stage %s: %w", in.opts.Stage, err)
		}
		in.logger.Printf("INGEST_SETUP | stage=%s", in.opts.Stage)
	}

	if _, err := in.sess.ExecContext(ctx, fmt.Sprintf(raw, in.opts.RawTable)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", in.opts.RawTable, err)
	}
	if _, err := in.sess.ExecContext(ctx, fmt.Sprintf(emb, in.opts.EmbeddingsTable)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", in.opts.EmbeddingsTable, err)
	}
	if err := telemetry.SetupTable(ctx, in.sess, in.opts.TelemetryTable); err != nil {
		return err
	}

	in.logger.Printf("INGEST_SETUP | raw=%s | embeddings=%s | telemetry=%s",
		in.opts.RawTable, in.opts.EmbeddingsTable, in.opts.TelemetryTable)
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// LoadDocument extracts path and inserts it into the raw table. An empty
// docID is generated from the file stem and the current time. The stored
// doc id is returned.
func (in *Ingestor) LoadDocument(ctx context.Context, path, docID string) (string, error) {
	return in.load(ctx, path, docID, false)
}

// ReplaceDocument loads path as docID, replacing any rows and embeddings
// already stored under that id. The old version is deleted in the same
// transaction as the insert, so a failed load leaves it in place.
func (in *Ingestor) ReplaceDocument(ctx context.Context, path, docID string) error {
	_, err := in.load(ctx, path, docID, true)
	return err
}

func (in *Ingestor) load(ctx context.Context, path, docID string, replace bool) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	now := in.now()
	if docID == "" {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		docID = fmt.Sprintf("doc_%s_%s", stem, now.Format("20060102_150405"))
	}

	err = in.tel.Track(ctx, telemetry.OpDocumentLoad, "", func(ctx context.Context, op *telemetry.Operation) error {
		op.AddMetadata("doc_id", docID)

		content, fileType, err := Extract(path)
		if err != nil {
			return err
		}
		if content == "" {
			return fmt.Errorf("%w: %s", ErrEmptyContent, path)
		}

		abs, _ := filepath.Abs(path)
		meta := map[string]any{
			"original_path":       abs,
			"processed_timestamp": now.Format(time.RFC3339),
			"content_length":      util.RuneLen(content),
			"extraction_method":   "automated",
		}
		op.AddMetadata("content_length", util.RuneLen(content))

		if !replace {
			return in.insert(ctx, in.sess, docID, filepath.Base(path), content, fileType, info.Size(), meta)
		}

		tx, err := in.sess.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := in.deleteRows(ctx, tx, docID); err != nil {
			return err
		}
		if err := in.insert(ctx, tx, docID, filepath.Base(path), content, fileType, info.Size(), meta); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		in.logger.Printf("INGEST_LOAD_FAILED | path=%s | error=%v", path, err)
		return "", err
	}

	in.logger.Printf("INGEST_LOAD | doc_id=%s | path=%s", docID, path)
	return docID, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (in *Ingestor) insert(ctx context.Context, db execer, docID, filename, content, fileType string, size int64, meta map[string]any) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	q := fmt.Sprintf(`INSERT INTO %s (doc_id, filename, content, file_type, file_size_bytes, metadata)
SELECT ?, ?, ?, ?, ?, %s`, in.opts.RawTable, in.sess.Dialect().JSONParam())
	if _, err := db.ExecContext(ctx, q, docID, filename, content, fileType, size, string(metaJSON)); err != nil {
		return fmt.Errorf("failed to insert document %s: %w", docID, err)
	}
	return nil
}

// Exists reports whether docID is in the raw table.
func (in *Ingestor) Exists(ctx context.Context, docID string) (bool, error) {
	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE doc_id = ?", in.opts.RawTable)
	if err := in.sess.QueryRowContext(ctx, q, docID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", docID, err)
	}
	return n > 0, nil
}

// Remove deletes docID and its embeddings.
func (in *Ingestor) Remove(ctx context.Context, docID string) error {
	tx, err := in.sess.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := in.deleteRows(ctx, tx, docID); err != nil {
		return err
	}
	return tx.Commit()
}

func (in *Ingestor) deleteRows(ctx context.Context, db execer, docID string) error {
	for _, table := range []string{in.opts.EmbeddingsTable, in.opts.RawTable} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE doc_id = ?", table), docID); err != nil {
			return fmt.Errorf("failed to delete %s from %s: %w", docID, table, err)
		}
	}
	return nil
}

// LoadSamples inserts the built-in sample documents, skipping any already
// present. It returns how many were inserted.
func (in *Ingestor) LoadSamples(ctx context.Context) (int, error) {
	loaded := 0
	for _, s := range Samples {
		exists, err := in.Exists(ctx, s.DocID)
		if err != nil {
			return loaded, err
		}
		if exists {
			in.logger.Printf("INGEST_SAMPLE_SKIP | doc_id=%s", s.DocID)
			continue
		}

		meta := map[string]any{"source": "sample_data", "generated": true}
		if err := in.insert(ctx, in.sess, s.DocID, s.Filename, s.Content, s.FileType, int64(len(s.Content)), meta); err != nil {
			return loaded, err
		}
		loaded++
	}

	in.logger.Printf("INGEST_SAMPLES | loaded=%d", loaded)
	return loaded, nil
}

// DirectoryResult summarizes LoadDirectory.
type DirectoryResult struct {
	SuccessCount   int      `json:"success_count"`
	FailedCount    int      `json:"failed_count"`
	ProcessedFiles []string `json:"processed_files"`
	Errors         []string `json:"errors"`
}

// LoadDirectory loads every supported file below dir. Per-file failures
// are collected in the result; a missing dir returns an empty result and
// an error.
func (in *Ingestor) LoadDirectory(ctx context.Context, dir string) (*DirectoryResult, error) {
	res := &DirectoryResult{ProcessedFiles: []string{}, Errors: []string{}}

	if info, err := os.Stat(dir); err != nil {
		return res, fmt.Errorf("directory not found: %w", err)
	} else if !info.IsDir() {
		return res, fmt.Errorf("%s is not a directory", dir)
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			res.FailedCount++
			res.Errors = append(res.Errors, fmt.Sprintf("Error processing %s: %v", path, err))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !IsSupported(path) {
			return nil
		}

		if _, err := in.LoadDocument(ctx, path, ""); err != nil {
			res.FailedCount++
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to load: %s: %v", path, err))
			return nil
		}
		res.SuccessCount++
		res.ProcessedFiles = append(res.ProcessedFiles, path)
		return nil
	})

	in.logger.Printf("INGEST_DIR | dir=%s | success=%d | failed=%d", dir, res.SuccessCount, res.FailedCount)
	return res, err
}

// =============================================================================
// STAGE
// =============================================================================

// UploadToStage PUTs path onto the configured stage. It reports whether
// the first result row has status UPLOADED.
func (in *Ingestor) UploadToStage(ctx context.Context, path string) (bool, error) {
	if in.sess.Dialect() != warehouse.Snowflake {
		return false, ErrStageUnavailable
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(abs); err != nil {
		return false, fmt.Errorf("file not found: %w", err)
	}

	rows, err := in.sess.QueryContext(ctx, fmt.Sprintf("PUT file://%s %s AUTO_COMPRESS=FALSE", filepath.ToSlash(abs), in.opts.Stage))
	if err != nil {
		return false, fmt.Errorf("failed to upload %s: %w", path, err)
	}
	defer rows.Close()

	status, err := firstColumn(rows, "status")
	if err != nil {
		return false, err
	}

	ok := strings.EqualFold(status, "UPLOADED")
	in.logger.Printf("INGEST_UPLOAD | path=%s | stage=%s | status=%s", path, in.opts.Stage, status)
	return ok, nil
}

// firstColumn returns column name of the first row as text.
func firstColumn(rows *sql.Rows, name string) (string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	if !rows.Next() {
		return "", rows.Err()
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return "", err
	}

	for i, c := range cols {
		if !strings.EqualFold(c, name) {
			continue
		}
		switch v := vals[i].(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case nil:
			return "", nil
		default:
			return fmt.Sprint(v), nil
		}
	}
	return "", fmt.Errorf("result has no %s column", name)
}

// =============================================================================
// STATS
// =============================================================================

// DocumentStats describes the raw table.
type DocumentStats struct {
	TotalDocuments   int       `json:"total_documents"`
	UniqueFileTypes  int       `json:"unique_file_types"`
	AvgContentLength float64   `json:"avg_content_length"`
	TotalSizeMB      float64   `json:"total_size_mb"`
	FirstUpload      time.Time `json:"first_upload"`
	LatestUpload     time.Time `json:"latest_upload"`
}

// Stats aggregates the raw table. Upload times are zero when it is empty.
func (in *Ingestor) Stats(ctx context.Context) (*DocumentStats, error) {
	q := fmt.Sprintf(`SELECT
    COUNT(*) AS total_documents,
    COUNT(DISTINCT file_type) AS unique_file_types,
    AVG(LENGTH(content)) AS avg_content_length,
    SUM(file_size_bytes) AS total_size_bytes,
    MIN(upload_timestamp) AS first_upload,
    MAX(upload_timestamp) AS latest_upload
FROM %s`, in.opts.RawTable)

	var (
		st          DocumentStats
		avg, size   sql.NullFloat64
		first, last any
	)
	if err := in.sess.QueryRowContext(ctx, q).Scan(&st.TotalDocuments, &st.UniqueFileTypes, &avg, &size, &first, &last); err != nil {
		return nil, fmt.Errorf("failed to query document stats: %w", err)
	}

	st.AvgContentLength = util.Round(avg.Float64, 2)
	st.TotalSizeMB = util.Round(size.Float64/1024/1024, 2)
	st.FirstUpload = warehouse.AsTime(first)
	st.LatestUpload = warehouse.AsTime(last)
	return &st, nil
}
