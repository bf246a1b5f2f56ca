// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/cortexpipe/internal/config"
	"github.com/jeranaias/cortexpipe/internal/warehouse"
)

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("invalid telemetry table name")

// Sink persists a batch of records in one write. A failed write must
// persist nothing.
type Sink interface {
	WriteBatch(ctx context.Context, records []Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, records []Record) error

// WriteBatch calls f.
func (f SinkFunc) WriteBatch(ctx context.Context, records []Record) error {
	return f(ctx, records)
}

// =============================================================================
// WAREHOUSE SINK
// =============================================================================

// insertColumns are written by the sink; total_tokens and user_id are
// computed by the store.
var insertColumns = []string{
	"telemetry_id", "operation_type", "model_name", "input_tokens", "output_tokens",
	"latency_ms", "cost_usd", "success_flag", "error_message", "query_text",
	"response_text", "timestamp", "session_id", "metadata",
}

// WarehouseSink appends records to the telemetry table.
type WarehouseSink struct {
	sess  *warehouse.Session
	table string
}

// NewWarehouseSink returns a sink writing to table.
func NewWarehouseSink(sess *warehouse.Session, table string) (*WarehouseSink, error) {
	if !config.IsIdentifier(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &WarehouseSink{sess: sess, table: table}, nil
}

// Table returns the target table name.
func (s *WarehouseSink) Table() string { return s.table }

// rowsPerStatement keeps bind parameter counts under driver limits when a
// backlog is flushed.
const rowsPerStatement = 500

// WriteBatch inserts all records inside one transaction, using multi-row
// statements of at most rowsPerStatement rows.
func (s *WarehouseSink) WriteBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.sess.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin telemetry transaction: %w", err)
	}
	for start := 0; start < len(records); start += rowsPerStatement {
		end := min(start+rowsPerStatement, len(records))
		query, args, err := s.buildInsert(records[start:end])
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert %d telemetry records: %w", len(records), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit telemetry records: %w", err)
	}
	return nil
}

// buildInsert renders INSERT ... SELECT ... UNION ALL SELECT ..., which
// both dialects accept and which lets Snowflake wrap metadata in PARSE_JSON.
func (s *WarehouseSink) buildInsert(records []Record) (string, []any, error) {
	d := s.sess.Dialect()

	placeholders := make([]string, len(insertColumns))
	for i, col := range insertColumns {
		if col == "metadata" {
			placeholders[i] = d.JSONParam()
		} else {
			placeholders[i] = "?"
		}
	}
	row := "SELECT " + strings.Join(placeholders, ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\n", s.table, strings.Join(insertColumns, ", "))

	args := make([]any, 0, len(records)*len(insertColumns))
	for i, r := range records {
		if i > 0 {
			b.WriteString("\nUNION ALL ")
		}
		b.WriteString(row)

		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode metadata for record %s: %w", r.ID, err)
		}
		args = append(args,
			r.ID, r.OperationType, nullString(r.ModelName), r.InputTokens, r.OutputTokens,
			r.LatencyMs, r.CostUSD, r.Success, nullString(r.ErrorMessage), nullString(r.QueryText),
			nullString(r.ResponseText), d.TimeValue(r.CreatedAt), r.SessionID, string(meta),
		)
	}
	return b.String(), args, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// =============================================================================
// FALLBACK SINK
// =============================================================================

// Fallback writes to primary and, when that fails, to secondary. The batch
// counts as persisted if either write succeeds.
type Fallback struct {
	Primary   Sink
	Secondary Sink
}

// WriteBatch implements Sink.
func (f Fallback) WriteBatch(ctx context.Context, records []Record) error {
	err := f.Primary.WriteBatch(ctx, records)
	if err == nil || f.Secondary == nil {
		return err
	}
	if err2 := f.Secondary.WriteBatch(ctx, records); err2 != nil {
		return errors.Join(err, err2)
	}
	return nil
}
