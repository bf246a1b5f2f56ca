// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"fmt"

	"github.com/jeranaias/cortexpipe/internal/config"
	"github.com/jeranaias/cortexpipe/internal/warehouse"
)

// DefaultRetentionDays is used by Cleanup callers that pass no value.
const DefaultRetentionDays = 90

// =============================================================================
// TABLE DDL
// =============================================================================

const snowflakeTableDDL = `CREATE TABLE IF NOT EXISTS %s (
    telemetry_id STRING PRIMARY KEY DEFAULT UUID_STRING(),
    operation_type STRING NOT NULL,
    model_name STRING,
    input_tokens NUMBER,
    output_tokens NUMBER,
    total_tokens NUMBER AS (COALESCE(input_tokens, 0) + COALESCE(output_tokens, 0)),
    latency_ms NUMBER(12, 2),
    cost_usd DECIMAL(10, 6),
    success_flag BOOLEAN NOT NULL,
    error_message STRING,
    query_text STRING,
    response_text STRING,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP(),
    session_id STRING,
    user_id STRING DEFAULT CURRENT_USER(),
    metadata VARIANT
) COMMENT = 'GenAI operation telemetry: one row per embedding, search, completion or pipeline run'`

const localTableDDL = `CREATE TABLE IF NOT EXISTS %s (
    telemetry_id TEXT PRIMARY KEY,
    operation_type TEXT NOT NULL,
    model_name TEXT,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    total_tokens INTEGER GENERATED ALWAYS AS (COALESCE(input_tokens, 0) + COALESCE(output_tokens, 0)) VIRTUAL,
    latency_ms REAL,
    cost_usd REAL,
    success_flag BOOLEAN NOT NULL,
    error_message TEXT,
    query_text TEXT,
    response_text TEXT,
    timestamp TEXT DEFAULT (datetime('now')),
    session_id TEXT,
    user_id TEXT DEFAULT 'local',
    metadata TEXT
)`

const localIndexDDL = `CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s (timestamp)`

// SetupTable creates the telemetry table when it does not exist. Existing
// rows are never touched.
func SetupTable(ctx context.Context, sess *warehouse.Session, table string) error {
	if !config.IsIdentifier(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	stmts := []string{fmt.Sprintf(snowflakeTableDDL, table)}
	if sess.Dialect() == warehouse.Local {
		stmts = []string{
			fmt.Sprintf(localTableDDL, table),
			fmt.Sprintf(localIndexDDL, indexSuffix(table), table),
		}
	}

	for _, stmt := range stmts {
		if _, err := sess.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create telemetry table %s: %w", table, err)
		}
	}
	return nil
}

// Cleanup deletes rows older than days and returns how many were removed.
// A non-positive days uses DefaultRetentionDays.
func Cleanup(ctx context.Context, sess *warehouse.Session, table string, days int) (int64, error) {
	if !config.IsIdentifier(table) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	if days <= 0 {
		days = DefaultRetentionDays
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, sess.Dialect().OlderThanDays("timestamp", days))
	res, err := sess.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up telemetry older than %d days: %w", days, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted row count: %w", err)
	}
	return n, nil
}

// indexSuffix flattens a dotted table name for use in an index name.
func indexSuffix(table string) string {
	out := []byte(table)
	for i, c := range out {
		if c == '.' {
			out[i] = '_'
		}
	}
	return string(out)
}
