// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/snowflakedb/gosnowflake"

	"github.com/jeranaias/cortexpipe/internal/config"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrUnknownDriver = errors.New("unknown warehouse driver")
	ErrClosed        = errors.New("warehouse session closed")
)

// =============================================================================
// SESSION
// =============================================================================

// Session is an explicitly owned warehouse connection. Callers open one,
// pass it to the components that need it, and close it on shutdown.
type Session struct {
	db      *sql.DB
	dialect Dialect
	logger  *log.Logger
}

// New wraps an already opened database handle.
func New(db *sql.DB, dialect Dialect, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{db: db, dialect: dialect, logger: logger}
}

// Open connects using the driver selected in cfg.
func Open(ctx context.Context, cfg *config.Config, creds *config.Credentials, logger *log.Logger) (*Session, error) {
	dialect, err := ParseDialect(cfg.Warehouse.Driver)
	if err != nil {
		return nil, err
	}
	if dialect == Local {
		return OpenLocal(ctx, cfg.Warehouse.LocalDB, logger)
	}
	if creds == nil {
		return nil, config.ErrMissingCredentials
	}
	return OpenSnowflake(ctx, creds, logger)
}

// OpenSnowflake connects to a Snowflake account.
func OpenSnowflake(ctx context.Context, creds *config.Credentials, logger *log.Logger) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:     creds.Account,
		User:        creds.User,
		Password:    creds.Password,
		Role:        creds.Role,
		Warehouse:   creds.Warehouse,
		Database:    creds.Database,
		Schema:      creds.Schema,
		Application: "cortexpipe",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open Snowflake connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake account %s: %w", creds.Account, err)
	}

	s := New(db, Snowflake, logger)
	s.logger.Printf("WAREHOUSE_OPEN | driver=snowflake | account=%s | warehouse=%s | database=%s.%s",
		creds.Account, creds.Warehouse, creds.Database, creds.Schema)
	return s, nil
}

// OpenLocal opens (creating if needed) the SQLite demo warehouse at path.
// ":memory:" gives a private in-memory database.
func OpenLocal(ctx context.Context, path string, logger *log.Logger) (*Session, error) {
	if err := registerLocalFunctions(); err != nil {
		return nil, fmt.Errorf("failed to register local Cortex functions: %w", err)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, and an in-memory database
	// exists per connection, so keep a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := New(db, Local, logger)
	s.logger.Printf("WAREHOUSE_OPEN | driver=local | path=%s", path)
	return s, nil
}

// Dialect returns the SQL flavor of the session.
func (s *Session) Dialect() Dialect { return s.dialect }

// DB exposes the underlying handle.
func (s *Session) DB() *sql.DB { return s.db }

// QueryContext runs a query returning rows.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a query expected to return at most one row.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// ExecContext runs a statement.
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (s *Session) BeginTx(ctx context.Context) (*sql.Tx, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db.BeginTx(ctx, nil)
}

// Close releases the connection pool. It is safe to call more than once.
func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.logger.Printf("WAREHOUSE_CLOSE | driver=%s", s.dialect)
	return err
}

// =============================================================================
// CONNECTION TEST
// =============================================================================

// ConnectionReport describes a connectivity check.
type ConnectionReport struct {
	Version         string
	CortexAvailable bool
	CortexError     string
}

// TestConnection queries the server version and probes the embedding
// function. A failed probe is reported, not returned as an error.
func (s *Session) TestConnection(ctx context.Context, embeddingModel string) (*ConnectionReport, error) {
	report := &ConnectionReport{}
	if err := s.QueryRowContext(ctx, s.dialect.VersionQuery()).Scan(&report.Version); err != nil {
		return nil, fmt.Errorf("failed to query server version: %w", err)
	}

	probe := fmt.Sprintf("SELECT %s IS NOT NULL AS cortex_available", s.dialect.EmbedExpr(embeddingModel, Quote("test")))
	if err := s.QueryRowContext(ctx, probe).Scan(&report.CortexAvailable); err != nil {
		report.CortexError = err.Error()
	}

	s.logger.Printf("WAREHOUSE_TEST | version=%s | cortex=%t", report.Version, report.CortexAvailable)
	return report, nil
}
