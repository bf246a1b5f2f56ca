// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package warehouse opens the SQL session the pipeline runs against.
//
// A Session is either a Snowflake connection (gosnowflake) or a local
// SQLite demo warehouse (modernc.org/sqlite) that registers deterministic
// stand-ins for the Cortex functions. Dialect hides the SQL differences
// between the two.
//
// # Key Types
//
//   - Session: explicitly passed connection handle with a documented lifetime
//   - Dialect: SQL builders for Cortex calls, time windows and JSON values
//   - ConnectionReport: result of TestConnection
//
// # Usage
//
//	sess, err := warehouse.Open(ctx, cfg, creds, logger)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	expr := sess.Dialect().EmbedExpr("text-embedding-ada-002", warehouse.Quote(q))
package warehouse
