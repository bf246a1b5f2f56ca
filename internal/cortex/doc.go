// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cortex orchestrates retrieval-augmented queries over the
// warehouse AI functions.
//
// A query runs in three recorded steps: the question is embedded, the
// embeddings table is searched by cosine similarity, and the matching
// chunks are folded into a prompt for COMPLETE. Each step, and the
// pipeline as a whole, is wrapped in a telemetry scope.
//
// # Usage
//
//	o, err := cortex.New(sess, batcher, cortex.SettingsFrom(cfg), logger)
//	if err != nil {
//	    return err
//	}
//	resp, err := o.Query(ctx, "How does Snowflake Cortex work?", cortex.QueryOptions{UseSearch: true})
package cortex
