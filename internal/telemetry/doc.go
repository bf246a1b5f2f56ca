// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records one row per GenAI operation and writes rows to
// the warehouse in batches.
//
// # Key Types
//
//   - Batcher: buffers records and flushes them to a Sink
//   - Operation: scoped handle that logs exactly one record when ended
//   - Record: one completed operation with tokens, latency and cost
//   - WarehouseSink / FileSink / Fallback: persistence backends
//   - Instruments: OpenTelemetry and Prometheus export
//
// # Usage
//
// Wrap a remote call:
//
//	b := telemetry.NewBatcher(sink, cfg.Telemetry.BatchSize, telemetry.WithLogger(logger))
//	defer b.Close(ctx)
//
//	err := b.Track(ctx, telemetry.OpQueryEmbedding, model, func(ctx context.Context, op *telemetry.Operation) error {
//	    op.SetQuery(q)
//	    op.SetTokens(pricing.EstimateTokens(q), 0)
//	    return embed(ctx, q)
//	})
//
// # Failure Handling
//
// A failed flush keeps the buffer intact. The same records are retried at
// the next flush, so a sink outage delays rows but never drops them.
package telemetry
