// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package analytics aggregates persisted telemetry for reports, the
// dashboard and the HTTP API.
//
// All reports take a lookback window in hours. Aggregation runs in the
// warehouse; only the local dialect computes the p95 latency in Go, using
// the same interpolation as PERCENTILE_CONT.
package analytics
