// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the query pipeline and telemetry reports over a
// JSON HTTP API.
//
// # Endpoints
//
//   - GET  /health                   - Liveness and version
//   - GET  /metrics                  - Prometheus exposition
//   - GET  /api/v1/metrics?hours=N   - Performance by operation
//   - GET  /api/v1/errors?hours=N    - Error analysis
//   - GET  /api/v1/costs?hours=N     - Cost breakdown
//   - POST /api/v1/query             - Answer one question
//   - POST /api/v1/batch             - Answer several questions
//   - GET  /api/v1/suggestions?q=    - Suggested questions
//   - GET  /api/v1/documents/stats   - Document and embedding statistics
//
// Requests under /api/v1 require a bearer token when one is configured.
// Invalid input is answered with 400 and warehouse failures with 502, both
// as {"error": {"message": ..., "code": ...}}.
//
// # Usage
//
//	srv := server.New(server.Config{Addr: cfg.Server.Addr, AuthToken: cfg.Server.AuthToken},
//		orchestrator, analyzer, ingestor)
//	if err := srv.ListenAndServe(ctx); err != nil {
//		return err
//	}
package server
