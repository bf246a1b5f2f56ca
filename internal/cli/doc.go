// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the cortexpipe command line.
//
// Commands:
//
//	cortexpipe telemetry        Set up, report on and prune the telemetry table
//	cortexpipe query            Ask questions through the Cortex pipeline
//	cortexpipe ingest           Load, embed and watch documents
//	cortexpipe dashboard        Open the terminal analytics dashboard
//	cortexpipe serve            Serve the HTTP API
//	cortexpipe test-connection  Check warehouse and Cortex availability
//	cortexpipe sql              Show the SQL a query would run
//	cortexpipe config           Write or print the settings file
//
// Every command that talks to the warehouse opens one session and one
// telemetry batcher, and flushes the batcher before exiting on every path.
package cli
