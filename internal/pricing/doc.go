// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pricing holds the static Cortex price table.
//
// Prices are approximate USD per 1K tokens. Unknown models are charged
// DefaultPricePer1K so that telemetry never records a negative or missing
// cost.
//
// # Usage
//
//	cost := pricing.OperationCost(in, out, "mistral-large")
//	tokens := pricing.EstimateTokens(prompt)
package pricing
