// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across cortexpipe packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes, TruncateRunesNoEllipsis: UTF-8 safe truncation
//   - TruncateWidth, PadRight: terminal column aware layout
//   - WordCount: whitespace word count used for token estimates
//
// Numbers:
//   - Round: decimal rounding used for latency and cost fields
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	query := util.TruncateRunesNoEllipsis(text, 1000)
//	latency := util.Round(elapsedMs, 2)
//	err := util.AtomicWriteFile(path, data, 0644)
package util
