// cortexpipe - Snowflake Cortex GenAI pipeline with telemetry.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/cortexpipe/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	os.Exit(cli.Execute())
}
