// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads cortexpipe settings and warehouse credentials.
//
// Settings are YAML (config/settings.yaml) or TOML when the file ends in
// .toml. Credentials come from SF_* environment variables, optionally
// seeded from a dotenv file (config/creds.env).
//
// # Key Types
//
//   - Config: settings for Cortex models, tables, telemetry and the API
//   - Credentials: Snowflake connection parameters
//   - ValidateErrors: every field problem found by Validate
//
// # Precedence
//
// Settings are resolved from (highest first):
//   - Environment variables (CORTEXPIPE_*)
//   - The settings file
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("config/settings.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	creds, err := config.LoadCredentials("config/creds.env")
package config
