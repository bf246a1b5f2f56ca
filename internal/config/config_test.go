// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s failed: %v", name, err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Telemetry.BatchSize != 50 {
		t.Errorf("batch_size: got %d, want 50", cfg.Telemetry.BatchSize)
	}
	if cfg.Cortex.LLM.Model != "mistral-large" {
		t.Errorf("llm model: got %s, want mistral-large", cfg.Cortex.LLM.Model)
	}
	if cfg.Data.Tables.Telemetry != "genai_telemetry" {
		t.Errorf("telemetry table: got %s", cfg.Data.Tables.Telemetry)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cortex.Search.TopK != 5 {
		t.Errorf("top_k: got %d, want 5", cfg.Cortex.Search.TopK)
	}
}

func TestLoad_PartialYAML(t *testing.T) {
	path := writeFile(t, "settings.yaml", `
cortex:
  llm:
    model: mixtral-8x7b
    temperature: 0.2
  search:
    top_k: 3
telemetry:
  batch_size: 10
data:
  tables:
    raw: docs_raw
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cortex.LLM.Model != "mixtral-8x7b" {
		t.Errorf("llm model: got %s", cfg.Cortex.LLM.Model)
	}
	if cfg.Cortex.LLM.Temperature != 0.2 {
		t.Errorf("temperature: got %v, want 0.2", cfg.Cortex.LLM.Temperature)
	}
	if cfg.Cortex.LLM.MaxTokens != 4096 {
		t.Errorf("max_tokens should keep default, got %d", cfg.Cortex.LLM.MaxTokens)
	}
	if cfg.Cortex.Search.TopK != 3 {
		t.Errorf("top_k: got %d, want 3", cfg.Cortex.Search.TopK)
	}
	if cfg.Telemetry.BatchSize != 10 {
		t.Errorf("batch_size: got %d, want 10", cfg.Telemetry.BatchSize)
	}
	if cfg.Data.Tables.Raw != "docs_raw" {
		t.Errorf("raw table: got %s", cfg.Data.Tables.Raw)
	}
	if cfg.Data.Tables.Embeddings != "media_embeddings" {
		t.Errorf("embeddings table should keep default, got %s", cfg.Data.Tables.Embeddings)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "settings.toml", `
[cortex.embedding]
model = "text-embedding-3-small"

[warehouse]
driver = "local"
local_db = "demo.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cortex.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("embedding model: got %s", cfg.Cortex.Embedding.Model)
	}
	if cfg.Warehouse.Driver != "local" || cfg.Warehouse.LocalDB != "demo.db" {
		t.Errorf("warehouse: got %+v", cfg.Warehouse)
	}
}

func TestLoad_ParseErrorIsFatal(t *testing.T) {
	path := writeFile(t, "settings.yaml", "cortex: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CORTEXPIPE_DRIVER", "LOCAL")
	t.Setenv("CORTEXPIPE_BATCH_SIZE", "7")
	t.Setenv("CORTEXPIPE_API_TOKEN", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Warehouse.Driver != "local" {
		t.Errorf("driver: got %s, want local", cfg.Warehouse.Driver)
	}
	if cfg.Telemetry.BatchSize != 7 {
		t.Errorf("batch_size: got %d, want 7", cfg.Telemetry.BatchSize)
	}
	if cfg.Server.AuthToken != "secret" {
		t.Errorf("auth token not applied")
	}
	if strings.Contains(cfg.String(), "secret") {
		t.Error("String() must mask the auth token")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.BatchSize = 0
	cfg.Cortex.LLM.Temperature = 1.5
	cfg.Warehouse.Driver = "postgres"
	cfg.Data.Tables.Raw = "raw; DROP TABLE x"

	err := cfg.Validate()
	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidateErrors, got %v", err)
	}

	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, want := range []string{"telemetry.batch_size", "cortex.llm.temperature", "warehouse.driver", "data.tables.raw"} {
		if !fields[want] {
			t.Errorf("missing validation error for %s (got %v)", want, verrs)
		}
	}
}

func TestIsIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"genai_telemetry", true},
		{"GENAI_DB.PUBLIC.media_raw", true},
		{"t1", true},
		{"1t", false},
		{"", false},
		{"a..b", false},
		{"x; drop", false},
		{"name-with-dash", false},
	}
	for _, tt := range tests {
		if got := IsIdentifier(tt.in); got != tt.want {
			t.Errorf("IsIdentifier(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSave_RoundTripsThroughLoad(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := Default()
			cfg.Cortex.LLM.Model = "reka-flash"
			cfg.Embedding.ChunkSize = 120

			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("stat failed: %v", err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("perm: got %o, want 600", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Cortex.LLM.Model != "reka-flash" || loaded.Embedding.ChunkSize != 120 {
				t.Errorf("round trip lost values: %+v", loaded.Cortex.LLM)
			}
		})
	}
}

// =============================================================================
// CREDENTIALS
// =============================================================================

func clearSFEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SF_ACCOUNT", "SF_USER", "SF_PASSWORD", "SF_ROLE", "SF_WAREHOUSE", "SF_DATABASE", "SF_SCHEMA"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadCredentials_FromDotenv(t *testing.T) {
	clearSFEnv(t)
	path := writeFile(t, "creds.env", "SF_ACCOUNT=acme-xy123\nSF_USER=loader\nSF_PASSWORD=pw\nSF_WAREHOUSE=SMALL_WH\n")

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.Account != "acme-xy123" || creds.User != "loader" {
		t.Errorf("got %+v", creds.Redacted())
	}
	if creds.Warehouse != "SMALL_WH" {
		t.Errorf("warehouse: got %s, want SMALL_WH", creds.Warehouse)
	}
	if creds.Role != "ACCOUNTADMIN" || creds.Schema != "PUBLIC" {
		t.Errorf("defaults not applied: %+v", creds.Redacted())
	}
	if err := creds.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadCredentials_EnvWinsOverFile(t *testing.T) {
	clearSFEnv(t)
	t.Setenv("SF_USER", "from-env")
	path := writeFile(t, "creds.env", "SF_USER=from-file\n")

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.User != "from-env" {
		t.Errorf("user: got %s, want from-env", creds.User)
	}
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"complete", Credentials{Account: "a", User: "u", Password: "p"}, false},
		{"too few", Credentials{Account: "a", User: "u"}, true},
		{"missing password", Credentials{Account: "a", User: "u", Role: "R", Schema: "S"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate: got %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	}
}

func TestCredentials_Redacted(t *testing.T) {
	c := Credentials{Password: "hunter2"}
	if c.Redacted().Password == "hunter2" {
		t.Error("password not redacted")
	}
	if c.Password != "hunter2" {
		t.Error("Redacted must not modify the receiver")
	}
}
