// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/cortexpipe/internal/util"
)

// DefaultSettingsPath is where settings are looked up when no path is given.
const DefaultSettingsPath = "config/settings.yaml"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete cortexpipe settings file.
type Config struct {
	Cortex    CortexConfig    `yaml:"cortex" toml:"cortex"`
	Data      DataConfig      `yaml:"data" toml:"data"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Warehouse WarehouseConfig `yaml:"warehouse" toml:"warehouse"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Dashboard DashboardConfig `yaml:"dashboard" toml:"dashboard"`
}

// CortexConfig holds model and search settings for the Cortex functions.
type CortexConfig struct {
	Embedding ModelConfig  `yaml:"embedding" toml:"embedding"`
	LLM       LLMConfig    `yaml:"llm" toml:"llm"`
	Search    SearchConfig `yaml:"search" toml:"search"`
	// RequestsPerSecond paces batch calls. 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

// ModelConfig names an embedding model.
type ModelConfig struct {
	Model string `yaml:"model" toml:"model"`
}

// LLMConfig controls COMPLETE calls.
type LLMConfig struct {
	Model       string  `yaml:"model" toml:"model"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
	TopP        float64 `yaml:"top_p" toml:"top_p"`
}

// SearchConfig controls semantic search.
type SearchConfig struct {
	TopK                int     `yaml:"top_k" toml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" toml:"similarity_threshold"`
}

// DataConfig names the stage and tables used by the pipeline.
type DataConfig struct {
	RawStage string      `yaml:"raw_stage" toml:"raw_stage"`
	Tables   TableConfig `yaml:"tables" toml:"tables"`
}

// TableConfig holds table names.
type TableConfig struct {
	Raw        string `yaml:"raw" toml:"raw"`
	Embeddings string `yaml:"embeddings" toml:"embeddings"`
	Telemetry  string `yaml:"telemetry" toml:"telemetry"`
}

// TelemetryConfig controls the telemetry batcher.
type TelemetryConfig struct {
	BatchSize int `yaml:"batch_size" toml:"batch_size"`
	// WarnMultiple is the backlog size, in batches, past which failed
	// flushes log a backlog warning.
	WarnMultiple  int    `yaml:"warn_multiple" toml:"warn_multiple"`
	RetentionDays int    `yaml:"retention_days" toml:"retention_days"`
	SpoolDir      string `yaml:"spool_dir" toml:"spool_dir"`
}

// EmbeddingConfig controls document chunking.
type EmbeddingConfig struct {
	ChunkSize    int `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" toml:"chunk_overlap"`
}

// WarehouseConfig selects the session backend.
type WarehouseConfig struct {
	// Driver is "snowflake" or "local".
	Driver  string `yaml:"driver" toml:"driver"`
	LocalDB string `yaml:"local_db" toml:"local_db"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	AuthToken string `yaml:"auth_token" toml:"auth_token"`
}

// DashboardConfig controls the terminal dashboard.
type DashboardConfig struct {
	DefaultHours   int `yaml:"default_hours" toml:"default_hours"`
	RefreshSeconds int `yaml:"refresh_seconds" toml:"refresh_seconds"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with the built-in default values.
func Default() *Config {
	return &Config{
		Cortex: CortexConfig{
			Embedding: ModelConfig{Model: "text-embedding-ada-002"},
			LLM: LLMConfig{
				Model:       "mistral-large",
				MaxTokens:   4096,
				Temperature: 0.7,
				TopP:        0.9,
			},
			Search: SearchConfig{
				TopK:                5,
				SimilarityThreshold: 0.8,
			},
		},
		Data: DataConfig{
			RawStage: "@media_raw",
			Tables: TableConfig{
				Raw:        "media_raw",
				Embeddings: "media_embeddings",
				Telemetry:  "genai_telemetry",
			},
		},
		Telemetry: TelemetryConfig{
			BatchSize:     50,
			WarnMultiple:  10,
			RetentionDays: 90,
		},
		Embedding: EmbeddingConfig{
			ChunkSize:    200,
			ChunkOverlap: 20,
		},
		Warehouse: WarehouseConfig{
			Driver:  "snowflake",
			LocalDB: "cortexpipe.db",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8087",
		},
		Dashboard: DashboardConfig{
			DefaultHours:   24,
			RefreshSeconds: 30,
		},
	}
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads settings from path. A missing file yields defaults and a
// warning; a file that cannot be parsed is an error. The format is chosen
// by extension: .toml is TOML, anything else YAML. Environment overrides
// are applied before validation.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultSettingsPath
	}

	cfg := Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Printf("CONFIG_MISSING | path=%s | using defaults", path)
	} else {
		if err := decodeFile(cfg, path); err != nil {
			return nil, err
		}
		log.Printf("CONFIG_LOADED | path=%s", path)
	}

	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to decode TOML settings: %w", err)
		}
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML settings: %w", err)
	}
	return nil
}

// fillDefaults fills zero values left by a partial settings file.
func fillDefaults(cfg *Config) {
	d := Default()

	if cfg.Cortex.Embedding.Model == "" {
		cfg.Cortex.Embedding.Model = d.Cortex.Embedding.Model
	}
	if cfg.Cortex.LLM.Model == "" {
		cfg.Cortex.LLM.Model = d.Cortex.LLM.Model
	}
	if cfg.Cortex.LLM.MaxTokens == 0 {
		cfg.Cortex.LLM.MaxTokens = d.Cortex.LLM.MaxTokens
	}
	if cfg.Cortex.LLM.TopP == 0 {
		cfg.Cortex.LLM.TopP = d.Cortex.LLM.TopP
	}
	if cfg.Cortex.Search.TopK == 0 {
		cfg.Cortex.Search.TopK = d.Cortex.Search.TopK
	}
	if cfg.Cortex.Search.SimilarityThreshold == 0 {
		cfg.Cortex.Search.SimilarityThreshold = d.Cortex.Search.SimilarityThreshold
	}

	if cfg.Data.RawStage == "" {
		cfg.Data.RawStage = d.Data.RawStage
	}
	if cfg.Data.Tables.Raw == "" {
		cfg.Data.Tables.Raw = d.Data.Tables.Raw
	}
	if cfg.Data.Tables.Embeddings == "" {
		cfg.Data.Tables.Embeddings = d.Data.Tables.Embeddings
	}
	if cfg.Data.Tables.Telemetry == "" {
		cfg.Data.Tables.Telemetry = d.Data.Tables.Telemetry
	}

	if cfg.Telemetry.BatchSize == 0 {
		cfg.Telemetry.BatchSize = d.Telemetry.BatchSize
	}
	if cfg.Telemetry.WarnMultiple == 0 {
		cfg.Telemetry.WarnMultiple = d.Telemetry.WarnMultiple
	}
	if cfg.Telemetry.RetentionDays == 0 {
		cfg.Telemetry.RetentionDays = d.Telemetry.RetentionDays
	}

	if cfg.Embedding.ChunkSize == 0 {
		cfg.Embedding.ChunkSize = d.Embedding.ChunkSize
	}
	if cfg.Embedding.ChunkOverlap == 0 {
		cfg.Embedding.ChunkOverlap = d.Embedding.ChunkOverlap
	}

	if cfg.Warehouse.Driver == "" {
		cfg.Warehouse.Driver = d.Warehouse.Driver
	}
	if cfg.Warehouse.LocalDB == "" {
		cfg.Warehouse.LocalDB = d.Warehouse.LocalDB
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Dashboard.DefaultHours == 0 {
		cfg.Dashboard.DefaultHours = d.Dashboard.DefaultHours
	}
	if cfg.Dashboard.RefreshSeconds == 0 {
		cfg.Dashboard.RefreshSeconds = d.Dashboard.RefreshSeconds
	}
}

// Save writes cfg to path, as TOML for a .toml extension and YAML otherwise.
// SECURITY: settings may carry the API token, so files are written 0600.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# cortexpipe settings\n\n")

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}
	}

	// RELIABILITY: Atomic write with fsync prevents a half-written file
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a settings validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and returns all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Cortex.LLM.MaxTokens < 1 {
		errs = append(errs, ValidationError{
			Field:   "cortex.llm.max_tokens",
			Message: fmt.Sprintf("must be positive, got %d", c.Cortex.LLM.MaxTokens),
		})
	}
	if c.Cortex.LLM.Temperature < 0 || c.Cortex.LLM.Temperature > 1 {
		errs = append(errs, ValidationError{
			Field:   "cortex.llm.temperature",
			Message: fmt.Sprintf("must be between 0.0 and 1.0, got %g", c.Cortex.LLM.Temperature),
		})
	}
	if c.Cortex.LLM.TopP <= 0 || c.Cortex.LLM.TopP > 1 {
		errs = append(errs, ValidationError{
			Field:   "cortex.llm.top_p",
			Message: fmt.Sprintf("must be in (0.0, 1.0], got %g", c.Cortex.LLM.TopP),
		})
	}
	if c.Cortex.Search.TopK < 1 || c.Cortex.Search.TopK > 100 {
		errs = append(errs, ValidationError{
			Field:   "cortex.search.top_k",
			Message: fmt.Sprintf("must be 1-100, got %d", c.Cortex.Search.TopK),
		})
	}
	if c.Cortex.Search.SimilarityThreshold < -1 || c.Cortex.Search.SimilarityThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "cortex.search.similarity_threshold",
			Message: fmt.Sprintf("must be between -1.0 and 1.0, got %g", c.Cortex.Search.SimilarityThreshold),
		})
	}
	if c.Cortex.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{
			Field:   "cortex.requests_per_second",
			Message: "must be non-negative",
		})
	}

	for field, name := range map[string]string{
		"data.tables.raw":        c.Data.Tables.Raw,
		"data.tables.embeddings": c.Data.Tables.Embeddings,
		"data.tables.telemetry":  c.Data.Tables.Telemetry,
	} {
		if !IsIdentifier(name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid table name '%s'", name),
			})
		}
	}
	if !strings.HasPrefix(c.Data.RawStage, "@") || !IsIdentifier(strings.TrimPrefix(c.Data.RawStage, "@")) {
		errs = append(errs, ValidationError{
			Field:   "data.raw_stage",
			Message: fmt.Sprintf("must look like @stage_name, got '%s'", c.Data.RawStage),
		})
	}

	if c.Telemetry.BatchSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "telemetry.batch_size",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Telemetry.BatchSize),
		})
	}
	if c.Telemetry.WarnMultiple < 1 {
		errs = append(errs, ValidationError{
			Field:   "telemetry.warn_multiple",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Telemetry.WarnMultiple),
		})
	}
	if c.Telemetry.RetentionDays < 1 {
		errs = append(errs, ValidationError{
			Field:   "telemetry.retention_days",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Telemetry.RetentionDays),
		})
	}

	if c.Embedding.ChunkSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "embedding.chunk_size",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Embedding.ChunkSize),
		})
	}
	if c.Embedding.ChunkOverlap < 0 || c.Embedding.ChunkOverlap >= c.Embedding.ChunkSize {
		errs = append(errs, ValidationError{
			Field:   "embedding.chunk_overlap",
			Message: fmt.Sprintf("must be 0 to chunk_size-1, got %d", c.Embedding.ChunkOverlap),
		})
	}

	switch c.Warehouse.Driver {
	case "snowflake", "local":
	default:
		errs = append(errs, ValidationError{
			Field:   "warehouse.driver",
			Message: fmt.Sprintf("invalid driver '%s', must be one of: snowflake, local", c.Warehouse.Driver),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// IsIdentifier reports whether s is a plain SQL identifier, optionally
// qualified with dots (db.schema.table).
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CORTEXPIPE_* environment variables.
//
// Supported variables:
//   - CORTEXPIPE_DRIVER: overrides warehouse.driver
//   - CORTEXPIPE_LOCAL_DB: overrides warehouse.local_db
//   - CORTEXPIPE_LLM_MODEL: overrides cortex.llm.model
//   - CORTEXPIPE_EMBEDDING_MODEL: overrides cortex.embedding.model
//   - CORTEXPIPE_BATCH_SIZE: overrides telemetry.batch_size
//   - CORTEXPIPE_SPOOL_DIR: overrides telemetry.spool_dir
//   - CORTEXPIPE_ADDR: overrides server.addr
//   - CORTEXPIPE_API_TOKEN: overrides server.auth_token
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CORTEXPIPE_DRIVER"); v != "" {
		c.Warehouse.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("CORTEXPIPE_LOCAL_DB"); v != "" {
		c.Warehouse.LocalDB = v
	}
	if v := os.Getenv("CORTEXPIPE_LLM_MODEL"); v != "" {
		c.Cortex.LLM.Model = v
	}
	if v := os.Getenv("CORTEXPIPE_EMBEDDING_MODEL"); v != "" {
		c.Cortex.Embedding.Model = v
	}
	if v := os.Getenv("CORTEXPIPE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Telemetry.BatchSize = n
		} else {
			log.Printf("CONFIG_ENV_INVALID | var=CORTEXPIPE_BATCH_SIZE | value=%s", v)
		}
	}
	if v := os.Getenv("CORTEXPIPE_SPOOL_DIR"); v != "" {
		c.Telemetry.SpoolDir = v
	}
	if v := os.Getenv("CORTEXPIPE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CORTEXPIPE_API_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
}

// String renders the settings as YAML with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.Server.AuthToken != "" {
		masked.Server.AuthToken = "********"
	}
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Sprintf("<unprintable settings: %v>", err)
	}
	return string(out)
}
