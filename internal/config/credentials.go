// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// DefaultCredentialsPath is the dotenv file read before the environment.
const DefaultCredentialsPath = "config/creds.env"

// ErrMissingCredentials is returned when too few connection parameters are set.
var ErrMissingCredentials = errors.New("missing required Snowflake connection parameters, check your creds.env file")

// Credentials holds warehouse connection parameters.
type Credentials struct {
	Account   string
	User      string
	Password  string
	Role      string
	Warehouse string
	Database  string
	Schema    string
}

// LoadCredentials loads path into the process environment (existing
// variables win) and then resolves SF_* variables. A missing file only
// logs a warning.
func LoadCredentials(path string) (*Credentials, error) {
	if path == "" {
		path = DefaultCredentialsPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load credentials file %s: %w", path, err)
		}
		log.Printf("CREDS_LOADED | path=%s", path)
	} else {
		log.Printf("CREDS_MISSING | path=%s | reading environment only", path)
	}

	return CredentialsFromEnv(), nil
}

// CredentialsFromEnv resolves SF_* variables with their defaults.
func CredentialsFromEnv() *Credentials {
	return &Credentials{
		Account:   os.Getenv("SF_ACCOUNT"),
		User:      os.Getenv("SF_USER"),
		Password:  os.Getenv("SF_PASSWORD"),
		Role:      envOr("SF_ROLE", "ACCOUNTADMIN"),
		Warehouse: envOr("SF_WAREHOUSE", "GENAI_WH"),
		Database:  envOr("SF_DATABASE", "GENAI_DB"),
		Schema:    envOr("SF_SCHEMA", "PUBLIC"),
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// Params returns the non-empty connection parameters by name.
func (c *Credentials) Params() map[string]string {
	all := map[string]string{
		"account":   c.Account,
		"user":      c.User,
		"password":  c.Password,
		"role":      c.Role,
		"warehouse": c.Warehouse,
		"database":  c.Database,
		"schema":    c.Schema,
	}
	params := make(map[string]string, len(all))
	for k, v := range all {
		if v != "" {
			params[k] = v
		}
	}
	return params
}

// Validate requires at least three parameters and, for a real connection,
// account, user and password.
func (c *Credentials) Validate() error {
	if len(c.Params()) < 3 {
		return ErrMissingCredentials
	}
	var missing []string
	if c.Account == "" {
		missing = append(missing, "SF_ACCOUNT")
	}
	if c.User == "" {
		missing = append(missing, "SF_USER")
	}
	if c.Password == "" {
		missing = append(missing, "SF_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v not set", ErrMissingCredentials, missing)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Credentials) Redacted() Credentials {
	r := *c
	if r.Password != "" {
		r.Password = "********"
	}
	return r
}
