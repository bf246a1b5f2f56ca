// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package warehouse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect identifies the SQL flavor a Session speaks.
type Dialect string

const (
	// Snowflake is a real Snowflake account with Cortex functions.
	Snowflake Dialect = "snowflake"
	// Local is the embedded SQLite demo warehouse.
	Local Dialect = "local"
)

// ParseDialect maps a driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snowflake":
		return Snowflake, nil
	case "local", "sqlite":
		return Local, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
}

// =============================================================================
// LITERALS
// =============================================================================

// Quote renders s as a single-quoted SQL string literal, doubling any
// embedded single quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Float renders f without exponent notation.
func Float(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// =============================================================================
// CORTEX FUNCTIONS
// =============================================================================

// EmbedExpr returns the expression embedding textExpr with model.
func (d Dialect) EmbedExpr(model, textExpr string) string {
	if d == Local {
		return fmt.Sprintf("cortex_embed_text_768(%s, %s)", Quote(model), textExpr)
	}
	return fmt.Sprintf("SNOWFLAKE.CORTEX.EMBED_TEXT_768(%s, %s)", Quote(model), textExpr)
}

// VectorLiteral turns a JSON array literal into a vector value.
func (d Dialect) VectorLiteral(jsonArray string) string {
	if d == Local {
		return Quote(jsonArray)
	}
	return fmt.Sprintf("PARSE_JSON(%s)::ARRAY::VECTOR(FLOAT, 768)", Quote(jsonArray))
}

// CosineExpr returns the cosine similarity of two vector expressions.
func (d Dialect) CosineExpr(a, b string) string {
	if d == Local {
		return fmt.Sprintf("vector_cosine_similarity(%s, %s)", a, b)
	}
	return fmt.Sprintf("VECTOR_COSINE_SIMILARITY(%s, %s)", a, b)
}

// CompleteExpr returns a COMPLETE call with generation options.
func (d Dialect) CompleteExpr(model, promptExpr string, maxTokens int, temperature, topP float64) string {
	if d == Local {
		return fmt.Sprintf(
			"cortex_complete(%s, %s, json_object('max_tokens', %d, 'temperature', %s, 'top_p', %s))",
			Quote(model), promptExpr, maxTokens, Float(temperature), Float(topP))
	}
	return fmt.Sprintf(`SNOWFLAKE.CORTEX.COMPLETE(
    %s,
    %s,
    OBJECT_CONSTRUCT(
        'max_tokens', %d,
        'temperature', %s,
        'top_p', %s
    )
)`, Quote(model), promptExpr, maxTokens, Float(temperature), Float(topP))
}

// =============================================================================
// TIME AND JSON
// =============================================================================

// SinceHours filters col to the last n hours.
func (d Dialect) SinceHours(col string, n int) string {
	if d == Local {
		return fmt.Sprintf("%s >= datetime('now', '-%d hours')", col, n)
	}
	return fmt.Sprintf("%s >= DATEADD(HOUR, -%d, CURRENT_TIMESTAMP())", col, n)
}

// OlderThanDays filters col to rows older than n days.
func (d Dialect) OlderThanDays(col string, n int) string {
	if d == Local {
		return fmt.Sprintf("%s < datetime('now', '-%d days')", col, n)
	}
	return fmt.Sprintf("%s < DATEADD(DAY, -%d, CURRENT_TIMESTAMP())", col, n)
}

// Now is the current timestamp expression.
func (d Dialect) Now() string {
	if d == Local {
		return "CURRENT_TIMESTAMP"
	}
	return "CURRENT_TIMESTAMP()"
}

// JSONParam wraps a bound JSON string parameter so it is stored as a
// semi-structured value.
func (d Dialect) JSONParam() string {
	if d == Local {
		return "?"
	}
	return "PARSE_JSON(?)"
}

// TimeValue converts t into a bind value the dialect compares correctly
// against its own timestamp defaults.
func (d Dialect) TimeValue(t time.Time) any {
	if d == Local {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// SupportsPercentile reports whether PERCENTILE_CONT is available.
func (d Dialect) SupportsPercentile() bool {
	return d == Snowflake
}

// VersionQuery returns a query yielding the server version.
func (d Dialect) VersionQuery() string {
	if d == Local {
		return "SELECT sqlite_version()"
	}
	return "SELECT CURRENT_VERSION()"
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

// AsTime converts a scanned timestamp value into a time.Time. Drivers
// return timestamps as time.Time, text or bytes depending on the column.
func AsTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	default:
		return time.Time{}
	}
}

func parseTime(s string) time.Time {
	for _, layout := range []string{
		sqliteTimeLayout,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05Z07:00",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
