// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// PRICING: Static Cortex price table and token estimation
package pricing

import (
	"sort"

	"github.com/jeranaias/cortexpipe/internal/util"
)

// DefaultPricePer1K is charged for models missing from the table.
const DefaultPricePer1K = 0.001

// tokensPerWord approximates subword tokenization for English prose.
const tokensPerWord = 1.3

// ============================================================================
// MODEL TABLE
// ============================================================================

// Kind classifies a Cortex model.
type Kind int

const (
	KindUnknown Kind = iota
	KindEmbedding
	KindLLM
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindEmbedding:
		return "embedding"
	case KindLLM:
		return "llm"
	default:
		return "unknown"
	}
}

// ModelPricing is the USD price per 1K tokens of one model.
type ModelPricing struct {
	Model string
	Kind  Kind
	PerK  float64
}

// Approximate USD per 1K tokens. Input and output are charged alike.
var table = map[string]ModelPricing{
	"text-embedding-ada-002": {"text-embedding-ada-002", KindEmbedding, 0.0001},
	"text-embedding-3-small": {"text-embedding-3-small", KindEmbedding, 0.00002},
	"text-embedding-3-large": {"text-embedding-3-large", KindEmbedding, 0.00013},
	"mistral-large":          {"mistral-large", KindLLM, 0.008},
	"mistral-7b":             {"mistral-7b", KindLLM, 0.0002},
	"llama2-70b-chat":        {"llama2-70b-chat", KindLLM, 0.0007},
	"gemma-7b":               {"gemma-7b", KindLLM, 0.0002},
	"mixtral-8x7b":           {"mixtral-8x7b", KindLLM, 0.0007},
	"reka-flash":             {"reka-flash", KindLLM, 0.0005},
}

// PriceFor returns the price per 1K tokens for model, falling back to
// DefaultPricePer1K for unknown models.
func PriceFor(model string) float64 {
	if p, ok := table[model]; ok {
		return p.PerK
	}
	return DefaultPricePer1K
}

// IsSupported reports whether model is a known Cortex model.
func IsSupported(model string) bool {
	_, ok := table[model]
	return ok
}

// Models returns the known models of kind, sorted by name.
func Models(kind Kind) []string {
	var out []string
	for name, p := range table {
		if p.Kind == kind {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// COST AND TOKENS
// ============================================================================

// Cost returns the USD cost of tokens for model:
// tokens / 1000 * PriceFor(model).
func Cost(tokens int, model string) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) / 1000 * PriceFor(model)
}

// OperationCost is the cost of one tracked operation. It is zero when no
// model is named or no tokens were used.
func OperationCost(inputTokens, outputTokens int, model string) float64 {
	total := inputTokens + outputTokens
	if model == "" || total <= 0 {
		return 0
	}
	return Cost(total, model)
}

// EstimateTokens approximates the token count of text as words * 1.3,
// truncated toward zero.
func EstimateTokens(text string) int {
	return int(float64(util.WordCount(text)) * tokensPerWord)
}
