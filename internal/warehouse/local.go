// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package warehouse

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"modernc.org/sqlite"
)

// EmbeddingDimension is the width of EMBED_TEXT_768 vectors.
const EmbeddingDimension = 768

// =============================================================================
// LOCAL CORTEX STAND-INS
// =============================================================================

// The local warehouse registers deterministic SQL functions with the same
// call shape as the Cortex functions, so the pipeline runs end to end
// without a Snowflake account. They are not models.

var (
	registerOnce sync.Once
	registerErr  error
)

func registerLocalFunctions() error {
	registerOnce.Do(func() {
		fns := []struct {
			name  string
			nArgs int32
			fn    func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error)
		}{
			{"cortex_embed_text_768", 2, embedFunc},
			{"vector_cosine_similarity", 2, cosineFunc},
			{"cortex_complete", 3, completeFunc},
		}
		for _, f := range fns {
			if err := sqlite.RegisterDeterministicScalarFunction(f.name, f.nArgs, f.fn); err != nil {
				registerErr = fmt.Errorf("%s/%d: %w", f.name, f.nArgs, err)
				return
			}
		}
	})
	return registerErr
}

func embedFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	text, ok := textArg(args[1])
	if !ok {
		return nil, nil
	}
	vec := HashEmbedding(text)
	out, err := json.Marshal(vec)
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

func cosineFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, err := vectorArg(args[0])
	if err != nil {
		return nil, err
	}
	b, err := vectorArg(args[1])
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	return CosineSimilarity(a, b), nil
}

func completeFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	prompt, ok := textArg(args[1])
	if !ok {
		return nil, nil
	}
	maxTokens := 0
	if len(args) > 2 {
		if opts, ok := textArg(args[2]); ok {
			var o struct {
				MaxTokens int `json:"max_tokens"`
			}
			if err := json.Unmarshal([]byte(opts), &o); err == nil {
				maxTokens = o.MaxTokens
			}
		}
	}
	return LocalCompletion(prompt, maxTokens), nil
}

func textArg(v driver.Value) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}

func vectorArg(v driver.Value) ([]float64, error) {
	s, ok := textArg(v)
	if !ok {
		return nil, nil
	}
	var vec []float64
	if err := json.Unmarshal([]byte(s), &vec); err != nil {
		return nil, fmt.Errorf("invalid vector literal: %w", err)
	}
	return vec, nil
}

// =============================================================================
// EMBEDDING MATH
// =============================================================================

// HashEmbedding maps text to an L2-normalized bag-of-words vector using
// feature hashing. Equal word multisets give equal vectors.
func HashEmbedding(text string) []float64 {
	vec := make([]float64, EmbeddingDimension)
	for _, word := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(word))
		sum := h.Sum32()
		idx := int(sum % EmbeddingDimension)
		if sum&(1<<31) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = math.Round(vec[i]/norm*1e6) / 1e6
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is a zero vector or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// =============================================================================
// COMPLETION
// =============================================================================

// LocalCompletion builds an extractive answer from the "Context N:" blocks
// of a prompt. Without context it restates the question. maxTokens caps the
// answer in words; 0 means no cap.
func LocalCompletion(prompt string, maxTokens int) string {
	question := sectionAfter(prompt, "User Question:")
	contexts := contextBlocks(prompt)

	var b strings.Builder
	if len(contexts) == 0 {
		if question == "" {
			question = strings.TrimSpace(prompt)
		}
		fmt.Fprintf(&b, "No document context was available for %q. Load and embed documents to get grounded answers.", question)
	} else {
		b.WriteString("Based on the provided context: ")
		for i, c := range contexts {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(leadSentences(c, 2))
		}
	}

	answer := b.String()
	if maxTokens > 0 {
		words := strings.Fields(answer)
		if len(words) > maxTokens {
			answer = strings.Join(words[:maxTokens], " ")
		}
	}
	return answer
}

func sectionAfter(prompt, marker string) string {
	i := strings.Index(prompt, marker)
	if i < 0 {
		return ""
	}
	rest := prompt[i+len(marker):]
	if j := strings.Index(rest, "\n"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

func contextBlocks(prompt string) []string {
	start := strings.Index(prompt, "Context Information:")
	end := strings.Index(prompt, "User Question:")
	if start < 0 || end < start {
		return nil
	}
	body := prompt[start+len("Context Information:") : end]

	var blocks []string
	for _, part := range strings.Split(body, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if nl := strings.Index(part, "\n"); nl >= 0 && strings.HasPrefix(part, "Context ") {
			part = strings.TrimSpace(part[nl+1:])
		}
		if part != "" {
			blocks = append(blocks, part)
		}
	}
	return blocks
}

func leadSentences(text string, n int) string {
	var out []string
	for _, s := range strings.Split(text, ".") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s+".")
		if len(out) == n {
			break
		}
	}
	return strings.Join(out, " ")
}
