// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cortex

import (
	"context"
	"strings"

	"github.com/jeranaias/cortexpipe/internal/util"
)

const (
	maxSuggestions     = 5
	suggestionChunks   = 3
	sentencesPerChunk  = 2
	minSuggestionChars = 20
	maxSuggestionChars = 100
)

// Suggestions proposes questions drawn from the document chunks most
// similar to partial. Input under three characters or a failed search
// yields no suggestions.
func (o *Orchestrator) Suggestions(ctx context.Context, partial string) []string {
	if util.RuneLen(strings.TrimSpace(partial)) < 3 {
		return []string{}
	}

	results, err := o.Search(ctx, partial, suggestionChunks, 0)
	if err != nil {
		o.logger.Printf("CORTEX_SUGGEST_FAILED | error=%v", err)
		return []string{}
	}

	chunks := make([]string, len(results))
	for i, r := range results {
		chunks[i] = r.ContentChunk
	}
	return SuggestFromChunks(chunks)
}

// SuggestFromChunks turns the leading sentences of each chunk into
// questions. Sentences are split on '.', kept when strictly between 20 and
// 100 characters, and phrased as "What is ...?" unless already a question.
func SuggestFromChunks(chunks []string) []string {
	suggestions := []string{}
	seen := make(map[string]bool)

	for _, chunk := range chunks {
		sentences := strings.Split(chunk, ".")
		if len(sentences) > sentencesPerChunk {
			sentences = sentences[:sentencesPerChunk]
		}

		for _, s := range sentences {
			s = strings.TrimSpace(s)
			n := util.RuneLen(s)
			if n <= minSuggestionChars || n >= maxSuggestionChars {
				continue
			}

			suggestion := s
			if !strings.HasSuffix(s, "?") {
				suggestion = "What is " + strings.ToLower(s) + "?"
			}
			if !seen[suggestion] {
				seen[suggestion] = true
				suggestions = append(suggestions, suggestion)
			}
		}
	}

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}
