// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cortex

import (
	"fmt"
	"strings"
)

// SystemPrompt opens every completion prompt.
const SystemPrompt = "You are a helpful AI assistant that answers questions based on provided context. \n" +
	"Use the context information to provide accurate, relevant responses. If the context doesn't contain \n" +
	"enough information to fully answer the question, say so clearly."

// BuildPrompt wraps a user question with the system prompt and, when
// chunks are given, a numbered context block.
func BuildPrompt(question string, chunks []string) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\n")

	if len(chunks) == 0 {
		fmt.Fprintf(&b, "User Question: %s\n\nPlease provide a helpful answer:", question)
		return b.String()
	}

	blocks := make([]string, len(chunks))
	for i, chunk := range chunks {
		blocks[i] = fmt.Sprintf("Context %d:\n%s", i+1, chunk)
	}

	b.WriteString("Context Information:\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	fmt.Fprintf(&b, "\n\nUser Question: %s\n\nPlease provide a comprehensive answer based on the context above:", question)
	return b.String()
}
