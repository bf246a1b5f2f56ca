// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cortexpipe/internal/ui/styles"
	"github.com/jeranaias/cortexpipe/internal/util"
)

// =============================================================================
// CODE BLOCK RENDERER
// =============================================================================

// CodeBlock is a highlighted statement with line numbers.
type CodeBlock struct {
	Language string
	Code     string
	MaxWidth int
}

// NewSQLBlock creates a code block for a SQL statement.
func NewSQLBlock(code string) CodeBlock {
	return CodeBlock{Language: "sql", Code: code, MaxWidth: 100}
}

// Render renders the code block with styling.
func (c CodeBlock) Render() string {
	code := strings.TrimSpace(c.Code)
	lines := strings.Split(Highlight(code, c.Language), "\n")

	lineNum := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Width(4).
		Align(lipgloss.Right).
		MarginRight(1)

	rendered := make([]string, len(lines))
	for i, line := range lines {
		rendered[i] = lineNum.Render(strconv.Itoa(i+1)) + line
	}

	badge := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Background(styles.OverlayDim).
		Padding(0, 1).
		Bold(true).
		Render(c.Language)

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Overlay).
		Padding(0, 1).
		MaxWidth(max(c.MaxWidth, 20)).
		Render(badge + "\n" + strings.Join(rendered, "\n"))
}

// Highlight applies chroma terminal highlighting. The code is returned
// unchanged when no lexer or formatter applies.
func Highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// truncateCell keeps a table cell on one line.
func truncateCell(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return util.TruncateWidth(s, width)
}
