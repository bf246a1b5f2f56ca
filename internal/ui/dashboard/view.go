// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cortexpipe/internal/cortex"
	"github.com/jeranaias/cortexpipe/internal/ui/components"
	"github.com/jeranaias/cortexpipe/internal/ui/styles"
	"github.com/jeranaias/cortexpipe/internal/util"
)

// maxErrorColumns bounds error messages in the error analysis table.
const maxErrorColumns = 100

// View renders the dashboard.
func (m Model) View() string {
	parts := []string{m.renderHeader()}
	if m.tab == TabQuery {
		parts = append(parts, m.renderQueryControls())
	}
	parts = append(parts, m.viewport.View(), m.renderStatus())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// =============================================================================
// CHROME
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.Title.Render("Cortex GenAI Pipeline Dashboard")
	window := m.theme.Subtitle.Render(m.Window().Label)
	line := title + "  " + window
	if m.spinner.IsActive() {
		line += "  " + m.spinner.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		line,
		components.RenderTabs(m.theme, tabNames(), int(m.tab)),
	)
}

func (m Model) renderStatus() string {
	return components.StatusBar{
		Status:      m.status,
		Window:      strconv.Itoa(m.Window().Hours) + "h",
		LastRefresh: m.lastRefresh,
		Shortcuts:   m.keys.Shortcuts(m.tab, m.input.Focused()),
		Width:       m.width,
	}.Render(m.theme)
}

// =============================================================================
// BODY
// =============================================================================

func (m Model) renderBody() string {
	switch m.tab {
	case TabOverview:
		return m.renderOverview()
	case TabPerformance:
		return m.renderPerformance()
	case TabCosts:
		return m.renderCosts()
	case TabQuery:
		return m.renderQueryResult()
	case TabDocuments:
		return m.renderDocuments()
	}
	return ""
}

// reportPlaceholder is shown while reports are missing.
func (m Model) reportPlaceholder() (string, bool) {
	switch {
	case m.reportErr != nil:
		return styles.RenderError("Failed to load telemetry: " + m.reportErr.Error()), true
	case m.opts.Reporter == nil:
		return m.theme.Muted.Render("Telemetry reports unavailable"), true
	case m.perf == nil:
		return m.theme.Muted.Render("Loading telemetry..."), true
	}
	return "", false
}

func (m Model) renderOverview() string {
	if s, ok := m.reportPlaceholder(); ok {
		return s
	}
	sum := m.perf.Summary
	cards := []components.MetricCard{
		{Label: "Total Operations", Value: components.FormatNumber(int64(sum.TotalOperations)), Level: styles.LevelInfo},
		{Label: "Success Rate", Value: components.FormatPercent(sum.OverallSuccessRate), Level: SuccessLevel(sum.OverallSuccessRate)},
		{Label: "Avg Latency", Value: components.FormatLatency(sum.AverageLatencyMs), Level: LatencyLevel(sum.AverageLatencyMs)},
		{Label: "Total Cost", Value: components.FormatCost(sum.TotalCostUSD), Level: styles.LevelInfo},
	}
	if sum.TotalOperations == 0 {
		cards[1].Level, cards[2].Level = styles.LevelInfo, styles.LevelInfo
	}

	level, banner := Health(sum)
	sections := []string{
		components.RenderCards(m.theme, cards),
		m.theme.BannerFor(level).Render(level.Indicator() + " " + banner),
		m.renderErrorAnalysis(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderErrorAnalysis() string {
	title := m.theme.Section.Render("Error Analysis")
	if m.errs == nil || m.errs.TotalErrors == 0 {
		return title + "\n" + styles.RenderSuccess("No errors detected in the selected time period!")
	}

	rows := make([][]string, 0, len(m.errs.Details))
	for _, g := range m.errs.Details {
		rows = append(rows, []string{
			g.OperationType,
			g.ModelName,
			strconv.Itoa(g.ErrorCount),
			components.FormatPercent(m.errs.Share(g)),
			g.LastOccurrence.Local().Format("01-02 15:04"),
			g.ErrorMessage,
		})
	}
	summary := m.theme.Label.Render(fmt.Sprintf("%s errors across %d error types",
		components.FormatNumber(int64(m.errs.TotalErrors)), m.errs.UniqueErrorTypes))
	table := components.Table{
		Headers: []string{"Operation", "Model", "Count", "Error Rate", "Last Seen", "Error"},
		Rows:    rows,
		MaxCell: maxErrorColumns,
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, summary, table.Render(m.theme, ""))
}

func (m Model) renderPerformance() string {
	if s, ok := m.reportPlaceholder(); ok {
		return s
	}
	if len(m.perf.Operations) == 0 {
		return styles.RenderInfo("No operations recorded in this time period")
	}

	success := components.NewBarChart("Success Rate by Operation", m.width)
	success.Max = 100
	latency := components.NewBarChart("Average Latency by Operation", m.width)
	rows := make([][]string, 0, len(m.perf.Operations))
	for _, op := range m.perf.Operations {
		label := op.OperationType + " (" + op.ModelName + ")"
		success.Add(components.Bar{
			Label:   label,
			Value:   op.SuccessRate,
			Display: components.FormatPercent(op.SuccessRate),
			Level:   SuccessLevel(op.SuccessRate),
		})
		latency.Add(components.Bar{
			Label:   label,
			Value:   op.AvgLatencyMs,
			Display: components.FormatLatency(op.AvgLatencyMs),
			Level:   LatencyLevel(op.AvgLatencyMs),
		})
		rows = append(rows, []string{
			op.OperationType,
			op.ModelName,
			components.FormatNumber(int64(op.TotalOperations)),
			components.FormatPercent(op.SuccessRate),
			components.FormatLatency(op.AvgLatencyMs),
			components.FormatLatency(op.P95LatencyMs),
			strconv.FormatFloat(op.AvgInputTokens, 'f', 0, 64),
			strconv.FormatFloat(op.AvgOutputTokens, 'f', 0, 64),
			components.FormatCost(op.TotalCostUSD),
		})
	}
	table := components.Table{
		Headers: []string{"Operation", "Model", "Ops", "Success", "Avg", "P95", "In", "Out", "Cost"},
		Rows:    rows,
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		success.Render(m.theme),
		latency.Render(m.theme),
		m.theme.Section.Render("Detailed Metrics"),
		table.Render(m.theme, ""),
	)
}

func (m Model) renderCosts() string {
	if s, ok := m.reportPlaceholder(); ok {
		return s
	}
	if m.costs == nil || len(m.costs.Items) == 0 {
		return styles.RenderInfo("No cost data recorded in this time period")
	}

	total := m.theme.Label.Render("Total cost: ") + m.theme.CardValue.Render(components.FormatCost(m.costs.TotalCostUSD))
	dist := components.NewBarChart("Cost Distribution", m.width)
	dist.Max = 100
	eff := components.NewBarChart("Operations per Dollar", m.width)
	for _, item := range m.costs.Items {
		label := item.OperationType + " (" + item.ModelName + ")"
		dist.Add(components.Bar{
			Label:   label,
			Value:   item.CostPercentage,
			Display: components.FormatCost(item.TotalCostUSD) + " " + components.FormatPercent(item.CostPercentage),
			Level:   styles.LevelInfo,
		})
		eff.Add(components.Bar{
			Label:   label,
			Value:   item.OperationsPerDollar(),
			Display: components.FormatRate(item.OperationsPerDollar()),
			Level:   styles.LevelGood,
		})
	}
	return lipgloss.JoinVertical(lipgloss.Left, total, dist.Render(m.theme), eff.Render(m.theme))
}

// =============================================================================
// QUERY TAB
// =============================================================================

func (m Model) renderQueryControls() string {
	search := "off"
	if m.useSearch {
		search = "on"
	}
	settings := strings.Join([]string{
		m.theme.Label.Render("search: ") + m.theme.Value.Render(search),
		m.theme.Label.Render("top-k: ") + m.theme.Value.Render(strconv.Itoa(m.topK)),
		m.theme.Label.Render("temperature: ") + m.theme.Value.Render(strconv.FormatFloat(m.temperature, 'f', 1, 64)),
	}, "   ")

	lines := []string{m.input.View(), settings}
	switch {
	case m.notice != "":
		lines = append(lines, styles.RenderWarning(m.notice))
	case len(m.suggestions) > 0:
		lines = append(lines, m.theme.Muted.Render("Suggestions: ")+
			m.theme.Value.Render(strings.Join(m.suggestions, " | ")))
	default:
		lines = append(lines, m.theme.Muted.Render("Examples: "+strings.Join(ExampleQueries, " | ")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderQueryResult() string {
	switch {
	case m.querying:
		return m.theme.Muted.Render("Processing your query...")
	case m.queryErr != nil:
		return styles.RenderError("Query failed: " + m.queryErr.Error())
	case m.response == nil:
		return m.theme.Muted.Render("Press / to type a question, e for an example, enter to run.")
	}
	return m.answerView
}

// renderAnswer builds the answer view: the markdown answer, its sources
// and the run metrics.
func (m *Model) renderAnswer(r *cortex.Response) string {
	var md strings.Builder
	md.WriteString("## Answer\n\n")
	md.WriteString(r.Answer)
	md.WriteString("\n")
	if len(r.SearchResults) > 0 {
		md.WriteString("\n### Sources\n\n")
		for _, s := range r.SearchResults {
			fmt.Fprintf(&md, "- `%s` chunk %d (similarity %.3f): %s\n",
				strings.ReplaceAll(s.Filename, "`", "'"), s.ChunkIndex, s.SimilarityScore,
				util.TruncateRunes(strings.Join(strings.Fields(s.ContentChunk), " "), 160))
		}
	}

	metrics := []components.MetricCard{
		{Label: "Latency", Value: components.FormatLatency(r.Metrics.TotalLatencyMs), Level: LatencyLevel(r.Metrics.TotalLatencyMs)},
		{Label: "Total Tokens", Value: components.FormatNumber(int64(r.Metrics.TotalTokens)), Level: styles.LevelInfo},
		{Label: "Context Chunks", Value: strconv.Itoa(r.Metrics.ContextChunksUsed), Level: styles.LevelInfo},
		{Label: "Est. Cost", Value: components.FormatCost(r.CostEstimate.TotalUSD), Level: styles.LevelInfo},
	}
	models := m.theme.Muted.Render("llm: " + r.ModelInfo.LLMModel)
	if r.ModelInfo.EmbeddingModel != "" {
		models += m.theme.Muted.Render("   embedding: " + r.ModelInfo.EmbeddingModel)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderMarkdown(md.String()),
		components.RenderCards(m.theme, metrics),
		models,
	)
}

// =============================================================================
// DOCUMENTS TAB
// =============================================================================

func (m Model) renderDocuments() string {
	switch {
	case m.opts.Documents == nil:
		return m.theme.Muted.Render("Document statistics unavailable")
	case m.docsErr != nil:
		return styles.RenderError("Failed to load document statistics: " + m.docsErr.Error())
	case m.docs == nil:
		return m.theme.Muted.Render("Loading documents...")
	}

	kv := func(label, value string) string {
		return m.theme.Label.Render(util.PadRight(label, 26)) + m.theme.Value.Render(value)
	}
	lines := []string{
		m.theme.Section.Render("Documents"),
		kv("Total Documents", components.FormatNumber(int64(m.docs.TotalDocuments))),
		kv("Unique File Types", strconv.Itoa(m.docs.UniqueFileTypes)),
		kv("Average Content Length", strconv.FormatFloat(m.docs.AvgContentLength, 'f', 0, 64)+" chars"),
		kv("Total Size", strconv.FormatFloat(m.docs.TotalSizeMB, 'f', 2, 64)+" MB"),
	}
	if !m.docs.FirstUpload.IsZero() {
		lines = append(lines,
			kv("First Upload", m.docs.FirstUpload.Local().Format("2006-01-02 15:04")),
			kv("Latest Upload", m.docs.LatestUpload.Local().Format("2006-01-02 15:04")),
		)
	}
	if e := m.embeds; e != nil {
		lines = append(lines,
			m.theme.Section.Render("Embeddings"),
			kv("Total Embeddings", components.FormatNumber(int64(e.TotalEmbeddings))),
			kv("Unique Documents", strconv.Itoa(e.UniqueDocuments)),
			kv("Average Tokens per Chunk", strconv.FormatFloat(e.AvgTokensPerChunk, 'f', 1, 64)),
			kv("Average Chunk Size", strconv.FormatFloat(e.AvgChunkSize, 'f', 0, 64)+" chars"),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
