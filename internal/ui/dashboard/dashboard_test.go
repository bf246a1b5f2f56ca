// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/cortexpipe/internal/analytics"
	"github.com/jeranaias/cortexpipe/internal/cortex"
	"github.com/jeranaias/cortexpipe/internal/ingest"
	"github.com/jeranaias/cortexpipe/internal/ui/styles"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeReporter struct {
	mu    sync.Mutex
	hours []int
	perf  analytics.PerformanceReport
	errs  analytics.ErrorReport
	err   error
}

func (f *fakeReporter) Performance(_ context.Context, hours int) (*analytics.PerformanceReport, error) {
	f.mu.Lock()
	f.hours = append(f.hours, hours)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := f.perf
	p.TimeWindowHours = hours
	return &p, nil
}

func (f *fakeReporter) Errors(_ context.Context, hours int) (*analytics.ErrorReport, error) {
	e := f.errs
	e.TimeWindowHours = hours
	return &e, nil
}

func (f *fakeReporter) Costs(_ context.Context, hours int) (*analytics.CostReport, error) {
	return &analytics.CostReport{
		TimeWindowHours: hours,
		TotalCostUSD:    0.002,
		Items: []analytics.CostItem{
			{OperationType: "llm_completion", ModelName: "mistral-large", TotalCostUSD: 0.002,
				SuccessfulOperations: 4, CostPercentage: 100},
		},
	}, nil
}

type fakeQuerier struct {
	mu    sync.Mutex
	query string
	opts  cortex.QueryOptions
}

func (f *fakeQuerier) Query(_ context.Context, q string, opts cortex.QueryOptions) (*cortex.Response, error) {
	f.mu.Lock()
	f.query, f.opts = q, opts
	f.mu.Unlock()
	return &cortex.Response{
		Query:  q,
		Answer: "Cortex runs models inside the warehouse.",
		SearchResults: []cortex.SearchResult{
			{Filename: "sample_snowflake_cortex.txt", ChunkIndex: 0, SimilarityScore: 0.91, ContentChunk: "Snowflake Cortex"},
		},
		ModelInfo: cortex.ModelInfo{LLMModel: "mistral-large", EmbeddingModel: "e5-base-v2"},
		Metrics:   cortex.Metrics{TotalLatencyMs: 1200, TotalTokens: 321, ContextChunksUsed: 1},
	}, nil
}

func (f *fakeQuerier) Suggestions(_ context.Context, partial string) []string {
	return []string{"What is " + partial + "?"}
}

type fakeDocuments struct{}

func (fakeDocuments) Stats(context.Context) (*ingest.DocumentStats, error) {
	return &ingest.DocumentStats{TotalDocuments: 3, UniqueFileTypes: 1, AvgContentLength: 1500, TotalSizeMB: 0.01}, nil
}

func (fakeDocuments) EmbeddingStats(context.Context) (*ingest.EmbeddingStats, error) {
	return &ingest.EmbeddingStats{TotalEmbeddings: 9, UniqueDocuments: 3, AvgTokensPerChunk: 180.5, AvgChunkSize: 900}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func healthyReporter() *fakeReporter {
	return &fakeReporter{perf: analytics.PerformanceReport{
		Operations: []analytics.OperationMetrics{
			{OperationType: "llm_completion", ModelName: "mistral-large", TotalOperations: 4,
				SuccessfulOperations: 4, SuccessRate: 100, AvgLatencyMs: 900},
		},
		Summary: analytics.Summary{TotalOperations: 4, OverallSuccessRate: 100, AverageLatencyMs: 900, TotalCostUSD: 0.002},
	}}
}

func newTestModel(opts Options) Model {
	opts.Theme = styles.NewTheme()
	m := New(context.Background(), opts)
	return update(m, tea.WindowSizeMsg{Width: 160, Height: 50})
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func updateCmd(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// drain runs cmd and any batched commands, returning their messages.
// Spinner ticks are dropped.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, drain(c)...)
		}
		return out
	case spinner.TickMsg, nil:
		return nil
	default:
		return []tea.Msg{msg}
	}
}

func feed(m Model, cmd tea.Cmd) Model {
	for _, msg := range drain(cmd) {
		m = update(m, msg)
	}
	return m
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// =============================================================================
// GRADING TESTS
// =============================================================================

func TestLevels(t *testing.T) {
	tests := []struct {
		name string
		got  styles.Level
		want styles.Level
	}{
		{"success 95", SuccessLevel(95), styles.LevelGood},
		{"success 94.9", SuccessLevel(94.9), styles.LevelWarning},
		{"success 85", SuccessLevel(85), styles.LevelWarning},
		{"success 84", SuccessLevel(84), styles.LevelBad},
		{"latency 2000", LatencyLevel(2000), styles.LevelGood},
		{"latency 2001", LatencyLevel(2001), styles.LevelWarning},
		{"latency 5000", LatencyLevel(5000), styles.LevelWarning},
		{"latency 5001", LatencyLevel(5001), styles.LevelBad},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got, tt.name)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		summary analytics.Summary
		level   styles.Level
		banner  string
	}{
		{"empty", analytics.Summary{}, styles.LevelInfo, "No operations recorded in this time period"},
		{"excellent", analytics.Summary{TotalOperations: 10, OverallSuccessRate: 97, AverageLatencyMs: 2000},
			styles.LevelGood, "System performing excellently!"},
		{"acceptable", analytics.Summary{TotalOperations: 10, OverallSuccessRate: 96, AverageLatencyMs: 1000},
			styles.LevelWarning, "System performance is acceptable"},
		{"slow", analytics.Summary{TotalOperations: 10, OverallSuccessRate: 99, AverageLatencyMs: 5001},
			styles.LevelBad, "System performance needs attention"},
		{"failing", analytics.Summary{TotalOperations: 10, OverallSuccessRate: 89.9, AverageLatencyMs: 100},
			styles.LevelBad, "System performance needs attention"},
	}
	for _, tt := range tests {
		level, banner := Health(tt.summary)
		assert.Equal(t, tt.level, level, tt.name)
		assert.Equal(t, tt.banner, banner, tt.name)
	}
}

func TestWindowsFor(t *testing.T) {
	windows, idx := windowsFor(24)
	assert.Len(t, windows, 4)
	assert.Equal(t, 24, windows[idx].Hours)

	windows, idx = windowsFor(0)
	assert.Equal(t, 24, windows[idx].Hours)

	windows, idx = windowsFor(3)
	require.Len(t, windows, 5)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "Last 3 Hours", windows[idx].Label)

	windows, idx = windowsFor(720)
	assert.Equal(t, 4, idx)
	assert.Equal(t, 720, windows[idx].Hours)
}

func TestQuerySettingBounds(t *testing.T) {
	assert.Equal(t, MinTopK, clampTopK(0))
	assert.Equal(t, MaxTopK, clampTopK(42))

	temp := DefaultTemperature
	for range 10 {
		temp = stepTemperature(temp, 1)
	}
	assert.Equal(t, 1.0, temp)
	for range 7 {
		temp = stepTemperature(temp, -1)
	}
	assert.Equal(t, 0.3, temp)
	assert.Equal(t, 0.0, stepTemperature(0.05, -1))
}

// =============================================================================
// UPDATE TESTS
// =============================================================================

func TestInitLoadsReportsAndDocuments(t *testing.T) {
	rep := healthyReporter()
	m := newTestModel(Options{Reporter: rep, Documents: fakeDocuments{}})
	m = feed(m, m.Init())

	require.NotNil(t, m.perf)
	require.NotNil(t, m.docs)
	assert.Equal(t, []int{24}, rep.hours)
	assert.False(t, m.spinner.IsActive())
	assert.Contains(t, m.renderOverview(), "System performing excellently!")
	assert.Contains(t, m.renderOverview(), "No errors detected in the selected time period!")
}

func TestStaleReportsDropped(t *testing.T) {
	m := newTestModel(Options{Reporter: healthyReporter()})
	m = update(m, ReportsMsg{Hours: 1, Performance: &analytics.PerformanceReport{}})
	assert.Nil(t, m.perf)
}

func TestReportErrorShown(t *testing.T) {
	rep := &fakeReporter{err: errors.New("warehouse down")}
	m := newTestModel(Options{Reporter: rep})
	m = feed(m, m.Init())

	assert.Contains(t, m.renderOverview(), "warehouse down")
	assert.Contains(t, m.renderPerformance(), "warehouse down")
}

func TestWindowKeyReloads(t *testing.T) {
	rep := healthyReporter()
	m := newTestModel(Options{Reporter: rep})
	m = feed(m, m.Init())

	m, cmd := updateCmd(m, keyRunes("w"))
	assert.Equal(t, 168, m.Window().Hours)
	assert.Nil(t, m.perf)
	m = feed(m, cmd)

	assert.Equal(t, []int{24, 168}, rep.hours)
	require.NotNil(t, m.perf)
	assert.Equal(t, 168, m.perf.TimeWindowHours)

	m = update(m, keyRunes("w"))
	assert.Equal(t, 1, m.Window().Hours)
}

func TestTabNavigation(t *testing.T) {
	m := newTestModel(Options{})
	m = update(m, keyRunes("2"))
	assert.Equal(t, TabPerformance, m.Tab())

	m = update(m, keyRunes("5"))
	assert.Equal(t, TabDocuments, m.Tab())
	m = update(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, TabOverview, m.Tab())
	m = update(m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, TabDocuments, m.Tab())
}

func TestQueryTabSettingsAndSubmit(t *testing.T) {
	q := &fakeQuerier{}
	m := newTestModel(Options{Querier: q})
	m = update(m, keyRunes("4"))
	require.Equal(t, TabQuery, m.Tab())

	m = update(m, keyRunes("e"))
	assert.Equal(t, ExampleQueries[0], m.input.Value())
	for range 8 {
		m = update(m, keyRunes("+"))
	}
	for range 5 {
		m = update(m, keyRunes("]"))
	}
	m = update(m, keyRunes("s"))
	assert.Equal(t, MaxTopK, m.topK)
	assert.Equal(t, 1.0, m.temperature)
	assert.False(t, m.useSearch)

	m, cmd := updateCmd(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.querying)
	m = feed(m, cmd)

	assert.False(t, m.querying)
	assert.Equal(t, ExampleQueries[0], q.query)
	assert.Equal(t, MaxTopK, q.opts.TopK)
	assert.False(t, q.opts.UseSearch)
	require.NotNil(t, q.opts.Temperature)
	assert.Equal(t, 1.0, *q.opts.Temperature)

	require.NotNil(t, m.response)
	assert.Contains(t, m.answerView, "warehouse")
	assert.Contains(t, m.answerView, "sample_snowflake_cortex.txt")
}

func TestRenderAnswer_SourceNamesSurviveEveryStyle(t *testing.T) {
	for _, tc := range []struct {
		name    string
		profile termenv.Profile
		dark    bool
	}{
		{"ascii", termenv.Ascii, true},
		{"dark", termenv.ANSI256, true},
		{"light", termenv.ANSI256, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModel(Options{})
			m.theme.ColorProfile = tc.profile
			m.theme.IsDark = tc.dark
			m.markdown = nil

			out := m.renderAnswer(&cortex.Response{
				Answer: "Cortex runs inside the warehouse.",
				SearchResults: []cortex.SearchResult{
					{Filename: "sample_snowflake_cortex.txt", ContentChunk: "Cortex chunk"},
				},
			})
			assert.Contains(t, out, "sample_snowflake_cortex.txt")
			assert.NotContains(t, out, "****")
		})
	}
}

func TestEmptyQueryWarns(t *testing.T) {
	m := newTestModel(Options{Querier: &fakeQuerier{}})
	m = update(m, keyRunes("4"))
	m, cmd := updateCmd(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, drain(cmd))
	assert.Equal(t, "Please enter a query", m.notice)
	assert.Contains(t, m.renderQueryControls(), "Please enter a query")
}

func TestTypingAndSuggestions(t *testing.T) {
	m := newTestModel(Options{Querier: &fakeQuerier{}})
	m = update(m, keyRunes("4"))
	m = update(m, keyRunes("/"))
	require.True(t, m.input.Focused())

	// Tab keys type into the input instead of switching tabs.
	for _, r := range []string{"w", "1", "q"} {
		m = update(m, keyRunes(r))
	}
	assert.Equal(t, TabQuery, m.Tab())
	assert.Equal(t, "w1q", m.input.Value())

	m = update(m, SuggestionsMsg{Partial: "stale", Items: []string{"ignored"}})
	assert.Empty(t, m.suggestions)

	m = feed(m, m.fetchSuggestions("w1q"))
	require.Equal(t, []string{"What is w1q?"}, m.suggestions)

	m = update(m, tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Equal(t, "What is w1q?", m.input.Value())

	m = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.input.Focused())
}

func TestErrorAnalysisTruncatesMessages(t *testing.T) {
	rep := healthyReporter()
	long := strings.Repeat("timeout ", 30)
	rep.errs = analytics.ErrorReport{
		TotalErrors:      4,
		UniqueErrorTypes: 1,
		Details: []analytics.ErrorGroup{
			{OperationType: "llm_completion", ModelName: "mistral-large", ErrorMessage: long,
				ErrorCount: 4, LastOccurrence: time.Now()},
		},
	}
	m := newTestModel(Options{Reporter: rep})
	m = feed(m, m.Init())

	out := m.renderErrorAnalysis()
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.TrimSpace(long))
}

func TestCostsAndDocumentsRender(t *testing.T) {
	m := newTestModel(Options{Reporter: healthyReporter(), Documents: fakeDocuments{}})
	m = feed(m, m.Init())

	costs := m.renderCosts()
	assert.Contains(t, costs, "$0.0020")
	assert.Contains(t, costs, "2000.0")

	docs := m.renderDocuments()
	assert.Contains(t, docs, "Total Documents")
	assert.Contains(t, docs, "180.5")
	assert.Contains(t, docs, "0.01 MB")
}
