// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/cortexpipe/internal/analytics"
	"github.com/jeranaias/cortexpipe/internal/cortex"
	"github.com/jeranaias/cortexpipe/internal/ingest"
	"github.com/jeranaias/cortexpipe/internal/ui/components"
	"github.com/jeranaias/cortexpipe/internal/ui/styles"
)

const (
	loadTimeout     = 60 * time.Second
	suggestDebounce = 300 * time.Millisecond
)

// ErrNoQuerier is shown when the query tab has no pipeline behind it.
var ErrNoQuerier = errors.New("query pipeline not configured")

// =============================================================================
// DATA SOURCES
// =============================================================================

// Reporter produces telemetry reports.
type Reporter interface {
	Performance(ctx context.Context, hours int) (*analytics.PerformanceReport, error)
	Errors(ctx context.Context, hours int) (*analytics.ErrorReport, error)
	Costs(ctx context.Context, hours int) (*analytics.CostReport, error)
}

// Querier runs the Cortex pipeline.
type Querier interface {
	Query(ctx context.Context, query string, opts cortex.QueryOptions) (*cortex.Response, error)
	Suggestions(ctx context.Context, partial string) []string
}

// Documents reports on loaded documents.
type Documents interface {
	Stats(ctx context.Context) (*ingest.DocumentStats, error)
	EmbeddingStats(ctx context.Context) (*ingest.EmbeddingStats, error)
}

// Options configures a dashboard. Querier and Documents may be nil, which
// disables their tabs.
type Options struct {
	Hours     int
	Reporter  Reporter
	Querier   Querier
	Documents Documents
	Theme     *styles.Theme
	Logger    *log.Logger

	// Refresh reloads the reports periodically. 0 disables it.
	Refresh time.Duration
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the dashboard Bubble Tea model.
type Model struct {
	ctx     context.Context
	opts    Options
	theme   *styles.Theme
	keys    KeyMap
	logger  *log.Logger
	width   int
	height  int
	tab     Tab
	windows []Window
	window  int

	viewport viewport.Model
	spinner  components.Spinner
	initTick tea.Cmd
	status   components.Status
	loading  int

	// Reports
	perf        *analytics.PerformanceReport
	errs        *analytics.ErrorReport
	costs       *analytics.CostReport
	reportErr   error
	lastRefresh time.Time

	// Documents
	docs    *ingest.DocumentStats
	embeds  *ingest.EmbeddingStats
	docsErr error

	// Query
	input       textinput.Model
	useSearch   bool
	topK        int
	temperature float64
	example     int
	suggestions []string
	querying    bool
	response    *cortex.Response
	queryErr    error
	notice      string
	answerView  string
	markdown    *glamour.TermRenderer
	mdWidth     int
}

// New creates a dashboard model.
func New(ctx context.Context, opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	windows, idx := windowsFor(opts.Hours)

	ti := textinput.New()
	ti.Placeholder = "Ask a question about your documents..."
	ti.Prompt = "> "
	ti.CharLimit = 10000
	ti.PromptStyle = theme.InputPrompt

	m := Model{
		ctx:         ctx,
		opts:        opts,
		theme:       theme,
		keys:        DefaultKeyMap(),
		logger:      logger,
		width:       100,
		height:      30,
		windows:     windows,
		window:      idx,
		viewport:    viewport.New(100, 20),
		spinner:     components.NewSpinner(),
		input:       ti,
		useSearch:   true,
		topK:        DefaultTopK,
		temperature: DefaultTemperature,
		example:     -1,
	}
	if opts.Reporter != nil {
		m.loading++
	}
	if opts.Documents != nil {
		m.loading++
	}
	if m.loading > 0 {
		m.status = components.StatusLoading
		m.initTick = m.spinner.Start("Loading dashboard")
	}
	return m
}

// Window returns the selected reporting period.
func (m Model) Window() Window {
	return m.windows[m.window]
}

// Tab returns the active tab.
func (m Model) Tab() Tab {
	return m.tab
}

// Init starts the first loads. New has already counted them.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.initTick, m.reportsCmd(), m.documentsCmd()}
	if m.opts.Refresh > 0 {
		cmds = append(cmds, m.refreshTick())
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.input.Width = max(msg.Width-6, 10)
		if m.response != nil {
			m.answerView = m.renderAnswer(m.response)
		}

	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		cmds = append(cmds, cmd)

	case ReportsMsg:
		m = m.handleReports(msg)

	case DocumentsMsg:
		m.finishLoad()
		m.docs, m.embeds, m.docsErr = msg.Documents, msg.Embeddings, msg.Err
		if msg.Err != nil {
			m.logger.Printf("DASHBOARD_DOCUMENTS_FAILED | error=%v", msg.Err)
		}

	case QueryResultMsg:
		m.querying = false
		m.finishLoad()
		m.response, m.queryErr = msg.Response, msg.Err
		m.answerView = ""
		if msg.Response != nil {
			m.answerView = m.renderAnswer(msg.Response)
		}
		if msg.Err != nil {
			m.status = components.StatusError
			m.logger.Printf("DASHBOARD_QUERY_FAILED | error=%v", msg.Err)
		}
		m.viewport.GotoTop()

	case suggestTickMsg:
		if msg.Partial == m.input.Value() {
			cmds = append(cmds, m.fetchSuggestions(msg.Partial))
		}

	case SuggestionsMsg:
		if msg.Partial == m.input.Value() {
			m.suggestions = msg.Items
		}

	case RefreshMsg:
		cmds = append(cmds, m.reload(), m.refreshTick())

	default:
		var spinCmd, inputCmd tea.Cmd
		m.spinner, spinCmd = m.spinner.Update(msg)
		m.input, inputCmd = m.input.Update(msg)
		cmds = append(cmds, spinCmd, inputCmd)
	}

	m.layout()
	return m, tea.Batch(cmds...)
}

func (m Model) handleReports(msg ReportsMsg) Model {
	m.finishLoad()
	if msg.Hours != m.Window().Hours {
		return m
	}
	m.reportErr = msg.Err
	if msg.Err != nil {
		m.status = components.StatusError
		m.logger.Printf("DASHBOARD_REPORTS_FAILED | hours=%d | error=%v", msg.Hours, msg.Err)
		return m
	}
	m.perf, m.errs, m.costs = msg.Performance, msg.Errors, msg.Costs
	m.lastRefresh = time.Now()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.input.Focused() {
		return m.handleInputKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.NextTab):
		m.setTab((m.tab + 1) % tabCount)
	case key.Matches(msg, m.keys.PrevTab):
		m.setTab((m.tab + tabCount - 1) % tabCount)
	case len(msg.Runes) == 1 && msg.Runes[0] >= '1' && msg.Runes[0] < '1'+rune(tabCount):
		m.setTab(Tab(msg.Runes[0] - '1'))
	case key.Matches(msg, m.keys.Window):
		m.window = (m.window + 1) % len(m.windows)
		m.perf, m.errs, m.costs, m.reportErr = nil, nil, nil, nil
		return m, m.loadReports()
	case key.Matches(msg, m.keys.Refresh):
		return m, m.reload()
	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
	case m.tab == TabQuery:
		return m.handleQueryKey(msg)
	}
	return m, nil
}

// handleQueryKey handles query tab keys while the input is blurred.
func (m Model) handleQueryKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Focus):
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	case key.Matches(msg, m.keys.ToggleSearch):
		m.useSearch = !m.useSearch
	case key.Matches(msg, m.keys.TopKUp):
		m.topK = clampTopK(m.topK + 1)
	case key.Matches(msg, m.keys.TopKDown):
		m.topK = clampTopK(m.topK - 1)
	case key.Matches(msg, m.keys.TempUp):
		m.temperature = stepTemperature(m.temperature, 1)
	case key.Matches(msg, m.keys.TempDown):
		m.temperature = stepTemperature(m.temperature, -1)
	case key.Matches(msg, m.keys.Example):
		m.example = (m.example + 1) % len(ExampleQueries)
		m.input.SetValue(ExampleQueries[m.example])
		m.input.CursorEnd()
		m.suggestions = nil
	}
	return m, nil
}

// handleInputKey handles keys while the query input has focus.
func (m Model) handleInputKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		m.input.Blur()
		return m.submit()
	case key.Matches(msg, m.keys.Blur):
		m.input.Blur()
		return m, nil
	case msg.String() == "ctrl+s":
		m.useSearch = !m.useSearch
		return m, nil
	case key.Matches(msg, m.keys.Suggestion):
		if len(m.suggestions) > 0 {
			m.input.SetValue(m.suggestions[0])
			m.input.CursorEnd()
			m.suggestions = nil
		}
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		m.suggestions = nil
		return m, tea.Batch(cmd, suggestAfter(value))
	}
	return m, cmd
}

func (m *Model) setTab(t Tab) {
	if t != m.tab {
		m.tab = t
		m.viewport.GotoTop()
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m *Model) startLoad(message string) tea.Cmd {
	m.loading++
	m.status = components.StatusLoading
	if m.spinner.IsActive() {
		return nil
	}
	return m.spinner.Start(message)
}

func (m *Model) finishLoad() {
	m.loading = max(m.loading-1, 0)
	if m.loading == 0 {
		m.spinner.Stop()
		m.status = components.StatusReady
	}
}

func (m *Model) reload() tea.Cmd {
	return tea.Batch(m.loadReports(), m.loadDocuments())
}

func (m *Model) loadReports() tea.Cmd {
	if m.opts.Reporter == nil {
		return nil
	}
	return tea.Batch(m.startLoad("Loading telemetry"), m.reportsCmd())
}

func (m *Model) loadDocuments() tea.Cmd {
	if m.opts.Documents == nil {
		return nil
	}
	return tea.Batch(m.startLoad("Loading documents"), m.documentsCmd())
}

// reportsCmd fetches the three reports for the selected window.
func (m Model) reportsCmd() tea.Cmd {
	if m.opts.Reporter == nil {
		return nil
	}
	hours := m.Window().Hours
	ctx, r := m.ctx, m.opts.Reporter

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, loadTimeout)
		defer cancel()

		msg := ReportsMsg{Hours: hours}
		if msg.Performance, msg.Err = r.Performance(ctx, hours); msg.Err != nil {
			return msg
		}
		if msg.Errors, msg.Err = r.Errors(ctx, hours); msg.Err != nil {
			return msg
		}
		msg.Costs, msg.Err = r.Costs(ctx, hours)
		return msg
	}
}

func (m Model) documentsCmd() tea.Cmd {
	if m.opts.Documents == nil {
		return nil
	}
	ctx, d := m.ctx, m.opts.Documents

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, loadTimeout)
		defer cancel()

		var msg DocumentsMsg
		if msg.Documents, msg.Err = d.Stats(ctx); msg.Err != nil {
			return msg
		}
		msg.Embeddings, msg.Err = d.EmbeddingStats(ctx)
		return msg
	}
}

func (m Model) submit() (Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	switch {
	case m.querying:
		return m, nil
	case query == "":
		m.notice = "Please enter a query"
		return m, nil
	case m.opts.Querier == nil:
		m.queryErr = ErrNoQuerier
		return m, nil
	}

	m.notice = ""
	m.querying = true
	m.response, m.queryErr = nil, nil
	m.answerView = ""
	m.suggestions = nil
	spin := m.startLoad("Querying Cortex")
	m.status = components.StatusQuerying

	ctx, q := m.ctx, m.opts.Querier
	opts := cortex.QueryOptions{
		UseSearch:   m.useSearch,
		TopK:        m.topK,
		Temperature: cortex.Temperature(m.temperature),
	}
	run := func() tea.Msg {
		resp, err := q.Query(ctx, query, opts)
		return QueryResultMsg{Response: resp, Err: err}
	}
	return m, tea.Batch(spin, run)
}

func suggestAfter(partial string) tea.Cmd {
	return tea.Tick(suggestDebounce, func(time.Time) tea.Msg {
		return suggestTickMsg{Partial: partial}
	})
}

func (m Model) fetchSuggestions(partial string) tea.Cmd {
	if m.opts.Querier == nil || len([]rune(strings.TrimSpace(partial))) < 3 {
		return nil
	}
	ctx, q := m.ctx, m.opts.Querier
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, loadTimeout)
		defer cancel()
		return SuggestionsMsg{Partial: partial, Items: q.Suggestions(ctx, partial)}
	}
}

func (m Model) refreshTick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(time.Time) tea.Msg { return RefreshMsg{} })
}

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the viewport to the space left by the chrome and fills it
// with the active tab.
func (m *Model) layout() {
	chrome := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.renderStatus()) + 1
	if m.tab == TabQuery {
		chrome += lipgloss.Height(m.renderQueryControls())
	}
	m.viewport.Width = max(m.width, 20)
	m.viewport.Height = max(m.height-chrome, 3)
	m.viewport.SetContent(m.renderBody())
}

// renderMarkdown renders an answer with glamour, falling back to plain
// text.
func (m *Model) renderMarkdown(md string) string {
	wrap := max(min(m.width-4, 120), 20)
	if m.markdown == nil || m.mdWidth != wrap {
		style := "dark"
		switch {
		case m.theme.ColorProfile == termenv.Ascii:
			style = "notty"
		case !m.theme.IsDark:
			style = "light"
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return md
		}
		m.markdown, m.mdWidth = r, wrap
	}
	out, err := m.markdown.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}
