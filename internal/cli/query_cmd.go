// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/cortexpipe/internal/cortex"
	"github.com/jeranaias/cortexpipe/internal/util"
)

// demoAnswerLimit truncates answers printed by the demo run.
const demoAnswerLimit = 200

// DemoQueries run when query is invoked without a mode.
var DemoQueries = []string{
	"What is Snowflake Cortex?",
	"How does vector search work?",
	"What are the benefits of using embeddings?",
}

type queryFlags struct {
	query       string
	noSearch    bool
	batchFile   string
	topK        int
	temperature float64
	interactive bool
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ask questions through the Cortex pipeline",
		Long: "Run a single query, a batch file with one query per line, or an " +
			"interactive session. Without a mode a short demo runs.",
		Example: `  cortexpipe query --query "What is Snowflake Cortex?"
  cortexpipe query --batch-file questions.txt --no-search
  cortexpipe query --interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.query, "query", "q", "", "query to process")
	fl.BoolVar(&f.noSearch, "no-search", false, "answer without semantic search")
	fl.StringVar(&f.batchFile, "batch-file", "", "file with one query per line")
	fl.IntVar(&f.topK, "top-k", 5, "number of search results")
	fl.Float64Var(&f.temperature, "temperature", 0.7, "LLM temperature")
	fl.BoolVarP(&f.interactive, "interactive", "i", false, "interactive query mode")
	return cmd
}

func runQuery(cmd *cobra.Command, g *globalFlags, f *queryFlags) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, g, cmd.OutOrStdout(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	opts := cortex.QueryOptions{
		UseSearch:   !f.noSearch,
		TopK:        f.topK,
		Temperature: cortex.Temperature(f.temperature),
	}

	switch {
	case f.query != "":
		return runSingleQuery(ctx, a, orch, f.query, opts)
	case f.batchFile != "":
		return runBatchFile(ctx, a, orch, f.batchFile, opts.UseSearch)
	case f.interactive:
		return runInteractive(ctx, a, orch, opts)
	default:
		return runDemo(ctx, a, orch, opts)
	}
}

func runSingleQuery(ctx context.Context, a *app, orch *cortex.Orchestrator, q string, opts cortex.QueryOptions) error {
	a.printf("Processing query: %s\n", q)
	resp, err := orch.Query(ctx, q, opts)
	if err != nil {
		return err
	}
	if a.json {
		return a.emit("query", resp)
	}
	printResponse(a.out, resp)
	return nil
}

// printResponse writes the answer and its metrics.
func printResponse(w io.Writer, resp *cortex.Response) {
	fmt.Fprintln(w, SectionStyle.Render("\nAnswer:"))
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w, SectionStyle.Render("\nMetrics:"))
	m := resp.Metrics
	for _, kv := range [][2]any{
		{"total_latency_ms", m.TotalLatencyMs},
		{"search_results_count", m.SearchResultsCount},
		{"context_chunks_used", m.ContextChunksUsed},
		{"input_tokens", m.InputTokens},
		{"output_tokens", m.OutputTokens},
		{"total_tokens", m.TotalTokens},
	} {
		fmt.Fprintf(w, "  %s: %s\n", kv[0], toString(kv[1]))
	}
	fmt.Fprintf(w, "  estimated_cost_usd: $%.6f\n", resp.CostEstimate.TotalUSD)
}

// ResultsPath is where a batch run writes its answers: next to the input
// file, with a _results suffix on the stem.
func ResultsPath(batchFile string) string {
	dir := filepath.Dir(batchFile)
	stem := strings.TrimSuffix(filepath.Base(batchFile), filepath.Ext(batchFile))
	return filepath.Join(dir, stem+"_results.txt")
}

// readQueries returns the non-blank lines of path.
func readQueries(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch file: %w", err)
	}
	defer file.Close()

	var queries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			queries = append(queries, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	return queries, nil
}

func runBatchFile(ctx context.Context, a *app, orch *cortex.Orchestrator, path string, useSearch bool) error {
	a.printf("Processing batch file: %s\n", path)
	queries, err := readQueries(path)
	if err != nil {
		return err
	}

	results, err := orch.Batch(ctx, queries, useSearch)
	if err != nil {
		return err
	}

	out := ResultsPath(path)
	if err := writeResults(out, results); err != nil {
		return err
	}
	if a.json {
		return a.emit("query", map[string]any{"results_file": out, "results": results})
	}
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		a.println(WarningStyle.Render(fmt.Sprintf("%d of %d queries failed", failed, len(results))))
	}
	a.printf("Results saved to: %s\n", out)
	return nil
}

func writeResults(path string, results []cortex.BatchResult) error {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "Query: %s\n", r.Query)
		if r.Failed() {
			fmt.Fprintf(&b, "Answer: ERROR - %s\n", r.Error)
		} else {
			fmt.Fprintf(&b, "Answer: %s\n", r.Answer)
		}
		b.WriteString("---\n")
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// quitWords end an interactive session.
var quitWords = map[string]bool{"quit": true, "exit": true, "q": true}

func runInteractive(ctx context.Context, a *app, orch *cortex.Orchestrator, opts cortex.QueryOptions) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		return orch.Suggestions(ctx, partial)
	})

	fmt.Fprintln(a.out, TitleStyle.Render("Interactive Query Mode (type 'quit' to exit)"))
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		input, err := line.Prompt("\nEnter your query: ")
		if errors.Is(err, liner.ErrPromptAborted) {
			return context.Canceled
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		q := strings.TrimSpace(input)
		if quitWords[strings.ToLower(q)] {
			return nil
		}
		if q == "" {
			continue
		}
		line.AppendHistory(q)

		resp, err := orch.Query(ctx, q, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintln(a.out, ErrorStyle.Render("Error: "+err.Error()))
			continue
		}
		fmt.Fprintln(a.out, SectionStyle.Render("\nAnswer:"))
		fmt.Fprintln(a.out, resp.Answer)
		fmt.Fprintln(a.out, DimStyle.Render(fmt.Sprintf("\nLatency: %.2fms", resp.Metrics.TotalLatencyMs)))
	}
}

func runDemo(ctx context.Context, a *app, orch *cortex.Orchestrator, opts cortex.QueryOptions) error {
	a.println(TitleStyle.Render("Running demo queries..."))
	var responses []*cortex.Response
	for _, q := range DemoQueries {
		a.println(RenderSeparator())
		a.printf("Query: %s\n", q)
		resp, err := orch.Query(ctx, q, opts)
		if err != nil {
			return err
		}
		responses = append(responses, resp)
		a.printf("Answer: %s...\n", util.TruncateRunesNoEllipsis(resp.Answer, demoAnswerLimit))
		a.printf("Latency: %.2fms\n", resp.Metrics.TotalLatencyMs)
	}
	return a.emit("query", responses)
}
