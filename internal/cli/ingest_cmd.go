// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/cortexpipe/internal/ingest"
)

type ingestFlags struct {
	setup       bool
	loadSamples bool
	loadFile    string
	loadDir     string
	upload      string
	embed       bool
	stats       bool
	watch       string
	debounce    time.Duration
}

func newIngestCmd(g *globalFlags) *cobra.Command {
	f := &ingestFlags{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load and embed documents",
		Example: `  cortexpipe ingest --setup --load-samples --embed
  cortexpipe ingest --load-dir ./docs --embed
  cortexpipe ingest --watch ./docs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.setup, "setup", false, "create the stage and document tables")
	fl.BoolVar(&f.loadSamples, "load-samples", false, "load the built-in sample documents")
	fl.StringVar(&f.loadFile, "load-file", "", "load one file")
	fl.StringVar(&f.loadDir, "load-dir", "", "load every supported file below a directory")
	fl.StringVar(&f.upload, "upload", "", "upload a file to the raw stage")
	fl.BoolVar(&f.embed, "embed", false, "embed documents that have no embeddings yet")
	fl.BoolVar(&f.stats, "stats", false, "show document statistics")
	fl.StringVar(&f.watch, "watch", "", "keep a directory loaded until interrupted")
	fl.DurationVar(&f.debounce, "debounce", ingest.DefaultDebounce, "quiet period before a changed file is reloaded")
	return cmd
}

func (f *ingestFlags) any() bool {
	return f.setup || f.loadSamples || f.loadFile != "" || f.loadDir != "" ||
		f.upload != "" || f.embed || f.stats || f.watch != ""
}

func runIngest(cmd *cobra.Command, g *globalFlags, f *ingestFlags) error {
	if !f.any() {
		return cmd.Help()
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, g, cmd.OutOrStdout(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	in, err := a.ingestor()
	if err != nil {
		return err
	}
	result := map[string]any{}

	if f.setup {
		a.println("Setting up database infrastructure...")
		if err := in.Setup(ctx); err != nil {
			return err
		}
		a.println(SuccessStyle.Render("Infrastructure setup complete!"))
		result["setup"] = true
	}

	if f.loadSamples {
		a.println("Loading sample documents...")
		n, err := in.LoadSamples(ctx)
		if err != nil {
			return err
		}
		a.println(SuccessStyle.Render("Sample documents loaded!"))
		result["samples_loaded"] = n
	}

	if f.upload != "" {
		a.printf("Uploading file: %s\n", f.upload)
		ok, err := in.UploadToStage(ctx, f.upload)
		if errors.Is(err, ingest.ErrStageUnavailable) {
			a.println(WarningStyle.Render("Stages are only available on Snowflake, skipping upload"))
		} else if err != nil {
			return err
		} else {
			a.printf("Upload %s\n", RenderStatus(ok))
		}
		result["uploaded"] = ok
	}

	if f.loadFile != "" {
		a.printf("Loading file: %s\n", f.loadFile)
		docID, err := in.LoadDocument(ctx, f.loadFile, "")
		if err != nil {
			a.println(ErrorStyle.Render("Failed to load file!"))
			return err
		}
		a.println(SuccessStyle.Render("File loaded successfully!"))
		result["doc_id"] = docID
	}

	if f.loadDir != "" {
		a.printf("Loading directory: %s\n", f.loadDir)
		res, err := in.LoadDirectory(ctx, f.loadDir)
		if err != nil {
			return err
		}
		a.printf("Loaded %d files, %d failed\n", res.SuccessCount, res.FailedCount)
		for _, e := range res.Errors {
			a.println(DimStyle.Render("  " + e))
		}
		result["directory"] = res
	}

	if f.embed {
		a.println("Embedding pending documents...")
		n, err := in.EmbedPending(ctx)
		if err != nil {
			return err
		}
		a.printf("Created %d embeddings\n", n)
		result["embeddings_created"] = n
	}

	if f.stats {
		if err := printStats(ctx, a, in, result); err != nil {
			return err
		}
	}

	if f.watch != "" {
		a.printf("Watching directory: %s (Ctrl+C to stop)\n", f.watch)
		err := in.Watch(ctx, f.watch, ingest.WatchOptions{Debounce: f.debounce, Embed: true})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return ctx.Err()
	}

	return a.emit("ingest", result)
}

func printStats(ctx context.Context, a *app, in *ingest.Ingestor, result map[string]any) error {
	docs, err := in.Stats(ctx)
	if err != nil {
		return err
	}
	embeds, err := in.EmbeddingStats(ctx)
	if err != nil {
		return err
	}
	result["documents"] = docs
	result["embeddings"] = embeds

	a.println(SectionStyle.Render("Document Statistics:"))
	for _, kv := range [][2]any{
		{"total_documents", docs.TotalDocuments},
		{"unique_file_types", docs.UniqueFileTypes},
		{"avg_content_length", fmt.Sprintf("%.1f", docs.AvgContentLength)},
		{"total_size_mb", fmt.Sprintf("%.3f", docs.TotalSizeMB)},
		{"first_upload", docs.FirstUpload},
		{"latest_upload", docs.LatestUpload},
	} {
		a.printf("  %s: %s\n", kv[0], toString(kv[1]))
	}
	a.println(SectionStyle.Render("Embedding Statistics:"))
	for _, kv := range [][2]any{
		{"total_embeddings", embeds.TotalEmbeddings},
		{"unique_documents", embeds.UniqueDocuments},
		{"avg_tokens_per_chunk", fmt.Sprintf("%.1f", embeds.AvgTokensPerChunk)},
		{"avg_chunk_size", fmt.Sprintf("%.1f", embeds.AvgChunkSize)},
	} {
		a.printf("  %s: %s\n", kv[0], toString(kv[1]))
	}
	return nil
}
