// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeranaias/cortexpipe/internal/analytics"
	"github.com/jeranaias/cortexpipe/internal/config"
	"github.com/jeranaias/cortexpipe/internal/cortex"
	"github.com/jeranaias/cortexpipe/internal/ingest"
	"github.com/jeranaias/cortexpipe/internal/telemetry"
	"github.com/jeranaias/cortexpipe/internal/warehouse"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app holds the objects one command invocation needs. Build it with
// openApp and release it with close.
type app struct {
	cfg     *config.Config
	creds   *config.Credentials
	sess    *warehouse.Session
	batcher *telemetry.Batcher
	spool   *telemetry.FileSink
	logger  *log.Logger
	out     io.Writer
	json    bool
}

// appOptions customizes openApp.
type appOptions struct {
	logger *log.Logger
	meter  metric.Meter
	reg    prometheus.Registerer
}

// loadSettings reads settings and applies the --driver override.
func loadSettings(g *globalFlags) (*config.Config, error) {
	if !g.verbose {
		// config reports file discovery through the default logger.
		log.SetOutput(io.Discard)
	}
	cfg, err := config.Load(g.settings)
	if err != nil {
		return nil, err
	}
	if g.driver != "" {
		if _, err := warehouse.ParseDialect(g.driver); err != nil {
			return nil, err
		}
		cfg.Warehouse.Driver = strings.ToLower(g.driver)
	}
	return cfg, nil
}

// loadCreds resolves Snowflake credentials, prompting for a password on a
// terminal when none is configured.
func loadCreds(g *globalFlags, cfg *config.Config, out io.Writer) (*config.Credentials, error) {
	if strings.EqualFold(cfg.Warehouse.Driver, "local") {
		return nil, nil
	}
	creds, err := config.LoadCredentials(g.creds)
	if err != nil {
		return nil, err
	}
	if creds.Password == "" && creds.Account != "" && stdinIsTerminal() {
		pw, err := promptPassword(out, fmt.Sprintf("Snowflake password for %s: ", creds.User))
		if err != nil {
			return nil, err
		}
		creds.Password = pw
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// openApp loads settings and credentials, opens the warehouse session and
// builds the telemetry batcher.
func openApp(ctx context.Context, g *globalFlags, out io.Writer, opts appOptions) (*app, error) {
	cfg, err := loadSettings(g)
	if err != nil {
		return nil, err
	}
	creds, err := loadCreds(g, cfg, out)
	if err != nil {
		return nil, err
	}

	logger := opts.logger
	if logger == nil {
		logger = newLogger(g.verbose)
	}

	sess, err := warehouse.Open(ctx, cfg, creds, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	a := &app{cfg: cfg, creds: creds, sess: sess, logger: logger, out: out, json: g.json}
	if err := a.initTelemetry(ctx, opts); err != nil {
		sess.Close()
		return nil, err
	}
	return a, nil
}

func newLogger(verbose bool) *log.Logger {
	if verbose {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// initTelemetry builds the batcher. With a spool directory configured,
// failed batches are written there and replayed on the next start.
func (a *app) initTelemetry(ctx context.Context, opts appOptions) error {
	primary, err := telemetry.NewWarehouseSink(a.sess, a.cfg.Data.Tables.Telemetry)
	if err != nil {
		return err
	}
	var sink telemetry.Sink = primary
	a.logger.Printf("TELEMETRY_SINK | table=%s | batch_size=%d", primary.Table(), a.cfg.Telemetry.BatchSize)

	if dir := a.cfg.Telemetry.SpoolDir; dir != "" {
		spool, err := telemetry.NewFileSink(dir)
		if err != nil {
			return err
		}
		a.spool = spool
		sink = telemetry.Fallback{Primary: primary, Secondary: spool}
		if n, err := spool.Replay(ctx, primary); err != nil {
			a.logger.Printf("SPOOL_REPLAY_FAILED | dir=%s | replayed=%d | error=%v", dir, n, err)
		} else if n > 0 {
			a.logger.Printf("SPOOL_REPLAYED | dir=%s | records=%d", dir, n)
		}
	}

	batchOpts := []telemetry.Option{
		telemetry.WithLogger(a.logger),
		telemetry.WithWarnMultiple(a.cfg.Telemetry.WarnMultiple),
	}
	if opts.meter != nil || opts.reg != nil {
		inst, err := telemetry.NewInstruments(opts.meter, opts.reg)
		if err != nil {
			return err
		}
		batchOpts = append(batchOpts, telemetry.WithInstruments(inst))
	}
	a.batcher = telemetry.NewBatcher(sink, a.cfg.Telemetry.BatchSize, batchOpts...)
	return nil
}

// close flushes pending telemetry and closes the session. It uses a fresh
// context so an interrupted command still persists its records.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.batcher.Close(ctx); err != nil {
		a.logger.Printf("TELEMETRY_CLOSE_FAILED | error=%v", err)
	}
	a.sess.Close()
}

func (a *app) orchestrator() (*cortex.Orchestrator, error) {
	return cortex.New(a.sess, a.batcher, cortex.SettingsFrom(a.cfg), a.logger)
}

func (a *app) ingestor() (*ingest.Ingestor, error) {
	return ingest.New(a.sess, a.batcher, ingest.OptionsFrom(a.cfg), a.logger)
}

func (a *app) analyzer() (*analytics.Analyzer, error) {
	return analytics.New(a.sess, a.cfg.Data.Tables.Telemetry)
}

// printf writes unless JSON output was requested.
func (a *app) printf(format string, args ...any) {
	if a.json {
		return
	}
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) println(args ...any) {
	if a.json {
		return
	}
	fmt.Fprintln(a.out, args...)
}

// emit prints data as a JSON envelope when --json is set.
func (a *app) emit(command string, data any) error {
	if !a.json {
		return nil
	}
	return NewJSONResponse(command, data).Print(a.out)
}
