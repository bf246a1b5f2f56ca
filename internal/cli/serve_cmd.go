// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/jeranaias/cortexpipe/internal/server"
	"github.com/jeranaias/cortexpipe/internal/telemetry"
)

// serveFlushInterval bounds how long telemetry from a quiet server stays
// buffered.
const serveFlushInterval = 30 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query and telemetry HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from settings)")
	return cmd
}

func runServe(cmd *cobra.Command, g *globalFlags, addr string) error {
	ctx := cmd.Context()

	mp := sdkmetric.NewMeterProvider()
	otel.SetMeterProvider(mp)
	defer mp.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// The server logs regardless of --verbose.
	logger := newLogger(true)
	a, err := openApp(ctx, g, cmd.OutOrStdout(), appOptions{
		logger: logger,
		meter:  mp.Meter("github.com/jeranaias/cortexpipe/telemetry"),
		reg:    reg,
	})
	if err != nil {
		return err
	}
	defer a.close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	an, err := a.analyzer()
	if err != nil {
		return err
	}
	in, err := a.ingestor()
	if err != nil {
		return err
	}

	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	srv := server.New(server.Config{
		Addr:      addr,
		AuthToken: a.cfg.Server.AuthToken,
		Version:   Version,
		Gatherer:  reg,
		Logger:    logger,
	}, orch, an, in)

	go flushPeriodically(ctx, a.batcher, serveFlushInterval)
	return srv.ListenAndServe(ctx)
}

// flushPeriodically flushes b every interval until ctx is done.
func flushPeriodically(ctx context.Context, b *telemetry.Batcher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.Pending() > 0 {
				_ = b.Flush(ctx)
			}
		}
	}
}
