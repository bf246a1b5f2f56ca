// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/cortexpipe/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	settings string
	creds    string
	driver   string
	verbose  bool
	json     bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "cortexpipe",
		Short: "Snowflake Cortex GenAI pipeline with telemetry",
		Long: "cortexpipe loads documents into Snowflake, answers questions with Cortex " +
			"embeddings and completions, and records latency, token and cost telemetry " +
			"for every call.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.settings, "settings", config.DefaultSettingsPath, "settings file (.yaml or .toml)")
	pf.StringVar(&g.creds, "creds", config.DefaultCredentialsPath, "credentials env file")
	pf.StringVar(&g.driver, "driver", "", "warehouse driver override: snowflake or local")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log pipeline events to stderr")
	pf.BoolVar(&g.json, "json", false, "print results as JSON")

	root.AddCommand(
		newTelemetryCmd(g),
		newQueryCmd(g),
		newIngestCmd(g),
		newDashboardCmd(g),
		newServeCmd(g),
		newTestConnectionCmd(g),
		newSQLCmd(g),
		newConfigCmd(g),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("cortexpipe %s (%s)\n", Version, GitCommit))
	return root
}

// Execute runs the CLI and returns the process exit code. An interrupt
// cancels the command context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		fmt.Fprintln(root.OutOrStdout(), "\nOperation cancelled by user")
		return 0
	default:
		fmt.Fprintln(root.ErrOrStderr(), ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
}
