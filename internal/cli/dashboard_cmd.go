// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/cortexpipe/internal/ui/dashboard"
	"github.com/jeranaias/cortexpipe/internal/ui/styles"
)

// dashboardLogFile receives pipeline logs while the dashboard owns the
// terminal.
const dashboardLogFile = "cortexpipe-dashboard.log"

func newDashboardCmd(g *globalFlags) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Open the terminal telemetry dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(io.Discard, "", 0)
			if g.verbose {
				f, err := tea.LogToFile(dashboardLogFile, "dashboard")
				if err != nil {
					return err
				}
				defer f.Close()
				logger = log.New(f, "dashboard ", log.LstdFlags)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, g, cmd.OutOrStdout(), appOptions{logger: logger})
			if err != nil {
				return err
			}
			defer a.close()

			an, err := a.analyzer()
			if err != nil {
				return err
			}
			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			in, err := a.ingestor()
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("hours") {
				hours = a.cfg.Dashboard.DefaultHours
			}
			return dashboard.Run(ctx, dashboard.Options{
				Hours:     hours,
				Reporter:  an,
				Querier:   orch,
				Documents: in,
				Theme:     styles.NewTheme(),
				Logger:    logger,
				Refresh:   time.Duration(a.cfg.Dashboard.RefreshSeconds) * time.Second,
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "initial time window in hours")
	return cmd
}
