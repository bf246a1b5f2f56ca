// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/cortexpipe/internal/telemetry"
	"github.com/jeranaias/cortexpipe/internal/ui/components"
)

const (
	defaultReportHours = 24
	// maxCostLines is how many cost items the text report lists.
	maxCostLines = 5
)

type telemetryFlags struct {
	setup   bool
	metrics int
	errors  int
	costs   int
	cleanup int
}

func newTelemetryCmd(g *globalFlags) *cobra.Command {
	f := &telemetryFlags{}
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Manage the telemetry table and print reports",
		Example: `  cortexpipe telemetry --setup
  cortexpipe telemetry
  cortexpipe telemetry --costs 168 --metrics 0 --errors 0
  cortexpipe telemetry --cleanup 90`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("cleanup") {
				f.cleanup = 0
			}
			return runTelemetry(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.setup, "setup", false, "create the telemetry table")
	fl.IntVar(&f.metrics, "metrics", defaultReportHours, "show performance metrics for the last N hours (0 skips)")
	fl.IntVar(&f.errors, "errors", defaultReportHours, "show error analysis for the last N hours (0 skips)")
	fl.IntVar(&f.costs, "costs", defaultReportHours, "show cost breakdown for the last N hours (0 skips)")
	fl.IntVar(&f.cleanup, "cleanup", telemetry.DefaultRetentionDays, "delete records older than N days")
	return cmd
}

// pruneSpool drops spooled batches older than days and reports how many
// were removed and how many remain.
func pruneSpool(spool *telemetry.FileSink, days int, now time.Time) (int, int, error) {
	pruned, err := spool.DeleteBefore(now.AddDate(0, 0, -days))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prune spool: %w", err)
	}
	left, err := spool.Count()
	if err != nil {
		return pruned, 0, fmt.Errorf("failed to count spool: %w", err)
	}
	return pruned, left, nil
}

func runTelemetry(cmd *cobra.Command, g *globalFlags, f *telemetryFlags) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, g, cmd.OutOrStdout(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	table := a.cfg.Data.Tables.Telemetry
	result := map[string]any{}

	if f.setup {
		a.println("Setting up telemetry table...")
		if err := telemetry.SetupTable(ctx, a.sess, table); err != nil {
			return err
		}
		a.println(SuccessStyle.Render("Telemetry table setup complete!"))
		result["setup"] = true
	}

	an, err := a.analyzer()
	if err != nil {
		return err
	}

	if f.metrics > 0 {
		perf, err := an.Performance(ctx, f.metrics)
		if err != nil {
			return err
		}
		s := perf.Summary
		a.println(SectionStyle.Render(fmt.Sprintf("Performance Metrics (last %d hours):", f.metrics)))
		a.printf("  Total Operations: %d\n", s.TotalOperations)
		a.printf("  Success Rate: %s\n", components.FormatPercent(s.OverallSuccessRate))
		a.printf("  Average Latency: %.2fms\n", s.AverageLatencyMs)
		a.printf("  Total Cost: $%.4f\n", s.TotalCostUSD)
		result["performance"] = perf
	}

	if f.errors > 0 {
		rep, err := an.Errors(ctx, f.errors)
		if err != nil {
			return err
		}
		a.println(SectionStyle.Render(fmt.Sprintf("Error Analysis (last %d hours):", f.errors)))
		a.printf("  Total Errors: %d\n", rep.TotalErrors)
		a.printf("  Unique Error Types: %d\n", rep.UniqueErrorTypes)
		for _, d := range rep.Details {
			a.printf("  %s/%s x%d: %s\n", d.OperationType, d.ModelName, d.ErrorCount, d.ErrorMessage)
		}
		result["errors"] = rep
	}

	if f.costs > 0 {
		rep, err := an.Costs(ctx, f.costs)
		if err != nil {
			return err
		}
		a.println(SectionStyle.Render(fmt.Sprintf("Cost Breakdown (last %d hours):", f.costs)))
		a.printf("  Total Cost: $%.4f\n", rep.TotalCostUSD)
		for i, item := range rep.Items {
			if i == maxCostLines {
				break
			}
			a.printf("  %s: $%.4f (%.1f%%)\n", item.OperationType, item.TotalCostUSD, item.CostPercentage)
		}
		result["costs"] = rep
	}

	if f.cleanup > 0 {
		a.printf("Cleaning up records older than %d days...\n", f.cleanup)
		n, err := telemetry.Cleanup(ctx, a.sess, table, f.cleanup)
		if err != nil {
			return err
		}
		a.printf("Deleted %d old records\n", n)
		result["deleted"] = n

		if a.spool != nil {
			pruned, left, err := pruneSpool(a.spool, f.cleanup, time.Now())
			if err != nil {
				return err
			}
			a.printf("Deleted %d spooled batches, %d remain in %s\n", pruned, left, a.spool.Dir())
			result["spool_deleted"] = pruned
		}
	}

	return a.emit("telemetry", result)
}
