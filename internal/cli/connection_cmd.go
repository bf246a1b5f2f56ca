// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/cortexpipe/internal/warehouse"
)

var troubleshootingTips = []string{
	"Check SF_ACCOUNT, SF_USER and SF_PASSWORD in your credentials file",
	"The account identifier looks like orgname-accountname or xy12345.us-east-1",
	"Make sure the role can use the warehouse and database",
	"Cortex functions need a supported region and the SNOWFLAKE.CORTEX_USER role",
}

func newTestConnectionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check warehouse connectivity and Cortex availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			cfg, err := loadSettings(g)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Testing warehouse connection...")

			creds, err := loadCreds(g, cfg, out)
			if err != nil {
				printTips(out)
				return err
			}
			sess, err := warehouse.Open(ctx, cfg, creds, newLogger(g.verbose))
			if err != nil {
				fmt.Fprintf(out, "Connection %s\n", RenderStatus(false))
				printTips(out)
				return err
			}
			defer sess.Close()

			report, err := sess.TestConnection(ctx, cfg.Cortex.Embedding.Model)
			if err != nil {
				fmt.Fprintf(out, "Connection %s\n", RenderStatus(false))
				printTips(out)
				return err
			}

			if g.json {
				return NewJSONResponse("test-connection", report).Print(out)
			}
			fmt.Fprintf(out, "Connection %s\n", RenderStatus(true))
			fmt.Fprintln(out, RenderField("Driver", sess.Dialect()))
			fmt.Fprintln(out, RenderField("Version", report.Version))
			if creds != nil {
				fmt.Fprintln(out, RenderField("Account", creds.Account))
				fmt.Fprintln(out, RenderField("Warehouse", creds.Warehouse))
				fmt.Fprintln(out, RenderField("Database", creds.Database+"."+creds.Schema))
			}
			fmt.Fprintln(out, RenderField("Embedding model", cfg.Cortex.Embedding.Model))
			fmt.Fprintf(out, "Cortex functions %s\n", RenderStatus(report.CortexAvailable))
			if !report.CortexAvailable {
				fmt.Fprintln(out, WarningStyle.Render("  "+report.CortexError))
				printTips(out)
			}
			return nil
		},
	}
}

func printTips(w io.Writer) {
	fmt.Fprintln(w, SectionStyle.Render("Troubleshooting:"))
	for _, tip := range troubleshootingTips {
		fmt.Fprintln(w, DimStyle.Render("  - "+tip))
	}
}
