// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/cortexpipe/internal/cortex"
	"github.com/jeranaias/cortexpipe/internal/ui/components"
	"github.com/jeranaias/cortexpipe/internal/warehouse"
)

func newSQLCmd(g *globalFlags) *cobra.Command {
	var noSearch bool
	cmd := &cobra.Command{
		Use:   "sql <query>",
		Short: "Print the SQL a query would run, without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(g)
			if err != nil {
				return err
			}
			dialect, err := warehouse.ParseDialect(cfg.Warehouse.Driver)
			if err != nil {
				return err
			}
			// Explain only renders statements, so the session has no connection.
			sess := warehouse.New(nil, dialect, newLogger(g.verbose))
			orch, err := cortex.New(sess, nil, cortex.SettingsFrom(cfg), newLogger(g.verbose))
			if err != nil {
				return err
			}
			stmts := orch.Explain(strings.Join(args, " "), !noSearch)

			out := cmd.OutOrStdout()
			if g.json {
				return NewJSONResponse("sql", stmts).Print(out)
			}
			con := consoleFor(out)
			for i, stmt := range stmts {
				fmt.Fprintln(out, SectionStyle.Render(fmt.Sprintf("Statement %d:", i+1)))
				if con.color {
					block := components.NewSQLBlock(stmt)
					block.MaxWidth = con.width() - 2
					fmt.Fprintln(out, block.Render())
				} else {
					fmt.Fprintln(out, stmt)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSearch, "no-search", false, "omit the search statements")
	return cmd
}
