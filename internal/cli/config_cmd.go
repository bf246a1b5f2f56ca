// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/cortexpipe/internal/config"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect settings",
	}
	cmd.AddCommand(newConfigInitCmd(g), newConfigShowCmd(g))
	return cmd
}

func newConfigInitCmd(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with the default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(g.settings); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", g.settings)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			cfg := config.Default()
			if g.driver != "" {
				cfg.Warehouse.Driver = g.driver
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg, g.settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settings written to: %s\n", g.settings)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(g)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			var creds *config.Credentials
			if cfg.Warehouse.Driver != "local" {
				c, err := config.LoadCredentials(g.creds)
				if err != nil {
					return err
				}
				r := c.Redacted()
				creds = &r
			}

			if g.json {
				masked := *cfg
				if masked.Server.AuthToken != "" {
					masked.Server.AuthToken = "********"
				}
				return NewJSONResponse("config", map[string]any{"settings": masked, "credentials": creds}).Print(out)
			}
			fmt.Fprintln(out, SectionStyle.Render("Settings:"))
			fmt.Fprint(out, cfg.String())
			if creds != nil {
				fmt.Fprintln(out, SectionStyle.Render("Credentials:"))
				for _, kv := range [][2]string{
					{"Account", creds.Account},
					{"User", creds.User},
					{"Password", creds.Password},
					{"Role", creds.Role},
					{"Warehouse", creds.Warehouse},
					{"Database", creds.Database},
					{"Schema", creds.Schema},
				} {
					fmt.Fprintln(out, RenderField(kv[0], kv[1]))
				}
			}
			return nil
		},
	}
}
