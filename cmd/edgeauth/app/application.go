// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/stacklok/edgeauth/pkg/authserver/identity"
	"github.com/stacklok/edgeauth/pkg/authserver/server/handlers"
	"github.com/stacklok/edgeauth/pkg/logger"
	"github.com/stacklok/edgeauth/pkg/storage/sqlite"
)

func newAppCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage registered applications",
	}
	cmd.AddCommand(newAppCreateCmd())
	cmd.AddCommand(newAppListCmd())
	return cmd
}

func newAppCreateCmd() *cobra.Command {
	var (
		req         handlers.CreateApplicationRequest
		description string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an application and print its credentials",
		Long: `Register an application directly in the database. The client secret is only
printed once.`,
		Example: `  edgeauth app create --name demo --redirect-uri https://demo.example.com/callback --scope openid --scope profile`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}
			if err := req.Validate(); err != nil {
				return err
			}

			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			app, err := handlers.NewApplication(&req)
			if err != nil {
				return err
			}
			if err := sqlite.NewApplicationStore(db).CreateApplication(cmd.Context(), app); err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}

			return renderTable(cmd.OutOrStdout(),
				[]string{"Client ID", "Client Secret", "Name", "Scopes"},
				[][]string{{app.ClientID, app.ClientSecret, app.Name, app.Scopes.String()}},
			)
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Application name")
	cmd.Flags().StringVar(&description, "description", "", "Application description")
	cmd.Flags().StringVar(&req.RedirectURI, "redirect-uri", "", "Registered redirect URI")
	cmd.Flags().StringSliceVar(&req.Scopes, "scope", nil, "Scope the application may request (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("redirect-uri")
	return cmd
}

func newAppListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered applications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			apps, err := sqlite.NewApplicationStore(db).ListApplications(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list applications: %w", err)
			}
			if len(apps) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No applications registered.")
				return err
			}
			return renderTable(cmd.OutOrStdout(),
				[]string{"Client ID", "Name", "Redirect URI", "Scopes"},
				applicationRows(apps),
			)
		},
	}
}

func applicationRows(apps []*identity.Application) [][]string {
	rows := make([][]string, 0, len(apps))
	for _, app := range apps {
		rows = append(rows, []string{app.ClientID, app.Name, app.RedirectURI, app.Scopes.String()})
	}
	return rows
}

func openDatabase(cmd *cobra.Command) (*sqlite.DB, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	logger.Debugw("opening database", "dsn", cfg.Database.DSN)
	return sqlite.Open(cmd.Context(), cfg.Database.DSN)
}

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(header),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(len(header), tw.AlignLeft)),
	)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
