package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meikuraledutech/chatbridge/postgres"
)

var errNoDatabase = errors.New("database url is required (DATABASE_URL or --database-url)")

// openStore connects to the request-log database. The returned func closes
// the pool.
func (a *app) openStore(ctx context.Context) (*postgres.PGStore, func(), error) {
	if a.cfg.DatabaseURL == "" {
		return nil, nil, errNoDatabase
	}
	pool, err := postgres.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return postgres.New(pool), pool.Close, nil
}

func newMigrateCmd(a *app) *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the request-log schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("migrations applied")
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			name, err := store.Rollback(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("migration rolled back", zap.String("name", name))
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", name)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			records, err := store.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tAPPLIED\tAT")
			for _, r := range records {
				at := "-"
				if r.AppliedAt != nil {
					at = r.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%t\t%s\n", r.Name, r.Applied, at)
			}
			return w.Flush()
		},
	}

	migrate.AddCommand(up, down, status)
	return migrate
}
