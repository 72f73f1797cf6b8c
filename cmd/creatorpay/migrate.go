package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/creatorpay/pkg/pg"
	"github.com/dmitrymomot/creatorpay/svc/billing/pgstore"
)

func newMigrateCmd(log func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, cfg, err := connectDB(ctx, log())
			if err != nil {
				return err
			}
			defer pool.Close()

			return pg.Migrate(ctx, pool, cfg, pgstore.Migrations, pgstore.MigrationsDir, log())
		},
	}
}
