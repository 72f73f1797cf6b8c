package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd(log func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one billing sweep and exit",
		Long: `Processes one batch of expired grace periods and period-end cancellations,
then one batch of due charge attempts. Useful from an external cron.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), log())
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.SweepTimeout)
			defer cancel()

			stats, err := a.sweeper.Sweep(ctx, time.Now().UTC())
			fmt.Fprintf(cmd.OutOrStdout(), "expired=%d charged=%d resolved=%d failed=%d\n",
				stats.Expired, stats.Charged, stats.Resolved, stats.Failed)
			return err
		},
	}
}
