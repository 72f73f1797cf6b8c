package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	billingapi "github.com/dmitrymomot/creatorpay/modules/billing"
	"github.com/dmitrymomot/creatorpay/pkg/config"
	"github.com/dmitrymomot/creatorpay/pkg/httpserver"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/queue"
)

func newServeCmd(log func() *slog.Logger) *cobra.Command {
	var noSweeper bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic billing sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, log())
			if err != nil {
				return err
			}
			// Closed once the scheduler has drained.
			defer a.close()

			var httpCfg httpserver.Config
			if err := config.Load(&httpCfg); err != nil {
				return err
			}

			paddle, err := newPaddleWebhook(a)
			switch {
			case errors.Is(err, errPaddleDisabled):
				a.log.Warn("paddle webhook disabled", logger.Error(err))
			case err != nil:
				return err
			}

			schedulerDone := make(chan error, 1)
			if noSweeper {
				close(schedulerDone)
			} else {
				scheduler := queue.NewScheduler(queue.WithSchedulerLogger(a.log))
				schedule, err := a.cfg.Schedule()
				if err != nil {
					return err
				}
				if err := a.sweeper.Register(scheduler, schedule, queue.WithTaskTimeout(a.cfg.SweepTimeout)); err != nil {
					return err
				}
				go func() { schedulerDone <- scheduler.Start(ctx) }()
			}

			router := billingapi.Router(billingapi.RouterOptions{
				Engine:       a.engine,
				Paddle:       paddle,
				Logger:       a.log,
				HealthChecks: a.checks,
			})
			srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(a.log))

			runErr := srv.Run(ctx, router)
			stop()
			if err := <-schedulerDone; err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("scheduler stopped with error", logger.Error(err))
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&noSweeper, "no-sweeper", false, "serve the API without running the sweep")
	return cmd
}
