package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/creatorpay/pkg/config"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/requestid"
)

// AppConfig holds process-wide settings.
type AppConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"creatorpay"`
}

func newRootCmd() *cobra.Command {
	var log *slog.Logger

	root := &cobra.Command{
		Use:           "creatorpay",
		Short:         "Subscription billing and payment recovery for creators",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var cfg AppConfig
			if err := config.Load(&cfg); err != nil {
				return err
			}
			log = logger.New(
				logger.WithEnvironment(cfg.Env, cfg.ServiceName),
				logger.WithContextExtractors(requestid.LoggerExtractor()),
			)
			logger.SetAsDefault(log)
			return nil
		},
	}

	logFn := func() *slog.Logger { return log }
	root.AddCommand(
		newServeCmd(logFn),
		newMigrateCmd(logFn),
		newSweepCmd(logFn),
		newSplitCmd(),
	)
	return root
}
