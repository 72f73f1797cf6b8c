package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/creatorpay/pkg/config"
	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/email"
	"github.com/dmitrymomot/creatorpay/pkg/httpserver"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/pg"
	"github.com/dmitrymomot/creatorpay/pkg/redis"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
	"github.com/dmitrymomot/creatorpay/svc/billing"
	"github.com/dmitrymomot/creatorpay/svc/billing/pgstore"
)

// app holds the wired billing service.
type app struct {
	log     *slog.Logger
	cfg     billing.Config
	pool    *pgxpool.Pool
	redis   *goredis.Client
	engine  *billing.Engine
	sweeper *billing.Sweeper
	checks  []httpserver.HealthCheck
}

func connectDB(ctx context.Context, log *slog.Logger) (*pgxpool.Pool, pg.Config, error) {
	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return nil, cfg, err
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, cfg, err
	}
	log.InfoContext(ctx, "connected to postgres", logger.Component("pg"))
	return pool, cfg, nil
}

func newApp(ctx context.Context, log *slog.Logger) (*app, error) {
	var (
		billingCfg billing.Config
		redisCfg   redis.Config
		emailCfg   email.Config
		paddleCfg  billing.PaddleConfig
	)
	for _, load := range []func() error{
		func() error { return config.Load(&billingCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&emailCfg) },
		func() error { return config.Load(&paddleCfg) },
	} {
		if err := load(); err != nil {
			return nil, err
		}
	}
	if err := billingCfg.Validate(); err != nil {
		return nil, err
	}

	pool, _, err := connectDB(ctx, log)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, cfg: billingCfg, pool: pool}

	a.redis, err = redis.Connect(ctx, redisCfg)
	if err != nil {
		a.close()
		return nil, err
	}

	ledger, err := subscription.NewService(ctx,
		subscription.NewYAMLSource(billingCfg.TiersFile),
		pgstore.NewSubscriptionStore(pool),
		subscription.WithPlatformFee(billingCfg.PlatformFee),
		subscription.WithProrationPolicy(billingCfg.Proration()),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	tracker, err := dunning.NewTracker(pgstore.NewAttemptStore(pool), dunning.WithSubmitTimeout(billingCfg.ChargeTimeout))
	if err != nil {
		a.close()
		return nil, err
	}

	sender, err := email.New(emailCfg)
	if err != nil {
		a.close()
		return nil, err
	}
	fans := pgstore.NewFanDirectory(pool)

	charger, err := newCharger(paddleCfg, fans, log)
	if err != nil {
		a.close()
		return nil, err
	}

	a.engine = billing.NewEngine(ledger, tracker,
		billing.WithLocker(redis.NewLockerFromConfig(a.redis, redisCfg)),
		billing.WithAccessControl(pgstore.NewAccessStore(pool)),
		billing.WithNotifier(billing.NewEmailNotifier(sender, fans, ledger, billingCfg.AppURL, log)),
		billing.WithLogger(log),
	)
	a.sweeper = billing.NewSweeper(a.engine, pgstore.NewSubscriptionStore(pool), tracker, charger,
		billing.WithBatchSize(billingCfg.SweepBatchSize),
		billing.WithWorkers(billingCfg.SweepWorkers),
		billing.WithSweeperLogger(log),
	)
	a.checks = []httpserver.HealthCheck{
		{Name: "postgres", Check: pg.Healthcheck(pool)},
		{Name: "redis", Check: redis.Healthcheck(a.redis)},
	}
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("failed to close redis client", logger.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// newCharger charges through Paddle when an API key is configured. Otherwise
// charges are only logged and their outcomes arrive through the resolve endpoint.
func newCharger(cfg billing.PaddleConfig, fans billing.FanDirectory, log *slog.Logger) (billing.Charger, error) {
	if cfg.APIKey == "" {
		log.Warn("paddle API key is not set, charges are left to an external processor")
		return billing.NewExternalCharger(log), nil
	}
	client, err := billing.NewPaddleClient(cfg)
	if err != nil {
		return nil, err
	}
	return billing.NewPaddleCharger(client, fans, log), nil
}

var errPaddleDisabled = errors.New("paddle webhook secret is not set")

func newPaddleWebhook(a *app) (*billing.PaddleWebhook, error) {
	var cfg billing.PaddleConfig
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	if cfg.WebhookSecret == "" {
		return nil, errPaddleDisabled
	}
	wh, err := billing.NewPaddleWebhook(cfg, a.engine, a.log)
	if err != nil {
		return nil, fmt.Errorf("paddle webhook: %w", err)
	}
	return wh, nil
}
