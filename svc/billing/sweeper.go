package billing

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/queue"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
)

// SweepTaskName is the scheduler task that runs Sweeper.Run.
const SweepTaskName = "billing.sweep"

// SweepStats summarizes one sweep.
type SweepStats struct {
	Expired  int `json:"expired"`
	Charged  int `json:"charged"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

// Sweeper drives time-based work: period ends flagged for cancellation,
// grace expiry and due charge attempts (renewals, retries, win-back).
type Sweeper struct {
	engine  *Engine
	store   subscription.Store
	tracker *dunning.Tracker
	charger Charger
	batch   int
	workers int
	log     *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

func WithBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithWorkers(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSweeper creates a sweeper. Panics on nil dependencies.
func NewSweeper(engine *Engine, store subscription.Store, tracker *dunning.Tracker, charger Charger, opts ...SweeperOption) *Sweeper {
	if engine == nil || store == nil || tracker == nil || charger == nil {
		panic("billing: sweeper requires engine, store, tracker and charger")
	}
	s := &Sweeper{
		engine:  engine,
		store:   store,
		tracker: tracker,
		charger: charger,
		batch:   200,
		workers: 8,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("sweeper"))
	return s
}

// Run adapts Sweep to queue.TaskFunc.
func (s *Sweeper) Run(ctx context.Context, scheduledAt time.Time) error {
	_, err := s.Sweep(ctx, scheduledAt)
	return err
}

// Register adds the sweep to scheduler.
func (s *Sweeper) Register(scheduler *queue.Scheduler, schedule queue.Schedule, opts ...queue.SchedulerTaskOption) error {
	return scheduler.AddTask(SweepTaskName, schedule, s.Run, opts...)
}

// Sweep processes one batch of expiring subscriptions, then one batch of
// due attempts. Expiry runs first so a period ending with the cancel flag
// is cancelled before its renewal charge is considered.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepStats, error) {
	start := time.Now()
	var expired, charged, resolved, failed atomic.Int64

	subs, err := s.store.ListExpiring(ctx, now, s.batch)
	if err != nil {
		return SweepStats{}, err
	}
	expireErr := queue.ForEach(ctx, s.workers, subs, func(ctx context.Context, sub subscription.Subscription) error {
		ev, ok := sub.ExpiryEvent(now)
		if !ok {
			return nil
		}
		if _, err := s.engine.Apply(ctx, sub.ID, ev); err != nil {
			if subscription.IsInvalidTransition(err) {
				return nil
			}
			failed.Add(1)
			s.log.ErrorContext(ctx, "expiry failed", logger.SubscriptionID(sub.ID), logger.Event(ev.Kind.Name()), logger.Error(err))
			return err
		}
		expired.Add(1)
		return nil
	})

	due, err := s.tracker.DueAttempts(ctx, s.batch)
	if err != nil {
		return SweepStats{}, errors.Join(expireErr, err)
	}
	chargeErr := queue.ForEach(ctx, s.workers, due, func(ctx context.Context, attempt dunning.ChargeAttempt) error {
		out, err := s.engine.ChargeDue(ctx, attempt, s.charger)
		if err != nil {
			failed.Add(1)
			s.log.ErrorContext(ctx, "charge failed", logger.AttemptID(attempt.ID), logger.Error(err))
			return err
		}
		charged.Add(1)
		if out.Applied {
			resolved.Add(1)
		}
		return nil
	})

	stats := SweepStats{
		Expired:  int(expired.Load()),
		Charged:  int(charged.Load()),
		Resolved: int(resolved.Load()),
		Failed:   int(failed.Load()),
	}
	s.log.InfoContext(ctx, "sweep finished",
		slog.Int("expired", stats.Expired),
		slog.Int("charged", stats.Charged),
		slog.Int("resolved", stats.Resolved),
		slog.Int("failed", stats.Failed),
		logger.Duration(time.Since(start)))

	return stats, errors.Join(expireErr, chargeErr)
}
