package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/creatorpay/pkg/billingcycle"
	"github.com/dmitrymomot/creatorpay/pkg/pg"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
)

const subscriptionColumns = `id, fan_id, creator_id, tier_id, state,
	current_period_start, current_period_end, billing_interval,
	cancel_at_period_end, auto_renew, initial_charge_pending, failed_attempts, pending_adjustment,
	trial_ends_at, past_due_since, grace_ends_at, suspended_at, cancelled_at,
	applied_attempts, version, created_at, updated_at`

// SubscriptionStore implements subscription.Store.
type SubscriptionStore struct {
	db DB
}

// NewSubscriptionStore panics if db is nil.
func NewSubscriptionStore(db DB) *SubscriptionStore {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.db.Exec(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		sub.ID, sub.FanID, sub.CreatorID, sub.TierID, string(sub.State),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, string(sub.Interval),
		sub.CancelAtPeriodEnd, sub.AutoRenew, sub.InitialChargePending, sub.FailedAttempts, sub.PendingAdjustment,
		sub.TrialEndsAt, sub.PastDueSince, sub.GraceEndsAt, sub.SuspendedAt, sub.CancelledAt,
		attemptsToText(sub.AppliedAttempts), sub.Version, sub.CreatedAt, sub.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return subscription.ErrSubscriptionAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription, expectedVersion int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE subscriptions SET
			tier_id = $3, state = $4,
			current_period_start = $5, current_period_end = $6, billing_interval = $7,
			cancel_at_period_end = $8, auto_renew = $9, initial_charge_pending = $10, failed_attempts = $11,
			trial_ends_at = $12, past_due_since = $13, grace_ends_at = $14, suspended_at = $15, cancelled_at = $16,
			applied_attempts = $17, updated_at = $18, pending_adjustment = $19, version = version + 1
		WHERE id = $1 AND version = $2`,
		sub.ID, expectedVersion,
		sub.TierID, string(sub.State),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, string(sub.Interval),
		sub.CancelAtPeriodEnd, sub.AutoRenew, sub.InitialChargePending, sub.FailedAttempts,
		sub.TrialEndsAt, sub.PastDueSince, sub.GraceEndsAt, sub.SuspendedAt, sub.CancelledAt,
		attemptsToText(sub.AppliedAttempts), sub.UpdatedAt, sub.PendingAdjustment,
	)
	if pg.IsDuplicateKeyError(err) {
		return subscription.ErrSubscriptionAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, sub.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check subscription: %w", err)
		}
		if !exists {
			return subscription.ErrSubscriptionNotFound
		}
		return subscription.ErrConcurrentModification
	}

	sub.Version = expectedVersion + 1
	return nil
}

func (s *SubscriptionStore) FindLive(ctx context.Context, fanID, creatorID uuid.UUID) (*subscription.Subscription, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE fan_id = $1 AND creator_id = $2 AND state NOT IN ('cancelled', 'suspended')`, fanID, creatorID)
	sub, err := scanSubscription(row)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find live subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) ListByState(ctx context.Context, states []subscription.State, limit int) ([]subscription.Subscription, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE state = ANY($1) ORDER BY updated_at LIMIT $2`, names, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func (s *SubscriptionStore) ListExpiring(ctx context.Context, now time.Time, limit int) ([]subscription.Subscription, error) {
	rows, err := s.db.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE (state = 'grace_period' AND grace_ends_at <= $1)
		   OR (state = 'active' AND cancel_at_period_end AND current_period_end <= $1)
		   OR (state = 'trialing' AND cancel_at_period_end AND trial_ends_at <= $1)
		ORDER BY updated_at LIMIT $2`, now, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list expiring subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]subscription.Subscription, error) {
	defer rows.Close()

	var out []subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub      subscription.Subscription
		state    string
		interval string
		applied  []string
	)
	err := row.Scan(
		&sub.ID, &sub.FanID, &sub.CreatorID, &sub.TierID, &state,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &interval,
		&sub.CancelAtPeriodEnd, &sub.AutoRenew, &sub.InitialChargePending, &sub.FailedAttempts, &sub.PendingAdjustment,
		&sub.TrialEndsAt, &sub.PastDueSince, &sub.GraceEndsAt, &sub.SuspendedAt, &sub.CancelledAt,
		&applied, &sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.State = subscription.State(state)
	sub.Interval = billingcycle.Interval(interval)
	sub.AppliedAttempts, err = textToAttempts(applied)
	if err != nil {
		return nil, err
	}
	utc(&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	utcPtr(sub.TrialEndsAt, sub.PastDueSince, sub.GraceEndsAt, sub.SuspendedAt, sub.CancelledAt)
	return &sub, nil
}

func attemptsToText(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func textToAttempts(vals []string) ([]uuid.UUID, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, len(vals))
	for i, v := range vals {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("applied attempt %q", v), err)
		}
		out[i] = id
	}
	return out, nil
}

// limitOrAll maps a non-positive limit to NULL, which LIMIT treats as no limit.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func utc(ts ...*time.Time) {
	for _, t := range ts {
		*t = t.UTC()
	}
}

func utcPtr(ts ...*time.Time) {
	for _, t := range ts {
		if t != nil {
			*t = t.UTC()
		}
	}
}
