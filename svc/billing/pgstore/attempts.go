package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/pg"
)

const attemptColumns = `id, subscription_id, attempt_number, class, period_start,
	outcome, COALESCE(failure_reason, ''), amount, adjustment, scheduled_at, submitted_at, resolved_at, created_at`

// AttemptStore implements dunning.AttemptStore.
type AttemptStore struct {
	db DB
}

// NewAttemptStore panics if db is nil.
func NewAttemptStore(db DB) *AttemptStore {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &AttemptStore{db: db}
}

func (s *AttemptStore) Create(ctx context.Context, a *dunning.ChargeAttempt) error {
	_, err := s.db.Exec(ctx, `INSERT INTO charge_attempts
		(id, subscription_id, attempt_number, class, period_start, outcome, failure_reason,
		 amount, adjustment, scheduled_at, submitted_at, resolved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13)`,
		a.ID, a.SubscriptionID, a.AttemptNumber, string(a.Class), a.PeriodStart,
		string(a.Outcome), a.FailureReason, a.Amount, a.Adjustment,
		a.ScheduledAt, a.SubmittedAt, a.ResolvedAt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert charge attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, id uuid.UUID) (*dunning.ChargeAttempt, error) {
	a, err := scanAttempt(s.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM charge_attempts WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, dunning.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get charge attempt: %w", err)
	}
	return a, nil
}

func (s *AttemptStore) Resolve(ctx context.Context, id uuid.UUID, outcome dunning.Outcome, reason string, resolvedAt time.Time) (*dunning.ChargeAttempt, error) {
	a, err := scanAttempt(s.db.QueryRow(ctx, `UPDATE charge_attempts
		SET outcome = $2, failure_reason = NULLIF($3, ''), resolved_at = $4
		WHERE id = $1 AND outcome = 'pending'
		RETURNING `+attemptColumns, id, string(outcome), reason, resolvedAt))
	if err == nil {
		return a, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("resolve charge attempt: %w", err)
	}

	// Nothing updated: unknown id or no longer pending.
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, dunning.ErrAttemptAlreadyResolved
}

func (s *AttemptStore) Submit(ctx context.Context, id uuid.UUID, amount, adjustment int64, submittedAt time.Time) (*dunning.ChargeAttempt, error) {
	a, err := scanAttempt(s.db.QueryRow(ctx, `UPDATE charge_attempts
		SET amount = $2, adjustment = $3, submitted_at = $4
		WHERE id = $1 AND outcome = 'pending' AND submitted_at IS NULL
		RETURNING `+attemptColumns, id, amount, adjustment, submittedAt))
	if err == nil {
		return a, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("submit charge attempt: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsPending() {
		return nil, dunning.ErrAttemptAlreadyResolved
	}
	return nil, dunning.ErrAttemptSubmitted
}

func (s *AttemptStore) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, class dunning.AttemptClass) ([]dunning.ChargeAttempt, error) {
	rows, err := s.db.Query(ctx, `SELECT `+attemptColumns+` FROM charge_attempts
		WHERE subscription_id = $1 AND class = $2 ORDER BY created_at, attempt_number`, subscriptionID, string(class))
	if err != nil {
		return nil, fmt.Errorf("list charge attempts: %w", err)
	}
	return collectAttempts(rows)
}

func (s *AttemptStore) ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]dunning.ChargeAttempt, error) {
	rows, err := s.db.Query(ctx, `SELECT `+attemptColumns+` FROM charge_attempts
		WHERE outcome = 'pending' AND scheduled_at <= $1
			AND (submitted_at IS NULL OR submitted_at <= $2)
		ORDER BY scheduled_at LIMIT $3`, now, staleBefore, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("list due charge attempts: %w", err)
	}
	return collectAttempts(rows)
}

func collectAttempts(rows pgx.Rows) ([]dunning.ChargeAttempt, error) {
	defer rows.Close()

	var out []dunning.ChargeAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan charge attempt: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAttempt(row pgx.Row) (*dunning.ChargeAttempt, error) {
	var (
		a       dunning.ChargeAttempt
		class   string
		outcome string
	)
	if err := row.Scan(&a.ID, &a.SubscriptionID, &a.AttemptNumber, &class, &a.PeriodStart,
		&outcome, &a.FailureReason, &a.Amount, &a.Adjustment,
		&a.ScheduledAt, &a.SubmittedAt, &a.ResolvedAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Class = dunning.AttemptClass(class)
	a.Outcome = dunning.Outcome(outcome)
	utc(&a.PeriodStart, &a.ScheduledAt, &a.CreatedAt)
	utcPtr(a.ResolvedAt, a.SubmittedAt)
	return &a, nil
}
