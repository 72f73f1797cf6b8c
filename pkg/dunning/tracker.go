package dunning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSubmitTimeout is how long a submitted attempt may wait for the
// processor's outcome before it is due again.
const DefaultSubmitTimeout = 72 * time.Hour

// Tracker records charge attempts and schedules them on the retry policy.
type Tracker struct {
	store         AttemptStore
	now           func() time.Time
	submitTimeout time.Duration
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithSubmitTimeout sets how long a submitted attempt waits for its outcome.
func WithSubmitTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.submitTimeout = d
		}
	}
}

// NewTracker creates a tracker backed by store.
func NewTracker(store AttemptStore, opts ...TrackerOption) (*Tracker, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	t := &Tracker{
		store:         store,
		now:           func() time.Time { return time.Now().UTC() },
		submitTimeout: DefaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RecordAttempt creates the next pending regular attempt for the billing
// period starting at periodStart. The first attempt of a cycle is due
// immediately; later ones follow DefaultPolicy relative to the first.
func (t *Tracker) RecordAttempt(ctx context.Context, subscriptionID uuid.UUID, periodStart time.Time) (*ChargeAttempt, error) {
	cycle, err := t.cycle(ctx, subscriptionID, ClassRegular, periodStart)
	if err != nil {
		return nil, err
	}

	anchor := t.now()
	if len(cycle) > 0 {
		anchor = cycle[0].ScheduledAt
	}
	return t.create(ctx, subscriptionID, ClassRegular, periodStart, anchor, len(cycle)+1)
}

// ScheduleAttempt creates the next pending attempt of class for periodStart
// at an explicit time chosen by the caller, e.g. a renewal at period end or
// a retry requested by the fan. The policy limit is not applied.
func (t *Tracker) ScheduleAttempt(ctx context.Context, subscriptionID uuid.UUID, class AttemptClass, periodStart, scheduledAt time.Time) (*ChargeAttempt, error) {
	cycle, err := t.cycle(ctx, subscriptionID, class, periodStart)
	if err != nil {
		return nil, err
	}
	return t.insert(ctx, subscriptionID, class, periodStart, scheduledAt, len(cycle)+1)
}

// RecordWinBackAttempt schedules a win-back attempt relative to suspendedAt.
func (t *Tracker) RecordWinBackAttempt(ctx context.Context, subscriptionID uuid.UUID, suspendedAt time.Time) (*ChargeAttempt, error) {
	cycle, err := t.cycle(ctx, subscriptionID, ClassWinBack, suspendedAt)
	if err != nil {
		return nil, err
	}
	return t.create(ctx, subscriptionID, ClassWinBack, suspendedAt, suspendedAt, len(cycle)+1)
}

// RecordAdjustment creates a one-off charge of amount for a mid-period
// tier upgrade, due immediately. Several adjustments may be pending at once.
func (t *Tracker) RecordAdjustment(ctx context.Context, subscriptionID uuid.UUID, periodStart time.Time, amount int64) (*ChargeAttempt, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	all, err := t.store.ListBySubscription(ctx, subscriptionID, ClassAdjustment)
	if err != nil {
		return nil, err
	}

	attempt := &ChargeAttempt{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		AttemptNumber:  len(all) + 1,
		Class:          ClassAdjustment,
		PeriodStart:    periodStart,
		Outcome:        OutcomePending,
		Amount:         amount,
		ScheduledAt:    t.now(),
		CreatedAt:      t.now(),
	}
	if err := t.store.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	return attempt, nil
}

// Submit records that a pending attempt was handed to the payment processor
// for amount, of which adjustment came from pending proration. The attempt is
// not due again until the submit timeout passes without an outcome.
func (t *Tracker) Submit(ctx context.Context, attemptID uuid.UUID, amount, adjustment int64) (*ChargeAttempt, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	attempt, err := t.store.Submit(ctx, attemptID, amount, adjustment, t.now())
	if err != nil {
		return nil, fmt.Errorf("submit attempt %s: %w", attemptID, err)
	}
	return attempt, nil
}

// ResolveAttempt sets the final outcome of a pending attempt.
// A failure reason is only kept for failed attempts.
func (t *Tracker) ResolveAttempt(ctx context.Context, attemptID uuid.UUID, outcome Outcome, reason string) (*ChargeAttempt, error) {
	switch outcome {
	case OutcomeSucceeded:
		reason = ""
	case OutcomeFailed:
		if reason == "" {
			reason = "unspecified"
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	attempt, err := t.store.Resolve(ctx, attemptID, outcome, reason, t.now())
	if err != nil {
		return nil, fmt.Errorf("resolve attempt %s: %w", attemptID, err)
	}
	return attempt, nil
}

// FailedInCycle returns the number of failed regular attempts in the current
// cycle of periodStart. It is zero right after a success.
func (t *Tracker) FailedInCycle(ctx context.Context, subscriptionID uuid.UUID, periodStart time.Time) (int, error) {
	all, err := t.store.ListBySubscription(ctx, subscriptionID, ClassRegular)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, a := range currentCycle(all, periodStart) {
		if a.Failed() {
			failed++
		}
	}
	return failed, nil
}

// DueAttempts lists pending attempts that should be executed now, including
// submitted ones whose outcome did not arrive within the submit timeout.
func (t *Tracker) DueAttempts(ctx context.Context, limit int) ([]ChargeAttempt, error) {
	now := t.now()
	return t.store.ListDue(ctx, now, now.Add(-t.submitTimeout), limit)
}

// Superseded reports whether a later attempt of the same class for the same
// subscription has already been resolved, which makes attempt's outcome stale.
func (t *Tracker) Superseded(ctx context.Context, attempt ChargeAttempt) (bool, error) {
	all, err := t.store.ListBySubscription(ctx, attempt.SubscriptionID, attempt.Class)
	if err != nil {
		return false, err
	}
	seen := false
	for _, a := range all {
		if a.ID == attempt.ID {
			seen = true
			continue
		}
		if seen && !a.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

// Get returns a single attempt.
func (t *Tracker) Get(ctx context.Context, attemptID uuid.UUID) (*ChargeAttempt, error) {
	return t.store.Get(ctx, attemptID)
}

func (t *Tracker) cycle(ctx context.Context, subscriptionID uuid.UUID, class AttemptClass, periodStart time.Time) ([]ChargeAttempt, error) {
	all, err := t.store.ListBySubscription(ctx, subscriptionID, class)
	if err != nil {
		return nil, err
	}
	cycle := currentCycle(all, periodStart)
	for _, a := range cycle {
		if a.IsPending() {
			return nil, fmt.Errorf("%w: attempt %s", ErrAttemptPending, a.ID)
		}
	}
	return cycle, nil
}

func (t *Tracker) create(ctx context.Context, subscriptionID uuid.UUID, class AttemptClass, periodStart, anchor time.Time, n int) (*ChargeAttempt, error) {
	scheduledAt, err := DefaultPolicy.ScheduleFor(class, anchor, n)
	if err != nil {
		return nil, err
	}
	return t.insert(ctx, subscriptionID, class, periodStart, scheduledAt, n)
}

func (t *Tracker) insert(ctx context.Context, subscriptionID uuid.UUID, class AttemptClass, periodStart, scheduledAt time.Time, n int) (*ChargeAttempt, error) {
	attempt := &ChargeAttempt{
		ID:             uuid.New(),
		SubscriptionID: subscriptionID,
		AttemptNumber:  n,
		Class:          class,
		PeriodStart:    periodStart,
		Outcome:        OutcomePending,
		ScheduledAt:    scheduledAt,
		CreatedAt:      t.now(),
	}
	if err := t.store.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	return attempt, nil
}

// currentCycle keeps the attempts for periodStart made after the last success.
func currentCycle(attempts []ChargeAttempt, periodStart time.Time) []ChargeAttempt {
	var cycle []ChargeAttempt
	for _, a := range attempts {
		if !a.PeriodStart.Equal(periodStart) {
			continue
		}
		if a.Succeeded() {
			cycle = cycle[:0]
			continue
		}
		cycle = append(cycle, a)
	}
	return cycle
}
