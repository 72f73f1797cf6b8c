package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorpay/pkg/billingcycle"
	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
	"github.com/dmitrymomot/creatorpay/svc/billing"
)

func TestNewEngine(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { billing.NewEngine(nil, nil) })
}

func TestEngine_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("without trial charges immediately", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		sub, err := f.engine.Subscribe(ctx, uuid.New(), creatorID, "gold")
		require.NoError(t, err)
		assert.Equal(t, subscription.StateActive, sub.State)
		assert.True(t, sub.InitialChargePending)
		assert.True(t, f.access.HasAccess(sub.FanID, sub.CreatorID))

		due, err := f.tracker.DueAttempts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, sub.ID, due[0].SubscriptionID)
		assert.Equal(t, startAt, due[0].ScheduledAt)
	})

	t.Run("trial charges at trial end", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		sub, err := f.engine.Subscribe(ctx, uuid.New(), creatorID, "silver_trial")
		require.NoError(t, err)
		assert.Equal(t, subscription.StateTrialing, sub.State)

		assert.Zero(t, f.sweepAt(t, startAt.Add(6*day)).Charged)

		f.charger.push(dunning.OutcomeSucceeded, "")
		stats := f.sweepAt(t, startAt.Add(7*day))
		assert.Equal(t, 1, stats.Resolved)

		sub = f.get(t, sub.ID)
		assert.Equal(t, subscription.StateActive, sub.State)
		assert.Equal(t, startAt.Add(7*day), sub.CurrentPeriodStart)
		assert.Equal(t, int64(499), f.charger.requests[0].Amount.Amount)
	})

	t.Run("second live subscription is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		fan := uuid.New()

		_, err := f.engine.Subscribe(context.Background(), fan, creatorID, "gold")
		require.NoError(t, err)
		_, err = f.engine.Subscribe(context.Background(), fan, creatorID, "silver_trial")
		assert.ErrorIs(t, err, subscription.ErrSubscriptionAlreadyExists)
	})
}

func TestEngine_RecoveryToSuspension(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sub := f.paidSubscription(t)
	renewal := sub.CurrentPeriodEnd

	retries := []time.Duration{0, 3 * day, 5 * day, 7 * day, 10 * day}
	for i, off := range retries {
		f.charger.push(dunning.OutcomeFailed, "card_declined")
		stats := f.sweepAt(t, renewal.Add(off))
		require.Equal(t, 1, stats.Resolved, "retry %d", i+1)

		current := f.get(t, sub.ID)
		assert.Equal(t, i+1, current.FailedAttempts)
		assert.True(t, f.access.HasAccess(sub.FanID, sub.CreatorID))
	}

	current := f.get(t, sub.ID)
	require.Equal(t, subscription.StateGracePeriod, current.State)
	require.NotNil(t, current.GraceEndsAt)
	assert.Equal(t, renewal.Add(17*day), *current.GraceEndsAt)
	assert.Equal(t, 5, f.notifier.sent(subscription.IntentDunningEmail))

	// No automatic retries during grace.
	assert.Zero(t, f.sweepAt(t, renewal.Add(16*day)).Charged)

	stats := f.sweepAt(t, renewal.Add(17*day))
	assert.Equal(t, 1, stats.Expired)

	current = f.get(t, sub.ID)
	assert.Equal(t, subscription.StateSuspended, current.State)
	assert.False(t, f.access.HasAccess(sub.FanID, sub.CreatorID))
	assert.Equal(t, 1, f.notifier.sent(subscription.IntentWinBackEmail))

	// Single win-back attempt 30 days after suspension.
	assert.Zero(t, f.sweepAt(t, renewal.Add(46*day)).Charged)

	winBackAt := renewal.Add(47 * day)
	f.charger.push(dunning.OutcomeSucceeded, "")
	stats = f.sweepAt(t, winBackAt)
	require.Equal(t, 1, stats.Resolved)

	current = f.get(t, sub.ID)
	assert.Equal(t, subscription.StateReactivating, current.State)
	assert.False(t, current.InitialChargePending)
	assert.Equal(t, winBackAt, current.CurrentPeriodStart)
	assert.True(t, f.access.HasAccess(sub.FanID, sub.CreatorID))

	f.charger.push(dunning.OutcomeSucceeded, "")
	f.sweepAt(t, current.CurrentPeriodEnd)
	assert.Equal(t, subscription.StateActive, f.get(t, sub.ID).State)
}

func TestEngine_ResolveCharge(t *testing.T) {
	t.Parallel()

	t.Run("redelivery is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		sub, err := f.engine.Subscribe(ctx, uuid.New(), creatorID, "gold")
		require.NoError(t, err)
		due, err := f.tracker.DueAttempts(ctx, 1)
		require.NoError(t, err)
		require.Len(t, due, 1)

		first, err := f.engine.ResolveCharge(ctx, due[0].ID, dunning.OutcomeFailed, "insufficient_funds")
		require.NoError(t, err)
		assert.True(t, first.Applied)
		assert.False(t, first.Duplicate)
		assert.Equal(t, subscription.StatePastDue, first.Subscription.State)
		assert.NotEmpty(t, first.Intents)

		second, err := f.engine.ResolveCharge(ctx, due[0].ID, dunning.OutcomeFailed, "insufficient_funds")
		require.NoError(t, err)
		assert.True(t, second.Duplicate)
		assert.Empty(t, second.Intents)

		current := f.get(t, sub.ID)
		assert.Equal(t, 1, current.FailedAttempts)
		assert.Equal(t, first.Subscription.Version, current.Version)
		assert.Equal(t, 1, f.notifier.sent(subscription.IntentDunningEmail))
	})

	t.Run("conflicting outcome", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		_, err := f.engine.Subscribe(ctx, uuid.New(), creatorID, "gold")
		require.NoError(t, err)
		due, err := f.tracker.DueAttempts(ctx, 1)
		require.NoError(t, err)

		_, err = f.engine.ResolveCharge(ctx, due[0].ID, dunning.OutcomeSucceeded, "")
		require.NoError(t, err)
		_, err = f.engine.ResolveCharge(ctx, due[0].ID, dunning.OutcomeFailed, "late_decline")
		assert.ErrorIs(t, err, billing.ErrOutcomeConflict)
	})

	t.Run("unknown attempt", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.engine.ResolveCharge(context.Background(), uuid.New(), dunning.OutcomeSucceeded, "")
		assert.ErrorIs(t, err, dunning.ErrAttemptNotFound)
	})

	t.Run("success schedules the renewal at period end", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.paidSubscription(t)

		assert.Zero(t, f.sweepAt(t, sub.CurrentPeriodEnd.Add(-time.Minute)).Charged)

		f.charger.push(dunning.OutcomeSucceeded, "")
		stats := f.sweepAt(t, sub.CurrentPeriodEnd)
		assert.Equal(t, 1, stats.Resolved)

		renewed := f.get(t, sub.ID)
		assert.Equal(t, sub.CurrentPeriodEnd, renewed.CurrentPeriodStart)
		assert.Equal(t, subscription.StateActive, renewed.State)
	})
}

func TestEngine_Cancel(t *testing.T) {
	t.Parallel()

	t.Run("at period end voids the renewal", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.paidSubscription(t)

		res, err := f.engine.Cancel(context.Background(), sub.ID, false)
		require.NoError(t, err)
		assert.True(t, res.Subscription.CancelAtPeriodEnd)
		assert.Equal(t, subscription.StateActive, res.Subscription.State)

		stats := f.sweepAt(t, sub.CurrentPeriodEnd)
		assert.Equal(t, 1, stats.Expired)

		current := f.get(t, sub.ID)
		assert.Equal(t, subscription.StateCancelled, current.State)
		assert.False(t, f.access.HasAccess(sub.FanID, sub.CreatorID))
		assert.Equal(t, 1, f.charger.calls(), "renewal must not reach the processor")

		due, err := f.tracker.DueAttempts(context.Background(), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("immediately", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.paidSubscription(t)

		res, err := f.engine.Cancel(context.Background(), sub.ID, true)
		require.NoError(t, err)
		assert.Equal(t, subscription.StateCancelled, res.Subscription.State)
		assert.False(t, f.access.HasAccess(sub.FanID, sub.CreatorID))

		_, err = f.engine.Cancel(context.Background(), sub.ID, true)
		assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
	})
}

func TestEngine_Reactivate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sub := f.paidSubscription(t)
	renewal := sub.CurrentPeriodEnd
	for _, off := range []time.Duration{0, 3 * day, 5 * day, 7 * day, 10 * day} {
		f.charger.push(dunning.OutcomeFailed, "card_declined")
		f.sweepAt(t, renewal.Add(off))
	}
	f.sweepAt(t, renewal.Add(17*day))
	require.Equal(t, subscription.StateSuspended, f.get(t, sub.ID).State)

	reactivateAt := renewal.Add(20 * day)
	f.clock.Set(reactivateAt)
	res, err := f.engine.Reactivate(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StateReactivating, res.Subscription.State)
	assert.True(t, res.Subscription.InitialChargePending)
	assert.False(t, f.access.HasAccess(sub.FanID, sub.CreatorID))

	f.charger.push(dunning.OutcomeSucceeded, "")
	stats := f.sweepAt(t, reactivateAt)
	assert.Equal(t, 1, stats.Resolved)

	current := f.get(t, sub.ID)
	assert.Equal(t, subscription.StateActive, current.State)
	assert.True(t, f.access.HasAccess(sub.FanID, sub.CreatorID))

	// The pending win-back attempt is voided once the subscription is live again.
	stats = f.sweepAt(t, renewal.Add(47*day))
	assert.Zero(t, stats.Resolved)
	assert.Equal(t, 7, f.charger.calls())
}

func TestEngine_RetryNow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sub := f.paidSubscription(t)

	_, err := f.engine.RetryNow(context.Background(), sub.ID)
	assert.ErrorIs(t, err, subscription.ErrInvalidSubscriptionState)

	renewal := sub.CurrentPeriodEnd
	for _, off := range []time.Duration{0, 3 * day, 5 * day, 7 * day, 10 * day} {
		f.charger.push(dunning.OutcomeFailed, "card_declined")
		f.sweepAt(t, renewal.Add(off))
	}
	require.Equal(t, subscription.StateGracePeriod, f.get(t, sub.ID).State)

	f.clock.Set(renewal.Add(12 * day))
	attempt, err := f.engine.RetryNow(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, attempt.AttemptNumber)

	f.charger.push(dunning.OutcomeSucceeded, "")
	f.sweepAt(t, renewal.Add(12*day))

	current := f.get(t, sub.ID)
	assert.Equal(t, subscription.StateActive, current.State)
	assert.Zero(t, current.FailedAttempts)
	assert.Nil(t, current.GraceEndsAt)
}

func TestEngine_ChangeTier(t *testing.T) {
	t.Parallel()

	// 21 of 31 days remain: (999 - 499) * 21 / 31 rounds to 339.
	changeAt := startAt.Add(10 * day)

	t.Run("immediate upgrade is charged at once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, subscription.WithProrationPolicy(billingcycle.ProrateImmediately))
		sub := f.paidOn(t, "silver")
		ctx := context.Background()

		f.clock.Set(changeAt)
		change, err := f.engine.ChangeTier(ctx, sub.ID, "gold")
		require.NoError(t, err)
		assert.Equal(t, int64(339), change.Proration.Amount)
		assert.True(t, change.Proration.ChargeNow)
		require.NotNil(t, change.ChargeAttemptID)
		assert.Zero(t, change.Subscription.PendingAdjustment)

		f.charger.push(dunning.OutcomeSucceeded, "")
		stats := f.sweepAt(t, changeAt)
		assert.Equal(t, 1, stats.Charged)

		req := f.charger.last()
		assert.Equal(t, *change.ChargeAttemptID, req.Attempt.ID)
		assert.Equal(t, dunning.ClassAdjustment, req.Attempt.Class)
		assert.Equal(t, subscription.Money{Amount: 339, Currency: "USD"}, req.Amount)

		attempt, err := f.tracker.Get(ctx, *change.ChargeAttemptID)
		require.NoError(t, err)
		assert.True(t, attempt.Succeeded())

		current := f.get(t, sub.ID)
		assert.Equal(t, sub.CurrentPeriodEnd, current.CurrentPeriodEnd, "a proration charge does not renew")
		assert.Zero(t, current.PendingAdjustment)

		f.charger.push(dunning.OutcomeSucceeded, "")
		f.sweepAt(t, sub.CurrentPeriodEnd)
		assert.Equal(t, subscription.Money{Amount: 999, Currency: "USD"}, f.charger.last().Amount)
	})

	t.Run("failed upgrade charge moves to the next invoice", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, subscription.WithProrationPolicy(billingcycle.ProrateImmediately))
		sub := f.paidOn(t, "silver")

		f.clock.Set(changeAt)
		_, err := f.engine.ChangeTier(context.Background(), sub.ID, "gold")
		require.NoError(t, err)

		f.charger.push(dunning.OutcomeFailed, "card_declined")
		f.sweepAt(t, changeAt)

		current := f.get(t, sub.ID)
		assert.Equal(t, subscription.StateActive, current.State)
		assert.Equal(t, int64(339), current.PendingAdjustment)
		assert.Zero(t, current.FailedAttempts)

		f.charger.push(dunning.OutcomeSucceeded, "")
		f.sweepAt(t, sub.CurrentPeriodEnd)
		assert.Equal(t, subscription.Money{Amount: 1338, Currency: "USD"}, f.charger.last().Amount)
		assert.Zero(t, f.get(t, sub.ID).PendingAdjustment)
	})

	t.Run("next invoice upgrade is added to the renewal", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, subscription.WithProrationPolicy(billingcycle.ProrateNextInvoice))
		sub := f.paidOn(t, "silver")

		f.clock.Set(changeAt)
		change, err := f.engine.ChangeTier(context.Background(), sub.ID, "gold")
		require.NoError(t, err)
		assert.False(t, change.Proration.ChargeNow)
		assert.Nil(t, change.ChargeAttemptID)
		assert.Equal(t, int64(339), change.Subscription.PendingAdjustment)

		assert.Zero(t, f.sweepAt(t, changeAt).Charged)

		f.charger.push(dunning.OutcomeSucceeded, "")
		f.sweepAt(t, sub.CurrentPeriodEnd)
		req := f.charger.last()
		assert.Equal(t, subscription.Money{Amount: 1338, Currency: "USD"}, req.Amount)
		assert.Equal(t, int64(339), req.Attempt.Adjustment)
		assert.Zero(t, f.get(t, sub.ID).PendingAdjustment)
	})

	t.Run("downgrade credit lowers the renewal", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.paidSubscription(t)

		f.clock.Set(changeAt)
		change, err := f.engine.ChangeTier(context.Background(), sub.ID, "silver")
		require.NoError(t, err)
		assert.Equal(t, int64(-339), change.Proration.Amount)
		assert.Nil(t, change.ChargeAttemptID)

		f.charger.push(dunning.OutcomeSucceeded, "")
		f.sweepAt(t, sub.CurrentPeriodEnd)
		assert.Equal(t, subscription.Money{Amount: 160, Currency: "USD"}, f.charger.last().Amount)

		renewed := f.get(t, sub.ID)
		assert.Zero(t, renewed.PendingAdjustment)

		f.charger.push(dunning.OutcomeSucceeded, "")
		f.sweepAt(t, renewed.CurrentPeriodEnd)
		assert.Equal(t, subscription.Money{Amount: 499, Currency: "USD"}, f.charger.last().Amount)
	})

	t.Run("declined renewal keeps the credit", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.paidSubscription(t)

		f.clock.Set(changeAt)
		_, err := f.engine.ChangeTier(context.Background(), sub.ID, "silver")
		require.NoError(t, err)

		f.charger.push(dunning.OutcomeFailed, "card_declined")
		f.sweepAt(t, sub.CurrentPeriodEnd)
		assert.Equal(t, int64(-339), f.get(t, sub.ID).PendingAdjustment)

		f.charger.push(dunning.OutcomeSucceeded, "")
		f.sweepAt(t, sub.CurrentPeriodEnd.Add(3*day))
		assert.Equal(t, subscription.Money{Amount: 160, Currency: "USD"}, f.charger.last().Amount)
		assert.Zero(t, f.get(t, sub.ID).PendingAdjustment)
	})
}

func TestEngine_ReplayAfterManyRenewals(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sub := f.paidSubscription(t)
	ctx := context.Background()
	first := f.charger.request(0).Attempt

	for range 17 {
		current := f.get(t, sub.ID)
		f.charger.push(dunning.OutcomeSucceeded, "")
		require.Equal(t, 1, f.sweepAt(t, current.CurrentPeriodEnd).Resolved)
	}
	before := f.get(t, sub.ID)
	require.False(t, before.HasApplied(first.ID), "the first attempt left the applied window")

	out, err := f.engine.ResolveCharge(ctx, first.ID, dunning.OutcomeSucceeded, "")
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.False(t, out.Applied)
	assert.Empty(t, out.Intents)

	after := f.get(t, sub.ID)
	assert.Equal(t, before.CurrentPeriodEnd, after.CurrentPeriodEnd)
	assert.Equal(t, before.Version, after.Version)
}
