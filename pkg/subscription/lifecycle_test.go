package subscription_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorpay/pkg/billingcycle"
	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/statemachine"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
)

const day = 24 * time.Hour

var renewalAt = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// paidSubscription is active with its current period paid and ending at renewalAt.
func paidSubscription() subscription.Subscription {
	start := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	return subscription.Subscription{
		ID:                 uuid.New(),
		FanID:              uuid.New(),
		CreatorID:          uuid.New(),
		TierID:             "gold",
		State:              subscription.StateActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   renewalAt,
		Interval:           billingcycle.Monthly,
		AutoRenew:          true,
		Version:            1,
		CreatedAt:          start,
		UpdatedAt:          start,
	}
}

func fire(t *testing.T, sub subscription.Subscription, kind subscription.EventKind, at time.Time) subscription.Result {
	t.Helper()

	id := uuid.New()
	res, err := subscription.Transition(sub, subscription.Event{Kind: kind, At: at, AttemptID: &id})
	require.NoError(t, err)
	return res
}

func intentKinds(intents []subscription.Intent) []subscription.IntentKind {
	kinds := make([]subscription.IntentKind, 0, len(intents))
	for _, in := range intents {
		kinds = append(kinds, in.Kind)
	}
	return kinds
}

func TestTransition_DunningToSuspension(t *testing.T) {
	t.Parallel()

	sub := paidSubscription()
	offsets := []time.Duration{0, 3 * day, 5 * day, 7 * day}
	nextRetry := []time.Duration{3 * day, 5 * day, 7 * day, 10 * day}

	for i, off := range offsets {
		res := fire(t, sub, subscription.EventChargeFailed, renewalAt.Add(off))
		sub = res.Subscription

		assert.Equal(t, subscription.StatePastDue, sub.State)
		assert.Equal(t, i+1, sub.FailedAttempts)
		require.Len(t, res.Intents, 2)
		assert.Equal(t, subscription.IntentDunningEmail, res.Intents[0].Kind)
		assert.Equal(t, i+1, res.Intents[0].AttemptNumber)
		assert.Equal(t, subscription.IntentScheduleCharge, res.Intents[1].Kind)
		assert.Equal(t, renewalAt.Add(nextRetry[i]), res.Intents[1].At)
		assert.Equal(t, dunning.ClassRegular, res.Intents[1].Class)
	}

	// The unpaid renewal period is the current one while recovering.
	assert.Equal(t, renewalAt, sub.CurrentPeriodStart)
	assert.Equal(t, time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)
	assert.True(t, sub.InitialChargePending)
	require.NotNil(t, sub.PastDueSince)
	assert.Equal(t, renewalAt, *sub.PastDueSince)

	finalAt := renewalAt.Add(10 * day)
	res := fire(t, sub, subscription.EventChargeFailed, finalAt)
	sub = res.Subscription
	assert.Equal(t, subscription.StateGracePeriod, sub.State)
	assert.Equal(t, 5, sub.FailedAttempts)
	require.NotNil(t, sub.GraceEndsAt)
	assert.Equal(t, finalAt.Add(subscription.GracePeriod), *sub.GraceEndsAt)
	assert.Equal(t, []subscription.IntentKind{subscription.IntentDunningEmail}, intentKinds(res.Intents))
	assert.True(t, sub.HasAccess())

	_, err := subscription.Transition(sub, subscription.Event{Kind: subscription.EventGraceExpired, At: finalAt.Add(6 * day)})
	require.ErrorIs(t, err, subscription.ErrInvalidTransition)
	assert.True(t, statemachine.IsTransitionRejectedError(err))

	suspendedAt := finalAt.Add(7 * day)
	res = fire(t, sub, subscription.EventGraceExpired, suspendedAt)
	sub = res.Subscription
	assert.Equal(t, subscription.StateSuspended, sub.State)
	require.NotNil(t, sub.SuspendedAt)
	assert.Equal(t, suspendedAt, *sub.SuspendedAt)
	assert.Nil(t, sub.GraceEndsAt)
	assert.False(t, sub.HasAccess())
	assert.Equal(t, []subscription.IntentKind{
		subscription.IntentWinBackEmail,
		subscription.IntentScheduleCharge,
		subscription.IntentRevokeAccess,
	}, intentKinds(res.Intents))
	assert.Equal(t, dunning.ClassWinBack, res.Intents[1].Class)
	assert.Equal(t, suspendedAt.Add(30*day), res.Intents[1].At)
}

func TestTransition_FailureDuringGrace(t *testing.T) {
	t.Parallel()

	sub := paidSubscription()
	for _, off := range []time.Duration{0, 3 * day, 5 * day, 7 * day, 10 * day} {
		sub = fire(t, sub, subscription.EventChargeFailed, renewalAt.Add(off)).Subscription
	}
	require.Equal(t, subscription.StateGracePeriod, sub.State)

	t.Run("before grace elapsed", func(t *testing.T) {
		t.Parallel()

		res := fire(t, sub, subscription.EventChargeFailed, renewalAt.Add(12*day))
		assert.Equal(t, subscription.StateGracePeriod, res.Subscription.State)
		assert.Equal(t, 6, res.Subscription.FailedAttempts)
		assert.Equal(t, []subscription.IntentKind{subscription.IntentDunningEmail}, intentKinds(res.Intents))
	})

	t.Run("after grace elapsed", func(t *testing.T) {
		t.Parallel()

		res := fire(t, sub, subscription.EventChargeFailed, renewalAt.Add(17*day))
		assert.Equal(t, subscription.StateSuspended, res.Subscription.State)
		assert.Contains(t, intentKinds(res.Intents), subscription.IntentRevokeAccess)
	})

	t.Run("payment recovers", func(t *testing.T) {
		t.Parallel()

		res := fire(t, sub, subscription.EventRecoveryPaymentSucceeded, renewalAt.Add(13*day))
		got := res.Subscription
		assert.Equal(t, subscription.StateActive, got.State)
		assert.Zero(t, got.FailedAttempts)
		assert.False(t, got.InitialChargePending)
		assert.Nil(t, got.GraceEndsAt)
		assert.Nil(t, got.PastDueSince)
		assert.Equal(t, renewalAt, got.CurrentPeriodStart)
		require.Len(t, res.Intents, 1)
		assert.Equal(t, subscription.IntentScheduleCharge, res.Intents[0].Kind)
		assert.Equal(t, got.CurrentPeriodEnd, res.Intents[0].At)
	})
}

func TestTransition_TrialEnds(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	trialEnd := createdAt.AddDate(0, 0, 7)
	trial := subscription.Subscription{
		ID:                 uuid.New(),
		State:              subscription.StateTrialing,
		CurrentPeriodStart: createdAt,
		CurrentPeriodEnd:   trialEnd,
		Interval:           billingcycle.Monthly,
		AutoRenew:          true,
		TrialEndsAt:        &trialEnd,
		CreatedAt:          createdAt,
	}

	t.Run("payment succeeds", func(t *testing.T) {
		t.Parallel()

		res := fire(t, trial, subscription.EventTrialPaymentSucceeded, trialEnd)
		got := res.Subscription
		assert.Equal(t, subscription.StateActive, got.State)
		assert.Equal(t, trialEnd, got.CurrentPeriodStart)
		assert.Equal(t, trialEnd.AddDate(0, 1, 0), got.CurrentPeriodEnd)
		assert.False(t, got.InitialChargePending)
		assert.Equal(t, []subscription.IntentKind{subscription.IntentScheduleCharge}, intentKinds(res.Intents))
	})

	t.Run("payment fails", func(t *testing.T) {
		t.Parallel()

		res := fire(t, trial, subscription.EventTrialPaymentFailed, trialEnd)
		got := res.Subscription
		assert.Equal(t, subscription.StatePastDue, got.State)
		assert.Equal(t, 1, got.FailedAttempts)
		assert.True(t, got.InitialChargePending)
		assert.Equal(t, trialEnd, got.CurrentPeriodStart)
		assert.True(t, got.HasAccess())

		recovered := fire(t, got, subscription.EventRecoveryPaymentSucceeded, trialEnd.Add(3*day)).Subscription
		assert.Equal(t, subscription.StateActive, recovered.State)
		assert.Equal(t, trialEnd, recovered.CurrentPeriodStart, "paying an outstanding period does not advance it")
	})
}

func TestTransition_Idempotency(t *testing.T) {
	t.Parallel()

	sub := paidSubscription()
	attemptID := uuid.New()
	ev := subscription.Event{Kind: subscription.EventChargeFailed, At: renewalAt, AttemptID: &attemptID}

	first, err := subscription.Transition(sub, ev)
	require.NoError(t, err)
	require.NotEmpty(t, first.Intents)

	second, err := subscription.Transition(first.Subscription, ev)
	require.NoError(t, err)
	assert.Empty(t, second.Intents)
	assert.Equal(t, first.Subscription, second.Subscription)
	assert.Equal(t, 1, second.Subscription.FailedAttempts)
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	sub := paidSubscription()
	sub.AppliedAttempts = []uuid.UUID{uuid.New()}
	snapshot := sub.Clone()

	_ = fire(t, sub, subscription.EventChargeFailed, renewalAt)
	assert.Equal(t, snapshot, sub)
}

func TestTransition_Cancellation(t *testing.T) {
	t.Parallel()

	t.Run("cancel at period end", func(t *testing.T) {
		t.Parallel()

		sub := fire(t, paidSubscription(), subscription.EventCancelRequested, renewalAt.Add(-10*day)).Subscription
		assert.Equal(t, subscription.StateActive, sub.State)
		assert.True(t, sub.CancelAtPeriodEnd)
		assert.False(t, sub.AutoRenew)

		_, err := subscription.Transition(sub, subscription.Event{Kind: subscription.EventPeriodEndedWithCancelFlag, At: renewalAt.Add(-day)})
		require.ErrorIs(t, err, subscription.ErrInvalidTransition)

		res := fire(t, sub, subscription.EventPeriodEndedWithCancelFlag, renewalAt)
		assert.Equal(t, subscription.StateCancelled, res.Subscription.State)
		require.NotNil(t, res.Subscription.CancelledAt)
		assert.Equal(t, []subscription.IntentKind{subscription.IntentRevokeAccess}, intentKinds(res.Intents))
	})

	t.Run("period end without flag", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.Transition(paidSubscription(), subscription.Event{Kind: subscription.EventPeriodEndedWithCancelFlag, At: renewalAt})
		assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
	})

	t.Run("immediate cancel while past due", func(t *testing.T) {
		t.Parallel()

		sub := fire(t, paidSubscription(), subscription.EventChargeFailed, renewalAt).Subscription
		res := fire(t, sub, subscription.EventImmediateCancelRequested, renewalAt.Add(day))
		assert.Equal(t, subscription.StateCancelled, res.Subscription.State)
		assert.False(t, res.Subscription.AutoRenew)
		assert.Equal(t, []subscription.IntentKind{subscription.IntentRevokeAccess}, intentKinds(res.Intents))
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		t.Parallel()

		cancelled := fire(t, paidSubscription(), subscription.EventImmediateCancelRequested, renewalAt).Subscription
		snapshot := cancelled.Clone()

		for _, kind := range []subscription.EventKind{
			subscription.EventImmediateCancelRequested,
			subscription.EventCancelRequested,
			subscription.EventReactivationRequested,
			subscription.EventChargeSucceeded,
		} {
			res, err := subscription.Transition(cancelled, subscription.Event{Kind: kind, At: renewalAt.Add(day)})
			require.ErrorIs(t, err, subscription.ErrInvalidTransition, kind)
			assert.True(t, statemachine.IsNoTransitionAvailableError(err))
			assert.Empty(t, res.Intents)
		}
		assert.Equal(t, snapshot, cancelled)
		assert.Empty(t, subscription.AvailableEvents(subscription.StateCancelled))
	})
}

func suspendedSubscription(t *testing.T) subscription.Subscription {
	t.Helper()

	sub := paidSubscription()
	for _, off := range []time.Duration{0, 3 * day, 5 * day, 7 * day, 10 * day} {
		sub = fire(t, sub, subscription.EventChargeFailed, renewalAt.Add(off)).Subscription
	}
	sub = fire(t, sub, subscription.EventGraceExpired, renewalAt.Add(17*day)).Subscription
	require.Equal(t, subscription.StateSuspended, sub.State)
	return sub
}

func TestTransition_WinBack(t *testing.T) {
	t.Parallel()

	sub := suspendedSubscription(t)
	at := sub.SuspendedAt.Add(30 * day)

	res := fire(t, sub, subscription.EventWinBackPaymentSucceeded, at)
	got := res.Subscription
	assert.Equal(t, subscription.StateReactivating, got.State)
	assert.Equal(t, at, got.CurrentPeriodStart)
	assert.Equal(t, at.AddDate(0, 1, 0), got.CurrentPeriodEnd)
	assert.False(t, got.InitialChargePending)
	assert.Nil(t, got.SuspendedAt)
	assert.True(t, got.HasAccess())
	assert.Equal(t, []subscription.IntentKind{
		subscription.IntentScheduleCharge,
		subscription.IntentRestoreAccess,
	}, intentKinds(res.Intents))

	renewed := fire(t, got, subscription.EventChargeSucceeded, got.CurrentPeriodEnd).Subscription
	assert.Equal(t, subscription.StateActive, renewed.State)
	assert.Equal(t, at.AddDate(0, 1, 0), renewed.CurrentPeriodStart)
	assert.Equal(t, at.AddDate(0, 2, 0), renewed.CurrentPeriodEnd)
}

func TestTransition_Reactivation(t *testing.T) {
	t.Parallel()

	sub := suspendedSubscription(t)
	at := sub.SuspendedAt.Add(5 * day)

	res := fire(t, sub, subscription.EventReactivationRequested, at)
	pending := res.Subscription
	assert.Equal(t, subscription.StateReactivating, pending.State)
	assert.True(t, pending.InitialChargePending)
	assert.False(t, pending.HasAccess())
	require.Len(t, res.Intents, 1)
	assert.Equal(t, subscription.IntentScheduleCharge, res.Intents[0].Kind)
	assert.Equal(t, at, res.Intents[0].At)

	t.Run("charge succeeds", func(t *testing.T) {
		t.Parallel()

		res := fire(t, pending, subscription.EventChargeSucceeded, at)
		assert.Equal(t, subscription.StateActive, res.Subscription.State)
		assert.Equal(t, at, res.Subscription.CurrentPeriodStart)
		assert.Equal(t, []subscription.IntentKind{
			subscription.IntentScheduleCharge,
			subscription.IntentRestoreAccess,
		}, intentKinds(res.Intents))
	})

	t.Run("charge fails", func(t *testing.T) {
		t.Parallel()

		res := fire(t, pending, subscription.EventChargeFailed, at)
		assert.Equal(t, subscription.StateSuspended, res.Subscription.State)
		assert.Equal(t, []subscription.IntentKind{
			subscription.IntentDunningEmail,
			subscription.IntentWinBackEmail,
			subscription.IntentScheduleCharge,
		}, intentKinds(res.Intents))
	})
}

func TestTransition_InvalidEvent(t *testing.T) {
	t.Parallel()

	_, err := subscription.Transition(paidSubscription(), subscription.Event{Kind: subscription.EventChargeFailed})
	assert.ErrorIs(t, err, subscription.ErrInvalidEvent)

	_, err = subscription.Transition(paidSubscription(), subscription.Event{Kind: subscription.EventWinBackPaymentSucceeded, At: renewalAt})
	assert.ErrorIs(t, err, subscription.ErrInvalidTransition)
	assert.True(t, subscription.IsInvalidTransition(err))
}

func TestAvailableEvents(t *testing.T) {
	t.Parallel()

	assert.ElementsMatch(t, []subscription.EventKind{
		subscription.EventImmediateCancelRequested,
		subscription.EventReactivationRequested,
		subscription.EventWinBackPaymentSucceeded,
	}, subscription.AvailableEvents(subscription.StateSuspended))
}

func TestSubscription_ExpiryEvent(t *testing.T) {
	t.Parallel()

	t.Run("nothing due for a paid subscription", func(t *testing.T) {
		t.Parallel()
		sub := paidSubscription()
		_, ok := sub.ExpiryEvent(renewalAt.Add(day))
		assert.False(t, ok)
	})

	t.Run("period end with cancel flag", func(t *testing.T) {
		t.Parallel()
		sub := fire(t, paidSubscription(), subscription.EventCancelRequested, renewalAt.Add(-5*day)).Subscription

		_, ok := sub.ExpiryEvent(renewalAt.Add(-time.Minute))
		assert.False(t, ok)

		ev, ok := sub.ExpiryEvent(renewalAt)
		require.True(t, ok)
		assert.Equal(t, subscription.EventPeriodEndedWithCancelFlag, ev.Kind)

		res, err := subscription.Transition(sub, ev)
		require.NoError(t, err)
		assert.Equal(t, subscription.StateCancelled, res.Subscription.State)
	})

	t.Run("grace expiry", func(t *testing.T) {
		t.Parallel()
		sub := paidSubscription()
		for _, off := range []time.Duration{0, 3 * day, 5 * day, 7 * day, 10 * day} {
			sub = fire(t, sub, subscription.EventChargeFailed, renewalAt.Add(off)).Subscription
		}
		require.Equal(t, subscription.StateGracePeriod, sub.State)

		_, ok := sub.ExpiryEvent(renewalAt.Add(16 * day))
		assert.False(t, ok)

		ev, ok := sub.ExpiryEvent(renewalAt.Add(17 * day))
		require.True(t, ok)
		assert.Equal(t, subscription.EventGraceExpired, ev.Kind)
	})

	t.Run("trial ending with cancel flag", func(t *testing.T) {
		t.Parallel()
		trialEnd := renewalAt
		sub := paidSubscription()
		sub.State = subscription.StateTrialing
		sub.TrialEndsAt = &trialEnd
		sub = fire(t, sub, subscription.EventCancelRequested, renewalAt.Add(-day)).Subscription

		ev, ok := sub.ExpiryEvent(renewalAt)
		require.True(t, ok)
		assert.Equal(t, subscription.EventImmediateCancelRequested, ev.Kind)
	})
}
