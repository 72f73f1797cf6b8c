package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/creatorpay/pkg/billingcycle"
	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/statemachine"
)

// GracePeriod is how long a subscription stays in grace_period after its final failed retry.
const GracePeriod = 7 * 24 * time.Hour

// transition carries the draft subscription through guards and actions.
type transition struct {
	sub     *Subscription
	event   Event
	intents []Intent
}

func (t *transition) emit(kind IntentKind, at time.Time, mutate ...func(*Intent)) {
	in := Intent{Kind: kind, SubscriptionID: t.sub.ID, At: at}
	for _, fn := range mutate {
		fn(&in)
	}
	t.intents = append(t.intents, in)
}

func guard(fn func(t *transition) bool) statemachine.Guard {
	return func(_ statemachine.State, _ statemachine.Event, data any) bool {
		t, ok := data.(*transition)
		return ok && fn(t)
	}
}

func action(fn func(t *transition, to State) error) statemachine.Action {
	return func(_, to statemachine.State, _ statemachine.Event, data any) error {
		t, ok := data.(*transition)
		if !ok {
			return fmt.Errorf("unexpected transition data %T", data)
		}
		return fn(t, to.(State))
	}
}

var (
	nonTerminal = []statemachine.State{
		StateTrialing, StateActive, StatePastDue, StateGracePeriod, StateSuspended, StateReactivating,
	}
	cancellable = []statemachine.State{
		StateTrialing, StateActive, StatePastDue, StateGracePeriod,
	}
)

var lifecycle = newLifecycle()

func newLifecycle() statemachine.Machine {
	opts := []statemachine.Option{
		statemachine.WithTransition(StateTrialing, StateActive, EventTrialPaymentSucceeded,
			statemachine.WithActions(action(openFirstTerm), action(settle))),
		statemachine.WithTransition(StateTrialing, StatePastDue, EventTrialPaymentFailed,
			statemachine.WithActions(action(openFirstTerm), action(recordFailure))),

		// Guarded branches are evaluated in registration order.
		statemachine.WithTransition(StateActive, StatePastDue, EventChargeFailed,
			statemachine.WithActions(action(openRenewalTerm), action(recordFailure))),
		statemachine.WithTransition(StatePastDue, StateGracePeriod, EventChargeFailed,
			statemachine.WithGuard(guard(isFinalRetry)),
			statemachine.WithActions(action(recordFailure), action(enterGrace))),
		statemachine.WithTransition(StatePastDue, StatePastDue, EventChargeFailed,
			statemachine.WithAction(action(recordFailure))),
		statemachine.WithTransition(StateGracePeriod, StateSuspended, EventChargeFailed,
			statemachine.WithGuard(guard(graceElapsed)),
			statemachine.WithActions(action(recordFailure), action(suspend))),
		statemachine.WithTransition(StateGracePeriod, StateGracePeriod, EventChargeFailed,
			statemachine.WithAction(action(recordFailure))),
		statemachine.WithTransition(StateReactivating, StateSuspended, EventChargeFailed,
			statemachine.WithActions(action(recordFailure), action(suspend))),

		statemachine.WithTransitionFrom([]statemachine.State{StateActive, StateReactivating}, StateActive, EventChargeSucceeded,
			statemachine.WithAction(action(settle))),
		statemachine.WithTransitionFrom([]statemachine.State{StatePastDue, StateGracePeriod}, StateActive, EventRecoveryPaymentSucceeded,
			statemachine.WithAction(action(settle))),

		statemachine.WithTransition(StateGracePeriod, StateSuspended, EventGraceExpired,
			statemachine.WithGuard(guard(graceElapsed)),
			statemachine.WithAction(action(suspend))),

		statemachine.WithTransition(StateActive, StateCancelled, EventPeriodEndedWithCancelFlag,
			statemachine.WithGuard(guard(periodEndedWithCancelFlag)),
			statemachine.WithAction(action(cancel))),
		statemachine.WithTransitionFrom(nonTerminal, StateCancelled, EventImmediateCancelRequested,
			statemachine.WithAction(action(cancel))),

		statemachine.WithTransition(StateSuspended, StateReactivating, EventWinBackPaymentSucceeded,
			statemachine.WithActions(action(restartTerm), action(settle))),
		statemachine.WithTransition(StateSuspended, StateReactivating, EventReactivationRequested,
			statemachine.WithActions(action(restartTerm), action(requestInitialCharge))),
	}

	// user_requests_cancel keeps the current state.
	for _, s := range cancellable {
		opts = append(opts, statemachine.WithTransition(s, s, EventCancelRequested,
			statemachine.WithAction(action(flagCancelAtPeriodEnd))))
	}

	return statemachine.MustNew(opts...)
}

// Transition evaluates ev against sub and returns the resulting subscription
// and the side effects to execute. It performs no I/O and never modifies sub.
//
// An event whose AttemptID was already applied returns sub unchanged with no intents.
// Unhandled state/event pairs and rejected guards return ErrInvalidTransition.
func Transition(sub Subscription, ev Event) (Result, error) {
	if err := ev.Validate(); err != nil {
		return Result{}, err
	}
	if ev.AttemptID != nil && sub.HasApplied(*ev.AttemptID) {
		return Result{Subscription: sub.Clone()}, nil
	}

	draft := sub.Clone()
	t := &transition{sub: &draft, event: ev}

	to, err := lifecycle.Fire(sub.State, ev.Kind, t)
	if err != nil {
		if statemachine.IsNotPermitted(err) {
			return Result{}, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		}
		return Result{}, fmt.Errorf("%s on %s: %w", ev.Kind, sub.State, err)
	}

	draft.State = to.(State)
	draft.UpdatedAt = ev.At
	if ev.AttemptID != nil {
		draft.rememberAttempt(*ev.AttemptID)
	}

	switch before, after := sub.HasAccess(), draft.HasAccess(); {
	case before && !after:
		t.emit(IntentRevokeAccess, ev.At)
	case !before && after:
		t.emit(IntentRestoreAccess, ev.At)
	}

	return Result{Subscription: draft, Intents: t.intents}, nil
}

// AvailableEvents lists the events the lifecycle defines for state s, ignoring guards.
func AvailableEvents(s State) []EventKind {
	events := lifecycle.Events(s)
	out := make([]EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, EventKind(e.Name()))
	}
	return out
}

// IsInvalidTransition reports whether err was caused by an event not allowed in the current state.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func isFinalRetry(t *transition) bool {
	return t.sub.FailedAttempts+1 >= dunning.DefaultPolicy.MaxAttempts(dunning.ClassRegular)
}

func graceElapsed(t *transition) bool {
	return t.sub.GraceEndsAt != nil && !t.event.At.Before(*t.sub.GraceEndsAt)
}

func periodEndedWithCancelFlag(t *transition) bool {
	return t.sub.CancelAtPeriodEnd && !t.event.At.Before(t.sub.CurrentPeriodEnd)
}

// openFirstTerm opens the first period after the trial with its charge outstanding.
func openFirstTerm(t *transition, _ State) error {
	start := t.sub.CreatedAt
	if t.sub.TrialEndsAt != nil {
		start = *t.sub.TrialEndsAt
	}
	period, err := billingcycle.NewPeriod(start, t.sub.Interval)
	if err != nil {
		return err
	}
	t.sub.CurrentPeriodStart, t.sub.CurrentPeriodEnd = period.Start, period.End
	t.sub.InitialChargePending = true
	return nil
}

// openRenewalTerm moves a paid subscription into the period its failed renewal was for.
func openRenewalTerm(t *transition, _ State) error {
	if t.sub.InitialChargePending {
		return nil
	}
	next, err := billingcycle.NextPeriod(t.sub.Period(), t.sub.Interval)
	if err != nil {
		return err
	}
	t.sub.CurrentPeriodStart, t.sub.CurrentPeriodEnd = next.Start, next.End
	t.sub.InitialChargePending = true
	return nil
}

func recordFailure(t *transition, to State) error {
	at := t.event.At
	t.sub.FailedAttempts++
	if t.sub.PastDueSince == nil {
		t.sub.PastDueSince = &at
	}

	failed := t.sub.FailedAttempts
	t.emit(IntentDunningEmail, at, func(in *Intent) {
		in.AttemptNumber = failed
		in.Reason = t.event.Reason
	})

	next := failed + 1
	if to != StatePastDue || next > dunning.DefaultPolicy.MaxAttempts(dunning.ClassRegular) {
		return nil
	}
	due, err := dunning.DefaultPolicy.ScheduleFor(dunning.ClassRegular, *t.sub.PastDueSince, next)
	if err != nil {
		return err
	}
	if due.Before(at) {
		due = at
	}
	t.emit(IntentScheduleCharge, due, func(in *Intent) {
		in.Class = dunning.ClassRegular
		in.AttemptNumber = next
	})
	return nil
}

func enterGrace(t *transition, _ State) error {
	ends := t.event.At.Add(GracePeriod)
	t.sub.GraceEndsAt = &ends
	return nil
}

func suspend(t *transition, _ State) error {
	at := t.event.At
	t.sub.SuspendedAt = &at
	t.sub.GraceEndsAt = nil

	t.emit(IntentWinBackEmail, at)
	due, err := dunning.DefaultPolicy.ScheduleFor(dunning.ClassWinBack, at, 1)
	if err != nil {
		return err
	}
	t.emit(IntentScheduleCharge, due, func(in *Intent) {
		in.Class = dunning.ClassWinBack
		in.AttemptNumber = 1
	})
	return nil
}

// settle records a successful charge. An outstanding period becomes paid;
// a paid one is extended by one interval.
func settle(t *transition, _ State) error {
	if t.sub.InitialChargePending {
		t.sub.InitialChargePending = false
	} else {
		next, err := billingcycle.NextPeriod(t.sub.Period(), t.sub.Interval)
		if err != nil {
			return err
		}
		t.sub.CurrentPeriodStart, t.sub.CurrentPeriodEnd = next.Start, next.End
	}

	t.sub.FailedAttempts = 0
	t.sub.PastDueSince = nil
	t.sub.GraceEndsAt = nil
	t.sub.PendingAdjustment -= t.event.Adjustment

	if t.sub.AutoRenew {
		t.emit(IntentScheduleCharge, t.sub.CurrentPeriodEnd, func(in *Intent) {
			in.Class = dunning.ClassRegular
			in.AttemptNumber = 1
		})
	}
	return nil
}

// restartTerm opens a fresh unpaid period after suspension.
func restartTerm(t *transition, _ State) error {
	period, err := billingcycle.NewPeriod(t.event.At, t.sub.Interval)
	if err != nil {
		return err
	}
	t.sub.CurrentPeriodStart, t.sub.CurrentPeriodEnd = period.Start, period.End
	t.sub.InitialChargePending = true
	t.sub.SuspendedAt = nil
	t.sub.FailedAttempts = 0
	t.sub.PastDueSince = nil
	t.sub.AutoRenew = true
	t.sub.CancelAtPeriodEnd = false
	return nil
}

func requestInitialCharge(t *transition, _ State) error {
	t.emit(IntentScheduleCharge, t.event.At, func(in *Intent) {
		in.Class = dunning.ClassRegular
		in.AttemptNumber = 1
	})
	return nil
}

func flagCancelAtPeriodEnd(t *transition, _ State) error {
	t.sub.CancelAtPeriodEnd = true
	t.sub.AutoRenew = false
	return nil
}

func cancel(t *transition, _ State) error {
	at := t.event.At
	t.sub.AutoRenew = false
	t.sub.CancelledAt = &at
	t.sub.GraceEndsAt = nil
	return nil
}
