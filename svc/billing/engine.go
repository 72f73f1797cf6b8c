package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
)

// Notifier delivers notify:* intents.
type Notifier interface {
	Notify(ctx context.Context, sub subscription.Subscription, in subscription.Intent) error
}

// ChargeOutcome is what happened when a charge result reached a subscription.
type ChargeOutcome struct {
	Attempt      dunning.ChargeAttempt     `json:"attempt"`
	Subscription subscription.Subscription `json:"subscription"`
	Intents      []subscription.Intent     `json:"intents"`
	// Duplicate is set when the attempt had already been resolved with the same outcome.
	Duplicate bool `json:"duplicate"`
	// Applied is false when the outcome did not map to a lifecycle event.
	Applied bool `json:"applied"`
}

// Engine connects charge outcomes, the attempt tracker and the ledger,
// and executes the intents every transition returns.
type Engine struct {
	ledger   subscription.Service
	tracker  *dunning.Tracker
	locker   Locker
	access   AccessControl
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithLocker(l Locker) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

func WithAccessControl(a AccessControl) EngineOption {
	return func(e *Engine) {
		if a != nil {
			e.access = a
		}
	}
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates the billing engine. Panics if ledger or tracker is nil.
// Without options it locks in-process, keeps access in memory and drops notifications.
func NewEngine(ledger subscription.Service, tracker *dunning.Tracker, opts ...EngineOption) *Engine {
	if ledger == nil {
		panic("billing: subscription service is required")
	}
	if tracker == nil {
		panic("billing: attempt tracker is required")
	}

	e := &Engine{
		ledger:   ledger,
		tracker:  tracker,
		locker:   NewLocalLocker(),
		access:   NewMemoryAccess(),
		notifier: nopNotifier{},
		log:      logger.Discard(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.Component("billing"))
	return e
}

// Ledger exposes the subscription service the engine writes through.
func (e *Engine) Ledger() subscription.Service { return e.ledger }

// Subscribe creates a subscription, grants access and schedules its first
// charge: at trial end for trials, immediately otherwise.
func (e *Engine) Subscribe(ctx context.Context, fanID, creatorID uuid.UUID, tierID string, opts ...subscription.CreateOption) (*subscription.Subscription, error) {
	sub, err := e.ledger.CreateSubscription(ctx, fanID, creatorID, tierID, opts...)
	if err != nil {
		return nil, err
	}

	if err := e.access.Grant(ctx, sub.FanID, sub.CreatorID); err != nil {
		e.log.ErrorContext(ctx, "failed to grant access", logger.SubscriptionID(sub.ID), logger.Error(err))
	}

	var attempt *dunning.ChargeAttempt
	if sub.State == subscription.StateTrialing {
		attempt, err = e.tracker.ScheduleAttempt(ctx, sub.ID, dunning.ClassRegular, sub.BillingAnchor(), *sub.TrialEndsAt)
	} else {
		attempt, err = e.tracker.RecordAttempt(ctx, sub.ID, sub.BillingAnchor())
	}
	if err != nil {
		return nil, fmt.Errorf("schedule first charge: %w", err)
	}

	e.log.InfoContext(ctx, "subscription created",
		logger.SubscriptionID(sub.ID),
		logger.FanID(sub.FanID),
		logger.CreatorID(sub.CreatorID),
		logger.State(sub.State.Name()),
		logger.AttemptID(attempt.ID),
		slog.Time("first_charge_at", attempt.ScheduledAt))
	return sub, nil
}

// Apply runs ev for subscription id under the subscription lock and
// executes the resulting intents.
func (e *Engine) Apply(ctx context.Context, id uuid.UUID, ev subscription.Event) (*subscription.Result, error) {
	unlock, err := e.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.unlock(ctx, id, unlock)

	return e.apply(ctx, id, ev)
}

func (e *Engine) apply(ctx context.Context, id uuid.UUID, ev subscription.Event) (*subscription.Result, error) {
	before, err := e.ledger.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := e.ledger.Apply(ctx, id, ev)
	if err != nil {
		return nil, err
	}

	if before.State != res.Subscription.State || len(res.Intents) > 0 {
		e.log.InfoContext(ctx, "subscription transitioned",
			logger.SubscriptionID(id),
			logger.Event(ev.Kind.Name()),
			logger.Transition(before.State.Name(), res.Subscription.State.Name()),
			logger.Count(len(res.Intents)))
	}

	e.dispatch(ctx, res.Subscription, res.Intents)
	return res, nil
}

// Cancel flags the subscription to end with its current period, or cancels it now.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, immediate bool) (*subscription.Result, error) {
	kind := subscription.EventCancelRequested
	if immediate {
		kind = subscription.EventImmediateCancelRequested
	}
	return e.Apply(ctx, id, subscription.Event{Kind: kind, At: e.now(), Reason: "requested by fan"})
}

// Reactivate restarts a suspended subscription; the initial charge is scheduled immediately.
func (e *Engine) Reactivate(ctx context.Context, id uuid.UUID) (*subscription.Result, error) {
	return e.Apply(ctx, id, subscription.Event{Kind: subscription.EventReactivationRequested, At: e.now()})
}

// ChangeTier moves the subscription to another tier and returns the proration quote.
// An upgrade charged immediately gets a one-off adjustment attempt; any other
// proration is carried by the subscription to its next regular charge.
func (e *Engine) ChangeTier(ctx context.Context, id uuid.UUID, tierID string) (*subscription.TierChange, error) {
	unlock, err := e.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.unlock(ctx, id, unlock)

	change, err := e.ledger.ChangeTier(ctx, id, tierID, e.now())
	if err != nil {
		return nil, err
	}
	if change.Proration.ChargeNow && change.Proration.Amount > 0 {
		attempt, err := e.tracker.RecordAdjustment(ctx, id, change.Subscription.CurrentPeriodStart, change.Proration.Amount)
		if err != nil {
			return nil, fmt.Errorf("schedule proration charge: %w", err)
		}
		change.ChargeAttemptID = &attempt.ID
	}

	e.log.InfoContext(ctx, "tier changed",
		logger.SubscriptionID(id),
		slog.String("from_tier", change.FromTier),
		slog.String("to_tier", change.ToTier),
		slog.Int64("proration_amount", change.Proration.Amount),
		slog.Bool("charge_now", change.Proration.ChargeNow),
		slog.Int64("pending_adjustment", change.Subscription.PendingAdjustment))
	return change, nil
}

// RetryNow schedules an extra charge during the grace period, after the
// automatic retries ran out, e.g. when the fan updated their card.
func (e *Engine) RetryNow(ctx context.Context, id uuid.UUID) (*dunning.ChargeAttempt, error) {
	unlock, err := e.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.unlock(ctx, id, unlock)

	sub, err := e.ledger.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.State != subscription.StateGracePeriod {
		return nil, fmt.Errorf("%w: manual retry is only available during grace period, got %s",
			subscription.ErrInvalidSubscriptionState, sub.State)
	}
	return e.tracker.ScheduleAttempt(ctx, sub.ID, dunning.ClassRegular, sub.BillingAnchor(), e.now())
}

// ResolveCharge records the outcome of a charge attempt and feeds it to the
// lifecycle. Redelivered outcomes are safe: the tracker rejects the second
// resolution and the ledger ignores an attempt it already applied.
func (e *Engine) ResolveCharge(ctx context.Context, attemptID uuid.UUID, outcome dunning.Outcome, reason string) (*ChargeOutcome, error) {
	attempt, err := e.tracker.ResolveAttempt(ctx, attemptID, outcome, reason)
	duplicate := false
	switch {
	case errors.Is(err, dunning.ErrAttemptAlreadyResolved):
		attempt, err = e.tracker.Get(ctx, attemptID)
		if err != nil {
			return nil, err
		}
		if attempt.Outcome != outcome {
			return nil, fmt.Errorf("%w: attempt %s is %s", ErrOutcomeConflict, attemptID, attempt.Outcome)
		}
		duplicate = true
	case err != nil:
		return nil, err
	}

	unlock, err := e.lock(ctx, attempt.SubscriptionID)
	if err != nil {
		return nil, err
	}
	defer e.unlock(ctx, attempt.SubscriptionID, unlock)

	return e.applyAttempt(ctx, *attempt, duplicate)
}

func (e *Engine) applyAttempt(ctx context.Context, attempt dunning.ChargeAttempt, duplicate bool) (*ChargeOutcome, error) {
	sub, err := e.ledger.GetSubscription(ctx, attempt.SubscriptionID)
	if err != nil {
		return nil, err
	}
	out := &ChargeOutcome{Attempt: attempt, Subscription: *sub, Duplicate: duplicate}

	if duplicate {
		stale, err := e.staleReplay(ctx, sub, attempt)
		if err != nil {
			return nil, err
		}
		if stale {
			e.log.DebugContext(ctx, "stale charge outcome ignored",
				logger.SubscriptionID(sub.ID),
				logger.AttemptID(attempt.ID))
			return out, nil
		}
	}

	if attempt.Class == dunning.ClassAdjustment {
		return e.settleAdjustment(ctx, out, duplicate)
	}

	kind, ok := eventForAttempt(sub, attempt)
	if !ok {
		e.log.WarnContext(ctx, "charge outcome has no lifecycle event",
			logger.SubscriptionID(sub.ID),
			logger.AttemptID(attempt.ID),
			logger.State(sub.State.Name()),
			slog.String("outcome", string(attempt.Outcome)),
			slog.String("class", string(attempt.Class)))
		return out, nil
	}

	at := e.now()
	if attempt.ResolvedAt != nil {
		at = *attempt.ResolvedAt
	}
	ev := subscription.Event{
		Kind:      kind,
		At:        at,
		AttemptID: &attempt.ID,
		Reason:    attempt.FailureReason,
	}
	if attempt.Succeeded() {
		ev.Adjustment = attempt.Adjustment
	}
	res, err := e.apply(ctx, sub.ID, ev)
	if err != nil {
		if subscription.IsInvalidTransition(err) {
			e.log.WarnContext(ctx, "charge outcome rejected by lifecycle",
				logger.SubscriptionID(sub.ID),
				logger.AttemptID(attempt.ID),
				logger.Error(err))
			return out, nil
		}
		return nil, err
	}

	out.Subscription = res.Subscription
	out.Intents = res.Intents
	out.Applied = true
	return out, nil
}

// staleReplay reports whether a redelivered outcome belongs to a charge the
// subscription has moved past. A duplicate that was resolved but never applied
// still matches the billing anchor and has no resolved successor, so it is
// applied again.
func (e *Engine) staleReplay(ctx context.Context, sub *subscription.Subscription, attempt dunning.ChargeAttempt) (bool, error) {
	if sub.HasApplied(attempt.ID) {
		return true, nil
	}
	if attempt.Class == dunning.ClassAdjustment {
		// Adjustment outcomes are settled once, on first resolution.
		return true, nil
	}
	if attempt.Class == dunning.ClassRegular && !attempt.PeriodStart.Equal(sub.BillingAnchor()) {
		return true, nil
	}
	return e.tracker.Superseded(ctx, attempt)
}

// settleAdjustment finishes a one-off proration charge. A failed charge is
// carried to the next regular charge instead.
func (e *Engine) settleAdjustment(ctx context.Context, out *ChargeOutcome, duplicate bool) (*ChargeOutcome, error) {
	attempt := out.Attempt
	if duplicate || attempt.Succeeded() {
		e.log.InfoContext(ctx, "proration charge settled",
			logger.SubscriptionID(attempt.SubscriptionID),
			logger.AttemptID(attempt.ID),
			slog.String("outcome", string(attempt.Outcome)),
			slog.Int64("amount", attempt.Amount))
		return out, nil
	}

	sub, err := e.ledger.DeferAdjustment(ctx, attempt.SubscriptionID, attempt.Amount, e.now())
	if errors.Is(err, subscription.ErrInvalidSubscriptionState) {
		e.log.WarnContext(ctx, "failed proration charge dropped",
			logger.SubscriptionID(attempt.SubscriptionID),
			logger.AttemptID(attempt.ID),
			logger.Error(err))
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	e.log.InfoContext(ctx, "failed proration charge deferred to next invoice",
		logger.SubscriptionID(sub.ID),
		logger.AttemptID(attempt.ID),
		slog.Int64("pending_adjustment", sub.PendingAdjustment))
	out.Subscription = *sub
	out.Applied = true
	return out, nil
}

// ChargeDue hands a due attempt to charger and applies a synchronous result.
// Attempts the subscription can no longer use are voided without a lifecycle
// event. A submitted attempt that is due again got no outcome within the
// submit timeout and is failed, which moves recovery to the next retry.
func (e *Engine) ChargeDue(ctx context.Context, attempt dunning.ChargeAttempt, charger Charger) (*ChargeOutcome, error) {
	sub, err := e.ledger.GetSubscription(ctx, attempt.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if reason, void := voidReason(sub, attempt); void {
		if _, err := e.tracker.ResolveAttempt(ctx, attempt.ID, dunning.OutcomeFailed, reason); err != nil &&
			!errors.Is(err, dunning.ErrAttemptAlreadyResolved) {
			return nil, err
		}
		e.log.InfoContext(ctx, "charge attempt voided",
			logger.SubscriptionID(sub.ID),
			logger.AttemptID(attempt.ID),
			slog.String("reason", reason))
		return &ChargeOutcome{Attempt: attempt, Subscription: *sub}, nil
	}

	if attempt.IsSubmitted() {
		e.log.WarnContext(ctx, "no outcome from payment processor",
			logger.SubscriptionID(sub.ID),
			logger.AttemptID(attempt.ID),
			slog.Time("submitted_at", *attempt.SubmittedAt))
		return e.ResolveCharge(ctx, attempt.ID, dunning.OutcomeFailed, chargeTimeoutReason)
	}

	tier, err := e.ledger.Tier(sub.TierID)
	if err != nil {
		return nil, err
	}
	amount, adjustment := chargeAmount(sub, attempt, tier.Price.Amount)

	// The amount is recorded before the processor sees the charge, so an
	// asynchronous outcome settles exactly what was charged.
	submitted, err := e.tracker.Submit(ctx, attempt.ID, amount, adjustment)
	if errors.Is(err, dunning.ErrAttemptAlreadyResolved) || errors.Is(err, dunning.ErrAttemptSubmitted) {
		// Another worker or a webhook got there first.
		return &ChargeOutcome{Attempt: attempt, Subscription: *sub}, nil
	}
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return e.ResolveCharge(ctx, attempt.ID, dunning.OutcomeSucceeded, "")
	}

	result, err := charger.Charge(ctx, ChargeRequest{
		Attempt:      *submitted,
		Subscription: *sub,
		Amount:       subscription.Money{Amount: amount, Currency: tier.Price.Currency},
		TierName:     tier.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("charge attempt %s: %w", attempt.ID, err)
	}
	if result.Outcome == dunning.OutcomePending {
		return &ChargeOutcome{Attempt: *submitted, Subscription: *sub}, nil
	}
	return e.ResolveCharge(ctx, attempt.ID, result.Outcome, result.Reason)
}

const chargeTimeoutReason = "no outcome from payment processor"

// chargeAmount returns the total to charge for attempt and the part of it
// taken from the subscription's pending proration. A credit larger than the
// price makes the charge free and the rest of the credit stays pending.
func chargeAmount(sub *subscription.Subscription, attempt dunning.ChargeAttempt, price int64) (amount, adjustment int64) {
	switch attempt.Class {
	case dunning.ClassAdjustment:
		return attempt.Amount, 0
	case dunning.ClassRegular:
		adjustment = sub.PendingAdjustment
		if price+adjustment < 0 {
			adjustment = -price
		}
		return price + adjustment, adjustment
	default:
		return price, 0
	}
}

// eventForAttempt maps a resolved attempt to the lifecycle event for the
// subscription's current state.
func eventForAttempt(sub *subscription.Subscription, attempt dunning.ChargeAttempt) (subscription.EventKind, bool) {
	if attempt.Class == dunning.ClassWinBack {
		if attempt.Succeeded() && sub.State == subscription.StateSuspended {
			return subscription.EventWinBackPaymentSucceeded, true
		}
		return "", false
	}

	switch {
	case attempt.Succeeded():
		switch sub.State {
		case subscription.StateTrialing:
			return subscription.EventTrialPaymentSucceeded, true
		case subscription.StateActive, subscription.StateReactivating:
			return subscription.EventChargeSucceeded, true
		case subscription.StatePastDue, subscription.StateGracePeriod:
			return subscription.EventRecoveryPaymentSucceeded, true
		}
	case attempt.Failed():
		switch sub.State {
		case subscription.StateTrialing:
			return subscription.EventTrialPaymentFailed, true
		case subscription.StateActive, subscription.StatePastDue,
			subscription.StateGracePeriod, subscription.StateReactivating:
			return subscription.EventChargeFailed, true
		}
	}
	return "", false
}

func voidReason(sub *subscription.Subscription, attempt dunning.ChargeAttempt) (string, bool) {
	switch {
	case sub.State == subscription.StateCancelled:
		return "subscription cancelled", true
	case attempt.Class == dunning.ClassWinBack && sub.State != subscription.StateSuspended:
		return "subscription no longer suspended", true
	case attempt.Class != dunning.ClassWinBack && sub.State == subscription.StateSuspended:
		return "subscription suspended", true
	case attempt.Class == dunning.ClassRegular && sub.CancelAtPeriodEnd && !sub.InitialChargePending &&
		(sub.State == subscription.StateActive || sub.State == subscription.StateTrialing):
		return "subscription ends with current period", true
	}
	return "", false
}

func (e *Engine) lock(ctx context.Context, id uuid.UUID) (func(context.Context) error, error) {
	unlock, err := e.locker.Lock(ctx, "subscription:"+id.String())
	if err != nil {
		return nil, fmt.Errorf("lock subscription %s: %w", id, err)
	}
	return unlock, nil
}

func (e *Engine) unlock(ctx context.Context, id uuid.UUID, unlock func(context.Context) error) {
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		e.log.WarnContext(ctx, "failed to release subscription lock", logger.SubscriptionID(id), logger.Error(err))
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, subscription.Subscription, subscription.Intent) error {
	return nil
}
