package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorpay/pkg/dunning"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`     // Amount in smallest currency unit (cents for USD)
	Currency string `json:"currency" yaml:"currency"` // ISO 4217 currency code
}

// State is a lifecycle state of a subscription.
type State string

const (
	StateTrialing     State = "trialing"
	StateActive       State = "active"
	StatePastDue      State = "past_due"
	StateGracePeriod  State = "grace_period"
	StateSuspended    State = "suspended"
	StateCancelled    State = "cancelled"
	StateReactivating State = "reactivating"
)

// Name implements statemachine.State.
func (s State) Name() string { return string(s) }

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateTrialing, StateActive, StatePastDue, StateGracePeriod,
		StateSuspended, StateCancelled, StateReactivating:
		return true
	}
	return false
}

// IsTerminal reports whether no event can leave s.
func (s State) IsTerminal() bool { return s == StateCancelled }

// IsLive reports whether a subscription in s blocks a new one for the same fan and creator.
func (s State) IsLive() bool { return s != StateCancelled && s != StateSuspended }

// EventKind names a lifecycle event.
type EventKind string

const (
	EventTrialPaymentSucceeded     EventKind = "trial_ends_with_payment_success"
	EventTrialPaymentFailed        EventKind = "trial_ends_with_payment_failure"
	EventChargeFailed              EventKind = "scheduled_charge_fails"
	EventChargeSucceeded           EventKind = "scheduled_charge_succeeds"
	EventGraceExpired              EventKind = "grace_period_expires_without_payment"
	EventRecoveryPaymentSucceeded  EventKind = "payment_succeeds_during_past_due_or_grace"
	EventCancelRequested           EventKind = "user_requests_cancel"
	EventPeriodEndedWithCancelFlag EventKind = "period_ends_with_cancel_flag"
	EventImmediateCancelRequested  EventKind = "user_requests_immediate_cancel"
	EventWinBackPaymentSucceeded   EventKind = "winback_payment_succeeds"
	EventReactivationRequested     EventKind = "reactivation_requested_by_user"
)

// Name implements statemachine.Event.
func (k EventKind) Name() string { return string(k) }

// Event is an input to Transition.
type Event struct {
	Kind EventKind `json:"kind"`
	At   time.Time `json:"at"`
	// AttemptID links charge outcomes to the resolved ChargeAttempt; used for replay detection.
	AttemptID *uuid.UUID `json:"attempt_id,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	// Adjustment is the part of PendingAdjustment a successful charge collected.
	Adjustment int64 `json:"adjustment,omitempty"`
}

// Validate checks that the event can be evaluated.
func (e Event) Validate() error {
	if e.Kind == "" {
		return ErrInvalidEvent
	}
	if e.At.IsZero() {
		return ErrInvalidEvent
	}
	return nil
}

// IntentKind names a side effect the caller must execute.
type IntentKind string

const (
	IntentDunningEmail   IntentKind = "notify:dunning_email"
	IntentWinBackEmail   IntentKind = "notify:win_back_email"
	IntentRevokeAccess   IntentKind = "access:revoke"
	IntentRestoreAccess  IntentKind = "access:restore"
	IntentScheduleCharge IntentKind = "charge:schedule"
)

// Intent is a side effect produced by a transition. Transition never performs it.
type Intent struct {
	Kind           IntentKind           `json:"kind"`
	SubscriptionID uuid.UUID            `json:"subscription_id"`
	At             time.Time            `json:"at"`
	Class          dunning.AttemptClass `json:"class,omitempty"`          // charge:schedule only
	AttemptNumber  int                  `json:"attempt_number,omitempty"` // charge:schedule and dunning email
	Reason         string               `json:"reason,omitempty"`
}

// Result is the outcome of a transition.
type Result struct {
	Subscription Subscription `json:"subscription"`
	Intents      []Intent     `json:"intents"`
}
