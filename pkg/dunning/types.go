package dunning

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the resolution state of a charge attempt.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// AttemptClass separates regular retries from win-back attempts and
// one-off proration charges.
type AttemptClass string

const (
	ClassRegular    AttemptClass = "regular"
	ClassWinBack    AttemptClass = "win_back"
	ClassAdjustment AttemptClass = "adjustment"
)

// ChargeAttempt is a single scheduled charge. It is resolved exactly once.
type ChargeAttempt struct {
	ID             uuid.UUID    `json:"id"`
	SubscriptionID uuid.UUID    `json:"subscription_id"`
	AttemptNumber  int          `json:"attempt_number"` // 1-based within a cycle
	Class          AttemptClass `json:"class"`
	PeriodStart    time.Time    `json:"period_start"` // billing period the charge pays for
	Outcome        Outcome      `json:"outcome"`
	FailureReason  string       `json:"failure_reason,omitempty"`
	// Amount is the charged total in minor units. Adjustment attempts carry it
	// from creation; other classes get it when submitted to the processor.
	Amount int64 `json:"amount"`
	// Adjustment is the part of Amount taken from the subscription's pending proration.
	Adjustment  int64      `json:"adjustment,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (a *ChargeAttempt) IsPending() bool {
	return a.Outcome == OutcomePending
}

func (a *ChargeAttempt) Succeeded() bool {
	return a.Outcome == OutcomeSucceeded
}

func (a *ChargeAttempt) Failed() bool {
	return a.Outcome == OutcomeFailed
}

// IsFinal reports whether this failed attempt exhausted its retry cycle.
// Adjustment charges have no retry cycle.
func (a *ChargeAttempt) IsFinal() bool {
	return a.Failed() && a.Class != ClassAdjustment && a.AttemptNumber >= DefaultPolicy.MaxAttempts(a.Class)
}

// IsSubmitted reports whether the attempt was handed to the payment processor.
func (a *ChargeAttempt) IsSubmitted() bool {
	return a.SubmittedAt != nil
}

// IsDue reports whether a pending attempt should be executed at now.
func (a *ChargeAttempt) IsDue(now time.Time) bool {
	return a.IsPending() && !a.ScheduledAt.After(now)
}
