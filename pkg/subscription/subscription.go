package subscription

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorpay/pkg/billingcycle"
)

// appliedAttemptsLimit bounds the replay-detection ring.
const appliedAttemptsLimit = 16

// Subscription is a fan's subscription to a creator tier.
// Records are never deleted; cancelled is the terminal state.
type Subscription struct {
	ID        uuid.UUID `json:"id"`
	FanID     uuid.UUID `json:"fan_id"`
	CreatorID uuid.UUID `json:"creator_id"`
	TierID    string    `json:"tier_id"`
	State     State     `json:"state"`

	CurrentPeriodStart time.Time             `json:"current_period_start"`
	CurrentPeriodEnd   time.Time             `json:"current_period_end"`
	Interval           billingcycle.Interval `json:"interval"`
	CancelAtPeriodEnd  bool                  `json:"cancel_at_period_end"`
	AutoRenew          bool                  `json:"auto_renew"`

	// InitialChargePending is set while the current period has not been paid.
	InitialChargePending bool `json:"initial_charge_pending"`
	// FailedAttempts counts consecutive failed charges in the current recovery cycle.
	FailedAttempts int `json:"failed_attempts"`
	// PendingAdjustment is proration carried to the next regular charge:
	// positive is owed by the fan, negative is a credit.
	PendingAdjustment int64 `json:"pending_adjustment"`

	TrialEndsAt  *time.Time `json:"trial_ends_at,omitempty"`
	PastDueSince *time.Time `json:"past_due_since,omitempty"`
	GraceEndsAt  *time.Time `json:"grace_ends_at,omitempty"`
	SuspendedAt  *time.Time `json:"suspended_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	AppliedAttempts []uuid.UUID `json:"-"`
	Version         int64       `json:"version"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Period returns the current billing period.
func (s *Subscription) Period() billingcycle.Period {
	return billingcycle.Period{Start: s.CurrentPeriodStart, End: s.CurrentPeriodEnd}
}

// HasAccess reports whether the fan is entitled to the creator's content.
func (s *Subscription) HasAccess() bool {
	switch s.State {
	case StateTrialing, StateActive, StatePastDue, StateGracePeriod:
		return true
	case StateReactivating:
		return !s.InitialChargePending
	default:
		return false
	}
}

// IsLive reports whether the subscription blocks a second one for the same fan and creator.
func (s *Subscription) IsLive() bool {
	return s.State.IsLive()
}

// BillingAnchor returns the start of the billing period the next regular charge pays for.
func (s *Subscription) BillingAnchor() time.Time {
	switch {
	case s.State == StateTrialing && s.TrialEndsAt != nil:
		return *s.TrialEndsAt
	case s.InitialChargePending:
		return s.CurrentPeriodStart
	default:
		return s.CurrentPeriodEnd
	}
}

// IsTrialOver reports whether the trial has ended at now.
func (s *Subscription) IsTrialOver(now time.Time) bool {
	return s.State == StateTrialing && s.TrialEndsAt != nil && !now.Before(*s.TrialEndsAt)
}

// IsGraceOver reports whether the grace window has elapsed at now.
func (s *Subscription) IsGraceOver(now time.Time) bool {
	return s.State == StateGracePeriod && s.GraceEndsAt != nil && !now.Before(*s.GraceEndsAt)
}

// ExpiryEvent returns the time-driven event that is due at now: grace
// expiry, the end of a period flagged for cancellation, or the end of a
// trial flagged for cancellation (which cancels without charging).
func (s *Subscription) ExpiryEvent(now time.Time) (Event, bool) {
	switch {
	case s.IsGraceOver(now):
		return Event{Kind: EventGraceExpired, At: now}, true
	case s.State == StateActive && s.CancelAtPeriodEnd && !now.Before(s.CurrentPeriodEnd):
		return Event{Kind: EventPeriodEndedWithCancelFlag, At: now}, true
	case s.CancelAtPeriodEnd && s.IsTrialOver(now):
		return Event{Kind: EventImmediateCancelRequested, At: now, Reason: "trial ended with cancellation requested"}, true
	}
	return Event{}, false
}

// HasApplied reports whether a charge attempt was already applied.
func (s *Subscription) HasApplied(attemptID uuid.UUID) bool {
	return slices.Contains(s.AppliedAttempts, attemptID)
}

func (s *Subscription) rememberAttempt(attemptID uuid.UUID) {
	s.AppliedAttempts = append(s.AppliedAttempts, attemptID)
	if n := len(s.AppliedAttempts); n > appliedAttemptsLimit {
		s.AppliedAttempts = slices.Clone(s.AppliedAttempts[n-appliedAttemptsLimit:])
	}
}

// Clone returns a copy that shares no mutable memory with s.
func (s Subscription) Clone() Subscription {
	s.AppliedAttempts = slices.Clone(s.AppliedAttempts)
	return s
}

// newSubscription builds the initial record. With a trial (including 0 days)
// it starts trialing; otherwise it starts active with the first charge pending.
func newSubscription(fanID, creatorID uuid.UUID, tier Tier, trialDays *int, now time.Time) (*Subscription, error) {
	period, err := billingcycle.NewPeriod(now, tier.BillingPeriod)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:                 uuid.New(),
		FanID:              fanID,
		CreatorID:          creatorID,
		TierID:             tier.ID,
		State:              StateActive,
		CurrentPeriodStart: period.Start,
		CurrentPeriodEnd:   period.End,
		Interval:           tier.BillingPeriod,
		AutoRenew:          true,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if trialDays == nil {
		sub.InitialChargePending = true
		return sub, nil
	}

	trialEnd := now.AddDate(0, 0, *trialDays)
	sub.State = StateTrialing
	sub.TrialEndsAt = &trialEnd
	if *trialDays > 0 {
		sub.CurrentPeriodEnd = trialEnd
	}
	return sub, nil
}
