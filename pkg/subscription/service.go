package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorpay/pkg/billingcycle"
	"github.com/dmitrymomot/creatorpay/pkg/revenue"
)

// Service defines the subscription ledger.
type Service interface {
	// CreateSubscription starts a subscription of fanID to a creator tier.
	CreateSubscription(ctx context.Context, fanID, creatorID uuid.UUID, tierID string, opts ...CreateOption) (*Subscription, error)

	// GetSubscription returns a subscription by id.
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// Apply runs ev through the lifecycle and persists the result with a version check.
	Apply(ctx context.Context, id uuid.UUID, ev Event) (*Result, error)

	// ChangeTier moves a live subscription to another tier of the same creator and quotes proration.
	// Proration that is not charged now is added to the subscription's pending adjustment.
	ChangeTier(ctx context.Context, id uuid.UUID, newTierID string, now time.Time) (*TierChange, error)

	// DeferAdjustment adds amount to the proration collected with the next regular charge.
	DeferAdjustment(ctx context.Context, id uuid.UUID, amount int64, now time.Time) (*Subscription, error)

	// Split computes the revenue split of a charge with the configured platform fee.
	Split(amount int64) (revenue.RevenueSplit, error)

	// Tier returns a tier from the loaded catalog.
	Tier(id string) (Tier, error)
}

// TierChange is the outcome of ChangeTier.
type TierChange struct {
	Subscription Subscription            `json:"subscription"`
	FromTier     string                  `json:"from_tier"`
	ToTier       string                  `json:"to_tier"`
	Proration    billingcycle.PlanChange `json:"proration"`
	Currency     string                  `json:"currency"`
	// ChargeAttemptID is the one-off charge collecting an immediate proration, if any.
	ChargeAttemptID *uuid.UUID `json:"charge_attempt_id,omitempty"`
}

type service struct {
	tiers       map[string]Tier
	store       Store
	now         func() time.Time
	platformFee float64
	proration   billingcycle.ProrationPolicy
}

// NewService creates the ledger. Panics if src or store is nil.
func NewService(ctx context.Context, src TierSource, store Store, opts ...ServiceOption) (Service, error) {
	if src == nil {
		panic("subscription: TierSource is required")
	}
	if store == nil {
		panic("subscription: Store is required")
	}

	tiers, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadTiers, err)
	}
	if err := validateTiers(tiers); err != nil {
		return nil, err
	}

	s := &service{
		tiers:       tiers,
		store:       store,
		now:         func() time.Time { return time.Now().UTC() },
		platformFee: revenue.DefaultPlatformFee,
		proration:   billingcycle.DefaultProrationPolicy,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := revenue.ComputeSplit(0, s.platformFee); err != nil {
		return nil, err
	}
	if !s.proration.Valid() {
		return nil, fmt.Errorf("%w: %q", billingcycle.ErrInvalidPolicy, s.proration)
	}

	return s, nil
}

func (s *service) CreateSubscription(ctx context.Context, fanID, creatorID uuid.UUID, tierID string, opts ...CreateOption) (*Subscription, error) {
	tier, err := s.Tier(tierID)
	if err != nil {
		return nil, err
	}
	if tier.CreatorID != creatorID {
		return nil, fmt.Errorf("%w: tier %s belongs to another creator", ErrTierNotFound, tierID)
	}
	if !tier.IsActive {
		return nil, ErrTierInactive
	}

	cfg := createConfig{trialDays: tier.TrialDays}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.trialDays != nil && *cfg.trialDays < 0 {
		return nil, ErrInvalidTrialDays
	}

	if _, err := s.store.FindLive(ctx, fanID, creatorID); err == nil {
		return nil, ErrSubscriptionAlreadyExists
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("failed to check existing subscription: %w", err)
	}

	sub, err := newSubscription(fanID, creatorID, tier, cfg.trialDays, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	return sub, nil
}

func (s *service) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.store.Get(ctx, id)
}

func (s *service) Apply(ctx context.Context, id uuid.UUID, ev Event) (*Result, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Replays change nothing and need no write.
	if ev.AttemptID != nil && sub.HasApplied(*ev.AttemptID) {
		return &Result{Subscription: *sub}, nil
	}

	res, err := Transition(*sub, ev)
	if err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, &res.Subscription, sub.Version); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	return &res, nil
}

func (s *service) ChangeTier(ctx context.Context, id uuid.UUID, newTierID string, now time.Time) (*TierChange, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sub.IsLive() || sub.State == StateReactivating {
		return nil, fmt.Errorf("%w: cannot change tier in state %s", ErrInvalidSubscriptionState, sub.State)
	}

	oldTier, err := s.Tier(sub.TierID)
	if err != nil {
		return nil, err
	}
	newTier, err := s.Tier(newTierID)
	if err != nil {
		return nil, err
	}
	if !newTier.IsActive {
		return nil, ErrTierInactive
	}
	if newTier.ID == oldTier.ID || newTier.CreatorID != sub.CreatorID ||
		newTier.BillingPeriod != sub.Interval || newTier.Price.Currency != oldTier.Price.Currency {
		return nil, ErrIncompatibleTier
	}

	change := TierChange{FromTier: oldTier.ID, ToTier: newTier.ID, Currency: newTier.Price.Currency}
	// Nothing has been paid for a trial or an outstanding period, so the new price simply applies.
	if sub.State == StateTrialing || sub.InitialChargePending {
		change.Proration = billingcycle.PlanChange{AppliesAt: sub.BillingAnchor()}
	} else {
		change.Proration, err = billingcycle.QuotePlanChange(sub.Period(), oldTier.Price.Amount, newTier.Price.Amount, now, s.proration)
		if err != nil {
			return nil, err
		}
	}

	expected := sub.Version
	sub.TierID = newTier.ID
	sub.UpdatedAt = now
	if !change.Proration.ChargeNow {
		sub.PendingAdjustment += change.Proration.Amount
	}
	if err := s.store.Update(ctx, sub, expected); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	change.Subscription = *sub
	return &change, nil
}

func (s *service) DeferAdjustment(ctx context.Context, id uuid.UUID, amount int64, now time.Time) (*Subscription, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sub.IsLive() {
		return nil, fmt.Errorf("%w: cannot defer proration in state %s", ErrInvalidSubscriptionState, sub.State)
	}
	if amount == 0 {
		return sub, nil
	}

	expected := sub.Version
	sub.PendingAdjustment += amount
	sub.UpdatedAt = now
	if err := s.store.Update(ctx, sub, expected); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	return sub, nil
}

func (s *service) Split(amount int64) (revenue.RevenueSplit, error) {
	return revenue.ComputeSplit(amount, s.platformFee)
}

func (s *service) Tier(id string) (Tier, error) {
	tier, ok := s.tiers[id]
	if !ok {
		return Tier{}, fmt.Errorf("%w: %s", ErrTierNotFound, id)
	}
	return copyTier(tier), nil
}
