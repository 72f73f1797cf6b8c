package billingcycle

import (
	"fmt"
	"math"
	"time"
)

// ProrationPolicy decides when a positive proration amount is collected.
type ProrationPolicy string

const (
	// ProrateImmediately charges upgrades right away.
	ProrateImmediately ProrationPolicy = "immediate"
	// ProrateNextInvoice adds upgrades to the next renewal invoice.
	ProrateNextInvoice ProrationPolicy = "next_invoice"
)

// DefaultProrationPolicy is used when no policy is configured.
const DefaultProrationPolicy = ProrateImmediately

// Valid reports whether p is a known policy.
func (p ProrationPolicy) Valid() bool {
	return p == ProrateImmediately || p == ProrateNextInvoice
}

// RemainingFraction returns (end - now) / (end - start) clamped to [0, 1].
func RemainingFraction(p Period, now time.Time) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	frac := float64(p.End.Sub(now)) / float64(p.Duration())
	return math.Min(1, math.Max(0, frac)), nil
}

// Prorate returns (newPrice - oldPrice) * remainingFraction in minor units,
// rounded half away from zero. Positive is a charge, negative a credit.
func Prorate(oldPrice, newPrice int64, remainingFraction float64) (int64, error) {
	if math.IsNaN(remainingFraction) || remainingFraction < 0 || remainingFraction > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFraction, remainingFraction)
	}
	return int64(math.Round(float64(newPrice-oldPrice) * remainingFraction)), nil
}

// PlanChange describes the money movement caused by a mid-cycle tier change.
type PlanChange struct {
	RemainingFraction float64
	Amount            int64     // positive: charge, negative: credit
	ChargeNow         bool      // collect Amount immediately
	AppliesAt         time.Time // when Amount hits an invoice
}

// QuotePlanChange prorates a tier change at now within period p.
// Credits are always carried to the next invoice; charges follow policy.
func QuotePlanChange(p Period, oldPrice, newPrice int64, now time.Time, policy ProrationPolicy) (PlanChange, error) {
	if !policy.Valid() {
		return PlanChange{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
	}
	frac, err := RemainingFraction(p, now)
	if err != nil {
		return PlanChange{}, err
	}
	amount, err := Prorate(oldPrice, newPrice, frac)
	if err != nil {
		return PlanChange{}, err
	}

	change := PlanChange{
		RemainingFraction: frac,
		Amount:            amount,
		AppliesAt:         p.End,
	}
	if amount > 0 && policy == ProrateImmediately {
		change.ChargeNow = true
		change.AppliesAt = now
	}
	return change, nil
}
