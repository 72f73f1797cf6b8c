package revenue

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DefaultPlatformFee is the marketplace cut of every fan payment (70/30 creator/platform).
const DefaultPlatformFee = 0.30

// RevenueSplit is the result of splitting a gross amount. It is a value object and is never persisted.
type RevenueSplit struct {
	GrossAmount        int64
	PlatformFeePercent float64
	PlatformFeeAmount  int64
	CreatorEarnings    int64
}

// ComputeSplit splits grossAmount (minor units) using feePercent in [0, 1].
// PlatformFeeAmount = round-half-up(grossAmount * feePercent) and
// CreatorEarnings = grossAmount - PlatformFeeAmount.
func ComputeSplit(grossAmount int64, feePercent float64) (RevenueSplit, error) {
	if grossAmount < 0 {
		return RevenueSplit{}, fmt.Errorf("%w: %d", ErrInvalidAmount, grossAmount)
	}
	if math.IsNaN(feePercent) || feePercent < 0 || feePercent > 1 {
		return RevenueSplit{}, fmt.Errorf("%w: %v", ErrInvalidPercent, feePercent)
	}

	// NewFromFloat keeps the shortest decimal form of the fee, so 0.3 is exactly 0.3.
	// Both operands are non-negative, so Round(0) rounds half up.
	platformFee := decimal.NewFromInt(grossAmount).
		Mul(decimal.NewFromFloat(feePercent)).
		Round(0).
		IntPart()
	return RevenueSplit{
		GrossAmount:        grossAmount,
		PlatformFeePercent: feePercent,
		PlatformFeeAmount:  platformFee,
		CreatorEarnings:    grossAmount - platformFee,
	}, nil
}

// MustComputeSplit is like ComputeSplit but panics on invalid input.
// Intended for package-level constants and tests.
func MustComputeSplit(grossAmount int64, feePercent float64) RevenueSplit {
	split, err := ComputeSplit(grossAmount, feePercent)
	if err != nil {
		panic(err)
	}
	return split
}
