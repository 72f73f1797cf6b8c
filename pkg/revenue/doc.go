// Package revenue splits a gross charge between the platform and the creator.
//
// Amounts are integers in the smallest currency unit (cents for USD). The
// platform fee is rounded half-up and the creator receives the remainder, so
// the two parts always add back up to the gross amount. Any rounding bias is
// absorbed by the platform fee.
//
// # Usage
//
//	split, err := revenue.ComputeSplit(10000, revenue.DefaultPlatformFee)
//	if err != nil {
//	    return err
//	}
//	// split.PlatformFeeAmount == 3000, split.CreatorEarnings == 7000
//
// # Error Handling
//
// ComputeSplit returns ErrInvalidAmount for negative amounts and
// ErrInvalidPercent for fee percentages outside [0, 1].
package revenue
