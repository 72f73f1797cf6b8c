package billingcycle

import "errors"

var (
	ErrInvalidPeriod   = errors.New("billingcycle: period start must be before end")
	ErrInvalidInterval = errors.New("billingcycle: unknown billing interval")
	ErrInvalidFraction = errors.New("billingcycle: remaining fraction must be within [0, 1]")
	ErrInvalidPolicy   = errors.New("billingcycle: unknown proration policy")
)
