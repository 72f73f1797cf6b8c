package revenue

import "errors"

var (
	ErrInvalidAmount  = errors.New("revenue: gross amount must not be negative")
	ErrInvalidPercent = errors.New("revenue: fee percent must be within [0, 1]")
)
