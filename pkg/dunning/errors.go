package dunning

import "errors"

var (
	ErrAttemptNotFound        = errors.New("dunning: charge attempt not found")
	ErrAttemptAlreadyResolved = errors.New("dunning: charge attempt already resolved")
	ErrAttemptPending         = errors.New("dunning: previous charge attempt is still pending")
	ErrAttemptSubmitted       = errors.New("dunning: charge attempt already submitted")
	ErrRecoveryExhausted      = errors.New("dunning: retry schedule exhausted")
	ErrInvalidOutcome         = errors.New("dunning: invalid charge outcome")
	ErrInvalidPolicy          = errors.New("dunning: invalid retry policy")
	ErrStoreNil               = errors.New("dunning: attempt store cannot be nil")
	ErrInvalidAmount          = errors.New("dunning: invalid charge amount")
)
