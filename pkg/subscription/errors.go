package subscription

import "errors"

var (
	ErrTierNotFound             = errors.New("subscription tier not found")
	ErrTierInactive             = errors.New("subscription tier is not accepting new subscriptions")
	ErrInvalidTierConfiguration = errors.New("invalid subscription tier configuration")
	ErrFailedToLoadTiers        = errors.New("failed to load subscription tiers")
	ErrIncompatibleTier         = errors.New("tier cannot replace the current one")

	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("live subscription already exists for fan and creator")
	ErrInvalidSubscriptionState  = errors.New("invalid subscription state")
	ErrInvalidTrialDays          = errors.New("trial days cannot be negative")

	ErrInvalidTransition      = errors.New("invalid subscription transition")
	ErrInvalidEvent           = errors.New("invalid subscription event")
	ErrConcurrentModification = errors.New("subscription was modified concurrently")
)
