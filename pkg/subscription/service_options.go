package subscription

import (
	"time"

	"github.com/dmitrymomot/creatorpay/pkg/billingcycle"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithClock overrides the time source used for new subscriptions.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPlatformFee sets the platform cut used by Split. NewService rejects values outside [0, 1].
func WithPlatformFee(fee float64) ServiceOption {
	return func(s *service) {
		s.platformFee = fee
	}
}

// WithProrationPolicy sets when upgrade charges are collected.
func WithProrationPolicy(p billingcycle.ProrationPolicy) ServiceOption {
	return func(s *service) {
		if p != "" {
			s.proration = p
		}
	}
}

// CreateOption configures CreateSubscription.
type CreateOption func(*createConfig)

type createConfig struct {
	trialDays *int
}

// WithTrialDays overrides the tier's trial. Zero starts a trial that ends immediately.
func WithTrialDays(days int) CreateOption {
	return func(c *createConfig) {
		c.trialDays = &days
	}
}

// WithoutTrial disables the tier's trial.
func WithoutTrial() CreateOption {
	return func(c *createConfig) {
		c.trialDays = nil
	}
}
