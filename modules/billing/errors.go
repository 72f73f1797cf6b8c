package billing

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/creatorpay/handler"
	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/redis"
	"github.com/dmitrymomot/creatorpay/pkg/revenue"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
	billingsvc "github.com/dmitrymomot/creatorpay/svc/billing"
)

var errLocked = handler.NewHTTPError(http.StatusLocked, "subscription_locked")

var statusByError = []struct {
	status handler.HTTPError
	errs   []error
}{
	{handler.ErrNotFound, []error{
		subscription.ErrSubscriptionNotFound,
		subscription.ErrTierNotFound,
		dunning.ErrAttemptNotFound,
		billingsvc.ErrFanNotFound,
	}},
	{handler.ErrConflict, []error{
		subscription.ErrSubscriptionAlreadyExists,
		subscription.ErrConcurrentModification,
		subscription.ErrInvalidTransition,
		subscription.ErrInvalidSubscriptionState,
		dunning.ErrAttemptAlreadyResolved,
		dunning.ErrAttemptPending,
		billingsvc.ErrOutcomeConflict,
	}},
	{errLocked, []error{redis.ErrLockNotAcquired}},
	{handler.ErrUnprocessableEntity, []error{
		subscription.ErrTierInactive,
		subscription.ErrIncompatibleTier,
		subscription.ErrInvalidTrialDays,
		subscription.ErrInvalidEvent,
		dunning.ErrInvalidOutcome,
		dunning.ErrRecoveryExhausted,
		revenue.ErrInvalidAmount,
		revenue.ErrInvalidPercent,
	}},
	{handler.ErrBadRequest, []error{billingsvc.ErrMalformedWebhook}},
	{handler.ErrUnauthorized, []error{billingsvc.ErrInvalidSignature}},
}

// mapError translates domain errors to HTTP statuses.
func mapError(err error) error {
	for _, entry := range statusByError {
		for _, target := range entry.errs {
			if errors.Is(err, target) {
				return handler.WithStatus(entry.status, err)
			}
		}
	}
	return nil
}
