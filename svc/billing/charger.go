package billing

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
)

// ChargeRequest is a due attempt handed to the payment processor.
// The attempt id is the idempotency key.
type ChargeRequest struct {
	Attempt      dunning.ChargeAttempt
	Subscription subscription.Subscription
	Amount       subscription.Money
	TierName     string
}

// ChargeResult is the processor's answer. Pending means the outcome will
// arrive later through a webhook or the resolve endpoint.
type ChargeResult struct {
	Outcome dunning.Outcome
	Reason  string
}

// Charger executes charges. Card processing itself lives outside this service.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// ExternalCharger only logs the request and leaves the attempt pending.
// Used when the payment processor drives charges itself and reports back.
type ExternalCharger struct {
	log *slog.Logger
}

func NewExternalCharger(log *slog.Logger) *ExternalCharger {
	if log == nil {
		log = logger.Discard()
	}
	return &ExternalCharger{log: log}
}

func (c *ExternalCharger) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	c.log.InfoContext(ctx, "charge requested",
		logger.SubscriptionID(req.Subscription.ID),
		logger.AttemptID(req.Attempt.ID),
		slog.Int64("amount", req.Amount.Amount),
		slog.String("currency", req.Amount.Currency))
	return ChargeResult{Outcome: dunning.OutcomePending}, nil
}
