package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"

	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
)

// NewPaddleClient creates a Paddle API client for the configured environment.
func NewPaddleClient(cfg PaddleConfig, opts ...paddle.Option) (*paddle.SDK, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: paddle API key is required", ErrInvalidConfig)
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey, opts...)
	case "production", "":
		client, err = paddle.New(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("%w: invalid paddle environment %q", ErrInvalidConfig, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}
	return client, nil
}

// PaddleCharger charges fans through Paddle transactions with automatic
// collection. The attempt id travels in custom_data, so the payment webhook
// resolves the same attempt.
type PaddleCharger struct {
	client *paddle.SDK
	fans   FanDirectory
	log    *slog.Logger
}

// NewPaddleCharger creates the charger. Panics if client or fans is nil.
func NewPaddleCharger(client *paddle.SDK, fans FanDirectory, log *slog.Logger) *PaddleCharger {
	if client == nil {
		panic("billing: paddle client is required")
	}
	if fans == nil {
		panic("billing: fan directory is required")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &PaddleCharger{client: client, fans: fans, log: log.With(logger.Component("paddle"))}
}

// Charge creates a ready transaction for the fan's Paddle customer. Paddle
// rejections fail the attempt with the error code as reason; transport
// errors are returned and the attempt times out.
func (c *PaddleCharger) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	fan, err := c.fans.Fan(ctx, req.Subscription.FanID)
	if err != nil && !errors.Is(err, ErrFanNotFound) {
		return ChargeResult{}, fmt.Errorf("get fan: %w", err)
	}
	if fan.PaddleCustomerID == "" {
		c.log.WarnContext(ctx, "fan has no paddle customer",
			logger.SubscriptionID(req.Subscription.ID),
			logger.AttemptID(req.Attempt.ID),
			logger.FanID(req.Subscription.FanID))
		return ChargeResult{Outcome: dunning.OutcomeFailed, Reason: "no_paddle_customer"}, nil
	}

	currency := paddle.CurrencyCode(req.Amount.Currency)
	item := paddle.NewCreateTransactionItemsTransactionItemCreateWithProduct(&paddle.TransactionItemCreateWithProduct{
		Quantity: 1,
		Price: paddle.TransactionPriceCreateWithProduct{
			Description: fmt.Sprintf("%s charge %d", req.Attempt.Class, req.Attempt.AttemptNumber),
			Name:        paddle.PtrTo(req.TierName),
			TaxMode:     paddle.TaxModeAccountSetting,
			UnitPrice: paddle.Money{
				Amount:       strconv.FormatInt(req.Amount.Amount, 10),
				CurrencyCode: currency,
			},
			Product: paddle.TransactionSubscriptionProductCreate{
				Name:        req.TierName,
				TaxCategory: paddle.TaxCategoryStandard,
			},
		},
	})

	txReq := &paddle.CreateTransactionRequest{
		Items:          []paddle.CreateTransactionItems{*item},
		CustomerID:     paddle.PtrTo(fan.PaddleCustomerID),
		CurrencyCode:   paddle.PtrTo(currency),
		CollectionMode: paddle.PtrTo(paddle.CollectionModeAutomatic),
		CustomData: paddle.CustomData{
			attemptIDKey:      req.Attempt.ID.String(),
			subscriptionIDKey: req.Subscription.ID.String(),
		},
	}
	if fan.PaddleAddressID != "" {
		txReq.AddressID = paddle.PtrTo(fan.PaddleAddressID)
	}

	tx, err := c.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		var apiErr *paddleerr.Error
		if errors.As(err, &apiErr) && apiErr.Type == paddleerr.ErrorTypeRequestError {
			c.log.WarnContext(ctx, "paddle rejected charge",
				logger.SubscriptionID(req.Subscription.ID),
				logger.AttemptID(req.Attempt.ID),
				slog.String("code", apiErr.Code))
			return ChargeResult{Outcome: dunning.OutcomeFailed, Reason: apiErr.Code}, nil
		}
		return ChargeResult{}, fmt.Errorf("failed to create paddle transaction: %w", err)
	}

	c.log.InfoContext(ctx, "paddle transaction created",
		logger.SubscriptionID(req.Subscription.ID),
		logger.AttemptID(req.Attempt.ID),
		slog.String("transaction_id", tx.ID),
		slog.String("status", string(tx.Status)),
		slog.Int64("amount", req.Amount.Amount),
		slog.String("currency", req.Amount.Currency))

	switch tx.Status {
	case paddle.TransactionStatusCompleted, paddle.TransactionStatusPaid:
		return ChargeResult{Outcome: dunning.OutcomeSucceeded}, nil
	case paddle.TransactionStatusPastDue, paddle.TransactionStatusCanceled:
		return ChargeResult{Outcome: dunning.OutcomeFailed, Reason: "payment_failed"}, nil
	default:
		return ChargeResult{Outcome: dunning.OutcomePending}, nil
	}
}
