package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
)

// PaddleConfig holds the Paddle API and webhook settings. Charges go
// through Paddle only when APIKey is set.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	MaxBodyBytes  int64  `env:"PADDLE_MAX_BODY_BYTES" envDefault:"1048576"`
}

const (
	paddleEventPaymentSucceeded = "transaction.payment_succeeded"
	paddleEventCompleted        = "transaction.completed"
	paddleEventPaymentFailed    = "transaction.payment_failed"

	// attemptIDKey is the custom_data key carrying our attempt id on Paddle transactions.
	attemptIDKey      = "attempt_id"
	subscriptionIDKey = "subscription_id"
)

// PaddleNotification is the part of a Paddle webhook the adapter reads.
type PaddleNotification struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Data      struct {
		ID         string         `json:"id"`
		Status     string         `json:"status"`
		CustomData map[string]any `json:"custom_data"`
		Payments   []struct {
			Status    string  `json:"status"`
			ErrorCode *string `json:"error_code"`
		} `json:"payments"`
	} `json:"data"`
}

// ChargeResolver is the part of Engine the webhook adapter needs.
type ChargeResolver interface {
	ResolveCharge(ctx context.Context, attemptID uuid.UUID, outcome dunning.Outcome, reason string) (*ChargeOutcome, error)
}

// PaddleWebhook verifies Paddle notifications and turns transaction
// payment events into charge outcomes.
type PaddleWebhook struct {
	verifier *paddle.WebhookVerifier
	resolver ChargeResolver
	maxBody  int64
	log      *slog.Logger
}

// NewPaddleWebhook creates the adapter. The secret is the endpoint's
// notification secret from the Paddle dashboard.
func NewPaddleWebhook(cfg PaddleConfig, resolver ChargeResolver, log *slog.Logger) (*PaddleWebhook, error) {
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: paddle webhook secret is required", ErrInvalidConfig)
	}
	if resolver == nil {
		panic("billing: paddle webhook requires a charge resolver")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if log == nil {
		log = logger.Discard()
	}
	return &PaddleWebhook{
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		resolver: resolver,
		maxBody:  cfg.MaxBodyBytes,
		log:      log.With(logger.Component("paddle")),
	}, nil
}

// Handle verifies the request signature and applies the notification.
// Events other than transaction payments return ErrUnsupportedWebhook.
func (p *PaddleWebhook) Handle(r *http.Request) (*ChargeOutcome, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, p.maxBody)

	// Verify restores the body after reading it.
	valid, err := p.verifier.Verify(r)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformedWebhook, err)
	}
	return p.apply(r.Context(), body)
}

func (p *PaddleWebhook) apply(ctx context.Context, body []byte) (*ChargeOutcome, error) {
	var n PaddleNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	outcome, reason, err := paddleOutcome(n)
	if err != nil {
		p.log.DebugContext(ctx, "paddle notification skipped",
			slog.String("event_id", n.EventID),
			slog.String("event_type", n.EventType))
		return nil, err
	}

	raw, _ := n.Data.CustomData[attemptIDKey].(string)
	attemptID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction %s has no valid %s", ErrMalformedWebhook, n.Data.ID, attemptIDKey)
	}

	out, err := p.resolver.ResolveCharge(ctx, attemptID, outcome, reason)
	if err != nil {
		return nil, err
	}
	p.log.InfoContext(ctx, "paddle notification applied",
		slog.String("event_id", n.EventID),
		slog.String("event_type", n.EventType),
		logger.AttemptID(attemptID),
		slog.Bool("duplicate", out.Duplicate))
	return out, nil
}

func paddleOutcome(n PaddleNotification) (dunning.Outcome, string, error) {
	switch n.EventType {
	case paddleEventPaymentSucceeded, paddleEventCompleted:
		return dunning.OutcomeSucceeded, "", nil
	case paddleEventPaymentFailed:
		reason := "payment_failed"
		for i := len(n.Data.Payments) - 1; i >= 0; i-- {
			if code := n.Data.Payments[i].ErrorCode; code != nil && *code != "" {
				reason = *code
				break
			}
		}
		return dunning.OutcomeFailed, reason, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedWebhook, n.EventType)
	}
}
