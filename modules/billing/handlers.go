package billing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/creatorpay/handler"
	"github.com/dmitrymomot/creatorpay/pkg/binder"
	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/revenue"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
	billingsvc "github.com/dmitrymomot/creatorpay/svc/billing"
)

var (
	jsonBody    = binder.JSON()
	pathParams  = binder.Path(chi.URLParam)
	queryParams = binder.Query()
)

type handlers struct {
	engine *billingsvc.Engine
	paddle *billingsvc.PaddleWebhook
	log    *slog.Logger
}

// wrap binds R with binders and renders errors through the domain error mapper.
func wrap[R any](h *handlers, fn handler.HandlerFunc[handler.Context, R], binders ...func(*http.Request, any) error) http.HandlerFunc {
	return handler.Wrap(fn,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](handler.NewErrorHandler[handler.Context](h.log, mapError)),
	)
}

// fail renders err with the domain error mapper.
func fail(err error) handler.Response {
	return handler.JSONError(err, mapError, handler.BinderErrors)
}

type createSubscriptionRequest struct {
	FanID     uuid.UUID `json:"fan_id"`
	CreatorID uuid.UUID `json:"creator_id"`
	TierID    string    `json:"tier_id"`
	// TrialDays overrides the tier's trial; NoTrial disables it.
	TrialDays *int `json:"trial_days,omitempty"`
	NoTrial   bool `json:"no_trial,omitempty"`
}

func (r createSubscriptionRequest) validate() error {
	verr := handler.NewValidationError()
	if r.FanID == uuid.Nil {
		verr.Add("fan_id", "is required")
	}
	if r.CreatorID == uuid.Nil {
		verr.Add("creator_id", "is required")
	}
	if r.TierID == "" {
		verr.Add("tier_id", "is required")
	}
	if r.TrialDays != nil && *r.TrialDays < 0 {
		verr.Add("trial_days", "must not be negative")
	}
	if r.TrialDays != nil && r.NoTrial {
		verr.Add("no_trial", "cannot be combined with trial_days")
	}
	return verr.OrNil()
}

func (h *handlers) createSubscription(ctx handler.Context, req createSubscriptionRequest) handler.Response {
	if err := req.validate(); err != nil {
		return fail(err)
	}

	var opts []subscription.CreateOption
	switch {
	case req.NoTrial:
		opts = append(opts, subscription.WithoutTrial())
	case req.TrialDays != nil:
		opts = append(opts, subscription.WithTrialDays(*req.TrialDays))
	}

	sub, err := h.engine.Subscribe(ctx, req.FanID, req.CreatorID, req.TierID, opts...)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(sub, handler.WithJSONStatus(http.StatusCreated))
}

type subscriptionRequest struct {
	ID uuid.UUID `path:"id"`
}

func (h *handlers) getSubscription(ctx handler.Context, req subscriptionRequest) handler.Response {
	sub, err := h.engine.Ledger().GetSubscription(ctx, req.ID)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(sub)
}

type cancelRequest struct {
	ID        uuid.UUID `path:"id"`
	Immediate bool      `json:"immediate"`
}

func (h *handlers) cancel(ctx handler.Context, req cancelRequest) handler.Response {
	res, err := h.engine.Cancel(ctx, req.ID, req.Immediate)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(res)
}

func (h *handlers) reactivate(ctx handler.Context, req subscriptionRequest) handler.Response {
	res, err := h.engine.Reactivate(ctx, req.ID)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(res)
}

type changeTierRequest struct {
	ID     uuid.UUID `path:"id"`
	TierID string    `json:"tier_id"`
}

func (h *handlers) changeTier(ctx handler.Context, req changeTierRequest) handler.Response {
	if req.TierID == "" {
		verr := handler.NewValidationError()
		verr.Add("tier_id", "is required")
		return fail(verr)
	}
	change, err := h.engine.ChangeTier(ctx, req.ID, req.TierID)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(change)
}

func (h *handlers) retry(ctx handler.Context, req subscriptionRequest) handler.Response {
	attempt, err := h.engine.RetryNow(ctx, req.ID)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(attempt, handler.WithJSONStatus(http.StatusAccepted))
}

type resolveChargeRequest struct {
	AttemptID uuid.UUID `path:"attemptID"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
}

func (h *handlers) resolveCharge(ctx handler.Context, req resolveChargeRequest) handler.Response {
	outcome := dunning.Outcome(req.Outcome)
	if outcome != dunning.OutcomeSucceeded && outcome != dunning.OutcomeFailed {
		verr := handler.NewValidationError()
		verr.Add("outcome", "must be succeeded or failed")
		return fail(verr)
	}

	out, err := h.engine.ResolveCharge(ctx, req.AttemptID, outcome, req.Reason)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(out)
}

type splitRequest struct {
	Gross int64    `query:"gross"`
	Fee   *float64 `query:"fee"`
}

type splitResponse struct {
	GrossAmount        int64   `json:"gross_amount"`
	PlatformFeePercent float64 `json:"platform_fee_percent"`
	PlatformFeeAmount  int64   `json:"platform_fee_amount"`
	CreatorEarnings    int64   `json:"creator_earnings"`
}

func (h *handlers) split(_ handler.Context, req splitRequest) handler.Response {
	var (
		s   revenue.RevenueSplit
		err error
	)
	if req.Fee != nil {
		s, err = revenue.ComputeSplit(req.Gross, *req.Fee)
	} else {
		s, err = h.engine.Ledger().Split(req.Gross)
	}
	if err != nil {
		return fail(err)
	}
	return handler.JSON(splitResponse{
		GrossAmount:        s.GrossAmount,
		PlatformFeePercent: s.PlatformFeePercent,
		PlatformFeeAmount:  s.PlatformFeeAmount,
		CreatorEarnings:    s.CreatorEarnings,
	})
}

// paddleWebhook acknowledges events it does not handle so Paddle stops
// redelivering them; processing errors are returned for a retry.
func (h *handlers) paddleWebhook(w http.ResponseWriter, r *http.Request) {
	out, err := h.paddle.Handle(r)
	switch {
	case errors.Is(err, billingsvc.ErrUnsupportedWebhook):
		err = handler.JSON(map[string]bool{"ignored": true}).Render(w, r)
	case err != nil:
		handler.NewErrorHandler[handler.Context](h.log, mapError)(handler.NewContext(w, r), err)
		return
	default:
		err = handler.JSON(out).Render(w, r)
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to render webhook response", logger.Error(err))
	}
}
