package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/creatorpay/pkg/clientip"
	"github.com/dmitrymomot/creatorpay/pkg/httpserver"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/requestid"
	billingsvc "github.com/dmitrymomot/creatorpay/svc/billing"
)

// RouterOptions configures the billing API. Engine is required; the Paddle
// webhook route is mounted only when Paddle is set.
type RouterOptions struct {
	Engine       *billingsvc.Engine
	Paddle       *billingsvc.PaddleWebhook
	Logger       *slog.Logger
	HealthChecks []httpserver.HealthCheck
	// ProxyHeaders are trusted for the client IP; clientip.DefaultHeaders when empty.
	ProxyHeaders []string
}

// Router creates the billing API router.
//
// Example:
//
//	r := billing.Router(billing.RouterOptions{
//		Engine: engine,
//		Paddle: webhook,
//		Logger: log,
//		HealthChecks: []httpserver.HealthCheck{{Name: "postgres", Check: pool.Ping}},
//	})
//	srv.Run(ctx, r)
func Router(opts RouterOptions) chi.Router {
	if opts.Engine == nil {
		panic("billing: engine is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	h := &handlers{
		engine: opts.Engine,
		paddle: opts.Paddle,
		log:    log.With(logger.Component("billing_api")),
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware(opts.ProxyHeaders...))
	r.Use(accessLog(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(log, opts.HealthChecks...))

	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", wrap(h, h.createSubscription, jsonBody))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", wrap(h, h.getSubscription, pathParams))
			r.Post("/cancel", wrap(h, h.cancel, pathParams, jsonBody))
			r.Post("/reactivate", wrap(h, h.reactivate, pathParams))
			r.Post("/tier", wrap(h, h.changeTier, pathParams, jsonBody))
			r.Post("/retry", wrap(h, h.retry, pathParams))
		})
	})

	r.Post("/charges/{attemptID}/resolve", wrap(h, h.resolveCharge, pathParams, jsonBody))
	r.Get("/splits", wrap(h, h.split, queryParams))

	if opts.Paddle != nil {
		r.Post("/webhooks/paddle", h.paddleWebhook)
	}

	return r
}

// accessLog logs one line per request.
func accessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.LogAttrs(r.Context(), slog.LevelInfo, "http request",
				logger.RequestID(requestid.FromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("client_ip", clientip.FromContext(r.Context())),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
