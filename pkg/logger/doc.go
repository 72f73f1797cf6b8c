// Package logger builds log/slog loggers for creatorpay services.
//
// New returns a *slog.Logger writing JSON (default) or text. WithEnvironment
// applies per-environment defaults and attaches the service name. Context
// extractors registered with WithContextExtractors or WithContextValue add
// request-scoped attributes, such as the request id, to every record logged
// with a context:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "creatorpay"),
//		logger.WithContextExtractors(requestIDFromContext),
//	)
//	log.InfoContext(ctx, "subscription transitioned",
//		logger.SubscriptionID(sub.ID),
//		logger.Transition(string(from), string(sub.State)),
//	)
//
// The attribute helpers (SubscriptionID, AttemptID, State, Event, Intent, Error)
// keep key names consistent across packages. Helpers taking optional values
// return an empty slog.Attr, which slog drops, for nil or empty input.
package logger
