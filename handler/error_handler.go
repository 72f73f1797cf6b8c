package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/creatorpay/pkg/binder"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/requestid"
)

// BinderErrors maps binder failures to 400 and 415 responses.
func BinderErrors(err error) error {
	switch {
	case errors.Is(err, binder.ErrUnsupportedMediaType):
		return WithStatus(ErrUnsupportedMediaType, err)
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParseQuery),
		errors.Is(err, binder.ErrFailedToParsePath):
		return WithStatus(ErrBadRequest, err)
	}
	return nil
}

// NewErrorHandler returns an ErrorHandler that logs the error and renders it
// as JSON. BinderErrors is always applied after the given mappers.
// Client errors are logged at warn level, server errors at error level.
func NewErrorHandler[C Context](log *slog.Logger, mappers ...ErrorMapper) ErrorHandler[C] {
	if log == nil {
		log = logger.Discard()
	}
	mappers = append(mappers, BinderErrors)

	return func(ctx C, err error) {
		resp := JSONError(err, mappers...).(*jsonResponse)
		r := ctx.Request()

		level := slog.LevelWarn
		if resp.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.LogAttrs(r.Context(), level, "request failed",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", resp.status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)

		if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response", logger.Error(renderErr))
		}
	}
}
