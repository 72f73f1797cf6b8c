// Package handler provides typed JSON HTTP handlers.
//
// A handler receives a Context and a request struct populated by binders and
// returns a Response:
//
//	type GetSubscriptionRequest struct {
//		ID uuid.UUID `path:"id"`
//	}
//
//	func get(ctx handler.Context, req GetSubscriptionRequest) handler.Response {
//		sub, err := ledger.GetSubscription(ctx, req.ID)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(sub)
//	}
//
//	r.Get("/subscriptions/{id}", handler.Wrap(get,
//		handler.WithBinders[handler.Context, GetSubscriptionRequest](binder.Path(chi.URLParam)),
//		handler.WithErrorHandler[handler.Context, GetSubscriptionRequest](handler.NewErrorHandler[handler.Context](log)),
//	))
//
// Errors are rendered as a JSON envelope. HTTPError and ValidationError carry
// their own status; other errors can be translated with ErrorMapper functions
// passed to NewErrorHandler and JSONError.
package handler
