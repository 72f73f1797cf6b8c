// Package binder decodes HTTP request data into typed request structs.
//
// Binders are plain functions with the signature func(*http.Request, any) error
// and are applied in order by handler.Wrap:
//
//	type CancelRequest struct {
//		ID        uuid.UUID `path:"id"`
//		Immediate bool      `json:"immediate"`
//	}
//
//	r.Post("/subscriptions/{id}/cancel", handler.Wrap(cancel,
//		handler.WithBinders[handler.Context, CancelRequest](
//			binder.Path(chi.URLParam),
//			binder.JSON(),
//		),
//	))
//
// JSON bodies are decoded strictly: unknown fields and trailing data are
// rejected and the body is capped at DefaultMaxJSONSize. Query and path
// binders fill fields by their `query` and `path` tags and understand basic
// kinds, pointers, slices and any encoding.TextUnmarshaler such as uuid.UUID.
//
// An empty body on a JSON binder returns ErrBinderNotApplicable, so optional
// bodies can be combined with path binders.
package binder
