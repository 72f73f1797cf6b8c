package binder

import (
	"fmt"
	"net/http"
)

// Query binds URL query parameters by `query` tag.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", func(name string) []string {
			return r.URL.Query()[name]
		}, ErrFailedToParseQuery)
	}
}

// Path binds path parameters by `path` tag using a router-specific extractor,
// e.g. chi.URLParam.
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return fmt.Errorf("%w: extractor is nil", ErrFailedToParsePath)
		}
		return bindToStruct(v, "path", func(name string) []string {
			if val := extractor(r, name); val != "" {
				return []string{val}
			}
			return nil
		}, ErrFailedToParsePath)
	}
}
