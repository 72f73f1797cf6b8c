// Package clientip resolves the originating client address of a request
// served behind reverse proxies.
package clientip

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// DefaultHeaders lists proxy headers in descending priority.
// X-Forwarded-For may hold a list; its first valid address wins.
var DefaultHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// GetIP returns the client IP using DefaultHeaders, falling back to RemoteAddr.
func GetIP(r *http.Request) string {
	return FromHeaders(r, DefaultHeaders...)
}

// FromHeaders returns the first valid address found in headers, then RemoteAddr.
// Pass no headers when the service is exposed directly.
func FromHeaders(r *http.Request, headers ...string) string {
	for _, h := range headers {
		for candidate := range strings.SplitSeq(r.Header.Get(h), ",") {
			if ip := parseIP(candidate); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

type contextKey struct{}

// Middleware stores the client IP in the request context.
func Middleware(headers ...string) func(http.Handler) http.Handler {
	if len(headers) == 0 {
		headers = DefaultHeaders
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), contextKey{}, FromHeaders(r, headers...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the IP stored by Middleware.
func FromContext(ctx context.Context) string {
	ip, _ := ctx.Value(contextKey{}).(string)
	return ip
}
