package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RequestRecorder receives one observation per served request
type RequestRecorder interface {
	RequestServed(method, route string, status int, took time.Duration)
}

// Instrument records request counts and latency by route pattern.
// Unmatched paths are reported as "other" to keep label cardinality bounded.
func Instrument(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			route := "other"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			rec.RequestServed(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
