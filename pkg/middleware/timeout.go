package middleware

import (
	"net/http"

	"github.com/kevin07696/bakery-service/pkg/resilience"
)

// Timeout bounds each request by the handler budget unless the caller already set a deadline
func Timeout(config *resilience.TimeoutConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, hasDeadline := r.Context().Deadline(); hasDeadline {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := config.HandlerContext(r.Context())
		defer cancel()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
