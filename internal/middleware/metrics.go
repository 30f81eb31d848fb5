package middleware

import (
	"net/http"
	"time"

	"github.com/sakif/bookdigest/internal/metrics"
)

// Metrics records latency and status class per route pattern. Using the
// pattern instead of the raw path keeps label cardinality bounded.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			m.ObserveEndpoint(RoutePattern(r), r.Method, wrapped.statusCode, time.Since(start))
		})
	}
}
