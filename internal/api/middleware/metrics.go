package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector feeds the request and error counters surfaced by the
// /metrics endpoint.
type MetricsCollector struct {
	requests *atomic.Int64
	errors   *atomic.Int64
}

// NewMetricsCollector wraps the counters owned by the app so the middleware
// and the metrics handler read the same numbers.
func NewMetricsCollector(requests, errors *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{requests: requests, errors: errors}
}

// Middleware counts every request, and every response with a 4xx or 5xx
// status as an error.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requests.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.errors.Add(1)
		}
	})
}
