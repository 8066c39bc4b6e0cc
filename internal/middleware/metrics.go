package middleware

import (
	"net/http"
	"time"

	"github.com/dukerupert/reqlab/internal/metrics"
)

// Metrics records request counts and latency labelled by route pattern.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			// The mux fills in Pattern on the way through; unmatched paths
			// share one label.
			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			m.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
		})
	}
}
