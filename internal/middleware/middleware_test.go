package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/dukerupert/reqlab/internal/metrics"
)

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Contains(t, buf.String(), tt.level)
		assert.Contains(t, buf.String(), "path=/health")
	}
}

func TestMetricsLabelsByPattern(t *testing.T) {
	m := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /applications/{appId}/environments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Metrics(m)(mux)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/applications/a1/environments", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/applications/a2/environments", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, float64(2), testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues("GET", "GET /applications/{appId}/environments", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
