package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/reqlab/internal/invitation"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Email string `json:"email"`
		Count int    `json:"count"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"email":"a@b.co","count":1}`, ""},
		{"empty", ``, "request body is empty"},
		{"malformed", `{"email":`, "request body is not valid JSON"},
		{"syntax", `{email}`, "request body is not valid JSON"},
		{"unknown field", `{"email":"a@b.co","admin":true}`, `unknown field "admin"`},
		{"wrong type", `{"count":"one"}`, `field "count" has the wrong type`},
		{"trailing value", `{"email":"a@b.co"}{"email":"c@d.co"}`, "request body must contain a single JSON object"},
		{"too large", `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`, "request body is too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, payload{Email: "a@b.co", Count: 1}, dst)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"validation", fmt.Errorf("%w: email is required", invitation.ErrValidation), http.StatusBadRequest, ""},
		{"not found", invitation.ErrNotFound, http.StatusNotFound, `{"error":"invitation not found"}`},
		{"conflict", invitation.ErrConflict, http.StatusConflict, ""},
		{"forbidden", invitation.ErrForbidden, http.StatusForbidden, ""},
		{"dispatch", fmt.Errorf("%w: %w", invitation.ErrDispatchFailed, errors.New("smtp: 550")), http.StatusInternalServerError,
			`{"error":"invitation email could not be sent"}`},
		{"unknown", errors.New("disk I/O error"), http.StatusInternalServerError, `{"error":"internal server error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, logger, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.body != "" {
				assert.JSONEq(t, tt.body, rec.Body.String())
			}
		})
	}
}
