package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/reqlab/internal/invitation"
)

// writeServiceError maps lifecycle errors to responses. Unknown errors are
// logged and answered with a static body.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, invitation.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, invitation.ErrNotFound):
		writeError(w, http.StatusNotFound, "invitation not found")
	case errors.Is(err, invitation.ErrConflict):
		writeError(w, http.StatusConflict, invitation.ErrConflict.Error())
	case errors.Is(err, invitation.ErrForbidden):
		writeError(w, http.StatusForbidden, invitation.ErrForbidden.Error())
	case errors.Is(err, invitation.ErrDispatchFailed):
		logger.Error("invitation dispatch failed", "error", err)
		writeError(w, http.StatusInternalServerError, invitation.ErrDispatchFailed.Error())
	default:
		internalError(w, logger, "request failed", err)
	}
}

func internalError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
