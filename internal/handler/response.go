package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "invalid_payload", "message": "email is required", "field": "email"}
//
// "error" is a stable machine-readable code the signup script switches on.
// "field" is only present when one form field caused the failure.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/bookdigest/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable code (e.g., "invalid_location")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Form field at fault, if any
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE writing the body. Once Encode
// writes, any header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a domain error to its HTTP status.
//
// The service layer returns apperror values and never knows about HTTP.
// errors.Is walks the whole chain, so a wrapped AppError still matches.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// Unknown errors become a generic 500. NEVER expose their text: it may
// carry upstream bodies, SQL or file paths. Upstream AppErrors only show
// their generic Message; the Cause stays in the logs.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", slog.String("code", appErr.Code), slog.String("error", err.Error()))
		}
		writeJSON(w, status, ErrorResponse{
			Error:   appErr.Code,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	logger.Error("unexpected error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   apperror.CodeServer,
		Message: "An internal error occurred",
	})
}
