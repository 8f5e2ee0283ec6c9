package handler

// RESPONSE HELPERS:
// Every JSON error from our API has the same shape:
//
//	{"error": "not_found", "message": "role not found with id 123"}
//
// except errors that came from Discord, which are forwarded verbatim with
// Discord's own status so the operator sees exactly what Discord said.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/sakif/insignia/internal/apperror"
	"github.com/sakif/insignia/internal/discord"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error      string `json:"error"`                 // machine-readable, e.g. "not_found"
	Message    string `json:"message"`               // human-readable description
	Field      string `json:"field,omitempty"`       // offending input on validation errors
	InviteLink string `json:"invite_link,omitempty"` // set with bot_not_in_guild
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// WriteError is writeError for middleware mounted outside this package.
func WriteError(w http.ResponseWriter, err error) {
	writeError(w, err)
}

// writeError maps an error from the service layer to an HTTP response.
//
// ERROR MAPPING:
//
//	apperror.ErrValidation   → 400 validation_error
//	apperror.ErrUnauthorized → 401 unauthorized
//	apperror.ErrNotInGuild   → 403 bot_not_in_guild (+ invite_link)
//	apperror.ErrForbidden    → 403 forbidden
//	apperror.ErrNotFound     → 404 not_found
//	*discord.APIError        → Discord's status and body, untouched
//	timeout talking to Discord        → 504
//	other transport error to Discord  → 502
//	anything else                     → 500, no detail leaked
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrNotInGuild):
			status = http.StatusForbidden
			errorType = "bot_not_in_guild"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		}

		writeJSON(w, status, ErrorResponse{
			Error:      errorType,
			Message:    appErr.Message,
			Field:      appErr.Field,
			InviteLink: appErr.InviteLink,
		})
		return
	}

	var apiErr *discord.APIError
	if errors.As(err, &apiErr) {
		writeUpstream(w, apiErr)
		return
	}

	if isTransport(err) {
		if discord.IsTimeout(err) {
			writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{
				Error:   "upstream_timeout",
				Message: "Discord did not answer in time",
			})
			return
		}
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_unreachable",
			Message: "Discord could not be reached",
		})
		return
	}

	// Unknown error: generic 500. The raw message may contain SQL or paths.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// isTransport reports whether err is a failed round trip rather than an
// answer: connection refused, reset, DNS failure or timeout.
func isTransport(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr) || discord.IsTimeout(err)
}

// writeUpstream forwards a Discord error response.
func writeUpstream(w http.ResponseWriter, apiErr *discord.APIError) {
	contentType := "text/plain; charset=utf-8"
	if json.Valid(apiErr.Body) {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(apiErr.Status)
	_, _ = w.Write(apiErr.Body)
}
