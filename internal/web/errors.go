package web

// errors.go turns handler errors into JSON responses.
//
// The technical error is logged with the request id; the client receives
// the coded user message from core.MapError.

import (
	"context"
	"errors"
	"net/http"

	"github.com/mitrecx/my-bill-2/internal/core"
	"github.com/mitrecx/my-bill-2/internal/ingest"
	"github.com/mitrecx/my-bill-2/internal/logging"
	"github.com/mitrecx/my-bill-2/internal/store"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user message. A zero status is
// derived from the error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	level := log.Warn
	if status >= http.StatusInternalServerError {
		level = log.Error
	}
	level("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if errors.Is(err, ingest.ErrTooManyUploads) {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps known errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, core.ErrUnsupportedExtension),
		errors.Is(err, core.ErrSourceMismatch),
		errors.Is(err, core.ErrUnknownSource),
		errors.Is(err, core.ErrEmptyValue),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
