package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	control "github.com/proxypal/proxypal/internal"
)

// apiError is the uniform error envelope for every JSON surface.
type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func errorResponse(code, msg string) apiError {
	return apiError{Success: false, Error: msg, Code: code}
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call. Saves 1 alloc/req.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse(code, msg))
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, control.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, control.ErrForbidden), errors.Is(err, control.ErrCSRFMismatch):
		return http.StatusForbidden
	case errors.Is(err, control.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, control.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, control.ErrValidation), errors.Is(err, control.ErrInvalidProvider):
		return http.StatusBadRequest
	case errors.Is(err, control.ErrQuotaExceeded), errors.Is(err, control.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, control.ErrBadGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, control.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, control.ErrCSRFMismatch):
		return "CSRF_MISMATCH"
	case errors.Is(err, control.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, control.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, control.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, control.ErrInvalidProvider):
		return "INVALID_PROVIDER"
	case errors.Is(err, control.ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, control.ErrQuotaExceeded):
		return "QUOTA_EXCEEDED"
	case errors.Is(err, control.ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, control.ErrBadGateway):
		return "BAD_GATEWAY"
	case errors.Is(err, control.ErrNotConfigured):
		return "NOT_CONFIGURED"
	default:
		return "INTERNAL_ERROR"
	}
}

// maxAdminBody is the maximum allowed admin request body size (1 MB).
const maxAdminBody = 1 << 20

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return false
	}
	return true
}

// writeAdminError logs the full error server-side and returns a sanitized
// message to the client to avoid leaking internal details (e.g. SQLite errors).
func writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	code := errorCode(err)
	switch code {
	case "INTERNAL_ERROR":
		slog.LogAttrs(r.Context(), slog.LevelError, "admin error",
			slog.String("error", err.Error()),
		)
		writeError(w, status, code, "internal error")
	default:
		writeError(w, status, code, err.Error())
	}
}
