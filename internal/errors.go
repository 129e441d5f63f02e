package control

import "errors"

// Sentinel errors for the control plane domain.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrCSRFMismatch    = errors.New("csrf token mismatch")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrInvalidProvider = errors.New("invalid provider")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrRateLimited     = errors.New("rate limited")
	ErrBadGateway      = errors.New("bad gateway")
	ErrNotConfigured   = errors.New("not configured")
)
