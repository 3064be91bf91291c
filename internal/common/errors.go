// Package common defines shared constants and sentinel errors used across
// decksync server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrVersionConflict = errors.New("version conflict")

	// Push payload rejected before any row was touched.
	ErrValidation = errors.New("validation error")

	// Cascade delete blocked by live dependents.
	ErrIntegrityGuard = errors.New("integrity guard")

	// Write refused by a schema constraint; retrying the same payload fails again.
	ErrConstraint = errors.New("constraint violation")

	// Underlying store failure; the transaction was rolled back and the call may be retried.
	ErrStorage = errors.New("storage error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
