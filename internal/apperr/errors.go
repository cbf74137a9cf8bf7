// Package apperr is the error taxonomy shared by services and the HTTP edge.
// Stores and services wrap these sentinels; handlers map them to status codes
// in one place (handlers.RespondAppError).
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")

	// Absent and not-owned resources are deliberately the same error so callers
	// cannot probe for documents that belong to someone else.
	ErrNotFoundOrForbidden = errors.New("not found or forbidden")

	ErrConflict          = errors.New("conflict")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInvalidCode       = errors.New("invalid verification code")
	ErrValidation        = errors.New("validation failure")
	ErrStorage           = errors.New("storage failure")
	ErrRateLimited       = errors.New("rate limited")
)

// Storage tags a driver error as ErrStorage while keeping the cause reachable
// through errors.Is / errors.As.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Validation builds an ErrValidation carrying a user facing reason.
func Validation(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

// Kind returns the taxonomy sentinel err belongs to, or nil when err is not
// classified.
func Kind(err error) error {
	for _, k := range []error{
		ErrUnauthenticated,
		ErrNotFoundOrForbidden,
		ErrConflict,
		ErrInvalidCredential,
		ErrInvalidCode,
		ErrValidation,
		ErrRateLimited,
		ErrStorage,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
