// Package apperror defines the application's error taxonomy.
//
// Every layer returns these instead of transport-specific codes; the HTTP
// handlers translate them with errors.Is (see handler/response.go).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrUnauthenticated means the caller has no valid session at all.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUpstreamSync marks a failed directory write during sign-in.
	// It is logged and never surfaced to the caller.
	ErrUpstreamSync = errors.New("upstream sync failure")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated returns an AppError for calls that need a session.
// HTTP handlers map this to 401 Unauthorized.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "valid authentication required",
	}
}

// UpstreamSync wraps a directory failure that happened while signing a user in.
func UpstreamSync(op string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrUpstreamSync, cause),
		Message: fmt.Sprintf("directory sync failed during %s: %v", op, cause),
	}
}
