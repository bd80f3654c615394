package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared across layers. Repositories and services wrap these
// so callers can branch with errors.Is without depending on message text.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrUnavailable     = errors.New("upstream unavailable")
	ErrInternal        = errors.New("internal error")
)

// AppError is a structured application error carrying a stable machine code
// and an HTTP status mapping for the transport layer.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports that a resource id did not resolve.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// Conflict reports a state collision, e.g. a duplicate review by one author.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// InvalidArgument reports malformed or out-of-range input.
func InvalidArgument(message string) *AppError {
	return &AppError{
		Code:    "INVALID_ARGUMENT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidArgument,
	}
}

// Unauthenticated reports a missing caller identity where one is required.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHENTICATED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthenticated,
	}
}

// Forbidden reports that the caller identity is present but policy denies.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Unavailable reports a store or cache transport failure.
func Unavailable(message string, err error) *AppError {
	return &AppError{
		Code:    "UPSTREAM_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrUnavailable, err),
	}
}

// Internal reports an unexpected failure.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap adds context to an error while preserving errors.Is/As behavior.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus maps an error to the HTTP status code the API layer should use.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
