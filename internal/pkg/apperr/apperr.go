package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Repos and services wrap these with fmt.Errorf("…: %w", …);
// handlers map them to HTTP statuses without inspecting messages.
var (
	ErrValidation     = errors.New("validation")
	ErrOwnership      = errors.New("ownership")
	ErrNotFound       = errors.New("not_found")
	ErrExternal       = errors.New("external")
	ErrBudgetExceeded = errors.New("budget_exceeded")
	ErrIntegrity      = errors.New("integrity")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Ownershipf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrOwnership, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Externalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExternal, fmt.Sprintf(format, args...))
}

func Integrityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to the status a handler should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrOwnership):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Code is the short machine-readable code surfaced in the error envelope.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrOwnership):
		return "ownership"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrExternal):
		return "external"
	default:
		return "internal"
	}
}
