package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a commitment does not exist or is not
	// owned by the caller.
	ErrNotFound = errors.New("commitment not found")

	// ErrAccountUnavailable is returned when an account balance adjustment
	// cannot be applied: the account is missing, or a debit would take its
	// balance negative. The whole transaction aborts.
	ErrAccountUnavailable = errors.New("account missing or insufficient funds")
)

// ValidationError describes a single invalid input field. It is always
// detected before any durable write.
type ValidationError struct {
	Field       string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Description)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Description: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
