package feed

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("story not found")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict means the document kept changing underneath the
	// operation until the write budget ran out. Retrying is safe.
	ErrConflict = errors.New("story collection is busy, try again")

	// ErrStoreUnavailable wraps failures of the document or media store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCorrupt means the stored document could not be decoded.
	ErrCorrupt = errors.New("story collection is corrupt")
)

// ValidationError reports a request that violates an input constraint.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// resultLabel classifies an operation outcome for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case IsValidation(err):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
