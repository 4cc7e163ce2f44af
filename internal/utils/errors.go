package utils

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the stores, services and HTTP layer.
// Wrap them with fmt.Errorf("...: %w", err) and classify with errors.Is.
var (
	// ErrInvalidTickerFormat is returned when a ticker is empty or does not match the symbol pattern.
	ErrInvalidTickerFormat = errors.New("invalid ticker format")
	// ErrNotFound is returned when a ticker is absent from the store that was expected to hold it.
	ErrNotFound = errors.New("not found")
	// ErrBatchTooLarge is returned when a batch request exceeds the configured maximum size.
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrUpstreamUnavailable is returned when the market data provider or an evaluator cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrStorageUnavailable is returned when PostgreSQL or Redis cannot serve the request.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError represents an error occurring during data validation.
type ValidationError struct {
	Message string
	// Err is the sentinel the validation failure maps to, if any.
	Err error
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying sentinel so errors.Is keeps working.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError with a specific message.
//
// Parameters:
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
//
// Parameters:
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidTicker builds the validation error returned by the ticker normalizer.
func InvalidTicker(raw string) error {
	return &ValidationError{
		Message: fmt.Sprintf("invalid ticker format: %q", raw),
		Err:     ErrInvalidTickerFormat,
	}
}

// BatchTooLarge builds the validation error returned when a batch exceeds max.
func BatchTooLarge(size, max int) error {
	return &ValidationError{
		Message: fmt.Sprintf("batch of %d tickers exceeds the maximum of %d", size, max),
		Err:     ErrBatchTooLarge,
	}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
