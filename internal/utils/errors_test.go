package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Message: "test error message",
	}

	assert.Equal(t, "test error message", err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("validation failed")

	assert.Error(t, err)
	assert.Equal(t, "validation failed", err.Error())

	validationErr, ok := err.(*ValidationError)
	assert.True(t, ok)
	assert.Equal(t, "validation failed", validationErr.Message)
	assert.Nil(t, validationErr.Unwrap())
}

func TestNewValidationErrorf(t *testing.T) {
	err := NewValidationErrorf("tickers field must contain %d entries", 3)

	assert.Equal(t, "tickers field must contain 3 entries", err.Error())
	assert.True(t, IsValidationError(err))
}

func TestInvalidTicker_WrapsSentinel(t *testing.T) {
	err := InvalidTicker(" b@d ")

	assert.True(t, errors.Is(err, ErrInvalidTickerFormat))
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "b@d")

	wrapped := fmt.Errorf("add ticker: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInvalidTickerFormat))
	assert.True(t, IsValidationError(wrapped))
}

func TestBatchTooLarge_WrapsSentinel(t *testing.T) {
	err := BatchTooLarge(1001, 1000)

	assert.True(t, errors.Is(err, ErrBatchTooLarge))
	assert.False(t, errors.Is(err, ErrInvalidTickerFormat))
	assert.Equal(t, "batch of 1001 tickers exceeds the maximum of 1000", err.Error())
}

func TestIsValidationError_PlainError(t *testing.T) {
	assert.False(t, IsValidationError(errors.New("boom")))
	assert.False(t, IsValidationError(ErrNotFound))
}
