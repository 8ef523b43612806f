package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "not_cancelable",
				Message: "order cannot be cancelled",
				Err:     ErrNotCancelable,
			},
			expected: "order cannot be cancelled: order is not in a cancelable state",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_transition",
				Message: "cannot transition from shipped to pending",
				Err:     nil,
			},
			expected: "cannot transition from shipped to pending",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	domainErr := &DomainError{
		Code:    "test",
		Message: "test message",
		Err:     originalErr,
	}

	unwrapped := domainErr.Unwrap()
	assert.Equal(t, originalErr, unwrapped)
}

func TestNewDomainError(t *testing.T) {
	originalErr := errors.New("underlying error")
	err := NewDomainError("test_code", "test message", originalErr)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Equal(t, originalErr, err.Err)
}

func TestNewDomainError_NilWrappedError(t *testing.T) {
	err := NewDomainError("test_code", "test message", nil)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Nil(t, err.Err)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:   "price",
		Message: "must not be negative",
	}

	expected := "validation failed for field price: must not be negative"
	assert.Equal(t, expected, err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("customer_id", "cannot be empty")

	assert.NotNil(t, err)
	assert.Equal(t, "customer_id", err.Field)
	assert.Equal(t, "cannot be empty", err.Message)
}

func TestErrorConstants(t *testing.T) {
	assert.NotNil(t, ErrProductNotFound)
	assert.NotNil(t, ErrOrderNotFound)
	assert.NotNil(t, ErrRecordNotFound)
	assert.NotNil(t, ErrNotCancelable)
	assert.NotNil(t, ErrInvalidStateTransition)
	assert.NotNil(t, ErrUnknownEvent)
	assert.NotNil(t, ErrBrokerUnavailable)
	assert.NotNil(t, ErrValidationFailed)
	assert.NotNil(t, ErrInvalidInput)
}

func TestErrorUnwrapping(t *testing.T) {
	wrappedErr := NewDomainError("not_cancelable", "cancel failed", ErrNotCancelable)

	assert.True(t, errors.Is(wrappedErr, ErrNotCancelable))
	assert.False(t, errors.Is(wrappedErr, ErrOrderNotFound))
}

func TestValidationError_IsValidationFailed(t *testing.T) {
	err := fmt.Errorf("create product: %w", NewValidationError("name", "required"))

	assert.ErrorIs(t, err, ErrValidationFailed)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "name", ve.Field)
}

func TestDecodeError(t *testing.T) {
	err := NewDecodeError("product_events", "product", ErrUnknownEvent)

	assert.Equal(t, "decode product_events/product: unknown event", err.Error())
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestBrokerError(t *testing.T) {
	tests := []struct {
		name     string
		err      *BrokerError
		expected string
	}{
		{"with topic", NewBrokerError("publish", "order_events", errors.New("timeout")), "broker publish order_events: timeout"},
		{"without topic", NewBrokerError("subscribe", "", errors.New("conn refused")), "broker subscribe: conn refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
			assert.ErrorIs(t, tt.err, ErrBrokerUnavailable)
		})
	}
}
