package errors

import (
	"errors"
	"fmt"
)

var (
	// Lookup errors
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrRecordNotFound  = errors.New("record not found")

	// Order state errors
	ErrNotCancelable          = errors.New("order is not in a cancelable state")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Event errors
	ErrUnknownEvent      = errors.New("unknown event")
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Is lets callers match any validation error against ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// DecodeError reports a delivered message whose payload could not be parsed.
type DecodeError struct {
	Topic string
	Key   string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s/%s: %v", e.Topic, e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewDecodeError creates a new decode error
func NewDecodeError(topic, key string, err error) *DecodeError {
	return &DecodeError{Topic: topic, Key: key, Err: err}
}

// BrokerError reports a publish or subscribe failure at the transport layer.
type BrokerError struct {
	Op    string // "publish" or "subscribe"
	Topic string
	Err   error
}

func (e *BrokerError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("broker %s %s: %v", e.Op, e.Topic, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// Is lets callers match any broker error against ErrBrokerUnavailable.
func (e *BrokerError) Is(target error) bool {
	return target == ErrBrokerUnavailable
}

// NewBrokerError creates a new broker error
func NewBrokerError(op, topic string, err error) *BrokerError {
	return &BrokerError{Op: op, Topic: topic, Err: err}
}
