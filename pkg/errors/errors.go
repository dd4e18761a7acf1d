package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of error for handling
type ErrorCategory string

const (
	CategoryDeclined       ErrorCategory = "declined"
	CategoryUnauthorized   ErrorCategory = "unauthorized"
	CategoryNotFound       ErrorCategory = "not_found"
	CategorySystemError    ErrorCategory = "system_error"
	CategoryNetworkError   ErrorCategory = "network_error"
	CategoryInvalidRequest ErrorCategory = "invalid_request"
	CategoryUnavailable    ErrorCategory = "unavailable"
)

// PaymentError is a gateway transport or protocol failure
type PaymentError struct {
	Code           string
	Message        string
	GatewayMessage string
	StatusCode     int
	IsRetriable    bool
	Category       ErrorCategory
	Err            error
}

func (e *PaymentError) Error() string {
	if e.GatewayMessage != "" {
		return fmt.Sprintf("%s: %s (gateway: %s)", e.Code, e.Message, e.GatewayMessage)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, category ErrorCategory, retriable bool) *PaymentError {
	return &PaymentError{
		Code:        code,
		Message:     message,
		Category:    category,
		IsRetriable: retriable,
	}
}

// WithGatewayMessage attaches the message returned by the gateway
func (e *PaymentError) WithGatewayMessage(msg string) *PaymentError {
	e.GatewayMessage = msg
	return e
}

// WithStatus records the HTTP status returned by the gateway
func (e *PaymentError) WithStatus(status int) *PaymentError {
	e.StatusCode = status
	return e
}

// WithCause records the underlying error
func (e *PaymentError) WithCause(err error) *PaymentError {
	e.Err = err
	return e
}

// CategoryForStatus maps a gateway HTTP status to an error category and retry hint
func CategoryForStatus(status int) (ErrorCategory, bool) {
	switch {
	case status == 401 || status == 403:
		return CategoryUnauthorized, false
	case status == 404:
		return CategoryNotFound, false
	case status == 429:
		return CategoryUnavailable, true
	case status >= 500:
		return CategorySystemError, true
	default:
		return CategoryInvalidRequest, false
	}
}

// IsRetriable reports whether err is a PaymentError marked retriable
func IsRetriable(err error) bool {
	var pe *PaymentError
	if stderrors.As(err, &pe) {
		return pe.IsRetriable
	}
	return false
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
