package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("invalid_payment_amount")
	ErrInvalidConfig    = errors.New("invalid_gateway_config")
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrPaymentNotFound  = errors.New("payment_not_found")
)

// DeclinedError is terminal: the caller must supply a new payment method.
// It is never retried.
type DeclinedError struct {
	Code    string
	Message string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment_declined: %s (%s)", e.Message, e.Code)
}

// ProcessorError is a transient processor or transport failure, retryable
// within the orchestrator's bounded retry budget.
type ProcessorError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProcessorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment_processor_error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("payment_processor_error: %s (status %d)", e.Message, e.StatusCode)
}

func (e *ProcessorError) Unwrap() error { return e.Err }
