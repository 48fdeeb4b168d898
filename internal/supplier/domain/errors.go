package domain

import (
	"errors"
	"fmt"
)

var ErrUnknownSupplier = errors.New("unknown_supplier")

// UnavailableError is a transient transport or vendor outage, retryable
// within the orchestrator's bounded retry budget.
type UnavailableError struct {
	Supplier string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("supplier_unavailable: %s: %v", e.Supplier, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// RejectedError is terminal on first response: the vendor refused the
// reservation (no availability, blacklisted driver, bad office).
type RejectedError struct {
	Supplier string
	Code     string
	Message  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("supplier_rejected: %s: %s (%s)", e.Supplier, e.Message, e.Code)
}
