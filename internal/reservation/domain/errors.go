package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidReservationCode  = errors.New("invalid_reservation_code")
	ErrInvalidSupplier         = errors.New("invalid_supplier")
	ErrInvalidRentalPeriod     = errors.New("invalid_rental_period")
	ErrDriverNameRequired      = errors.New("driver_name_required")
	ErrDriverBirthDateRequired = errors.New("driver_birth_date_required")
	ErrContactEmailRequired    = errors.New("contact_email_required")
	ErrReservationNotFound     = errors.New("reservation_not_found")
	ErrDuplicateInFlight       = errors.New("duplicate_request_in_flight")
)

// InvalidStateTransitionError indicates a bypass of the state machine. It is
// a programming error, never expected in normal operation.
type InvalidStateTransitionError struct {
	From  Status
	Event TransitionEvent
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid_state_transition: %s on %s", e.Event, e.From)
}

// UnderageDriverError rejects a driver younger than MinimumDriverAge at
// pickup time.
type UnderageDriverError struct {
	Driver string
	Age    int
}

func (e *UnderageDriverError) Error() string {
	return fmt.Sprintf("driver_underage: %s is %d at pickup, minimum is %d", e.Driver, e.Age, MinimumDriverAge)
}

// ValidationError reports malformed input, rejected before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation_error: %s %s", e.Field, e.Message)
}

// PersistenceError is surfaced after exhausting internal commit retries. The
// correlation id drives manual follow-up.
type PersistenceError struct {
	CorrelationID string
	Err           error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("reservation_persistence_error (correlation_id=%s): %v", e.CorrelationID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfirmationError means the charge succeeded but the supplier did not
// confirm. It always carries enough detail to drive compensation.
type ConfirmationError struct {
	ReservationID   string
	ReservationCode string
	PaymentRef      string
	Err             error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("supplier_confirmation_error: reservation %s (payment %s): %v; a refund may be required",
		e.ReservationCode, e.PaymentRef, e.Err)
}

func (e *ConfirmationError) Unwrap() error { return e.Err }
