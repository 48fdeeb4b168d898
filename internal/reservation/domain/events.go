package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Domain event types carried through the transactional outbox.
const (
	EventTypeReservationCreated   = "ReservationCreated"
	EventTypeReservationConfirmed = "ReservationConfirmed"
	EventTypeReservationFailed    = "ReservationFailed"
	EventTypeReservationCancelled = "ReservationCancelled"
	EventTypeReservationCompleted = "ReservationCompleted"
	EventTypePaymentCaptured      = "PaymentCaptured"
	EventTypeRefundRequested      = "RefundRequested"
)

// AggregateTypeReservation tags outbox rows produced by this aggregate.
const AggregateTypeReservation = "RESERVATION"

// Event is a domain event buffered on the aggregate until a unit-of-work
// scope drains it into outbox rows.
type Event struct {
	Type        string
	AggregateID snowflake.ID
	OccurredAt  time.Time
	Payload     map[string]any
}
