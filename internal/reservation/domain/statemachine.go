package domain

import "time"

// TransitionEvent names the business fact that moves a reservation between
// states. The mapping below is the only place transitions are defined;
// nothing assigns Status directly.
type TransitionEvent string

const (
	EventSupplierConfirmed TransitionEvent = "SUPPLIER_CONFIRMED"
	EventFailureRecorded   TransitionEvent = "FAILURE_RECORDED"
	EventCancelled         TransitionEvent = "CANCELLED"
	EventTripCompleted     TransitionEvent = "TRIP_COMPLETED"
)

var transitions = map[Status]map[TransitionEvent]Status{
	StatusPending: {
		EventSupplierConfirmed: StatusConfirmed,
		EventFailureRecorded:   StatusFailed,
		EventCancelled:         StatusCancelled,
	},
	StatusConfirmed: {
		EventTripCompleted: StatusCompleted,
		EventCancelled:     StatusCancelled,
	},
}

// Transition is the pure state machine: it validates (current, event) and
// returns the next state or an InvalidStateTransitionError.
func Transition(current Status, ev TransitionEvent) (Status, error) {
	next, ok := transitions[current][ev]
	if !ok {
		return "", &InvalidStateTransitionError{From: current, Event: ev}
	}
	return next, nil
}

// Apply runs ev through the state machine and, on success, mutates the
// aggregate and buffers the corresponding domain event.
func (r *Reservation) Apply(ev TransitionEvent, now time.Time) error {
	next, err := Transition(r.Status, ev)
	if err != nil {
		return err
	}

	from := r.Status
	r.Status = next
	r.UpdatedAt = now.UTC()

	payload := map[string]any{
		"reservation_code": r.Code,
		"from":             string(from),
		"to":               string(next),
	}

	switch ev {
	case EventSupplierConfirmed:
		payload["supplier_confirmation_code"] = r.SupplierConfirmationCode
		payload["customer_email"] = r.PrimaryContactEmail()
		r.record(Event{Type: EventTypeReservationConfirmed, OccurredAt: now.UTC(), Payload: payload})
	case EventFailureRecorded:
		payload["reason"] = r.FailureReason
		r.record(Event{Type: EventTypeReservationFailed, OccurredAt: now.UTC(), Payload: payload})
	case EventCancelled:
		payload["reason"] = r.CancelReason
		r.record(Event{Type: EventTypeReservationCancelled, OccurredAt: now.UTC(), Payload: payload})
	case EventTripCompleted:
		r.record(Event{Type: EventTypeReservationCompleted, OccurredAt: now.UTC(), Payload: payload})
	}

	return nil
}

// Confirm records the supplier confirmation and transitions to CONFIRMED.
func (r *Reservation) Confirm(confirmationCode string, now time.Time) error {
	r.SupplierConfirmationCode = confirmationCode
	confirmedAt := now.UTC()
	r.SupplierConfirmedAt = &confirmedAt
	return r.Apply(EventSupplierConfirmed, now)
}

// Fail records the failure reason and transitions to FAILED.
func (r *Reservation) Fail(reason string, now time.Time) error {
	r.FailureReason = reason
	return r.Apply(EventFailureRecorded, now)
}

// Cancel transitions to CANCELLED with an explicit reason.
func (r *Reservation) Cancel(reason string, now time.Time) error {
	cancelledAt := now.UTC()
	r.CancelledAt = &cancelledAt
	r.CancelReason = reason
	return r.Apply(EventCancelled, now)
}

// Complete records trip completion.
func (r *Reservation) Complete(now time.Time) error {
	return r.Apply(EventTripCompleted, now)
}
