package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTransitionTable(t *testing.T) {
	valid := []struct {
		from Status
		ev   TransitionEvent
		want Status
	}{
		{StatusPending, EventSupplierConfirmed, StatusConfirmed},
		{StatusPending, EventFailureRecorded, StatusFailed},
		{StatusPending, EventCancelled, StatusCancelled},
		{StatusConfirmed, EventTripCompleted, StatusCompleted},
		{StatusConfirmed, EventCancelled, StatusCancelled},
	}
	for _, tc := range valid {
		next, err := Transition(tc.from, tc.ev)
		if err != nil {
			t.Fatalf("%s on %s: %v", tc.ev, tc.from, err)
		}
		if next != tc.want {
			t.Fatalf("%s on %s = %s, want %s", tc.ev, tc.from, next, tc.want)
		}
	}
}

func TestTransitionRejectsEverythingElse(t *testing.T) {
	invalid := []struct {
		from Status
		ev   TransitionEvent
	}{
		{StatusFailed, EventSupplierConfirmed},
		{StatusFailed, EventCancelled},
		{StatusCancelled, EventTripCompleted},
		{StatusCompleted, EventCancelled},
		{StatusCompleted, EventTripCompleted},
		{StatusPending, EventTripCompleted},
		{StatusConfirmed, EventSupplierConfirmed},
	}
	for _, tc := range invalid {
		_, err := Transition(tc.from, tc.ev)
		var transitionErr *InvalidStateTransitionError
		if !errors.As(err, &transitionErr) {
			t.Fatalf("%s on %s: expected InvalidStateTransitionError, got %v", tc.ev, tc.from, err)
		}
		if transitionErr.From != tc.from || transitionErr.Event != tc.ev {
			t.Fatalf("error carries %s/%s, want %s/%s",
				transitionErr.From, transitionErr.Event, tc.from, tc.ev)
		}
	}
}

func TestApplyBuffersLifecycleEvents(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newTestReservation(t, now)
	r.DrainEvents() // drop ReservationCreated

	if err := r.Confirm("LOC-42", now); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	events := r.PendingEvents()
	if len(events) != 1 || events[0].Type != EventTypeReservationConfirmed {
		t.Fatalf("expected one ReservationConfirmed event, got %+v", events)
	}
	if events[0].Payload["supplier_confirmation_code"] != "LOC-42" {
		t.Fatalf("payload missing confirmation code: %+v", events[0].Payload)
	}
	if r.Status != StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", r.Status)
	}
	if r.SupplierConfirmedAt == nil {
		t.Fatal("SupplierConfirmedAt not set")
	}

	if err := r.Complete(now.Add(time.Hour)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if r.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", r.Status)
	}

	// Completed is terminal.
	if err := r.Cancel("too late", now); err == nil {
		t.Fatal("expected cancel on COMPLETED to fail")
	}
}

func TestFailRecordsReason(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newTestReservation(t, now)
	r.DrainEvents()

	if err := r.Fail("supplier rejected", now); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if r.Status != StatusFailed || r.FailureReason != "supplier rejected" {
		t.Fatalf("got %s/%q", r.Status, r.FailureReason)
	}
	events := r.PendingEvents()
	if len(events) != 1 || events[0].Type != EventTypeReservationFailed {
		t.Fatalf("expected ReservationFailed event, got %+v", events)
	}
}
