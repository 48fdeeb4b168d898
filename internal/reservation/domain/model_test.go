package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

func newTestNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func newTestReservation(t *testing.T, now time.Time) *Reservation {
	t.Helper()
	node := newTestNode(t)
	r, err := NewReservation(node.Generate(), NewCode(now), "localiza", "USD",
		now.AddDate(0, 0, 7), now.AddDate(0, 0, 10), now)
	if err != nil {
		t.Fatalf("new reservation: %v", err)
	}
	return r
}

func TestNewReservationInvariants(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newTestReservation(t, now)

	if r.Status != StatusPending || r.PaymentState != PaymentStateUnpaid {
		t.Fatalf("initial state %s/%s, want PENDING/UNPAID", r.Status, r.PaymentState)
	}
	events := r.PendingEvents()
	if len(events) != 1 || events[0].Type != EventTypeReservationCreated {
		t.Fatalf("expected buffered ReservationCreated, got %+v", events)
	}
	if events[0].AggregateID != r.ID {
		t.Fatal("event not tagged with aggregate id")
	}
}

func TestNewReservationRejectsBadPeriod(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	node := newTestNode(t)
	_, err := NewReservation(node.Generate(), NewCode(now), "localiza", "USD",
		now.AddDate(0, 0, 3), now.AddDate(0, 0, 3), now)
	if !errors.Is(err, ErrInvalidRentalPeriod) {
		t.Fatalf("expected ErrInvalidRentalPeriod, got %v", err)
	}
}

func TestAddDriverUnderageAtPickup(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newTestReservation(t, now)
	node := newTestNode(t)

	// Turns 21 the day after pickup.
	dob := r.PickupAt.AddDate(-21, 0, 1)
	err := r.AddDriver(node.Generate(), "Ana", "Souza", "ana@example.com", "", dob, "D123", "BR", true)
	var underage *UnderageDriverError
	if !errors.As(err, &underage) {
		t.Fatalf("expected UnderageDriverError, got %v", err)
	}
	if underage.Age != 20 {
		t.Fatalf("age = %d, want 20", underage.Age)
	}

	// Turns 21 exactly on pickup day.
	dob = r.PickupAt.AddDate(-21, 0, 0)
	if err := r.AddDriver(node.Generate(), "Ana", "Souza", "ana@example.com", "", dob, "D123", "BR", true); err != nil {
		t.Fatalf("21 on pickup day should pass: %v", err)
	}
	if len(r.Drivers) != 1 {
		t.Fatalf("drivers = %d, want 1", len(r.Drivers))
	}
}

func TestAddDriverRequiresNameAndBirthDate(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newTestReservation(t, now)
	node := newTestNode(t)

	err := r.AddDriver(node.Generate(), "", "Souza", "", "", now.AddDate(-30, 0, 0), "", "", false)
	if !errors.Is(err, ErrDriverNameRequired) {
		t.Fatalf("expected ErrDriverNameRequired, got %v", err)
	}
	err = r.AddDriver(node.Generate(), "Ana", "Souza", "", "", time.Time{}, "", "", false)
	if !errors.Is(err, ErrDriverBirthDateRequired) {
		t.Fatalf("expected ErrDriverBirthDateRequired, got %v", err)
	}
}

func TestSetPricingRecomputesTotal(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newTestReservation(t, now)

	r.SetPricing([]PricingItem{
		{Kind: PricingItemBaseRate, Description: "base", Amount: decimal.RequireFromString("149.97")},
		{Kind: PricingItemExtra, Description: "gps", Amount: decimal.RequireFromString("29.97")},
		{Kind: PricingItemDiscount, Description: "promo", Amount: decimal.RequireFromString("-10.00")},
	}, 3)

	if got := r.TotalPrice.StringFixed(2); got != "169.94" {
		t.Fatalf("total = %s, want 169.94", got)
	}
	if r.RentalDays != 3 {
		t.Fatalf("rental days = %d, want 3", r.RentalDays)
	}
	for i, item := range r.PricingItems {
		if item.Position != i || item.ReservationID != r.ID {
			t.Fatalf("item %d not linked: %+v", i, item)
		}
	}
}

func TestMarkPaidBuffersPaymentCaptured(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newTestReservation(t, now)
	r.DrainEvents()

	r.MarkPaid("ch_123", decimal.RequireFromString("179.94"), now)
	if r.PaymentState != PaymentStatePaid {
		t.Fatalf("payment state = %s, want PAID", r.PaymentState)
	}
	events := r.PendingEvents()
	if len(events) != 1 || events[0].Type != EventTypePaymentCaptured {
		t.Fatalf("expected PaymentCaptured event, got %+v", events)
	}
	if events[0].Payload["amount"] != "179.94" {
		t.Fatalf("payload amount = %v", events[0].Payload["amount"])
	}
}

func TestDrainEventsClearsBuffer(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newTestReservation(t, now)

	if drained := r.DrainEvents(); len(drained) != 1 {
		t.Fatalf("first drain = %d events, want 1", len(drained))
	}
	if drained := r.DrainEvents(); len(drained) != 0 {
		t.Fatalf("second drain = %d events, want 0", len(drained))
	}
}

func TestCodeFormat(t *testing.T) {
	now := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	code := NewCode(now)
	if !ValidCode(code) {
		t.Fatalf("generated code %q does not validate", code)
	}
	if code[:12] != "RES-20250108" {
		t.Fatalf("code %q lacks date stamp", code)
	}

	for _, bad := range []string{"", "RES-2025-ABCDE", "XYZ-20250108-ABCDE", "RES-20250108-abc12", "RES-20250108-ABCD"} {
		if ValidCode(bad) {
			t.Fatalf("%q should not validate", bad)
		}
	}
}
