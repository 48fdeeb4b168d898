package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openrental/reserva/internal/clock"
	"github.com/openrental/reserva/internal/config"
	idemdomain "github.com/openrental/reserva/internal/idempotency/domain"
	idemservice "github.com/openrental/reserva/internal/idempotency/service"
	outboxdomain "github.com/openrental/reserva/internal/outbox/domain"
	outboxrepository "github.com/openrental/reserva/internal/outbox/repository"
	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	paymentrepository "github.com/openrental/reserva/internal/payment/repository"
	"github.com/openrental/reserva/internal/pricing"
	"github.com/openrental/reserva/internal/reservation/domain"
	reservationrepository "github.com/openrental/reserva/internal/reservation/repository"
	"github.com/openrental/reserva/internal/supplier"
	supplierdomain "github.com/openrental/reserva/internal/supplier/domain"
	supplierrepository "github.com/openrental/reserva/internal/supplier/repository"
	"github.com/openrental/reserva/internal/uow"
)

type gatewayStub struct {
	mu          sync.Mutex
	charges     []paymentdomain.ChargeRequest
	refunds     []paymentdomain.RefundRequest
	declineAll  bool
	failCharges int
	failRefunds bool
	seq         int
}

func (g *gatewayStub) Provider() string { return "stub" }

func (g *gatewayStub) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, req)
	if g.declineAll {
		return nil, &paymentdomain.DeclinedError{Code: "card_declined", Message: "insufficient funds"}
	}
	if g.failCharges > 0 {
		g.failCharges--
		return nil, &paymentdomain.ProcessorError{StatusCode: 503, Message: "processor unavailable"}
	}
	g.seq++
	return &paymentdomain.ChargeResult{
		Reference:       fmt.Sprintf("ch_%03d", g.seq),
		IntentReference: fmt.Sprintf("pi_%03d", g.seq),
		Method:          "card",
	}, nil
}

func (g *gatewayStub) Refund(ctx context.Context, req paymentdomain.RefundRequest) (*paymentdomain.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, req)
	if g.failRefunds {
		return nil, &paymentdomain.ProcessorError{StatusCode: 503, Message: "refund unavailable"}
	}
	g.seq++
	return &paymentdomain.RefundResult{Reference: fmt.Sprintf("re_%03d", g.seq)}, nil
}

func (g *gatewayStub) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

func (g *gatewayStub) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type supplierStub struct {
	mu          sync.Mutex
	confirms    int
	cancels     int
	reject      bool
	failFirst   int
	nextConfirm int
}

func (s *supplierStub) Code() string { return "localiza" }

func (s *supplierStub) SearchAvailability(ctx context.Context, req supplierdomain.AvailabilitySearch) ([]supplierdomain.VehicleOffer, error) {
	return nil, nil
}

func (s *supplierStub) Confirm(ctx context.Context, req supplierdomain.ConfirmationRequest) (*supplierdomain.Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirms++
	if s.reject {
		return nil, &supplierdomain.RejectedError{Supplier: "localiza", Code: "NO_AVAIL", Message: "no availability"}
	}
	if s.failFirst > 0 {
		s.failFirst--
		return nil, &supplierdomain.UnavailableError{Supplier: "localiza", Err: errors.New("connection refused")}
	}
	s.nextConfirm++
	return &supplierdomain.Confirmation{
		ConfirmationCode: fmt.Sprintf("LOC-%04d", s.nextConfirm),
		ConfirmedAt:      time.Now().UTC(),
	}, nil
}

func (s *supplierStub) Cancel(ctx context.Context, confirmationCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	return nil
}

func (s *supplierStub) confirmCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirms
}

type harness struct {
	svc      domain.Service
	db       *gorm.DB
	gateway  *gatewayStub
	supplier *supplierStub
	guard    idemdomain.Guard
	clk      *clock.FakeClock
}

func setupService(t *testing.T) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&domain.Reservation{},
		&domain.Driver{},
		&domain.Contact{},
		&domain.PricingItem{},
		&paymentdomain.Payment{},
		&outboxdomain.OutboxEvent{},
		&idemdomain.Record{},
		&supplierdomain.Request{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	cfg := config.Config{}
	cfg.Payment.MaxRetries = 3
	cfg.Suppliers.MaxRetries = 3
	cfg.Idempotency.TTL = 24 * time.Hour
	cfg.Idempotency.InFlightStale = 2 * time.Minute

	gateway := &gatewayStub{}
	vendor := &supplierStub{}

	reservations := reservationrepository.NewRepository()
	payments := paymentrepository.Provide()
	outboxRepo := outboxrepository.Provide()
	supplierRequests := supplierrepository.Provide()

	guard := idemservice.NewGuard(db, clk, cfg, zap.NewNop())
	factory := uow.NewFactory(db, reservations, payments, outboxRepo, supplierRequests)

	svc := NewService(ServiceParam{
		DB:               db,
		UoW:              factory,
		Guard:            guard,
		Reservations:     reservations,
		Payments:         payments,
		SupplierRequests: supplierRequests,
		Suppliers:        supplier.NewRegistry(vendor),
		Gateway:          gateway,
		Node:             node,
		Clock:            clk,
		Config:           cfg,
		Log:              zap.NewNop(),
	})

	return &harness{svc: svc, db: db, gateway: gateway, supplier: vendor, guard: guard, clk: clk}
}

func validRequest(key string) domain.CreateReservationRequest {
	pickup := time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC)
	return domain.CreateReservationRequest{
		IdempotencyKey:   key,
		SupplierCode:     "localiza",
		CustomerRef:      "cust-1",
		VehicleACRISS:    "EDMR",
		PickupAt:         pickup,
		DropoffAt:        pickup.AddDate(0, 0, 3),
		PickupOfficeCode: "GRU01",
		Currency:         "USD",
		DailyBaseRate:    decimal.RequireFromString("49.99"),
		AddOns:           []domain.AddOnInput{{Code: "gps", DailyRate: decimal.RequireFromString("9.99")}},
		PaymentMethodRef: "pm_card_visa",
		Drivers: []domain.DriverInput{{
			FirstName:   "Ana",
			LastName:    "Souza",
			Email:       "ana@example.com",
			DateOfBirth: time.Date(1990, 6, 1, 0, 0, 0, 0, time.UTC),
			IsPrimary:   true,
		}},
	}
}

func (h *harness) outboxTypes(t *testing.T) map[string]int {
	t.Helper()
	var events []outboxdomain.OutboxEvent
	if err := h.db.Find(&events).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	types := map[string]int{}
	for _, ev := range events {
		types[ev.EventType]++
	}
	return types
}

func TestCreateReservationHappyPath(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()

	result, err := h.svc.CreateReservation(ctx, validRequest("key-happy"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if result.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", result.Status)
	}
	if result.TotalPrice.StringFixed(2) != "179.94" {
		t.Fatalf("total = %s, want 179.94", result.TotalPrice.StringFixed(2))
	}
	if result.SupplierConfirmationCode == "" {
		t.Fatal("missing supplier confirmation code")
	}
	if !domain.ValidCode(result.ReservationCode) {
		t.Fatalf("bad reservation code %q", result.ReservationCode)
	}

	var reservation domain.Reservation
	if err := h.db.Preload("PricingItems").First(&reservation, "code = ?", result.ReservationCode).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if reservation.Status != domain.StatusConfirmed || reservation.PaymentState != domain.PaymentStatePaid {
		t.Fatalf("row state %s/%s", reservation.Status, reservation.PaymentState)
	}
	if len(reservation.PricingItems) != 2 {
		t.Fatalf("pricing items = %d, want 2", len(reservation.PricingItems))
	}

	var payment paymentdomain.Payment
	if err := h.db.First(&payment, "reservation_id = ?", reservation.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != paymentdomain.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want PAID", payment.Status)
	}

	types := h.outboxTypes(t)
	for _, want := range []string{
		domain.EventTypeReservationCreated,
		domain.EventTypePaymentCaptured,
		domain.EventTypeReservationConfirmed,
	} {
		if types[want] != 1 {
			t.Fatalf("outbox %s = %d, want 1 (all: %v)", want, types[want], types)
		}
	}

	var request supplierdomain.Request
	if err := h.db.First(&request, "reservation_id = ?", reservation.ID).Error; err != nil {
		t.Fatalf("load supplier request: %v", err)
	}
	if request.RequestType != supplierdomain.RequestTypeConfirm || request.Status != supplierdomain.RequestStatusSuccess {
		t.Fatalf("audit row %s/%s", request.RequestType, request.Status)
	}
}

func TestCreateReservationReplaySameKey(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()
	req := validRequest("key-replay")

	first, err := h.svc.CreateReservation(ctx, req)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := h.svc.CreateReservation(ctx, req)
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}

	if first.ReservationCode != second.ReservationCode {
		t.Fatalf("replay produced a different reservation: %s vs %s",
			first.ReservationCode, second.ReservationCode)
	}
	if h.gateway.chargeCount() != 1 {
		t.Fatalf("charges = %d, want 1", h.gateway.chargeCount())
	}
	if h.supplier.confirmCount() != 1 {
		t.Fatalf("supplier confirms = %d, want 1", h.supplier.confirmCount())
	}

	var count int64
	h.db.Model(&domain.Reservation{}).Count(&count)
	if count != 1 {
		t.Fatalf("reservations = %d, want 1", count)
	}
}

func TestCreateReservationSameKeyDifferentPayload(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()

	if _, err := h.svc.CreateReservation(ctx, validRequest("key-mismatch")); err != nil {
		t.Fatalf("first create: %v", err)
	}

	altered := validRequest("key-mismatch")
	altered.DailyBaseRate = decimal.RequireFromString("99.99")
	_, err := h.svc.CreateReservation(ctx, altered)
	var mismatched *idemdomain.MismatchedRequestError
	if !errors.As(err, &mismatched) {
		t.Fatalf("expected MismatchedRequestError, got %v", err)
	}
}

func TestCreateReservationPaymentDeclined(t *testing.T) {
	h := setupService(t)
	h.gateway.declineAll = true
	ctx := context.Background()
	req := validRequest("key-decline")

	_, err := h.svc.CreateReservation(ctx, req)
	var declined *paymentdomain.DeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("expected DeclinedError, got %v", err)
	}
	if h.gateway.chargeCount() != 1 {
		t.Fatalf("declines must not retry, charges = %d", h.gateway.chargeCount())
	}

	var count int64
	h.db.Model(&domain.Reservation{}).Count(&count)
	if count != 0 {
		t.Fatalf("reservations = %d, want 0", count)
	}

	// Replay sees the recorded decline without touching the processor.
	_, err = h.svc.CreateReservation(ctx, req)
	if !errors.As(err, &declined) {
		t.Fatalf("replay: expected DeclinedError, got %v", err)
	}
	if h.gateway.chargeCount() != 1 {
		t.Fatalf("replay charged again, charges = %d", h.gateway.chargeCount())
	}
}

func TestCreateReservationTransientProcessorErrorRetries(t *testing.T) {
	h := setupService(t)
	h.gateway.failCharges = 1
	ctx := context.Background()

	result, err := h.svc.CreateReservation(ctx, validRequest("key-transient"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", result.Status)
	}
	if h.gateway.chargeCount() != 2 {
		t.Fatalf("charges = %d, want 2 (one failure, one success)", h.gateway.chargeCount())
	}
	// Same processor idempotency key on both attempts.
	if h.gateway.charges[0].IdempotencyKey != h.gateway.charges[1].IdempotencyKey {
		t.Fatal("retry used a different processor idempotency key")
	}
}

func TestCreateReservationSupplierRejected(t *testing.T) {
	h := setupService(t)
	h.supplier.reject = true
	ctx := context.Background()
	req := validRequest("key-reject")

	_, err := h.svc.CreateReservation(ctx, req)
	var confirmation *domain.ConfirmationError
	if !errors.As(err, &confirmation) {
		t.Fatalf("expected ConfirmationError, got %v", err)
	}
	if h.supplier.confirmCount() != 1 {
		t.Fatalf("rejections must not retry, confirms = %d", h.supplier.confirmCount())
	}

	var reservation domain.Reservation
	if err := h.db.First(&reservation, "code = ?", confirmation.ReservationCode).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if reservation.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", reservation.Status)
	}
	if reservation.PaymentState != domain.PaymentStateRefunded {
		t.Fatalf("payment state = %s, want REFUNDED", reservation.PaymentState)
	}
	if h.gateway.refundCount() != 1 {
		t.Fatalf("refunds = %d, want 1", h.gateway.refundCount())
	}

	var payment paymentdomain.Payment
	if err := h.db.First(&payment, "reservation_id = ?", reservation.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != paymentdomain.PaymentStatusRefunded {
		t.Fatalf("payment status = %s, want REFUNDED", payment.Status)
	}

	types := h.outboxTypes(t)
	if types[domain.EventTypeReservationFailed] != 1 || types[domain.EventTypeRefundRequested] != 1 {
		t.Fatalf("compensation events missing: %v", types)
	}

	// Replay returns the same failure without a second charge or refund.
	_, err = h.svc.CreateReservation(ctx, req)
	if !errors.As(err, &confirmation) {
		t.Fatalf("replay: expected ConfirmationError, got %v", err)
	}
	if h.gateway.chargeCount() != 1 || h.gateway.refundCount() != 1 {
		t.Fatalf("replay re-executed side effects: charges=%d refunds=%d",
			h.gateway.chargeCount(), h.gateway.refundCount())
	}
}

func TestCreateReservationSupplierUnavailableThenRecovers(t *testing.T) {
	h := setupService(t)
	h.supplier.failFirst = 2
	ctx := context.Background()

	result, err := h.svc.CreateReservation(ctx, validRequest("key-unavailable"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", result.Status)
	}
	if h.supplier.confirmCount() != 3 {
		t.Fatalf("confirms = %d, want 3", h.supplier.confirmCount())
	}

	var requests []supplierdomain.Request
	if err := h.db.Find(&requests).Error; err != nil {
		t.Fatalf("load audit rows: %v", err)
	}
	if len(requests) != 3 {
		t.Fatalf("audit rows = %d, want 3", len(requests))
	}
}

func TestCreateReservationFailedKeptOnOutboxWhenRefundFails(t *testing.T) {
	h := setupService(t)
	h.supplier.reject = true
	h.gateway.failRefunds = true
	ctx := context.Background()

	_, err := h.svc.CreateReservation(ctx, validRequest("key-refund-down"))
	var confirmation *domain.ConfirmationError
	if !errors.As(err, &confirmation) {
		t.Fatalf("expected ConfirmationError, got %v", err)
	}

	var reservation domain.Reservation
	if err := h.db.First(&reservation, "code = ?", confirmation.ReservationCode).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	// Refund did not go through, so the charge stays PAID locally and the
	// RefundRequested outbox row drives the retry.
	if reservation.PaymentState != domain.PaymentStatePaid {
		t.Fatalf("payment state = %s, want PAID", reservation.PaymentState)
	}
	types := h.outboxTypes(t)
	if types[domain.EventTypeRefundRequested] != 1 {
		t.Fatalf("RefundRequested rows = %d, want 1", types[domain.EventTypeRefundRequested])
	}
}

func TestCreateReservationUnderageDriverNeverCharges(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()

	req := validRequest("key-underage")
	req.Drivers[0].DateOfBirth = req.PickupAt.AddDate(-20, 0, 0)

	_, err := h.svc.CreateReservation(ctx, req)
	var underage *domain.UnderageDriverError
	if !errors.As(err, &underage) {
		t.Fatalf("expected UnderageDriverError, got %v", err)
	}
	if h.gateway.chargeCount() != 0 {
		t.Fatalf("charges = %d, want 0", h.gateway.chargeCount())
	}

	// The key was never consumed; a corrected request may reuse it.
	outcome, err := h.guard.Begin(ctx, "key-underage", "")
	if err != nil {
		t.Fatalf("guard begin: %v", err)
	}
	if outcome.State != idemdomain.BeginNew {
		t.Fatalf("guard state = %d, want BeginNew", outcome.State)
	}
}

func TestCancelConfirmedReservation(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()

	result, err := h.svc.CreateReservation(ctx, validRequest("key-cancel"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := h.svc.CancelReservation(ctx, domain.CancelReservationRequest{
		ID:     result.ReservationID,
		Reason: "customer request",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", cancelled.Status)
	}
	if h.supplier.cancels != 1 {
		t.Fatalf("supplier cancels = %d, want 1", h.supplier.cancels)
	}
	if h.gateway.refundCount() != 1 {
		t.Fatalf("refunds = %d, want 1", h.gateway.refundCount())
	}

	types := h.outboxTypes(t)
	if types[domain.EventTypeReservationCancelled] != 1 || types[domain.EventTypeRefundRequested] != 1 {
		t.Fatalf("cancellation events missing: %v", types)
	}
}

func TestCompleteReservationLifecycle(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()

	result, err := h.svc.CreateReservation(ctx, validRequest("key-complete"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	completed, err := h.svc.CompleteReservation(ctx, result.ReservationID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", completed.Status)
	}

	// Completing again is an invalid transition.
	_, err = h.svc.CompleteReservation(ctx, result.ReservationID)
	var transition *domain.InvalidStateTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}
}

func TestResumeAfterCrashBetweenCommitAndConfirm(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()
	req := validRequest("key-resume")

	// First run dies right after the commit: simulate by running the happy
	// path with a supplier outage that exhausts retries, which leaves the
	// reservation FAILED; instead simulate the crash directly by creating
	// the durable state without finalizing the key.
	outcome, err := h.guard.Begin(ctx, req.IdempotencyKey, requestHash(req))
	if err != nil || outcome.State != idemdomain.BeginNew {
		t.Fatalf("guard begin: %v (%d)", err, outcome.State)
	}

	impl := h.svc.(*service)
	quote, err := pricingQuote(req)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	charge, err := h.gateway.Charge(ctx, paymentdomain.ChargeRequest{
		Amount: quote.Total, Currency: req.Currency, IdempotencyKey: req.IdempotencyKey + ":charge",
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	reservation, payment, err := impl.persist(ctx, req, quote, charge)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	_ = payment
	if err := h.guard.Attach(ctx, req.IdempotencyKey, reservation.ID.String()); err != nil {
		t.Fatalf("attach: %v", err)
	}

	// The in-flight window passes, then the client retries.
	h.clk.Advance(5 * time.Minute)

	result, err := h.svc.CreateReservation(ctx, req)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if result.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", result.Status)
	}
	if result.ReservationCode != reservation.Code {
		t.Fatalf("resume built a new reservation: %s vs %s", result.ReservationCode, reservation.Code)
	}
	if h.gateway.chargeCount() != 1 {
		t.Fatalf("resume charged again: %d", h.gateway.chargeCount())
	}

	var count int64
	h.db.Model(&domain.Reservation{}).Count(&count)
	if count != 1 {
		t.Fatalf("reservations = %d, want 1", count)
	}
}

func pricingQuote(req domain.CreateReservationRequest) (*pricing.Quote, error) {
	return pricing.Calculate(pricing.Input{
		PickupAt:      req.PickupAt,
		DropoffAt:     req.DropoffAt,
		DailyBaseRate: req.DailyBaseRate,
		AddOns:        addOns(req.AddOns),
		TaxRate:       req.TaxRate,
		DiscountRate:  req.DiscountRate,
	})
}

func TestCreateReservationPersistFailureRefundsCharge(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()
	req := validRequest("key-persist-fail")

	// Every commit attempt fails mid-transaction, past the charge.
	if err := h.db.Exec("DROP TABLE payments").Error; err != nil {
		t.Fatalf("drop payments: %v", err)
	}

	_, err := h.svc.CreateReservation(ctx, req)
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if perr.CorrelationID != req.IdempotencyKey {
		t.Fatalf("correlation_id = %q, want the idempotency key", perr.CorrelationID)
	}
	if h.gateway.chargeCount() != 1 {
		t.Fatalf("charges = %d, want 1", h.gateway.chargeCount())
	}
	if h.gateway.refundCount() != 1 {
		t.Fatalf("uncommitted charge must be refunded, refunds = %d", h.gateway.refundCount())
	}
	if h.gateway.refunds[0].IdempotencyKey != req.IdempotencyKey+":refund" {
		t.Fatalf("refund keyed %q", h.gateway.refunds[0].IdempotencyKey)
	}

	var count int64
	h.db.Model(&domain.Reservation{}).Count(&count)
	if count != 0 {
		t.Fatalf("reservations = %d, want 0 after rollback", count)
	}
	h.db.Model(&outboxdomain.OutboxEvent{}).Count(&count)
	if count != 0 {
		t.Fatalf("outbox rows = %d, want 0 after rollback", count)
	}

	// Replay sees the recorded failure without charging or refunding again.
	_, err = h.svc.CreateReservation(ctx, req)
	if !errors.As(err, &perr) {
		t.Fatalf("replay: expected PersistenceError, got %v", err)
	}
	if h.gateway.chargeCount() != 1 || h.gateway.refundCount() != 1 {
		t.Fatalf("replay touched the processor: charges = %d refunds = %d",
			h.gateway.chargeCount(), h.gateway.refundCount())
	}
}

func TestChargeRetryCountIsRetriesPlusOne(t *testing.T) {
	h := setupService(t)
	impl := h.svc.(*service)
	impl.cfg.Payment.MaxRetries = 1
	h.gateway.failCharges = 100
	ctx := context.Background()
	req := validRequest("key-exhaust")

	_, err := h.svc.CreateReservation(ctx, req)
	var procErr *paymentdomain.ProcessorError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
	// One retry on top of the initial attempt.
	if h.gateway.chargeCount() != 2 {
		t.Fatalf("charges = %d, want 2", h.gateway.chargeCount())
	}

	// The key was abandoned, so the same key re-drives the charge.
	h.gateway.failCharges = 0
	result, err := h.svc.CreateReservation(ctx, req)
	if err != nil {
		t.Fatalf("retry after exhaustion: %v", err)
	}
	if result.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", result.Status)
	}
}

func TestDuplicateInFlightRejected(t *testing.T) {
	h := setupService(t)
	ctx := context.Background()
	req := validRequest("key-inflight")

	if _, err := h.guard.Begin(ctx, req.IdempotencyKey, requestHash(req)); err != nil {
		t.Fatalf("guard begin: %v", err)
	}

	_, err := h.svc.CreateReservation(ctx, req)
	if !errors.Is(err, domain.ErrDuplicateInFlight) {
		t.Fatalf("expected ErrDuplicateInFlight, got %v", err)
	}
	if h.gateway.chargeCount() != 0 {
		t.Fatalf("charges = %d, want 0", h.gateway.chargeCount())
	}
}
