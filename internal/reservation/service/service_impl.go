// Package service implements the reservation commit protocol: idempotency
// guard, deterministic pricing, payment capture, one atomic transaction for
// the reservation plus its outbox rows, then supplier confirmation with
// compensation on failure.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	backoff "github.com/cenkalti/backoff/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openrental/reserva/internal/clock"
	"github.com/openrental/reserva/internal/config"
	idemdomain "github.com/openrental/reserva/internal/idempotency/domain"
	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	"github.com/openrental/reserva/internal/pricing"
	"github.com/openrental/reserva/internal/reservation/domain"
	"github.com/openrental/reserva/internal/supplier"
	supplierdomain "github.com/openrental/reserva/internal/supplier/domain"
	"github.com/openrental/reserva/internal/uow"
	pkgdb "github.com/openrental/reserva/pkg/db"
)

// codeInsertAttempts bounds retries on reservation code collisions. The
// charge is never repeated inside this loop.
const codeInsertAttempts = 3

type ServiceParam struct {
	fx.In

	DB               *gorm.DB
	UoW              *uow.Factory
	Guard            idemdomain.Guard
	Reservations     domain.Repository
	Payments         paymentdomain.Repository
	SupplierRequests supplierdomain.RequestRepository
	Suppliers        *supplier.Registry
	Gateway          paymentdomain.Gateway
	Node             *snowflake.Node
	Clock            clock.Clock
	Config           config.Config
	Log              *zap.Logger
}

type service struct {
	db               *gorm.DB
	uow              *uow.Factory
	guard            idemdomain.Guard
	reservations     domain.Repository
	payments         paymentdomain.Repository
	supplierRequests supplierdomain.RequestRepository
	suppliers        *supplier.Registry
	gateway          paymentdomain.Gateway
	node             *snowflake.Node
	clk              clock.Clock
	cfg              config.Config
	log              *zap.Logger
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:               p.DB,
		uow:              p.UoW,
		guard:            p.Guard,
		reservations:     p.Reservations,
		payments:         p.Payments,
		supplierRequests: p.SupplierRequests,
		suppliers:        p.Suppliers,
		gateway:          p.Gateway,
		node:             p.Node,
		clk:              p.Clock,
		cfg:              p.Config,
		log:              p.Log.Named("reservation.service"),
	}
}

func (s *service) CreateReservation(ctx context.Context, req domain.CreateReservationRequest) (*domain.ReservationResult, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	outcome, err := s.guard.Begin(ctx, req.IdempotencyKey, requestHash(req))
	if err != nil {
		return nil, err
	}

	switch outcome.State {
	case idemdomain.BeginInFlight:
		return nil, domain.ErrDuplicateInFlight
	case idemdomain.BeginCompleted:
		return s.replay(outcome.Record)
	case idemdomain.BeginResumable:
		return s.resume(ctx, outcome.Record)
	}

	return s.execute(ctx, req)
}

// execute runs the commit protocol for a fresh key.
func (s *service) execute(ctx context.Context, req domain.CreateReservationRequest) (*domain.ReservationResult, error) {
	key := req.IdempotencyKey
	log := s.log.With(zap.String("idempotency_key", key), zap.String("supplier_code", req.SupplierCode))

	quote, err := pricing.Calculate(pricing.Input{
		PickupAt:      req.PickupAt,
		DropoffAt:     req.DropoffAt,
		DailyBaseRate: req.DailyBaseRate,
		AddOns:        addOns(req.AddOns),
		TaxRate:       req.TaxRate,
		DiscountRate:  req.DiscountRate,
	})
	if err != nil {
		s.abandon(ctx, key)
		return nil, err
	}

	// Charge before the local transaction so a commit failure never leaves
	// an uncharged CONFIRMED reservation. The processor-side idempotency key
	// makes a replayed charge a no-op.
	charge, err := s.charge(ctx, key, quote, req)
	if err != nil {
		return nil, err
	}
	log.Info("payment captured",
		zap.String("provider_ref", charge.Reference),
		zap.String("amount", quote.Total.StringFixed(2)))

	reservation, payment, err := s.persist(ctx, req, quote, charge)
	if err != nil {
		// Money was taken but nothing is durable. Refund, then finalize the
		// key with the failure so replays see the same outcome.
		s.compensateUncommitted(ctx, key, charge, quote, req, log)
		perr := &domain.PersistenceError{CorrelationID: key, Err: err}
		s.fail(ctx, key, failureDescriptor{Code: failurePersistence, Message: perr.Error(), Detail: key})
		return nil, perr
	}

	if err := s.guard.Attach(ctx, key, reservation.ID.String()); err != nil {
		// The reservation is durable; resumption just loses the fast path.
		log.Warn("attach after commit failed", zap.Error(err))
	}

	return s.confirmAndFinalize(ctx, key, reservation, payment)
}

// charge captures the payment with bounded retries. Transient processor
// errors retry; a decline finalizes the key immediately.
func (s *service) charge(ctx context.Context, key string, quote *pricing.Quote, req domain.CreateReservationRequest) (*paymentdomain.ChargeResult, error) {
	operation := func() (*paymentdomain.ChargeResult, error) {
		result, err := s.gateway.Charge(ctx, paymentdomain.ChargeRequest{
			Amount:          quote.Total,
			Currency:        req.Currency,
			MethodReference: req.PaymentMethodRef,
			IdempotencyKey:  key + ":charge",
			Description:     "car rental reservation",
			Metadata: map[string]string{
				"supplier_code": req.SupplierCode,
				"customer_ref":  req.CustomerRef,
			},
		})
		if err != nil {
			var perr *paymentdomain.ProcessorError
			if asError(err, &perr) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return result, nil
	}

	// WithMaxTries counts total attempts, so MaxRetries retries means
	// MaxRetries+1 tries.
	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(s.cfg.Payment.MaxRetries)+1))
	if err != nil {
		var declined *paymentdomain.DeclinedError
		if asError(err, &declined) {
			s.fail(ctx, key, failureDescriptor{Code: failurePaymentDeclined, Message: declined.Message, Detail: declined.Code})
			return nil, declined
		}
		// Outcome at the processor is unknown; release the key so a retry
		// re-drives the same processor idempotency key.
		s.abandon(ctx, key)
		return nil, err
	}
	return result, nil
}

// persist writes the reservation, the payment record and the outbox rows in
// one transaction. Code collisions regenerate the code and retry the whole
// scope without touching the charge.
func (s *service) persist(ctx context.Context, req domain.CreateReservationRequest, quote *pricing.Quote, charge *paymentdomain.ChargeResult) (*domain.Reservation, *paymentdomain.Payment, error) {
	var lastErr error
	for attempt := 0; attempt < codeInsertAttempts; attempt++ {
		now := s.clk.Now()
		reservation, payment, err := s.buildAggregate(req, quote, charge, now)
		if err != nil {
			return nil, nil, err
		}

		scope, err := s.uow.Begin(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		err = func() error {
			defer scope.Rollback()
			if err := scope.Reservations().Insert(scope.Context(), reservation); err != nil {
				return err
			}
			if err := scope.Payments().Insert(scope.Context(), payment); err != nil {
				return err
			}
			if err := scope.StageEvents(reservation); err != nil {
				return err
			}
			return scope.Commit()
		}()
		if err == nil {
			return reservation, payment, nil
		}
		lastErr = err
		if !pkgdb.IsDuplicateKeyErr(err) {
			break
		}
		s.log.Warn("reservation code collision, regenerating",
			zap.String("code", reservation.Code), zap.Int("attempt", attempt+1))
	}
	return nil, nil, lastErr
}

func (s *service) buildAggregate(req domain.CreateReservationRequest, quote *pricing.Quote, charge *paymentdomain.ChargeResult, now time.Time) (*domain.Reservation, *paymentdomain.Payment, error) {
	reservation, err := domain.NewReservation(
		s.node.Generate(), domain.NewCode(now), req.SupplierCode, req.Currency,
		req.PickupAt, req.DropoffAt, now)
	if err != nil {
		return nil, nil, err
	}
	reservation.CustomerRef = req.CustomerRef
	reservation.VehicleACRISS = req.VehicleACRISS
	reservation.VehicleCategory = req.VehicleCategory
	reservation.PickupOfficeCode = req.PickupOfficeCode
	reservation.DropoffOfficeCode = req.DropoffOfficeCode
	reservation.SalesChannel = req.SalesChannel

	for _, d := range req.Drivers {
		err := reservation.AddDriver(s.node.Generate(), d.FirstName, d.LastName, d.Email, d.Phone,
			d.DateOfBirth, d.LicenseNumber, d.LicenseCountry, d.IsPrimary)
		if err != nil {
			return nil, nil, err
		}
	}
	if primary := primaryDriver(req.Drivers); primary != nil && primary.Email != "" {
		err := reservation.AddContact(s.node.Generate(), domain.ContactTypeBooker,
			primary.FirstName+" "+primary.LastName, primary.Email, primary.Phone)
		if err != nil {
			return nil, nil, err
		}
	}

	items := make([]domain.PricingItem, len(quote.Items))
	copy(items, quote.Items)
	for i := range items {
		items[i].ID = s.node.Generate()
	}
	reservation.SetPricing(items, pricing.RentalDays(req.PickupAt, req.DropoffAt))
	reservation.MarkPaid(charge.Reference, quote.Total, now)

	payment, err := paymentdomain.NewCaptured(
		s.node.Generate(), reservation.ID, s.gateway.Provider(), charge, quote.Total, reservation.Currency, now)
	if err != nil {
		return nil, nil, err
	}
	return reservation, payment, nil
}

// confirmAndFinalize runs the supplier leg against an already committed
// reservation. It is shared by the fresh path and crash resumption.
func (s *service) confirmAndFinalize(ctx context.Context, key string, reservation *domain.Reservation, payment *paymentdomain.Payment) (*domain.ReservationResult, error) {
	log := s.log.With(
		zap.String("reservation_code", reservation.Code),
		zap.String("supplier_code", reservation.SupplierCode))

	confirmation, err := s.confirmWithSupplier(ctx, reservation)
	if err != nil {
		return s.compensateCommitted(ctx, key, reservation, payment, err, log)
	}

	now := s.clk.Now()
	reservation.SupplierName = reservation.SupplierCode
	if err := reservation.Confirm(confirmation.ConfirmationCode, now); err != nil {
		return nil, err
	}

	if err := s.commitUpdate(ctx, reservation, nil); err != nil {
		// The supplier holds the booking but our row still says PENDING.
		// The key stays attached and RUNNING so resumption repairs it.
		log.Error("confirmed at supplier but local update failed", zap.Error(err))
		return nil, &domain.PersistenceError{CorrelationID: key, Err: err}
	}
	log.Info("reservation confirmed",
		zap.String("confirmation_code", confirmation.ConfirmationCode))

	result := resultOf(reservation)
	if err := s.guard.Complete(ctx, key, result); err != nil {
		log.Warn("finalizing idempotency key failed", zap.Error(err))
	}
	return result, nil
}

// confirmWithSupplier calls the vendor with bounded retries on
// UnavailableError. Rejections are terminal on first response. Every attempt
// outcome lands in the supplier_requests audit log.
func (s *service) confirmWithSupplier(ctx context.Context, reservation *domain.Reservation) (*supplierdomain.Confirmation, error) {
	client, err := s.suppliers.Resolve(reservation.SupplierCode)
	if err != nil {
		return nil, err
	}

	confirmReq := supplierdomain.ConfirmationRequest{
		ReservationCode:   reservation.Code,
		PickupOfficeCode:  reservation.PickupOfficeCode,
		DropoffOfficeCode: reservation.DropoffOfficeCode,
		PickupAt:          reservation.PickupAt,
		DropoffAt:         reservation.DropoffAt,
		VehicleACRISS:     reservation.VehicleACRISS,
	}
	for _, d := range reservation.Drivers {
		if d.IsPrimary || confirmReq.DriverFirstName == "" {
			confirmReq.DriverFirstName = d.FirstName
			confirmReq.DriverLastName = d.LastName
			confirmReq.DriverEmail = d.Email
			confirmReq.DriverPhone = d.Phone
		}
	}

	operation := func() (*supplierdomain.Confirmation, error) {
		confirmation, err := client.Confirm(ctx, confirmReq)
		s.audit(ctx, reservation, supplierdomain.RequestTypeConfirm, confirmation, err)
		if err != nil {
			var unavailable *supplierdomain.UnavailableError
			if asError(err, &unavailable) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return confirmation, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(s.cfg.Suppliers.MaxRetries)+1))
}

// audit records one vendor call outcome. Failures to write the audit row are
// logged, never propagated.
func (s *service) audit(ctx context.Context, reservation *domain.Reservation, requestType supplierdomain.RequestType, confirmation *supplierdomain.Confirmation, callErr error) {
	request := &supplierdomain.Request{
		ID:            s.node.Generate(),
		ReservationID: reservation.ID,
		SupplierCode:  reservation.SupplierCode,
		RequestType:   requestType,
		Status:        supplierdomain.RequestStatusSuccess,
		CreatedAt:     s.clk.Now().UTC(),
	}
	if callErr != nil {
		request.Status = supplierdomain.RequestStatusFailed
		request.ErrorMessage = callErr.Error()
	} else if confirmation != nil {
		payload, err := json.Marshal(confirmation)
		if err == nil {
			request.Response = payload
		}
	}
	if err := s.supplierRequests.Insert(ctx, s.db, request); err != nil {
		s.log.Warn("supplier request audit write failed", zap.Error(err))
	}
}

// commitUpdate persists aggregate changes plus staged events; extra runs
// inside the same scope when provided.
func (s *service) commitUpdate(ctx context.Context, reservation *domain.Reservation, extra func(scope *uow.Scope) error) error {
	scope, err := s.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer scope.Rollback()

	if err := scope.Reservations().Update(scope.Context(), reservation); err != nil {
		return err
	}
	if extra != nil {
		if err := extra(scope); err != nil {
			return err
		}
	}
	if err := scope.StageEvents(reservation); err != nil {
		return err
	}
	return scope.Commit()
}

func (s *service) fail(ctx context.Context, key string, descriptor failureDescriptor) {
	if err := s.guard.Fail(ctx, key, descriptor); err != nil {
		s.log.Warn("recording failure on idempotency key failed",
			zap.String("idempotency_key", key), zap.Error(err))
	}
}

func (s *service) abandon(ctx context.Context, key string) {
	if err := s.guard.Abandon(ctx, key); err != nil {
		s.log.Warn("abandoning idempotency key failed",
			zap.String("idempotency_key", key), zap.Error(err))
	}
}

func addOns(in []domain.AddOnInput) []pricing.AddOn {
	out := make([]pricing.AddOn, len(in))
	for i, a := range in {
		out[i] = pricing.AddOn{Code: a.Code, DailyRate: a.DailyRate}
	}
	return out
}

func primaryDriver(drivers []domain.DriverInput) *domain.DriverInput {
	for i := range drivers {
		if drivers[i].IsPrimary {
			return &drivers[i]
		}
	}
	if len(drivers) > 0 {
		return &drivers[0]
	}
	return nil
}

func resultOf(reservation *domain.Reservation) *domain.ReservationResult {
	result := &domain.ReservationResult{
		ReservationID:            reservation.ID.String(),
		ReservationCode:          reservation.Code,
		Status:                   reservation.Status,
		PaymentState:             reservation.PaymentState,
		SupplierConfirmationCode: reservation.SupplierConfirmationCode,
		TotalPrice:               reservation.TotalPrice,
		Currency:                 reservation.Currency,
	}
	if reservation.Status == domain.StatusConfirmed || reservation.Status == domain.StatusCompleted {
		result.ReceiptURL = fmt.Sprintf("/v1/reservations/%s/receipt", reservation.Code)
	}
	return result
}
