package service

import (
	"context"

	"go.uber.org/zap"

	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	"github.com/openrental/reserva/internal/reservation/domain"
	supplierdomain "github.com/openrental/reserva/internal/supplier/domain"
	"github.com/openrental/reserva/internal/uow"
)

// CancelReservation cancels a PENDING or CONFIRMED reservation. A confirmed
// reservation is also released at the supplier and its charge refunded.
func (s *service) CancelReservation(ctx context.Context, req domain.CancelReservationRequest) (*domain.ReservationResult, error) {
	id, err := parseID(req.ID)
	if err != nil {
		return nil, domain.ErrReservationNotFound
	}
	reservation, err := s.reservations.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	wasConfirmed := reservation.Status == domain.StatusConfirmed

	now := s.clk.Now()
	if err := reservation.Cancel(req.Reason, now); err != nil {
		return nil, err
	}

	var payment *paymentdomain.Payment
	if wasConfirmed {
		s.releaseAtSupplier(ctx, reservation)
		payment = s.refundOnCancel(ctx, reservation)
	}

	err = s.commitUpdate(ctx, reservation, func(scope *uow.Scope) error {
		if payment != nil {
			return scope.Payments().Update(scope.Context(), payment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resultOf(reservation), nil
}

// releaseAtSupplier is best effort; a failed release is audited and logged,
// the local cancellation still proceeds.
func (s *service) releaseAtSupplier(ctx context.Context, reservation *domain.Reservation) {
	client, err := s.suppliers.Resolve(reservation.SupplierCode)
	if err != nil {
		s.log.Warn("cancel: supplier not resolvable",
			zap.String("supplier_code", reservation.SupplierCode), zap.Error(err))
		return
	}
	err = client.Cancel(ctx, reservation.SupplierConfirmationCode)
	s.audit(ctx, reservation, supplierdomain.RequestTypeCancel, nil, err)
	if err != nil {
		s.log.Warn("cancel at supplier failed, manual follow-up required",
			zap.String("reservation_code", reservation.Code),
			zap.String("confirmation_code", reservation.SupplierConfirmationCode),
			zap.Error(err))
	}
}

func (s *service) refundOnCancel(ctx context.Context, reservation *domain.Reservation) *paymentdomain.Payment {
	payment, err := s.payments.FindCaptured(ctx, s.db, reservation.ID)
	if err != nil || payment == nil {
		s.log.Warn("cancel: no captured payment found",
			zap.String("reservation_code", reservation.Code), zap.Error(err))
		return nil
	}

	now := s.clk.Now()
	reservation.RequestRefund(payment.ProviderRef, "reservation cancelled", payment.Amount, now)

	refund, err := s.gateway.Refund(ctx, paymentdomain.RefundRequest{
		ChargeReference: payment.ProviderRef,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		IdempotencyKey:  reservation.Code + ":cancel-refund",
		Reason:          "reservation cancelled",
	})
	if err != nil {
		s.log.Error("refund on cancel failed, outbox row will drive retry",
			zap.String("provider_ref", payment.ProviderRef), zap.Error(err))
		return nil
	}
	payment.MarkRefunded(refund.Reference, s.clk.Now())
	reservation.MarkRefunded()
	return payment
}

// CompleteReservation records trip completion on a CONFIRMED reservation.
func (s *service) CompleteReservation(ctx context.Context, id string) (*domain.ReservationResult, error) {
	parsed, err := parseID(id)
	if err != nil {
		return nil, domain.ErrReservationNotFound
	}
	reservation, err := s.reservations.FindByID(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if err := reservation.Complete(s.clk.Now()); err != nil {
		return nil, err
	}
	if err := s.commitUpdate(ctx, reservation, nil); err != nil {
		return nil, err
	}
	return resultOf(reservation), nil
}

func (s *service) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	parsed, err := parseID(id)
	if err != nil {
		return nil, domain.ErrReservationNotFound
	}
	return s.reservations.FindByID(ctx, s.db, parsed)
}

func (s *service) GetReservationByCode(ctx context.Context, code string) (*domain.Reservation, error) {
	return s.reservations.FindByCode(ctx, s.db, code)
}

func (s *service) ListReservations(ctx context.Context, filter domain.ListFilter) ([]domain.Reservation, int64, error) {
	return s.reservations.List(ctx, s.db, filter)
}
