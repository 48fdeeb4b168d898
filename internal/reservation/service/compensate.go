package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	"github.com/openrental/reserva/internal/pricing"
	"github.com/openrental/reserva/internal/reservation/domain"
	"github.com/openrental/reserva/internal/uow"
)

func asError[T error](err error, target *T) bool {
	return errors.As(err, target)
}

// compensateUncommitted refunds a charge whose reservation never became
// durable. Best effort: a failed refund is logged for manual follow-up
// under the idempotency key as correlation id.
func (s *service) compensateUncommitted(ctx context.Context, key string, charge *paymentdomain.ChargeResult, quote *pricing.Quote, req domain.CreateReservationRequest, log *zap.Logger) {
	refund, err := s.gateway.Refund(ctx, paymentdomain.RefundRequest{
		ChargeReference: charge.Reference,
		Amount:          quote.Total,
		Currency:        req.Currency,
		IdempotencyKey:  key + ":refund",
		Reason:          "reservation persist failed",
	})
	if err != nil {
		log.Error("refund after persist failure did not go through, manual follow-up required",
			zap.String("provider_ref", charge.Reference),
			zap.String("amount", quote.Total.StringFixed(2)),
			zap.Error(err))
		return
	}
	log.Info("charge refunded after persist failure", zap.String("refund_ref", refund.Reference))
}

// compensateCommitted handles a supplier confirmation failure after the
// reservation and payment are durable: mark FAILED, stage ReservationFailed
// and RefundRequested outbox rows, attempt the refund, finalize the key.
func (s *service) compensateCommitted(ctx context.Context, key string, reservation *domain.Reservation, payment *paymentdomain.Payment, confirmErr error, log *zap.Logger) (*domain.ReservationResult, error) {
	now := s.clk.Now()
	if err := reservation.Fail(confirmErr.Error(), now); err != nil {
		return nil, err
	}
	reservation.RequestRefund(payment.ProviderRef, "supplier confirmation failed", payment.Amount, now)

	refund, refundErr := s.gateway.Refund(ctx, paymentdomain.RefundRequest{
		ChargeReference: payment.ProviderRef,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		IdempotencyKey:  key + ":refund",
		Reason:          "supplier confirmation failed",
	})
	if refundErr != nil {
		log.Error("immediate refund failed, outbox row will drive retry",
			zap.String("provider_ref", payment.ProviderRef), zap.Error(refundErr))
	} else {
		payment.MarkRefunded(refund.Reference, s.clk.Now())
		reservation.MarkRefunded()
	}

	err := s.commitUpdate(ctx, reservation, func(scope *uow.Scope) error {
		if refundErr == nil {
			return scope.Payments().Update(scope.Context(), payment)
		}
		return nil
	})
	if err != nil {
		log.Error("recording confirmation failure did not commit", zap.Error(err))
		return nil, &domain.PersistenceError{CorrelationID: key, Err: err}
	}

	cerr := &domain.ConfirmationError{
		ReservationID:   reservation.ID.String(),
		ReservationCode: reservation.Code,
		PaymentRef:      payment.ProviderRef,
		Err:             confirmErr,
	}
	s.fail(ctx, key, failureDescriptor{
		Code:    failureSupplierConfirmation,
		Message: cerr.Error(),
		Detail:  reservation.Code,
	})
	return nil, cerr
}

// resume picks up a key whose previous execution died after its reservation
// committed. Terminal states replay; PENDING re-drives the supplier leg.
func (s *service) resume(ctx context.Context, record *idemRecord) (*domain.ReservationResult, error) {
	id, err := parseID(record.ReservationID)
	if err != nil {
		return nil, err
	}
	reservation, err := s.reservations.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	switch reservation.Status {
	case domain.StatusConfirmed, domain.StatusCompleted:
		result := resultOf(reservation)
		if err := s.guard.Complete(ctx, record.Key, result); err != nil {
			s.log.Warn("finalizing resumed key failed", zap.Error(err))
		}
		return result, nil
	case domain.StatusFailed, domain.StatusCancelled:
		descriptor := failureDescriptor{
			Code:    failureSupplierConfirmation,
			Message: reservation.FailureReason,
			Detail:  reservation.Code,
		}
		s.fail(ctx, record.Key, descriptor)
		return nil, descriptor.asDomainError()
	default:
		payment, err := s.payments.FindCaptured(ctx, s.db, reservation.ID)
		if err != nil {
			return nil, err
		}
		if payment == nil {
			return nil, paymentdomain.ErrPaymentNotFound
		}
		s.log.Info("resuming interrupted confirmation",
			zap.String("reservation_code", reservation.Code))
		return s.confirmAndFinalize(ctx, record.Key, reservation, payment)
	}
}
