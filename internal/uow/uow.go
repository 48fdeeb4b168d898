// Package uow provides the unit of work: a single database transaction that
// lends repository views so the reservation write, the payment record, and
// the outbox rows commit or roll back together.
package uow

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	outboxdomain "github.com/openrental/reserva/internal/outbox/domain"
	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	reservationdomain "github.com/openrental/reserva/internal/reservation/domain"
	supplierdomain "github.com/openrental/reserva/internal/supplier/domain"
)

type ctxKey struct{}

// Factory opens scopes over the shared connection pool.
type Factory struct {
	db               *gorm.DB
	reservations     reservationdomain.Repository
	payments         paymentdomain.Repository
	outbox           outboxdomain.Repository
	supplierRequests supplierdomain.RequestRepository
}

func NewFactory(
	db *gorm.DB,
	reservations reservationdomain.Repository,
	payments paymentdomain.Repository,
	outbox outboxdomain.Repository,
	supplierRequests supplierdomain.RequestRepository,
) *Factory {
	return &Factory{
		db:               db,
		reservations:     reservations,
		payments:         payments,
		outbox:           outbox,
		supplierRequests: supplierRequests,
	}
}

// Begin starts a transaction and returns the scope bound to it. Nesting a
// scope inside another is a programming error and panics.
func (f *Factory) Begin(ctx context.Context) (*Scope, error) {
	if ctx.Value(ctxKey{}) != nil {
		panic("uow: nested unit of work scope")
	}
	tx := f.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &Scope{
		ctx: context.WithValue(ctx, ctxKey{}, struct{}{}),
		tx:  tx,
		f:   f,
	}, nil
}

// Scope is a live transaction. Views handed out by it are only valid until
// Commit or Rollback.
type Scope struct {
	ctx    context.Context
	tx     *gorm.DB
	f      *Factory
	staged []outboxdomain.OutboxEvent
	done   bool
}

// Context carries the nesting marker; pass it to anything called inside the
// scope.
func (s *Scope) Context() context.Context { return s.ctx }

// Tx exposes the raw transaction for repository calls that take *gorm.DB.
func (s *Scope) Tx() *gorm.DB { return s.tx }

func (s *Scope) Reservations() ReservationStore {
	return ReservationStore{tx: s.tx, repo: s.f.reservations}
}

func (s *Scope) Payments() PaymentStore {
	return PaymentStore{tx: s.tx, repo: s.f.payments}
}

func (s *Scope) SupplierRequests() SupplierRequestStore {
	return SupplierRequestStore{tx: s.tx, repo: s.f.supplierRequests}
}

// StageEvents drains the aggregate's buffered domain events into pending
// outbox rows. The rows are written at Commit, inside the same transaction.
func (s *Scope) StageEvents(r *reservationdomain.Reservation) error {
	for _, ev := range r.DrainEvents() {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		s.staged = append(s.staged, outboxdomain.OutboxEvent{
			ID:            uuid.New(),
			EventType:     ev.Type,
			AggregateType: reservationdomain.AggregateTypeReservation,
			AggregateID:   ev.AggregateID.String(),
			Payload:       payload,
			CreatedAt:     ev.OccurredAt,
		})
	}
	return nil
}

// Commit flushes staged outbox rows and commits. A scope commits at most
// once; calling Commit after the scope is finished returns the driver error.
func (s *Scope) Commit() error {
	if s.done {
		return gorm.ErrInvalidTransaction
	}
	if len(s.staged) > 0 {
		if err := s.f.outbox.Insert(s.ctx, s.tx, s.staged); err != nil {
			s.Rollback()
			return err
		}
	}
	s.done = true
	return s.tx.Commit().Error
}

// Rollback is safe to defer; it is a no-op after Commit.
func (s *Scope) Rollback() {
	if s.done {
		return
	}
	s.done = true
	s.tx.Rollback()
}
