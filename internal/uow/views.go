package uow

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	reservationdomain "github.com/openrental/reserva/internal/reservation/domain"
	supplierdomain "github.com/openrental/reserva/internal/supplier/domain"
)

// ReservationStore binds the reservation repository to the scope's
// transaction.
type ReservationStore struct {
	tx   *gorm.DB
	repo reservationdomain.Repository
}

func (v ReservationStore) Insert(ctx context.Context, r *reservationdomain.Reservation) error {
	return v.repo.Insert(ctx, v.tx, r)
}

func (v ReservationStore) Update(ctx context.Context, r *reservationdomain.Reservation) error {
	return v.repo.Update(ctx, v.tx, r)
}

func (v ReservationStore) FindByID(ctx context.Context, id snowflake.ID) (*reservationdomain.Reservation, error) {
	return v.repo.FindByID(ctx, v.tx, id)
}

func (v ReservationStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return v.repo.ExistsByCode(ctx, v.tx, code)
}

type PaymentStore struct {
	tx   *gorm.DB
	repo paymentdomain.Repository
}

func (v PaymentStore) Insert(ctx context.Context, p *paymentdomain.Payment) error {
	return v.repo.Insert(ctx, v.tx, p)
}

func (v PaymentStore) Update(ctx context.Context, p *paymentdomain.Payment) error {
	return v.repo.Update(ctx, v.tx, p)
}

func (v PaymentStore) FindCaptured(ctx context.Context, reservationID snowflake.ID) (*paymentdomain.Payment, error) {
	return v.repo.FindCaptured(ctx, v.tx, reservationID)
}

type SupplierRequestStore struct {
	tx   *gorm.DB
	repo supplierdomain.RequestRepository
}

func (v SupplierRequestStore) Insert(ctx context.Context, r *supplierdomain.Request) error {
	return v.repo.Insert(ctx, v.tx, r)
}
