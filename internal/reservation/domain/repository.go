package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the reservation persistence contract. Methods accept the
// gorm handle explicitly so unit-of-work scopes can pass their transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reservation *Reservation) error
	Update(ctx context.Context, db *gorm.DB, reservation *Reservation) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reservation, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Reservation, error)
	ExistsByCode(ctx context.Context, db *gorm.DB, code string) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Reservation, int64, error)
}

type ListFilter struct {
	Status   Status
	Supplier string
	Page     int
	PageSize int
}
