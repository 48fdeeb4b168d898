package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	Update(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByReservationID(ctx context.Context, db *gorm.DB, reservationID snowflake.ID) ([]Payment, error)
	FindCaptured(ctx context.Context, db *gorm.DB, reservationID snowflake.ID) (*Payment, error)
}
