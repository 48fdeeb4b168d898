package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/openrental/reserva/internal/supplier/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.RequestRepository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, request *domain.Request) error {
	return db.WithContext(ctx).Create(request).Error
}

func (r *repo) ListByReservationID(ctx context.Context, db *gorm.DB, reservationID snowflake.ID) ([]domain.Request, error) {
	var requests []domain.Request
	err := db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("created_at ASC").
		Find(&requests).Error
	return requests, err
}
