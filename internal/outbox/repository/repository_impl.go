package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openrental/reserva/internal/outbox/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, events []domain.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&events).Error
}

// ClaimUnprocessed locks a batch of pending rows so concurrent relay
// instances never publish the same event. Rows past maxRetries are left for
// manual follow-up.
func (r *repo) ClaimUnprocessed(ctx context.Context, db *gorm.DB, limit, maxRetries int) ([]domain.OutboxEvent, error) {
	var events []domain.OutboxEvent
	stmt := db.WithContext(ctx).
		Where("processed_at IS NULL AND retry_count < ?", maxRetries).
		Order("created_at ASC").
		Limit(limit)
	// sqlite has no row locks; single-writer semantics cover it there.
	if name := db.Dialector.Name(); name == "postgres" || name == "mysql" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	err := stmt.Find(&events).Error
	return events, err
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id uuid.UUID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed_at": at, "last_error": ""}).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id uuid.UUID, lastError string) error {
	return db.WithContext(ctx).
		Model(&domain.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  lastError,
		}).Error
}

func (r *repo) CountPending(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.OutboxEvent{}).
		Where("processed_at IS NULL").
		Count(&count).Error
	return count, err
}
