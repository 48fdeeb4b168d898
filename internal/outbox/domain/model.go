// Package domain contains the transactional outbox row. A row exists if and
// only if it was written in the same transaction as the aggregate mutation
// that produced it.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OutboxEvent struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	EventType     string         `json:"event_type" gorm:"type:text;not null"`
	AggregateType string         `json:"aggregate_type" gorm:"type:text;not null;index:idx_outbox_aggregate"`
	AggregateID   string         `json:"aggregate_id" gorm:"type:text;not null;index:idx_outbox_aggregate"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null;index"`
	ProcessedAt   *time.Time     `json:"processed_at" gorm:"index"`
	RetryCount    int            `json:"retry_count" gorm:"not null;default:0"`
	LastError     string         `json:"last_error,omitempty" gorm:"type:text"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// Repository's write side is only ever called from a unit-of-work scope;
// the read/mark side belongs to the relay.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, events []OutboxEvent) error
	ClaimUnprocessed(ctx context.Context, db *gorm.DB, limit, maxRetries int) ([]OutboxEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id uuid.UUID, lastError string) error
	CountPending(ctx context.Context, db *gorm.DB) (int64, error)
}
