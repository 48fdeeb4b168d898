// Package domain defines the idempotency guard: a reserve-then-do record
// keyed by the caller's idempotency key.
package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
)

type State string

const (
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Record is created before any side effect occurs and finalized once the
// orchestration reaches a terminal outcome.
type Record struct {
	Key           string         `json:"key" gorm:"type:text;primaryKey"`
	Scope         string         `json:"scope" gorm:"type:text;not null"`
	State         State          `json:"state" gorm:"type:text;not null"`
	RequestHash   string         `json:"request_hash" gorm:"type:text"`
	Result        datatypes.JSON `json:"result,omitempty" gorm:"type:jsonb"`
	ReservationID string         `json:"reservation_id,omitempty" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"not null"`
	ExpiresAt     time.Time      `json:"expires_at" gorm:"not null;index"`
}

func (Record) TableName() string { return "idempotency_records" }

// BeginState is what a caller observes when entering the guard.
type BeginState int

const (
	// BeginNew means this caller won the key and must execute.
	BeginNew BeginState = iota
	// BeginInFlight means another caller holds the key; retry later.
	BeginInFlight
	// BeginCompleted means a finalized result exists and must be replayed
	// without re-executing side effects.
	BeginCompleted
	// BeginResumable means a previous execution died after its reservation
	// was committed; the caller should resume from durable state instead
	// of re-executing from the top.
	BeginResumable
)

type Outcome struct {
	State  BeginState
	Record *Record
}

// Guard coordinates concurrent callers of the same idempotency key. Begin
// must be atomic: exactly one concurrent caller observes BeginNew. If the
// backing store is unavailable the guard fails closed.
type Guard interface {
	Begin(ctx context.Context, key, requestHash string) (Outcome, error)
	// Attach links the record to its reservation as soon as the reservation
	// is durable, enabling read-only resume after a crash.
	Attach(ctx context.Context, key, reservationID string) error
	Complete(ctx context.Context, key string, result any) error
	// Fail finalizes the key with a recorded failure descriptor; replays
	// receive the same failure.
	Fail(ctx context.Context, key string, failure any) error
	// Abandon releases the key so a later retry starts over.
	Abandon(ctx context.Context, key string) error
}

var (
	ErrKeyRequired   = errors.New("idempotency_key_required")
	ErrGuardConflict = errors.New("idempotency_guard_conflict")
)

// MismatchedRequestError means the same key was reused with a different
// payload, which is a client bug, not a replay.
type MismatchedRequestError struct {
	Key string
}

func (e *MismatchedRequestError) Error() string {
	return "idempotency_key_reused_with_different_request: " + e.Key
}
