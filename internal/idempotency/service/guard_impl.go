package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openrental/reserva/internal/clock"
	"github.com/openrental/reserva/internal/config"
	"github.com/openrental/reserva/internal/idempotency/domain"
)

type guard struct {
	db            *gorm.DB
	clk           clock.Clock
	log           *zap.Logger
	scope         string
	ttl           time.Duration
	inFlightStale time.Duration
}

func NewGuard(db *gorm.DB, clk clock.Clock, cfg config.Config, log *zap.Logger) domain.Guard {
	return &guard{
		db:            db,
		clk:           clk,
		log:           log.Named("idempotency.guard"),
		scope:         "reservation.create",
		ttl:           cfg.Idempotency.TTL,
		inFlightStale: cfg.Idempotency.InFlightStale,
	}
}

// Begin reserves the key before any side effect runs. The insert uses ON
// CONFLICT DO NOTHING so exactly one concurrent caller wins; everyone else
// re-reads the surviving row and acts on its state.
func (g *guard) Begin(ctx context.Context, key, requestHash string) (domain.Outcome, error) {
	if key == "" {
		return domain.Outcome{}, domain.ErrKeyRequired
	}

	now := g.clk.Now()
	rec := domain.Record{
		Key:         key,
		Scope:       g.scope,
		State:       domain.StateRunning,
		RequestHash: requestHash,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(g.ttl),
	}

	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return domain.Outcome{}, res.Error
	}
	if res.RowsAffected == 1 {
		return domain.Outcome{State: domain.BeginNew, Record: &rec}, nil
	}

	return g.resolveExisting(ctx, key, requestHash, now)
}

func (g *guard) resolveExisting(ctx context.Context, key, requestHash string, now time.Time) (domain.Outcome, error) {
	var existing domain.Record
	if err := g.db.WithContext(ctx).First(&existing, "key = ?", key).Error; err != nil {
		return domain.Outcome{}, err
	}

	// Expired records behave as if the key was never seen.
	if !existing.ExpiresAt.After(now) {
		taken, err := g.takeOver(ctx, key, requestHash, now, "expires_at <= ?", now)
		if err != nil {
			return domain.Outcome{}, err
		}
		if taken != nil {
			return domain.Outcome{State: domain.BeginNew, Record: taken}, nil
		}
		// Lost the takeover race; resolve against the winner's row.
		return g.resolveExisting(ctx, key, requestHash, now)
	}

	if existing.RequestHash != "" && requestHash != "" && existing.RequestHash != requestHash {
		return domain.Outcome{}, &domain.MismatchedRequestError{Key: key}
	}

	switch existing.State {
	case domain.StateCompleted, domain.StateFailed:
		return domain.Outcome{State: domain.BeginCompleted, Record: &existing}, nil
	case domain.StateRunning:
		if now.Sub(existing.UpdatedAt) < g.inFlightStale {
			return domain.Outcome{State: domain.BeginInFlight, Record: &existing}, nil
		}
		if existing.ReservationID != "" {
			// The previous run committed its reservation before dying.
			// Resume read-only from durable state.
			return domain.Outcome{State: domain.BeginResumable, Record: &existing}, nil
		}
		staleBefore := now.Add(-g.inFlightStale)
		taken, err := g.takeOver(ctx, key, requestHash, now,
			"state = ? AND reservation_id = '' AND updated_at <= ?", domain.StateRunning, staleBefore)
		if err != nil {
			return domain.Outcome{}, err
		}
		if taken != nil {
			g.log.Warn("took over stale in-flight key", zap.String("key", key))
			return domain.Outcome{State: domain.BeginNew, Record: taken}, nil
		}
		return domain.Outcome{State: domain.BeginInFlight, Record: &existing}, nil
	default:
		return domain.Outcome{}, domain.ErrGuardConflict
	}
}

// takeOver resets the row back to a fresh RUNNING state, guarded by a
// conditional WHERE so only one contender succeeds. Returns nil when the
// guard did not match.
func (g *guard) takeOver(ctx context.Context, key, requestHash string, now time.Time, cond string, args ...any) (*domain.Record, error) {
	updates := map[string]any{
		"state":          domain.StateRunning,
		"request_hash":   requestHash,
		"result":         nil,
		"reservation_id": "",
		"created_at":     now,
		"updated_at":     now,
		"expires_at":     now.Add(g.ttl),
	}
	res := g.db.WithContext(ctx).Model(&domain.Record{}).
		Where("key = ?", key).
		Where(cond, args...).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &domain.Record{
		Key:         key,
		Scope:       g.scope,
		State:       domain.StateRunning,
		RequestHash: requestHash,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(g.ttl),
	}, nil
}

func (g *guard) Attach(ctx context.Context, key, reservationID string) error {
	return g.update(ctx, key, map[string]any{
		"reservation_id": reservationID,
		"updated_at":     g.clk.Now(),
	})
}

func (g *guard) Complete(ctx context.Context, key string, result any) error {
	return g.finalize(ctx, key, domain.StateCompleted, result)
}

func (g *guard) Fail(ctx context.Context, key string, failure any) error {
	return g.finalize(ctx, key, domain.StateFailed, failure)
}

func (g *guard) finalize(ctx context.Context, key string, state domain.State, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return g.update(ctx, key, map[string]any{
		"state":      state,
		"result":     payload,
		"updated_at": g.clk.Now(),
	})
}

// Abandon deletes the record so a later retry starts fresh. Used when the
// orchestration failed before any durable side effect was recorded.
func (g *guard) Abandon(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Delete(&domain.Record{}, "key = ?", key).Error
}

func (g *guard) update(ctx context.Context, key string, updates map[string]any) error {
	res := g.db.WithContext(ctx).Model(&domain.Record{}).
		Where("key = ?", key).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrGuardConflict
	}
	return nil
}
