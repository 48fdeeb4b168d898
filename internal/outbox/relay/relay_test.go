package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openrental/reserva/internal/config"
	"github.com/openrental/reserva/internal/outbox/domain"
	"github.com/openrental/reserva/internal/outbox/repository"
)

type publisherStub struct {
	messages []kafka.Message
	err      error
}

func (p *publisherStub) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msgs...)
	return nil
}

func setupRelay(t *testing.T, publisher Publisher) (*Relay, domain.Repository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := repository.Provide()
	relay := New(db, zap.NewNop(), repo, publisher, config.OutboxConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		MaxRetries:   3,
	})
	return relay, repo, db
}

func seed(t *testing.T, repo domain.Repository, db *gorm.DB, eventType, aggregateID string) domain.OutboxEvent {
	t.Helper()
	event := domain.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: "RESERVATION",
		AggregateID:   aggregateID,
		Payload:       []byte(`{"reservation_code":"RES-20250310-AAAAA"}`),
		CreatedAt:     time.Now().UTC(),
	}
	if err := repo.Insert(context.Background(), db, []domain.OutboxEvent{event}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return event
}

func TestDrainPublishesAndMarksProcessed(t *testing.T) {
	publisher := &publisherStub{}
	relay, repo, db := setupRelay(t, publisher)
	ctx := context.Background()

	event := seed(t, repo, db, "ReservationConfirmed", "42")
	relay.drainOnce(ctx)

	if len(publisher.messages) != 1 {
		t.Fatalf("published = %d, want 1", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if string(msg.Key) != "42" {
		t.Fatalf("message key = %q, want aggregate id", msg.Key)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event_type"] != "ReservationConfirmed" || headers["event_id"] != event.ID.String() {
		t.Fatalf("headers = %v", headers)
	}

	pending, err := repo.CountPending(ctx, db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if pending != 0 {
		t.Fatalf("pending = %d, want 0", pending)
	}
}

func TestDrainKeepsRowOnPublishFailure(t *testing.T) {
	publisher := &publisherStub{err: errors.New("broker unreachable")}
	relay, repo, db := setupRelay(t, publisher)
	ctx := context.Background()

	event := seed(t, repo, db, "ReservationCreated", "7")
	relay.drainOnce(ctx)

	var row domain.OutboxEvent
	if err := db.First(&row, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.ProcessedAt != nil {
		t.Fatal("failed publish must not mark the row processed")
	}
	if row.RetryCount != 1 || row.LastError == "" {
		t.Fatalf("retry_count=%d last_error=%q", row.RetryCount, row.LastError)
	}

	// Broker recovers; the same row goes out on the next tick.
	publisher.err = nil
	relay.drainOnce(ctx)
	if len(publisher.messages) != 1 {
		t.Fatalf("published = %d after recovery, want 1", len(publisher.messages))
	}
	pending, _ := repo.CountPending(ctx, db)
	if pending != 0 {
		t.Fatalf("pending = %d, want 0", pending)
	}
}

func TestDrainIsIdempotentWhenNothingPending(t *testing.T) {
	publisher := &publisherStub{}
	relay, _, _ := setupRelay(t, publisher)

	relay.drainOnce(context.Background())
	relay.drainOnce(context.Background())
	if len(publisher.messages) != 0 {
		t.Fatalf("published = %d, want 0", len(publisher.messages))
	}
}
