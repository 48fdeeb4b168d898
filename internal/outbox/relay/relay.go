// Package relay drains committed outbox rows and republishes them to Kafka.
// It is the only writer of outbox_events.processed_at.
package relay

import (
	"context"
	"time"

	"github.com/openrental/reserva/internal/config"
	"github.com/openrental/reserva/internal/outbox/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher is the narrow slice of the Kafka writer the relay needs.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Relay struct {
	db           *gorm.DB
	log          *zap.Logger
	repo         domain.Repository
	writer       Publisher
	pollInterval time.Duration
	batchSize    int
	maxRetries   int

	done chan struct{}
}

func New(db *gorm.DB, log *zap.Logger, repo domain.Repository, writer Publisher, cfg config.OutboxConfig) *Relay {
	return &Relay{
		db:           db,
		log:          log.Named("outbox.relay"),
		repo:         repo,
		writer:       writer,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		maxRetries:   cfg.MaxRetries,
		done:         make(chan struct{}),
	}
}

func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.drainOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Wait blocks until Run has returned.
func (r *Relay) Wait() {
	<-r.done
}

func (r *Relay) drainOnce(ctx context.Context) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events, err := r.repo.ClaimUnprocessed(ctx, tx, r.batchSize, r.maxRetries)
		if err != nil {
			return err
		}

		for _, event := range events {
			if err := r.publish(ctx, event); err != nil {
				r.log.Warn("outbox_publish_failed",
					zap.String("event_id", event.ID.String()),
					zap.String("event_type", event.EventType),
					zap.Int("retry_count", event.RetryCount),
					zap.Error(err),
				)
				if markErr := r.repo.MarkFailed(ctx, tx, event.ID, err.Error()); markErr != nil {
					return markErr
				}
				continue
			}
			if err := r.repo.MarkProcessed(ctx, tx, event.ID, time.Now().UTC()); err != nil {
				return err
			}
			relayPublished.Inc()
		}
		return nil
	})
	if err != nil {
		r.log.Error("outbox_drain_failed", zap.Error(err))
	}
}

func (r *Relay) publish(ctx context.Context, event domain.OutboxEvent) error {
	return r.writer.WriteMessages(ctx, kafka.Message{
		// Key by aggregate id so one reservation's events stay ordered
		// within a partition.
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "aggregate_type", Value: []byte(event.AggregateType)},
		},
	})
}
