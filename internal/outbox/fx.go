package outbox

import (
	"context"

	"github.com/openrental/reserva/internal/config"
	"github.com/openrental/reserva/internal/outbox/domain"
	"github.com/openrental/reserva/internal/outbox/relay"
	"github.com/openrental/reserva/internal/outbox/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("outbox",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *kafka.Writer {
		return relay.NewWriter(cfg.Kafka)
	}),
	fx.Provide(func(db *gorm.DB, log *zap.Logger, repo domain.Repository, writer *kafka.Writer, cfg config.Config) *relay.Relay {
		return relay.New(db, log, repo, writer, cfg.Outbox)
	}),
	fx.Invoke(registerHooks),
)

func registerHooks(lc fx.Lifecycle, r *relay.Relay, writer *kafka.Writer) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go r.Run(runCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			r.Wait()
			return writer.Close()
		},
	})
}
