package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/openrental/reserva/internal/clock"
	"github.com/openrental/reserva/internal/config"
	"github.com/openrental/reserva/internal/idempotency"
	"github.com/openrental/reserva/internal/logger"
	"github.com/openrental/reserva/internal/migration"
	"github.com/openrental/reserva/internal/outbox"
	"github.com/openrental/reserva/internal/payment"
	"github.com/openrental/reserva/internal/ratelimit"
	"github.com/openrental/reserva/internal/reservation"
	"github.com/openrental/reserva/internal/server"
	"github.com/openrental/reserva/internal/supplier"
	"github.com/openrental/reserva/internal/uow"
	"github.com/openrental/reserva/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,

		idempotency.Module,
		uow.Module,
		payment.Module,
		supplier.Module,
		outbox.Module,
		ratelimit.Module,
		reservation.Module,
		server.Module,
	)

	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("NODE_ID"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}
