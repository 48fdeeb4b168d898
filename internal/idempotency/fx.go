package idempotency

import (
	"go.uber.org/fx"

	"github.com/openrental/reserva/internal/idempotency/service"
)

var Module = fx.Module("idempotency",
	fx.Provide(
		service.NewGuard,
	),
)
