package reservation

import (
	"go.uber.org/fx"

	"github.com/openrental/reserva/internal/reservation/repository"
	"github.com/openrental/reserva/internal/reservation/service"
)

var Module = fx.Module("reservation",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)
