package payment

import (
	"github.com/openrental/reserva/internal/config"
	"github.com/openrental/reserva/internal/payment/adapters"
	"github.com/openrental/reserva/internal/payment/adapters/sandbox"
	"github.com/openrental/reserva/internal/payment/adapters/stripe"
	"github.com/openrental/reserva/internal/payment/domain"
	"github.com/openrental/reserva/internal/payment/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
			sandbox.NewFactory(),
		)
	}),
	fx.Provide(NewGateway),
)

// NewGateway resolves the configured payment provider from the registry.
func NewGateway(cfg config.Config, registry *adapters.Registry) (domain.Gateway, error) {
	return registry.NewGateway(cfg.Payment.Provider, domain.GatewayConfig{
		APIKey:   cfg.Payment.StripeAPIKey,
		Endpoint: cfg.Payment.StripeEndpoint,
		Timeout:  cfg.Payment.Timeout,
	})
}
