package supplier

import (
	"github.com/openrental/reserva/internal/config"
	"github.com/openrental/reserva/internal/supplier/adapters/localiza"
	"github.com/openrental/reserva/internal/supplier/adapters/static"
	"github.com/openrental/reserva/internal/supplier/domain"
	"github.com/openrental/reserva/internal/supplier/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("supplier",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistryFromConfig),
)

var factories = map[string]domain.ClientFactory{
	"localiza": localiza.NewFactory(),
}

// NewRegistryFromConfig builds one client per configured supplier endpoint.
// Codes without an endpoint fall back to the static sandbox vendor so local
// environments work out of the box.
func NewRegistryFromConfig(cfg config.Config, log *zap.Logger) (*Registry, error) {
	registry := NewRegistry()

	for code, endpoint := range cfg.Suppliers.Endpoints {
		factory, ok := factories[code]
		if !ok {
			log.Warn("no_client_factory_for_supplier", zap.String("supplier", code))
			continue
		}
		client, err := factory.NewClient(domain.ClientConfig{
			Code:     code,
			Endpoint: endpoint,
			APIKey:   cfg.Suppliers.APIKeys[code],
			Timeout:  cfg.Suppliers.Timeout,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(client)
	}

	if len(registry.Codes()) == 0 {
		registry.Register(static.NewClient("localiza"))
		registry.Register(static.NewClient("hertz"))
	}

	return registry, nil
}
