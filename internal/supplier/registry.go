// Package supplier resolves supplier codes to port implementations. Clients
// are built once at startup; an unresolved code is a typed error, never a
// runtime lookup surprise.
package supplier

import (
	"strings"
	"sync"

	"github.com/openrental/reserva/internal/supplier/domain"
)

type Registry struct {
	mu      sync.RWMutex
	clients map[string]domain.Client
}

func NewRegistry(clients ...domain.Client) *Registry {
	registry := &Registry{clients: map[string]domain.Client{}}
	for _, client := range clients {
		if client == nil {
			continue
		}
		code := strings.ToLower(strings.TrimSpace(client.Code()))
		if code == "" {
			continue
		}
		registry.clients[code] = client
	}
	return registry
}

func (r *Registry) Register(client domain.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[strings.ToLower(strings.TrimSpace(client.Code()))] = client
}

// Resolve returns the client registered for code.
func (r *Registry) Resolve(code string) (domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, domain.ErrUnknownSupplier
	}
	return client, nil
}

func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.clients))
	for code := range r.clients {
		codes = append(codes, code)
	}
	return codes
}
