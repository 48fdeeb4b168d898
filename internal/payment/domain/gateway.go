package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the payment port. Implementations must pass the idempotency key
// through to the processor so a repeated charge is deduplicated upstream.
type Gateway interface {
	Provider() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

type ChargeRequest struct {
	Amount          decimal.Decimal
	Currency        string
	MethodReference string
	IdempotencyKey  string
	Description     string
	Metadata        map[string]string
}

type ChargeResult struct {
	Reference       string
	IntentReference string
	Method          string
}

type RefundRequest struct {
	ChargeReference string
	Amount          decimal.Decimal
	Currency        string
	IdempotencyKey  string
	Reason          string
}

type RefundResult struct {
	Reference string
}

// GatewayFactory builds a Gateway for one provider, mirroring the adapter
// registry pattern used for supplier clients.
type GatewayFactory interface {
	Provider() string
	NewGateway(cfg GatewayConfig) (Gateway, error)
}

type GatewayConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}
