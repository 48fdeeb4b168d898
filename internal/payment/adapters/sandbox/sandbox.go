// Package sandbox is a deterministic in-process payment gateway for local
// development. Method references starting with "decline" are declined;
// "flaky" fails once per key then succeeds.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"

	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "sandbox"
}

func (f *Factory) NewGateway(paymentdomain.GatewayConfig) (paymentdomain.Gateway, error) {
	return &Gateway{seen: map[string]bool{}}, nil
}

type Gateway struct {
	mu   sync.Mutex
	seen map[string]bool
	seq  int
}

func (g *Gateway) Provider() string { return "sandbox" }

func (g *Gateway) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case strings.HasPrefix(req.MethodReference, "decline"):
		return nil, &paymentdomain.DeclinedError{Code: "card_declined", Message: "sandbox decline"}
	case strings.HasPrefix(req.MethodReference, "flaky") && !g.seen[req.IdempotencyKey]:
		g.seen[req.IdempotencyKey] = true
		return nil, &paymentdomain.ProcessorError{Message: "sandbox transient failure"}
	}

	g.seq++
	return &paymentdomain.ChargeResult{
		Reference:       fmt.Sprintf("sbx_ch_%06d", g.seq),
		IntentReference: fmt.Sprintf("sbx_pi_%06d", g.seq),
		Method:          "card",
	}, nil
}

func (g *Gateway) Refund(ctx context.Context, req paymentdomain.RefundRequest) (*paymentdomain.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return &paymentdomain.RefundResult{Reference: fmt.Sprintf("sbx_re_%06d", g.seq)}, nil
}
