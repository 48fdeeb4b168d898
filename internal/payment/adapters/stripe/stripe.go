// Package stripe implements the payment gateway port against the Stripe
// HTTP API directly; the surface needed here is small enough that the
// vendor SDK would be dead weight.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
	"github.com/shopspring/decimal"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewGateway(cfg paymentdomain.GatewayConfig) (paymentdomain.Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://api.stripe.com"
	}

	return &Gateway{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type Gateway struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func (g *Gateway) Provider() string { return "stripe" }

func (g *Gateway) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", minorUnits(req.Amount))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("payment_method", req.MethodReference)
	form.Set("confirm", "true")
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("automatic_payment_methods[allow_redirects]", "never")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	for key, value := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	var intent paymentIntent
	if err := g.post(ctx, "/v1/payment_intents", req.IdempotencyKey, form, &intent); err != nil {
		return nil, err
	}

	if intent.Status != "succeeded" {
		return nil, &paymentdomain.DeclinedError{
			Code:    intent.Status,
			Message: fmt.Sprintf("payment intent %s not captured", intent.ID),
		}
	}

	return &paymentdomain.ChargeResult{
		Reference:       intent.LatestCharge,
		IntentReference: intent.ID,
		Method:          intent.PaymentMethodType(),
	}, nil
}

func (g *Gateway) Refund(ctx context.Context, req paymentdomain.RefundRequest) (*paymentdomain.RefundResult, error) {
	form := url.Values{}
	form.Set("charge", req.ChargeReference)
	form.Set("amount", minorUnits(req.Amount))
	if req.Reason != "" {
		form.Set("metadata[reason]", req.Reason)
	}

	var refund refundObject
	if err := g.post(ctx, "/v1/refunds", req.IdempotencyKey, form, &refund); err != nil {
		return nil, err
	}
	return &paymentdomain.RefundResult{Reference: refund.ID}, nil
}

func (g *Gateway) post(ctx context.Context, path, idempotencyKey string, form url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+path, strings.NewReader(form.Encode()))
	if err != nil {
		return &paymentdomain.ProcessorError{Message: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return &paymentdomain.ProcessorError{Message: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &paymentdomain.ProcessorError{Message: "read response", Err: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &paymentdomain.ProcessorError{StatusCode: resp.StatusCode, Message: "stripe unavailable"}
	}

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Type == "" {
			return &paymentdomain.ProcessorError{StatusCode: resp.StatusCode, Message: string(body)}
		}
		// card_error covers declines; everything else at 4xx means the
		// request itself is wrong, which is also terminal.
		return &paymentdomain.DeclinedError{
			Code:    apiErr.Error.Code,
			Message: apiErr.Error.Message,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &paymentdomain.ProcessorError{Message: "decode response", Err: err}
	}
	return nil
}

// minorUnits converts a 2-decimal amount to the integer cents Stripe expects.
func minorUnits(amount decimal.Decimal) string {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).String()
}

type paymentIntent struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	LatestCharge       string   `json:"latest_charge"`
	PaymentMethodTypes []string `json:"payment_method_types"`
}

func (p paymentIntent) PaymentMethodType() string {
	if len(p.PaymentMethodTypes) > 0 {
		return p.PaymentMethodTypes[0]
	}
	return ""
}

type refundObject struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
