package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	paymentdomain "github.com/openrental/reserva/internal/payment/domain"
)

func newGateway(t *testing.T, handler http.HandlerFunc) paymentdomain.Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gateway, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{
		APIKey:   "sk_test_123",
		Endpoint: srv.URL,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gateway
}

func TestChargeSendsFormAndIdempotencyKey(t *testing.T) {
	var gotKey, gotAmount, gotMethod, gotAuth string
	gateway := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_ = r.ParseForm()
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		gotAmount = r.PostForm.Get("amount")
		gotMethod = r.PostForm.Get("payment_method")
		w.Write([]byte(`{"id":"pi_1","status":"succeeded","latest_charge":"ch_1","payment_method_types":["card"]}`))
	})

	result, err := gateway.Charge(context.Background(), paymentdomain.ChargeRequest{
		Amount:          decimal.RequireFromString("179.94"),
		Currency:        "USD",
		MethodReference: "pm_card_visa",
		IdempotencyKey:  "key-1:charge",
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}

	if result.Reference != "ch_1" || result.IntentReference != "pi_1" || result.Method != "card" {
		t.Fatalf("result = %+v", result)
	}
	if gotKey != "key-1:charge" {
		t.Fatalf("idempotency key = %q", gotKey)
	}
	if gotAmount != "17994" {
		t.Fatalf("amount = %q, want minor units 17994", gotAmount)
	}
	if gotMethod != "pm_card_visa" {
		t.Fatalf("payment_method = %q", gotMethod)
	}
	if gotAuth != "Bearer sk_test_123" {
		t.Fatalf("authorization = %q", gotAuth)
	}
}

func TestChargeCardErrorIsDeclined(t *testing.T) {
	gateway := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})

	_, err := gateway.Charge(context.Background(), paymentdomain.ChargeRequest{
		Amount: decimal.RequireFromString("10.00"), Currency: "USD", MethodReference: "pm_bad",
	})
	var declined *paymentdomain.DeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("expected DeclinedError, got %v", err)
	}
	if declined.Code != "card_declined" {
		t.Fatalf("code = %s", declined.Code)
	}
}

func TestChargeServerErrorIsRetryable(t *testing.T) {
	gateway := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := gateway.Charge(context.Background(), paymentdomain.ChargeRequest{
		Amount: decimal.RequireFromString("10.00"), Currency: "USD", MethodReference: "pm_x",
	})
	var processor *paymentdomain.ProcessorError
	if !errors.As(err, &processor) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
	if processor.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", processor.StatusCode)
	}
}

func TestChargeUnconfirmedIntentIsDeclined(t *testing.T) {
	gateway := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"pi_2","status":"requires_action"}`))
	})

	_, err := gateway.Charge(context.Background(), paymentdomain.ChargeRequest{
		Amount: decimal.RequireFromString("10.00"), Currency: "USD", MethodReference: "pm_3ds",
	})
	var declined *paymentdomain.DeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("expected DeclinedError for unconfirmed intent, got %v", err)
	}
}

func TestRefund(t *testing.T) {
	gateway := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/refunds" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_ = r.ParseForm()
		if r.PostForm.Get("charge") != "ch_1" {
			t.Fatalf("charge = %q", r.PostForm.Get("charge"))
		}
		w.Write([]byte(`{"id":"re_1"}`))
	})

	result, err := gateway.Refund(context.Background(), paymentdomain.RefundRequest{
		ChargeReference: "ch_1",
		Amount:          decimal.RequireFromString("179.94"),
		Currency:        "USD",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.Reference != "re_1" {
		t.Fatalf("refund ref = %s", result.Reference)
	}
}

func TestFactoryRequiresAPIKey(t *testing.T) {
	_, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{})
	if !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
