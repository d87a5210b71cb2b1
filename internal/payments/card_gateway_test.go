package payments

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"

	"github.com/supplyvend/api/internal/domain"
)

type stubIntentAPI struct {
	newFn func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFn func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.newFn(params)
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.getFn(id, params)
}

type stubRefundAPI struct {
	newFn func(params *stripe.RefundParams) (*stripe.Refund, error)
}

func (s *stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	return s.newFn(params)
}

func newTestCardProvider(t *testing.T, intents stripePaymentIntentAPI, refunds stripeRefundAPI) *CardGatewayProvider {
	t.Helper()
	provider, err := NewCardGatewayProvider(CardGatewayConfig{
		Clients: &stripeClients{intents: intents, refunds: refunds},
	})
	if err != nil {
		t.Fatalf("NewCardGatewayProvider: %v", err)
	}
	return provider
}

func TestCardGatewayInitiateCreatesIntent(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	intents := &stubIntentAPI{
		newFn: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			captured = params
			return &stripe.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret"}, nil
		},
	}
	provider := newTestCardProvider(t, intents, &stubRefundAPI{})

	result, err := provider.Initiate(context.Background(), InitiationRequest{
		TransactionID: "CRD-12345678-ABCD",
		OrderID:       "order-1",
		OrderNumber:   "SV-260824-0001",
		Amount:        decimal.RequireFromString("120.50"),
		Currency:      "USD",
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if captured == nil {
		t.Fatal("intent params not captured")
	}
	if got := *captured.Amount; got != 12050 {
		t.Fatalf("amount = %d", got)
	}
	if got := *captured.Currency; got != "usd" {
		t.Fatalf("currency = %q", got)
	}
	if captured.Metadata["transactionId"] != "CRD-12345678-ABCD" {
		t.Fatalf("metadata = %v", captured.Metadata)
	}

	if result.ClientSecret != "pi_123_secret" {
		t.Fatalf("client secret = %q", result.ClientSecret)
	}
	if result.Details.CardGateway == nil || result.Details.CardGateway.IntentID != "pi_123" {
		t.Fatalf("details = %+v", result.Details)
	}
	if method, _ := result.Details.Method(); method != domain.PaymentMethodCardGateway {
		t.Fatalf("details method = %s", method)
	}
}

func TestCardGatewayRefundRequiresIntent(t *testing.T) {
	provider := newTestCardProvider(t, &stubIntentAPI{}, &stubRefundAPI{})
	err := provider.Refund(context.Background(), RefundRequest{
		Amount:  decimal.RequireFromString("10.00"),
		Details: domain.ProviderDetails{},
	})
	if err == nil || !strings.Contains(err.Error(), "no payment intent") {
		t.Fatalf("expected missing intent error, got %v", err)
	}
}

func TestCardGatewayRefundSendsMinorUnits(t *testing.T) {
	var captured *stripe.RefundParams
	refunds := &stubRefundAPI{newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
		captured = params
		return &stripe.Refund{ID: "re_1"}, nil
	}}
	provider := newTestCardProvider(t, &stubIntentAPI{}, refunds)

	err := provider.Refund(context.Background(), RefundRequest{
		TransactionID: "CRD-12345678-ABCD",
		Amount:        decimal.RequireFromString("45.25"),
		Details: domain.ProviderDetails{
			CardGateway: &domain.CardGatewayDetails{IntentID: "pi_123"},
		},
	})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if captured == nil || *captured.PaymentIntent != "pi_123" {
		t.Fatalf("params = %+v", captured)
	}
	if *captured.Amount != 4525 {
		t.Fatalf("amount = %d", *captured.Amount)
	}
}

func TestCardGatewayParseWebhookMapsEventTypes(t *testing.T) {
	provider := newTestCardProvider(t, &stubIntentAPI{}, &stubRefundAPI{})

	cases := []struct {
		eventType string
		want      Status
	}{
		{"payment_intent.succeeded", StatusSuccess},
		{"payment_intent.payment_failed", StatusFailure},
		{"payment_intent.canceled", StatusFailure},
		{"payment_intent.processing", StatusPending},
		{"charge.updated", StatusUnknown},
	}

	for _, tc := range cases {
		body := []byte(`{
			"id": "evt_1",
			"type": "` + tc.eventType + `",
			"data": {"object": {"id": "pi_123", "metadata": {"transactionId": "CRD-12345678-ABCD"}}}
		}`)
		event, err := provider.ParseWebhook(context.Background(), body, "")
		if err != nil {
			t.Fatalf("ParseWebhook(%s): %v", tc.eventType, err)
		}
		if event.Status != tc.want {
			t.Errorf("%s -> %s, want %s", tc.eventType, event.Status, tc.want)
		}
		if event.TransactionID != "CRD-12345678-ABCD" {
			t.Errorf("%s transaction id = %q", tc.eventType, event.TransactionID)
		}
		if event.MerchantReference != "pi_123" {
			t.Errorf("%s merchant reference = %q", tc.eventType, event.MerchantReference)
		}
	}
}

func TestCardGatewayParseWebhookRejectsBadSignature(t *testing.T) {
	provider, err := NewCardGatewayProvider(CardGatewayConfig{
		WebhookSecret: "whsec_test",
		Clients:       &stripeClients{intents: &stubIntentAPI{}, refunds: &stubRefundAPI{}},
	})
	if err != nil {
		t.Fatalf("NewCardGatewayProvider: %v", err)
	}
	if _, err := provider.ParseWebhook(context.Background(), []byte(`{}`), "bogus"); err == nil {
		t.Fatal("expected signature verification error")
	}
}
