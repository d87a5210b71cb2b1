package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/supplyvend/api/internal/domain"
)

const cardGatewaySlug = "card-gateway"

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// CardGatewayConfig configures the card PSP adapter.
type CardGatewayConfig struct {
	APIKey        string
	WebhookSecret string
	Logger        Logger
	Clock         func() time.Time
	Clients       *stripeClients
}

// CardGatewayProvider opens card payments as PSP payment intents and
// reconciles them from signed PSP webhooks.
type CardGatewayProvider struct {
	api           stripeClients
	webhookSecret string
	clock         func() time.Time
	logger        Logger
}

// NewCardGatewayProvider constructs the card adapter.
func NewCardGatewayProvider(cfg CardGatewayConfig) (*CardGatewayProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("card gateway: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, nil)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("card gateway: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger
	}

	return &CardGatewayProvider{
		api:           clients,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		clock:         func() time.Time { return clock().UTC() },
		logger:        logger,
	}, nil
}

// Initiate creates a payment intent carrying the transaction correlation
// metadata and returns the client secret for confirmation on the client.
func (p *CardGatewayProvider) Initiate(ctx context.Context, req InitiationRequest) (InitiationResult, error) {
	if p == nil {
		return InitiationResult{}, errors.New("card gateway: provider is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		Metadata: map[string]string{
			"transactionId": req.TransactionID,
			"orderId":       req.OrderID,
			"orderNumber":   req.OrderNumber,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.TransactionID)
	if email := strings.TrimSpace(req.Email); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return InitiationResult{}, fmt.Errorf("card gateway: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.card.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"transactionId": req.TransactionID,
		"amount":        intent.Amount,
	})

	return InitiationResult{
		Details: domain.ProviderDetails{
			CardGateway: &domain.CardGatewayDetails{IntentID: intent.ID},
		},
		ClientSecret: intent.ClientSecret,
		NextAction:   "confirm_card",
	}, nil
}

// Refund returns funds against the attempt's payment intent.
func (p *CardGatewayProvider) Refund(ctx context.Context, req RefundRequest) error {
	if p == nil {
		return errors.New("card gateway: provider is nil")
	}
	details := req.Details.CardGateway
	if details == nil || strings.TrimSpace(details.IntentID) == "" {
		return errors.New("card gateway: transaction has no payment intent")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(details.IntentID),
		Amount:        stripe.Int64(MinorUnits(req.Amount)),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if len(req.Reason) > 0 {
		params.Metadata = map[string]string{"reason": req.Reason}
	}

	if _, err := p.api.refunds.New(params); err != nil {
		return fmt.Errorf("card gateway: refund payment intent: %w", err)
	}
	p.logger(ctx, "payments.card.intent.refunded", map[string]any{
		"paymentIntent": details.IntentID,
		"transactionId": req.TransactionID,
	})
	return nil
}

// ParseWebhook verifies and normalises a PSP event. With a webhook secret
// configured the signature is enforced; without one the payload is trusted,
// which is only acceptable behind the gateway in non-production setups.
func (p *CardGatewayProvider) ParseWebhook(ctx context.Context, body []byte, signature string) (WebhookEvent, error) {
	if p == nil {
		return WebhookEvent{}, errors.New("card gateway: provider is nil")
	}

	var event stripe.Event
	if p.webhookSecret != "" {
		verified, err := webhook.ConstructEvent(body, signature, p.webhookSecret)
		if err != nil {
			return WebhookEvent{}, fmt.Errorf("card gateway: verify webhook: %w", err)
		}
		event = verified
	} else if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("card gateway: decode webhook: %w", err)
	}

	var intent stripe.PaymentIntent
	if event.Data != nil && len(event.Data.Raw) > 0 {
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("card gateway: decode payment intent: %w", err)
		}
	}

	out := WebhookEvent{
		Provider:          cardGatewaySlug,
		EventID:           event.ID,
		Event:             string(event.Type),
		Status:            cardEventStatus(event.Type),
		TransactionID:     intent.Metadata["transactionId"],
		MerchantReference: intent.ID,
	}
	if intent.LastPaymentError != nil {
		out.FailureReason = intent.LastPaymentError.Msg
	}
	if charge := intent.LatestCharge; charge != nil {
		out.ReceiptNumber = charge.ID
	}
	return out, nil
}

func cardEventStatus(eventType stripe.EventType) Status {
	switch eventType {
	case "payment_intent.succeeded":
		return StatusSuccess
	case "payment_intent.payment_failed", "payment_intent.canceled":
		return StatusFailure
	case "payment_intent.processing", "payment_intent.requires_action", "payment_intent.created":
		return StatusPending
	default:
		return StatusUnknown
	}
}
