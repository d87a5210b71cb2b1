package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/supplyvend/api/internal/domain"
)

const altGatewaySlug = "alt-gateway"

// AltGatewayConfig configures the hosted-redirect gateway adapter.
type AltGatewayConfig struct {
	BaseURL string
	Logger  Logger
	NewID   func() string
}

// AltGatewayProvider opens hosted checkout sessions. The customer completes
// payment on the gateway's page and the outcome arrives as a webhook keyed
// by the merchant reference.
type AltGatewayProvider struct {
	baseURL string
	logger  Logger
	newID   func() string
}

// NewAltGatewayProvider constructs the hosted-redirect adapter.
func NewAltGatewayProvider(cfg AltGatewayConfig) (*AltGatewayProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("alt gateway: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("alt gateway: invalid base url: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &AltGatewayProvider{baseURL: baseURL, logger: logger, newID: newID}, nil
}

// Initiate opens a hosted session and returns the redirect URL.
func (p *AltGatewayProvider) Initiate(ctx context.Context, req InitiationRequest) (InitiationResult, error) {
	if p == nil {
		return InitiationResult{}, errors.New("alt gateway: provider is nil")
	}

	sessionID := p.newID()
	reference := "AG-" + strings.ToUpper(strings.ReplaceAll(p.newID(), "-", "")[:12])

	redirect := fmt.Sprintf("%s/pay/%s?amount=%s&currency=%s&return=%s",
		p.baseURL, sessionID, req.Amount.StringFixed(2), strings.ToUpper(req.Currency),
		url.QueryEscape(req.ReturnURL))

	p.logger(ctx, "payments.alt.session.created", map[string]any{
		"transactionId":     req.TransactionID,
		"sessionId":         sessionID,
		"merchantReference": reference,
	})

	return InitiationResult{
		Details: domain.ProviderDetails{
			AltGateway: &domain.AltGatewayDetails{
				SessionID:         sessionID,
				RedirectURL:       redirect,
				MerchantReference: reference,
			},
		},
		RedirectURL: redirect,
		NextAction:  "redirect",
	}, nil
}

type altGatewayNotification struct {
	ID                string `json:"id"`
	Event             string `json:"event"`
	SessionID         string `json:"sessionId"`
	MerchantReference string `json:"merchantReference"`
	TransactionID     string `json:"transactionId"`
	Status            string `json:"status"`
	Reason            string `json:"reason"`
	Receipt           string `json:"receipt"`
}

// ParseWebhook normalises a hosted-gateway notification.
func (p *AltGatewayProvider) ParseWebhook(ctx context.Context, body []byte, _ string) (WebhookEvent, error) {
	var note altGatewayNotification
	if err := json.Unmarshal(body, &note); err != nil {
		return WebhookEvent{}, fmt.Errorf("alt gateway: decode notification: %w", err)
	}

	var status Status
	switch strings.ToLower(strings.TrimSpace(note.Status)) {
	case "success", "completed", "paid":
		status = StatusSuccess
	case "failed", "declined", "cancelled":
		status = StatusFailure
	case "pending", "open":
		status = StatusPending
	default:
		status = StatusUnknown
	}

	return WebhookEvent{
		Provider:          altGatewaySlug,
		EventID:           note.ID,
		Event:             note.Event,
		Status:            status,
		TransactionID:     note.TransactionID,
		MerchantReference: note.MerchantReference,
		ReceiptNumber:     note.Receipt,
		FailureReason:     note.Reason,
	}, nil
}
