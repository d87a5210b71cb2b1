package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/supplyvend/api/internal/domain"
)

// Status enumerates the normalised notification states shared across
// providers. Anything a provider reports outside the first three buckets
// collapses to StatusUnknown.
type Status string

const (
	// StatusSuccess indicates the provider reports the payment as captured.
	StatusSuccess Status = "success"
	// StatusFailure indicates the provider reports a terminal failure.
	StatusFailure Status = "failure"
	// StatusPending indicates the payment is awaiting customer action or
	// provider confirmation.
	StatusPending Status = "pending"
	// StatusUnknown covers provider vocabulary outside the mapped set.
	StatusUnknown Status = "unknown"
)

// TransactionStatus maps the normalised notification state onto the
// transaction lifecycle vocabulary. Unknown states park the transaction in
// processing rather than guessing an outcome.
func (s Status) TransactionStatus() domain.TransactionStatus {
	switch s {
	case StatusSuccess:
		return domain.TransactionStatusCompleted
	case StatusFailure:
		return domain.TransactionStatusFailed
	case StatusPending:
		return domain.TransactionStatusPending
	default:
		return domain.TransactionStatusProcessing
	}
}

// ErrUnsupportedMethod is returned when the manager cannot locate an
// initializer for a payment method.
var ErrUnsupportedMethod = errors.New("payments: unsupported payment method")

// ErrUnknownProvider is returned when a webhook names a provider slug with
// no registered parser.
var ErrUnknownProvider = errors.New("payments: unknown provider")

// ErrRefundUnsupported is returned when the method's provider cannot issue
// gateway refunds and the refund must be settled out of band.
var ErrRefundUnsupported = errors.New("payments: provider does not support gateway refunds")

// InitiationRequest carries everything an adapter needs to open a payment
// attempt with its provider.
type InitiationRequest struct {
	TransactionID string
	OrderID       string
	OrderNumber   string
	UserID        string
	Amount        decimal.Decimal
	Currency      string
	Email         string
	PhoneNumber   string
	ReturnURL     string
	ExpiresAt     time.Time
}

// InitiationResult is what an adapter hands back after opening the attempt.
// Details carries the provider correlation block persisted on the
// transaction; the remaining fields are surfaced to the client.
type InitiationResult struct {
	Details      domain.ProviderDetails
	ClientSecret string
	RedirectURL  string
	Instructions map[string]string
	NextAction   string
}

// RefundRequest asks a provider to return funds for a completed attempt.
type RefundRequest struct {
	TransactionID  string
	Details        domain.ProviderDetails
	Amount         decimal.Decimal
	Currency       string
	Reason         string
	IdempotencyKey string
}

// WebhookEvent is a provider notification normalised for reconciliation.
// TransactionID and MerchantReference are the two correlation keys; either
// may be empty depending on what the provider echoes back.
type WebhookEvent struct {
	Provider          string
	EventID           string
	Event             string
	Status            Status
	TransactionID     string
	MerchantReference string
	ReceiptNumber     string
	FailureReason     string
}

// Initializer opens a payment attempt with one provider.
type Initializer interface {
	Initiate(ctx context.Context, req InitiationRequest) (InitiationResult, error)
}

// Refunder issues a gateway refund. Adapters without refund APIs simply do
// not implement it.
type Refunder interface {
	Refund(ctx context.Context, req RefundRequest) error
}

// WebhookParser decodes and verifies one provider's notification payload.
// signature carries the provider's signature header verbatim and may be
// empty for providers that do not sign.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, body []byte, signature string) (WebhookEvent, error)
}

// Registration binds a payment method to its adapter and the URL slug its
// webhooks arrive under.
type Registration struct {
	Method      domain.PaymentMethod
	Slug        string
	Initializer Initializer
}

// Manager routes initiation, webhook parsing, and refunds to the adapter
// registered for each payment method.
type Manager struct {
	initializers map[domain.PaymentMethod]Initializer
	bySlug       map[string]Registration
}

// NewManager constructs a Manager over the supplied registrations.
func NewManager(regs []Registration) (*Manager, error) {
	if len(regs) == 0 {
		return nil, errors.New("payments: at least one registration is required")
	}
	m := &Manager{
		initializers: make(map[domain.PaymentMethod]Initializer, len(regs)),
		bySlug:       make(map[string]Registration, len(regs)),
	}
	for _, reg := range regs {
		if !reg.Method.Valid() || reg.Initializer == nil {
			return nil, fmt.Errorf("payments: invalid registration for method %q", reg.Method)
		}
		if _, dup := m.initializers[reg.Method]; dup {
			return nil, fmt.Errorf("payments: duplicate registration for method %q", reg.Method)
		}
		m.initializers[reg.Method] = reg.Initializer
		slug := strings.ToLower(strings.TrimSpace(reg.Slug))
		if slug != "" {
			if _, dup := m.bySlug[slug]; dup {
				return nil, fmt.Errorf("payments: duplicate slug %q", slug)
			}
			m.bySlug[slug] = reg
		}
	}
	return m, nil
}

// Initiate opens an attempt via the method's adapter.
func (m *Manager) Initiate(ctx context.Context, method domain.PaymentMethod, req InitiationRequest) (InitiationResult, error) {
	init, ok := m.initializers[method]
	if !ok {
		return InitiationResult{}, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return init.Initiate(ctx, req)
}

// ParseWebhook decodes a notification addressed to the given provider slug.
func (m *Manager) ParseWebhook(ctx context.Context, slug string, body []byte, signature string) (WebhookEvent, error) {
	reg, ok := m.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return WebhookEvent{}, fmt.Errorf("%w: %s", ErrUnknownProvider, slug)
	}
	parser, ok := reg.Initializer.(WebhookParser)
	if !ok {
		return WebhookEvent{}, fmt.Errorf("%w: %s", ErrUnknownProvider, slug)
	}
	event, err := parser.ParseWebhook(ctx, body, signature)
	if err != nil {
		return WebhookEvent{}, err
	}
	if event.Provider == "" {
		event.Provider = reg.Slug
	}
	return event, nil
}

// Refund issues a gateway refund via the method's adapter when it supports
// one.
func (m *Manager) Refund(ctx context.Context, method domain.PaymentMethod, req RefundRequest) error {
	init, ok := m.initializers[method]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	refunder, ok := init.(Refunder)
	if !ok {
		return ErrRefundUnsupported
	}
	return refunder.Refund(ctx, req)
}

// MinorUnits converts a two-place decimal amount into integer minor units.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Logger defines the logging contract adapters use for provider calls.
type Logger func(ctx context.Context, event string, fields map[string]any)

func nopLogger(context.Context, string, map[string]any) {}
