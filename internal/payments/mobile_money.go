package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/supplyvend/api/internal/domain"
)

const mobileMoneySlug = "mobile-money"

// MobileMoneyConfig configures the mobile wallet push-payment adapter.
type MobileMoneyConfig struct {
	ShortCode string
	Logger    Logger
	NewID     func() string
}

// MobileMoneyProvider opens wallet push requests against the configured
// paybill short code. The wallet network confirms or rejects the push via
// callback; there is no client-side confirmation step.
type MobileMoneyProvider struct {
	shortCode string
	logger    Logger
	newID     func() string
}

// NewMobileMoneyProvider constructs the mobile money adapter.
func NewMobileMoneyProvider(cfg MobileMoneyConfig) (*MobileMoneyProvider, error) {
	shortCode := strings.TrimSpace(cfg.ShortCode)
	if shortCode == "" {
		return nil, errors.New("mobile money: short code is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &MobileMoneyProvider{shortCode: shortCode, logger: logger, newID: newID}, nil
}

// Initiate opens a push request to the customer's wallet.
func (p *MobileMoneyProvider) Initiate(ctx context.Context, req InitiationRequest) (InitiationResult, error) {
	if p == nil {
		return InitiationResult{}, errors.New("mobile money: provider is nil")
	}
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		return InitiationResult{}, errors.New("mobile money: phone number is required")
	}

	details := &domain.MobileMoneyDetails{
		PhoneNumber:       phone,
		MerchantRequestID: p.newID(),
		CheckoutRequestID: p.newID(),
	}

	p.logger(ctx, "payments.mobile.push.requested", map[string]any{
		"transactionId":     req.TransactionID,
		"checkoutRequestId": details.CheckoutRequestID,
		"shortCode":         p.shortCode,
	})

	return InitiationResult{
		Details:    domain.ProviderDetails{MobileMoney: details},
		NextAction: "approve_push",
		Instructions: map[string]string{
			"shortCode": p.shortCode,
			"prompt":    "Approve the payment request on your phone",
		},
	}, nil
}

type mobileMoneyCallback struct {
	EventID           string `json:"eventId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	TransactionID     string `json:"transactionId"`
	ResultCode        *int   `json:"resultCode"`
	ResultDesc        string `json:"resultDesc"`
	ReceiptNumber     string `json:"receiptNumber"`
}

// ParseWebhook normalises a wallet network callback. Result code zero means
// the customer approved the push; any other code is a failure. Callbacks
// without a result code are still in flight.
func (p *MobileMoneyProvider) ParseWebhook(ctx context.Context, body []byte, _ string) (WebhookEvent, error) {
	var callback mobileMoneyCallback
	if err := json.Unmarshal(body, &callback); err != nil {
		return WebhookEvent{}, fmt.Errorf("mobile money: decode callback: %w", err)
	}

	status := StatusPending
	failureReason := ""
	if callback.ResultCode != nil {
		if *callback.ResultCode == 0 {
			status = StatusSuccess
		} else {
			status = StatusFailure
			failureReason = callback.ResultDesc
		}
	}

	return WebhookEvent{
		Provider:          mobileMoneySlug,
		EventID:           callback.EventID,
		Event:             "push_result",
		Status:            status,
		TransactionID:     callback.TransactionID,
		MerchantReference: callback.CheckoutRequestID,
		ReceiptNumber:     callback.ReceiptNumber,
		FailureReason:     failureReason,
	}, nil
}
