package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates the supported payment channels.
type PaymentMethod string

const (
	PaymentMethodCardGateway  PaymentMethod = "card_gateway"
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodAltGateway   PaymentMethod = "alt_gateway"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodWireTransfer PaymentMethod = "wire_transfer"
)

// SupportedPaymentMethods lists every method accepted at initiation time.
var SupportedPaymentMethods = []PaymentMethod{
	PaymentMethodCardGateway,
	PaymentMethodMobileMoney,
	PaymentMethodAltGateway,
	PaymentMethodBankTransfer,
	PaymentMethodWireTransfer,
}

var methodPrefixes = map[PaymentMethod]string{
	PaymentMethodCardGateway:  "CRD",
	PaymentMethodMobileMoney:  "MOM",
	PaymentMethodAltGateway:   "ALT",
	PaymentMethodBankTransfer: "BNK",
	PaymentMethodWireTransfer: "WIR",
}

// Valid reports whether the method is in the supported set.
func (m PaymentMethod) Valid() bool {
	_, ok := methodPrefixes[m]
	return ok
}

// Prefix returns the 3-letter transaction id prefix for the method.
func (m PaymentMethod) Prefix() string {
	return methodPrefixes[m]
}

// ManualSettlement reports whether the method requires human-submitted
// proof and admin approval instead of automated gateway confirmation.
func (m PaymentMethod) ManualSettlement() bool {
	return m == PaymentMethodBankTransfer || m == PaymentMethodWireTransfer
}

// TransactionStatus enumerates the payment attempt lifecycle states.
type TransactionStatus string

const (
	TransactionStatusInitiated         TransactionStatus = "initiated"
	TransactionStatusPending           TransactionStatus = "pending"
	TransactionStatusProcessing        TransactionStatus = "processing"
	TransactionStatusCompleted         TransactionStatus = "completed"
	TransactionStatusFailed            TransactionStatus = "failed"
	TransactionStatusRefunded          TransactionStatus = "refunded"
	TransactionStatusPartiallyRefunded TransactionStatus = "partially_refunded"
	TransactionStatusCancelled         TransactionStatus = "cancelled"
	TransactionStatusExpired           TransactionStatus = "expired"
	TransactionStatusDisputed          TransactionStatus = "disputed"
)

// transactionStateTransitions enforces legal transaction status edges.
// The original system accepted any status after any other; this table
// tightens that while still admitting the out-of-order webhook sequences
// real gateways produce (failed followed by completed, late disputes).
var transactionStateTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusInitiated:         {TransactionStatusPending, TransactionStatusProcessing, TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled, TransactionStatusExpired},
	TransactionStatusPending:           {TransactionStatusProcessing, TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled, TransactionStatusExpired, TransactionStatusDisputed},
	TransactionStatusProcessing:        {TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled, TransactionStatusDisputed},
	TransactionStatusCompleted:         {TransactionStatusPartiallyRefunded, TransactionStatusRefunded, TransactionStatusDisputed},
	TransactionStatusFailed:            {TransactionStatusPending, TransactionStatusProcessing, TransactionStatusCompleted, TransactionStatusCancelled},
	TransactionStatusPartiallyRefunded: {TransactionStatusRefunded, TransactionStatusDisputed},
	TransactionStatusDisputed:          {TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusRefunded},
	TransactionStatusRefunded:          {},
	TransactionStatusCancelled:         {},
	TransactionStatusExpired:           {},
}

// CanTransitionTransaction reports whether the transaction status edge is
// legal. A same-status "transition" is always allowed so that duplicate
// provider notifications stay no-ops.
func CanTransitionTransaction(current, target TransactionStatus) bool {
	if current == target {
		return true
	}
	next, ok := transactionStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// CardGatewayDetails holds card PSP correlation fields. Client secrets are
// never persisted here.
type CardGatewayDetails struct {
	IntentID   string
	ChargeID   string
	CardBrand  string
	CardLast4  string
	ReceiptURL string
}

// MobileMoneyDetails holds mobile wallet push-payment fields.
type MobileMoneyDetails struct {
	PhoneNumber       string
	Network           string
	MerchantRequestID string
	CheckoutRequestID string
	ReceiptNumber     string
}

// AltGatewayDetails holds hosted-redirect gateway fields.
type AltGatewayDetails struct {
	SessionID         string
	RedirectURL       string
	MerchantReference string
}

// BankTransferDetails holds manual bank settlement fields. The Reference is
// assigned at initiation; SubmittedReference and ReceiptNumber arrive with
// the customer's proof of payment.
type BankTransferDetails struct {
	BankName           string
	AccountName        string
	AccountNumber      string
	Reference          string
	SubmittedReference string
	ReceiptNumber      string
}

// WireTransferDetails holds international wire settlement fields.
type WireTransferDetails struct {
	BeneficiaryName    string
	SwiftCode          string
	IBAN               string
	Reference          string
	SubmittedReference string
	SenderName         string
}

// ProviderDetails is a tagged union over the per-method detail blocks.
// Exactly one variant is populated, keyed by the transaction's method.
type ProviderDetails struct {
	CardGateway  *CardGatewayDetails
	MobileMoney  *MobileMoneyDetails
	AltGateway   *AltGatewayDetails
	BankTransfer *BankTransferDetails
	WireTransfer *WireTransferDetails
}

// Method returns which variant is populated, if any.
func (d ProviderDetails) Method() (PaymentMethod, bool) {
	switch {
	case d.CardGateway != nil:
		return PaymentMethodCardGateway, true
	case d.MobileMoney != nil:
		return PaymentMethodMobileMoney, true
	case d.AltGateway != nil:
		return PaymentMethodAltGateway, true
	case d.BankTransfer != nil:
		return PaymentMethodBankTransfer, true
	case d.WireTransfer != nil:
		return PaymentMethodWireTransfer, true
	}
	return "", false
}

// MerchantReference returns the provider-assigned correlation reference for
// the populated variant, used as the secondary webhook lookup key.
func (d ProviderDetails) MerchantReference() string {
	switch {
	case d.CardGateway != nil:
		return d.CardGateway.IntentID
	case d.MobileMoney != nil:
		return d.MobileMoney.CheckoutRequestID
	case d.AltGateway != nil:
		return d.AltGateway.MerchantReference
	case d.BankTransfer != nil:
		return d.BankTransfer.Reference
	case d.WireTransfer != nil:
		return d.WireTransfer.Reference
	}
	return ""
}

// RefundStatus tracks one refund entry's progress.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusFailed    RefundStatus = "failed"
)

// Refund is one refund attempt against a transaction.
type Refund struct {
	ID         string
	Amount     decimal.Decimal
	Reason     string
	Status     RefundStatus
	Actor      string
	OccurredAt time.Time
}

// WebhookLogEntry records an inbound provider notification verbatim. The
// log is append-only and retained for audit even when the notification
// matched nothing.
type WebhookLogEntry struct {
	Provider   string
	Event      string
	EventID    string
	Payload    string
	SourceIP   string
	ReceivedAt time.Time
}

// TransactionStatusEntry is one line of the append-only transaction status log.
type TransactionStatusEntry struct {
	Status     TransactionStatus
	Note       string
	Actor      string
	OccurredAt time.Time
}

// Transaction is one payment attempt against an order. An order may own
// several across retries, but normally one is active at a time.
// Transactions are never deleted.
type Transaction struct {
	ID            string
	OrderID       string
	UserID        string
	Amount        decimal.Decimal
	Currency      string
	Method        PaymentMethod
	Status        TransactionStatus
	StatusHistory []TransactionStatusEntry
	Details       ProviderDetails
	Refunds       []Refund
	TotalRefunded decimal.Decimal
	Webhooks      []WebhookLogEntry

	Verified           bool
	VerificationMethod string
	VerifiedBy         string
	VerifiedAt         *time.Time

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemainingAmount returns the refundable balance, never negative.
func (t Transaction) RemainingAmount() decimal.Decimal {
	remaining := t.Amount.Sub(t.TotalRefunded)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Expired reports whether the attempt's expiry has passed.
func (t Transaction) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}
