package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/supplyvend/api/internal/domain"
	pfirestore "github.com/supplyvend/api/internal/platform/firestore"
)

const transactionsCollection = "transactions"

type cardGatewayDocument struct {
	IntentID   string `firestore:"intentId,omitempty"`
	ChargeID   string `firestore:"chargeId,omitempty"`
	CardBrand  string `firestore:"cardBrand,omitempty"`
	CardLast4  string `firestore:"cardLast4,omitempty"`
	ReceiptURL string `firestore:"receiptUrl,omitempty"`
}

type mobileMoneyDocument struct {
	PhoneNumber       string `firestore:"phoneNumber,omitempty"`
	Network           string `firestore:"network,omitempty"`
	MerchantRequestID string `firestore:"merchantRequestId,omitempty"`
	CheckoutRequestID string `firestore:"checkoutRequestId,omitempty"`
	ReceiptNumber     string `firestore:"receiptNumber,omitempty"`
}

type altGatewayDocument struct {
	SessionID         string `firestore:"sessionId,omitempty"`
	RedirectURL       string `firestore:"redirectUrl,omitempty"`
	MerchantReference string `firestore:"merchantReference,omitempty"`
}

type bankTransferDocument struct {
	BankName           string `firestore:"bankName,omitempty"`
	AccountName        string `firestore:"accountName,omitempty"`
	AccountNumber      string `firestore:"accountNumber,omitempty"`
	Reference          string `firestore:"reference,omitempty"`
	SubmittedReference string `firestore:"submittedReference,omitempty"`
	ReceiptNumber      string `firestore:"receiptNumber,omitempty"`
}

type wireTransferDocument struct {
	BeneficiaryName    string `firestore:"beneficiaryName,omitempty"`
	SwiftCode          string `firestore:"swiftCode,omitempty"`
	IBAN               string `firestore:"iban,omitempty"`
	Reference          string `firestore:"reference,omitempty"`
	SubmittedReference string `firestore:"submittedReference,omitempty"`
	SenderName         string `firestore:"senderName,omitempty"`
}

type refundDocument struct {
	ID         string    `firestore:"id"`
	Amount     string    `firestore:"amount"`
	Reason     string    `firestore:"reason,omitempty"`
	Status     string    `firestore:"status"`
	Actor      string    `firestore:"actor,omitempty"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

type webhookLogDocument struct {
	Provider   string    `firestore:"provider"`
	Event      string    `firestore:"event,omitempty"`
	EventID    string    `firestore:"eventId,omitempty"`
	Payload    string    `firestore:"payload,omitempty"`
	SourceIP   string    `firestore:"sourceIp,omitempty"`
	ReceivedAt time.Time `firestore:"receivedAt"`
}

type transactionStatusDocument struct {
	Status     string    `firestore:"status"`
	Note       string    `firestore:"note,omitempty"`
	Actor      string    `firestore:"actor,omitempty"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

type transactionDocument struct {
	OrderID       string                      `firestore:"orderId"`
	UserID        string                      `firestore:"userId"`
	Amount        string                      `firestore:"amount"`
	Currency      string                      `firestore:"currency"`
	Method        string                      `firestore:"method"`
	Status        string                      `firestore:"status"`
	StatusHistory []transactionStatusDocument `firestore:"statusHistory"`

	// merchantReference duplicates the populated detail block's correlation
	// key so webhook lookups stay a single indexed query.
	MerchantReference string `firestore:"merchantReference,omitempty"`

	CardGateway  *cardGatewayDocument  `firestore:"cardGateway,omitempty"`
	MobileMoney  *mobileMoneyDocument  `firestore:"mobileMoney,omitempty"`
	AltGateway   *altGatewayDocument   `firestore:"altGateway,omitempty"`
	BankTransfer *bankTransferDocument `firestore:"bankTransfer,omitempty"`
	WireTransfer *wireTransferDocument `firestore:"wireTransfer,omitempty"`

	Refunds       []refundDocument     `firestore:"refunds"`
	TotalRefunded string               `firestore:"totalRefunded"`
	Webhooks      []webhookLogDocument `firestore:"webhooks"`

	Verified           bool       `firestore:"verified"`
	VerificationMethod string     `firestore:"verificationMethod,omitempty"`
	VerifiedBy         string     `firestore:"verifiedBy,omitempty"`
	VerifiedAt         *time.Time `firestore:"verifiedAt,omitempty"`

	ExpiresAt time.Time `firestore:"expiresAt"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// TransactionRepository implements repositories.TransactionRepository on
// Firestore.
type TransactionRepository struct {
	provider *pfirestore.Provider
}

// NewTransactionRepository constructs a Firestore-backed transaction repository.
func NewTransactionRepository(provider *pfirestore.Provider) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	return &TransactionRepository{provider: provider}, nil
}

// Insert creates the transaction document, failing on duplicate ids.
func (r *TransactionRepository) Insert(ctx context.Context, tx domain.Transaction) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(tx.ID)
	if id == "" {
		return errors.New("transaction insert: id is required")
	}
	if _, err := client.Collection(transactionsCollection).Doc(id).Create(ctx, newTransactionDocument(tx)); err != nil {
		return pfirestore.WrapError("transactions.insert", err)
	}
	return nil
}

// Update overwrites the transaction document.
func (r *TransactionRepository) Update(ctx context.Context, tx domain.Transaction) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(tx.ID)
	if id == "" {
		return errors.New("transaction update: id is required")
	}
	if _, err := client.Collection(transactionsCollection).Doc(id).Set(ctx, newTransactionDocument(tx)); err != nil {
		return pfirestore.WrapError("transactions.update", err)
	}
	return nil
}

// FindByID loads one transaction document.
func (r *TransactionRepository) FindByID(ctx context.Context, transactionID string) (domain.Transaction, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	id := strings.TrimSpace(transactionID)
	if id == "" {
		return domain.Transaction{}, pfirestore.NewNotFound("transactions.findById", errors.New("transaction id is required"))
	}
	snap, err := client.Collection(transactionsCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.Transaction{}, pfirestore.WrapError("transactions.findById", err)
	}
	return decodeTransactionSnapshot(snap)
}

// FindByMerchantReference resolves a transaction by the provider-assigned
// correlation reference.
func (r *TransactionRepository) FindByMerchantReference(ctx context.Context, reference string) (domain.Transaction, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return domain.Transaction{}, pfirestore.NewNotFound("transactions.findByMerchantReference", errors.New("reference is required"))
	}

	iter := client.Collection(transactionsCollection).Where("merchantReference", "==", ref).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Transaction{}, pfirestore.NewNotFound("transactions.findByMerchantReference",
			fmt.Errorf("transaction with reference %s not found", ref))
	}
	if err != nil {
		return domain.Transaction{}, pfirestore.WrapError("transactions.findByMerchantReference", err)
	}
	return decodeTransactionSnapshot(snap)
}

// ListByOrder returns every payment attempt for the order, oldest first.
func (r *TransactionRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Transaction, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(transactionsCollection).
		Where("orderId", "==", strings.TrimSpace(orderID)).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.Transaction
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("transactions.listByOrder", err)
		}
		tx, err := decodeTransactionSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func newTransactionDocument(tx domain.Transaction) transactionDocument {
	doc := transactionDocument{
		OrderID:            tx.OrderID,
		UserID:             tx.UserID,
		Amount:             encodeAmount(tx.Amount),
		Currency:           tx.Currency,
		Method:             string(tx.Method),
		Status:             string(tx.Status),
		MerchantReference:  tx.Details.MerchantReference(),
		TotalRefunded:      encodeAmount(tx.TotalRefunded),
		Verified:           tx.Verified,
		VerificationMethod: tx.VerificationMethod,
		VerifiedBy:         tx.VerifiedBy,
		VerifiedAt:         optionalTime(tx.VerifiedAt),
		ExpiresAt:          tx.ExpiresAt.UTC(),
		CreatedAt:          tx.CreatedAt.UTC(),
		UpdatedAt:          tx.UpdatedAt.UTC(),
	}

	if d := tx.Details.CardGateway; d != nil {
		doc.CardGateway = &cardGatewayDocument{
			IntentID:   d.IntentID,
			ChargeID:   d.ChargeID,
			CardBrand:  d.CardBrand,
			CardLast4:  d.CardLast4,
			ReceiptURL: d.ReceiptURL,
		}
	}
	if d := tx.Details.MobileMoney; d != nil {
		doc.MobileMoney = &mobileMoneyDocument{
			PhoneNumber:       d.PhoneNumber,
			Network:           d.Network,
			MerchantRequestID: d.MerchantRequestID,
			CheckoutRequestID: d.CheckoutRequestID,
			ReceiptNumber:     d.ReceiptNumber,
		}
	}
	if d := tx.Details.AltGateway; d != nil {
		doc.AltGateway = &altGatewayDocument{
			SessionID:         d.SessionID,
			RedirectURL:       d.RedirectURL,
			MerchantReference: d.MerchantReference,
		}
	}
	if d := tx.Details.BankTransfer; d != nil {
		doc.BankTransfer = &bankTransferDocument{
			BankName:           d.BankName,
			AccountName:        d.AccountName,
			AccountNumber:      d.AccountNumber,
			Reference:          d.Reference,
			SubmittedReference: d.SubmittedReference,
			ReceiptNumber:      d.ReceiptNumber,
		}
	}
	if d := tx.Details.WireTransfer; d != nil {
		doc.WireTransfer = &wireTransferDocument{
			BeneficiaryName:    d.BeneficiaryName,
			SwiftCode:          d.SwiftCode,
			IBAN:               d.IBAN,
			Reference:          d.Reference,
			SubmittedReference: d.SubmittedReference,
			SenderName:         d.SenderName,
		}
	}

	doc.StatusHistory = make([]transactionStatusDocument, 0, len(tx.StatusHistory))
	for _, entry := range tx.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, transactionStatusDocument{
			Status:     string(entry.Status),
			Note:       entry.Note,
			Actor:      entry.Actor,
			OccurredAt: entry.OccurredAt.UTC(),
		})
	}

	doc.Refunds = make([]refundDocument, 0, len(tx.Refunds))
	for _, refund := range tx.Refunds {
		doc.Refunds = append(doc.Refunds, refundDocument{
			ID:         refund.ID,
			Amount:     encodeAmount(refund.Amount),
			Reason:     refund.Reason,
			Status:     string(refund.Status),
			Actor:      refund.Actor,
			OccurredAt: refund.OccurredAt.UTC(),
		})
	}

	doc.Webhooks = make([]webhookLogDocument, 0, len(tx.Webhooks))
	for _, hook := range tx.Webhooks {
		doc.Webhooks = append(doc.Webhooks, webhookLogDocument{
			Provider:   hook.Provider,
			Event:      hook.Event,
			EventID:    hook.EventID,
			Payload:    hook.Payload,
			SourceIP:   hook.SourceIP,
			ReceivedAt: hook.ReceivedAt.UTC(),
		})
	}

	return doc
}

func decodeTransactionSnapshot(snap *firestore.DocumentSnapshot) (domain.Transaction, error) {
	var doc transactionDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode transaction %s: %w", snap.Ref.ID, err)
	}

	amount, err := decodeAmount(doc.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}
	totalRefunded, err := decodeAmount(doc.TotalRefunded)
	if err != nil {
		return domain.Transaction{}, err
	}

	tx := domain.Transaction{
		ID:                 snap.Ref.ID,
		OrderID:            doc.OrderID,
		UserID:             doc.UserID,
		Amount:             amount,
		Currency:           doc.Currency,
		Method:             domain.PaymentMethod(doc.Method),
		Status:             domain.TransactionStatus(doc.Status),
		TotalRefunded:      totalRefunded,
		Verified:           doc.Verified,
		VerificationMethod: doc.VerificationMethod,
		VerifiedBy:         doc.VerifiedBy,
		VerifiedAt:         doc.VerifiedAt,
		ExpiresAt:          doc.ExpiresAt,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}

	if d := doc.CardGateway; d != nil {
		tx.Details.CardGateway = &domain.CardGatewayDetails{
			IntentID:   d.IntentID,
			ChargeID:   d.ChargeID,
			CardBrand:  d.CardBrand,
			CardLast4:  d.CardLast4,
			ReceiptURL: d.ReceiptURL,
		}
	}
	if d := doc.MobileMoney; d != nil {
		tx.Details.MobileMoney = &domain.MobileMoneyDetails{
			PhoneNumber:       d.PhoneNumber,
			Network:           d.Network,
			MerchantRequestID: d.MerchantRequestID,
			CheckoutRequestID: d.CheckoutRequestID,
			ReceiptNumber:     d.ReceiptNumber,
		}
	}
	if d := doc.AltGateway; d != nil {
		tx.Details.AltGateway = &domain.AltGatewayDetails{
			SessionID:         d.SessionID,
			RedirectURL:       d.RedirectURL,
			MerchantReference: d.MerchantReference,
		}
	}
	if d := doc.BankTransfer; d != nil {
		tx.Details.BankTransfer = &domain.BankTransferDetails{
			BankName:           d.BankName,
			AccountName:        d.AccountName,
			AccountNumber:      d.AccountNumber,
			Reference:          d.Reference,
			SubmittedReference: d.SubmittedReference,
			ReceiptNumber:      d.ReceiptNumber,
		}
	}
	if d := doc.WireTransfer; d != nil {
		tx.Details.WireTransfer = &domain.WireTransferDetails{
			BeneficiaryName:    d.BeneficiaryName,
			SwiftCode:          d.SwiftCode,
			IBAN:               d.IBAN,
			Reference:          d.Reference,
			SubmittedReference: d.SubmittedReference,
			SenderName:         d.SenderName,
		}
	}

	tx.StatusHistory = make([]domain.TransactionStatusEntry, 0, len(doc.StatusHistory))
	for _, entry := range doc.StatusHistory {
		tx.StatusHistory = append(tx.StatusHistory, domain.TransactionStatusEntry{
			Status:     domain.TransactionStatus(entry.Status),
			Note:       entry.Note,
			Actor:      entry.Actor,
			OccurredAt: entry.OccurredAt,
		})
	}

	tx.Refunds = make([]domain.Refund, 0, len(doc.Refunds))
	for _, refund := range doc.Refunds {
		refundAmount, err := decodeAmount(refund.Amount)
		if err != nil {
			return domain.Transaction{}, err
		}
		tx.Refunds = append(tx.Refunds, domain.Refund{
			ID:         refund.ID,
			Amount:     refundAmount,
			Reason:     refund.Reason,
			Status:     domain.RefundStatus(refund.Status),
			Actor:      refund.Actor,
			OccurredAt: refund.OccurredAt,
		})
	}

	tx.Webhooks = make([]domain.WebhookLogEntry, 0, len(doc.Webhooks))
	for _, hook := range doc.Webhooks {
		tx.Webhooks = append(tx.Webhooks, domain.WebhookLogEntry{
			Provider:   hook.Provider,
			Event:      hook.Event,
			EventID:    hook.EventID,
			Payload:    hook.Payload,
			SourceIP:   hook.SourceIP,
			ReceivedAt: hook.ReceivedAt,
		})
	}

	return tx, nil
}
