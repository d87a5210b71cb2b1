package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/supplyvend/api/internal/domain"
)

// BankTransferConfig carries the static account details shown to customers
// choosing domestic bank settlement.
type BankTransferConfig struct {
	BankName      string
	AccountName   string
	AccountNumber string
	NewID         func() string
}

// BankTransferProvider issues settlement references for domestic bank
// transfers. There is no gateway: the customer submits proof of payment and
// an administrator verifies it.
type BankTransferProvider struct {
	bankName      string
	accountName   string
	accountNumber string
	newID         func() string
}

// NewBankTransferProvider constructs the bank transfer adapter.
func NewBankTransferProvider(cfg BankTransferConfig) (*BankTransferProvider, error) {
	if strings.TrimSpace(cfg.BankName) == "" || strings.TrimSpace(cfg.AccountNumber) == "" {
		return nil, errors.New("bank transfer: bank name and account number are required")
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &BankTransferProvider{
		bankName:      strings.TrimSpace(cfg.BankName),
		accountName:   strings.TrimSpace(cfg.AccountName),
		accountNumber: strings.TrimSpace(cfg.AccountNumber),
		newID:         newID,
	}, nil
}

// Initiate assigns the settlement reference and returns transfer
// instructions for display.
func (p *BankTransferProvider) Initiate(ctx context.Context, req InitiationRequest) (InitiationResult, error) {
	if p == nil {
		return InitiationResult{}, errors.New("bank transfer: provider is nil")
	}
	reference := manualReference("BT", req.OrderNumber, p.newID)

	return InitiationResult{
		Details: domain.ProviderDetails{
			BankTransfer: &domain.BankTransferDetails{
				BankName:      p.bankName,
				AccountName:   p.accountName,
				AccountNumber: p.accountNumber,
				Reference:     reference,
			},
		},
		NextAction: "manual_transfer",
		Instructions: map[string]string{
			"bankName":      p.bankName,
			"accountName":   p.accountName,
			"accountNumber": p.accountNumber,
			"reference":     reference,
			"amount":        req.Amount.StringFixed(2),
			"currency":      strings.ToUpper(req.Currency),
		},
	}, nil
}

// WireTransferConfig carries the static beneficiary details for
// international wire settlement.
type WireTransferConfig struct {
	BeneficiaryName string
	SwiftCode       string
	IBAN            string
	NewID           func() string
}

// WireTransferProvider issues settlement references for international
// wires. Like bank transfers, settlement is verified manually.
type WireTransferProvider struct {
	beneficiaryName string
	swiftCode       string
	iban            string
	newID           func() string
}

// NewWireTransferProvider constructs the wire transfer adapter.
func NewWireTransferProvider(cfg WireTransferConfig) (*WireTransferProvider, error) {
	if strings.TrimSpace(cfg.BeneficiaryName) == "" || strings.TrimSpace(cfg.IBAN) == "" {
		return nil, errors.New("wire transfer: beneficiary and iban are required")
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &WireTransferProvider{
		beneficiaryName: strings.TrimSpace(cfg.BeneficiaryName),
		swiftCode:       strings.TrimSpace(cfg.SwiftCode),
		iban:            strings.TrimSpace(cfg.IBAN),
		newID:           newID,
	}, nil
}

// Initiate assigns the settlement reference and returns wire instructions
// for display.
func (p *WireTransferProvider) Initiate(ctx context.Context, req InitiationRequest) (InitiationResult, error) {
	if p == nil {
		return InitiationResult{}, errors.New("wire transfer: provider is nil")
	}
	reference := manualReference("WT", req.OrderNumber, p.newID)

	return InitiationResult{
		Details: domain.ProviderDetails{
			WireTransfer: &domain.WireTransferDetails{
				BeneficiaryName: p.beneficiaryName,
				SwiftCode:       p.swiftCode,
				IBAN:            p.iban,
				Reference:       reference,
			},
		},
		NextAction: "manual_transfer",
		Instructions: map[string]string{
			"beneficiaryName": p.beneficiaryName,
			"swiftCode":       p.swiftCode,
			"iban":            p.iban,
			"reference":       reference,
			"amount":          req.Amount.StringFixed(2),
			"currency":        strings.ToUpper(req.Currency),
		},
	}, nil
}

func manualReference(kind, orderNumber string, newID func() string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(newID(), "-", ""))
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return fmt.Sprintf("%s-%s", kind, suffix)
	}
	return fmt.Sprintf("%s-%s-%s", kind, orderNumber, suffix)
}
