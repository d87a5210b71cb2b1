package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/platform/auth"
	"github.com/supplyvend/api/internal/platform/httpx"
	"github.com/supplyvend/api/internal/services"
)

// PaymentHandlers exposes payment attempt endpoints for authenticated
// customers. Admin verification and refunds live on AdminHandlers.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireUser)
	r.Post("/", h.initiatePayment)
	r.Get("/", h.listOrderTransactions)
	r.Get("/{transactionID}", h.getTransaction)
	r.Post("/{transactionID}:submit-proof", h.submitProof)
}

type initiatePaymentRequest struct {
	OrderID     string `json:"order_id"`
	Method      string `json:"method"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
	ReturnURL   string `json:"return_url,omitempty"`
}

type submitProofRequest struct {
	Reference     string `json:"reference"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	SenderName    string `json:"sender_name,omitempty"`
}

type paymentInitiationResponse struct {
	Transaction  transactionPayload `json:"transaction"`
	ClientSecret string             `json:"client_secret,omitempty"`
	RedirectURL  string             `json:"redirect_url,omitempty"`
	Instructions map[string]string  `json:"instructions,omitempty"`
	NextAction   string             `json:"next_action,omitempty"`
}

func (h *PaymentHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req initiatePaymentRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	initiation, err := h.payments.InitiatePayment(ctx, services.InitiatePaymentCommand{
		Actor:       actor,
		OrderID:     strings.TrimSpace(req.OrderID),
		Method:      domain.PaymentMethod(strings.TrimSpace(strings.ToLower(req.Method))),
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, paymentInitiationResponse{
		Transaction:  buildTransactionPayload(initiation.Transaction),
		ClientSecret: initiation.ClientSecret,
		RedirectURL:  initiation.RedirectURL,
		Instructions: initiation.Instructions,
		NextAction:   initiation.NextAction,
	})
}

func (h *PaymentHandlers) listOrderTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id query parameter is required", http.StatusBadRequest))
		return
	}

	txs, err := h.payments.ListOrderTransactions(ctx, actor, orderID)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	items := make([]transactionPayload, 0, len(txs))
	for _, tx := range txs {
		items = append(items, buildTransactionPayload(tx))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *PaymentHandlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	tx, err := h.payments.GetTransaction(ctx, actor, chi.URLParam(r, "transactionID"))
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, transactionResponse{Transaction: buildTransactionPayload(tx)})
}

func (h *PaymentHandlers) submitProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req submitProofRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	tx, err := h.payments.SubmitManualProof(ctx, services.ManualProofCommand{
		Actor:         actor,
		TransactionID: chi.URLParam(r, "transactionID"),
		Reference:     req.Reference,
		ReceiptNumber: req.ReceiptNumber,
		SenderName:    req.SenderName,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, transactionResponse{Transaction: buildTransactionPayload(tx)})
}

type transactionResponse struct {
	Transaction transactionPayload `json:"transaction"`
}

type transactionPayload struct {
	ID                 string                  `json:"id"`
	OrderID            string                  `json:"order_id"`
	Amount             string                  `json:"amount"`
	Currency           string                  `json:"currency"`
	Method             string                  `json:"method"`
	Status             string                  `json:"status"`
	StatusHistory      []statusEntryPayload    `json:"status_history,omitempty"`
	Details            map[string]string       `json:"details,omitempty"`
	Refunds            []refundPayload         `json:"refunds,omitempty"`
	TotalRefunded      string                  `json:"total_refunded"`
	Verified           bool                    `json:"verified"`
	VerificationMethod string                  `json:"verification_method,omitempty"`
	VerifiedBy         string                  `json:"verified_by,omitempty"`
	VerifiedAt         string                  `json:"verified_at,omitempty"`
	ExpiresAt          string                  `json:"expires_at,omitempty"`
	CreatedAt          string                  `json:"created_at"`
	UpdatedAt          string                  `json:"updated_at,omitempty"`
}

type refundPayload struct {
	ID         string `json:"id"`
	Amount     string `json:"amount"`
	Reason     string `json:"reason,omitempty"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
}

func buildTransactionPayload(tx domain.Transaction) transactionPayload {
	payload := transactionPayload{
		ID:                 tx.ID,
		OrderID:            tx.OrderID,
		Amount:             tx.Amount.StringFixed(2),
		Currency:           tx.Currency,
		Method:             string(tx.Method),
		Status:             string(tx.Status),
		Details:            buildDetailPayload(tx.Details),
		TotalRefunded:      tx.TotalRefunded.StringFixed(2),
		Verified:           tx.Verified,
		VerificationMethod: tx.VerificationMethod,
		VerifiedBy:         tx.VerifiedBy,
		VerifiedAt:         formatTimePtr(tx.VerifiedAt),
		ExpiresAt:          formatTime(tx.ExpiresAt),
		CreatedAt:          formatTime(tx.CreatedAt),
		UpdatedAt:          formatTime(tx.UpdatedAt),
	}
	for _, entry := range tx.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusEntryPayload{
			Status:     string(entry.Status),
			Note:       entry.Note,
			Actor:      entry.Actor,
			OccurredAt: formatTime(entry.OccurredAt),
		})
	}
	for _, refund := range tx.Refunds {
		payload.Refunds = append(payload.Refunds, refundPayload{
			ID:         refund.ID,
			Amount:     refund.Amount.StringFixed(2),
			Reason:     refund.Reason,
			Status:     string(refund.Status),
			OccurredAt: formatTime(refund.OccurredAt),
		})
	}
	return payload
}

// buildDetailPayload flattens the populated provider detail block into the
// customer-facing fields. Gateway internals stay server side.
func buildDetailPayload(details domain.ProviderDetails) map[string]string {
	out := map[string]string{}
	switch {
	case details.CardGateway != nil:
		putNonEmpty(out, "card_brand", details.CardGateway.CardBrand)
		putNonEmpty(out, "card_last4", details.CardGateway.CardLast4)
		putNonEmpty(out, "receipt_url", details.CardGateway.ReceiptURL)
	case details.MobileMoney != nil:
		putNonEmpty(out, "phone_number", details.MobileMoney.PhoneNumber)
		putNonEmpty(out, "network", details.MobileMoney.Network)
		putNonEmpty(out, "receipt_number", details.MobileMoney.ReceiptNumber)
	case details.AltGateway != nil:
		putNonEmpty(out, "redirect_url", details.AltGateway.RedirectURL)
		putNonEmpty(out, "reference", details.AltGateway.MerchantReference)
	case details.BankTransfer != nil:
		putNonEmpty(out, "bank_name", details.BankTransfer.BankName)
		putNonEmpty(out, "account_name", details.BankTransfer.AccountName)
		putNonEmpty(out, "account_number", details.BankTransfer.AccountNumber)
		putNonEmpty(out, "reference", details.BankTransfer.Reference)
		putNonEmpty(out, "submitted_reference", details.BankTransfer.SubmittedReference)
	case details.WireTransfer != nil:
		putNonEmpty(out, "beneficiary_name", details.WireTransfer.BeneficiaryName)
		putNonEmpty(out, "swift_code", details.WireTransfer.SwiftCode)
		putNonEmpty(out, "iban", details.WireTransfer.IBAN)
		putNonEmpty(out, "reference", details.WireTransfer.Reference)
		putNonEmpty(out, "submitted_reference", details.WireTransfer.SubmittedReference)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func putNonEmpty(m map[string]string, key, value string) {
	if strings.TrimSpace(value) != "" {
		m[key] = value
	}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("transaction_not_found", "transaction not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to access this transaction", http.StatusForbidden))
	case errors.Is(err, services.ErrPaymentExpired):
		httpx.WriteError(ctx, w, httpx.NewError("payment_expired", "payment window has closed", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentRefundExceedsRemaining):
		httpx.WriteError(ctx, w, httpx.NewError("refund_exceeds_remaining", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("payment_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentProviderFailure):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_failure", "payment provider rejected the request", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
