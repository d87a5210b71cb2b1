package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/platform/auth"
	"github.com/supplyvend/api/internal/platform/httpx"
	"github.com/supplyvend/api/internal/services"
)

// AdminHandlers exposes the dashboard operations: order transitions, manual
// payment verification, refunds, and inventory management.
type AdminHandlers struct {
	orders   services.OrderService
	payments services.PaymentService
	stock    services.StockService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(orders services.OrderService, payments services.PaymentService, stock services.StockService) *AdminHandlers {
	return &AdminHandlers{
		orders:   orders,
		payments: payments,
		stock:    stock,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireAdmin)

	r.Post("/orders/{orderID}:transition", h.transitionOrder)

	r.Post("/payments/{transactionID}:verify", h.verifyPayment)
	r.Post("/payments/{transactionID}:refund", h.refundPayment)

	r.Post("/inventory/{productID}:adjust", h.adjustStock)
	r.Get("/inventory/low-stock", h.listLowStock)
	r.Get("/inventory/{productID}/audit", h.listAuditTrail)
}

type transitionOrderRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

func (h *AdminHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.IdentityFromContext(ctx)

	var req transitionOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionOrderCommand{
		Actor:        actor,
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: domain.OrderStatus(strings.TrimSpace(strings.ToLower(req.Status))),
		Note:         strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type verifyPaymentRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note,omitempty"`
}

func (h *AdminHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.IdentityFromContext(ctx)

	var req verifyPaymentRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	tx, err := h.payments.VerifyManualPayment(ctx, services.VerifyManualPaymentCommand{
		Actor:         actor,
		TransactionID: chi.URLParam(r, "transactionID"),
		Approve:       req.Approve,
		Note:          req.Note,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, transactionResponse{Transaction: buildTransactionPayload(tx)})
}

type refundPaymentRequest struct {
	Amount string `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *AdminHandlers) refundPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.IdentityFromContext(ctx)

	var req refundPaymentRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount must be a decimal string", http.StatusBadRequest))
		return
	}

	tx, err := h.payments.RefundPayment(ctx, services.RefundPaymentCommand{
		Actor:         actor,
		TransactionID: chi.URLParam(r, "transactionID"),
		Amount:        amount,
		Reason:        req.Reason,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, transactionResponse{Transaction: buildTransactionPayload(tx)})
}

type adjustStockRequest struct {
	Action   string `json:"action"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

func (h *AdminHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.IdentityFromContext(ctx)

	var req adjustStockRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	product, err := h.stock.Adjust(ctx, services.AdjustStockCommand{
		Actor:     actor,
		ProductID: chi.URLParam(r, "productID"),
		Action:    domain.StockAction(strings.TrimSpace(strings.ToLower(req.Action))),
		Quantity:  req.Quantity,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, productStockResponse{Product: buildProductStockPayload(product)})
}

func (h *AdminHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.IdentityFromContext(ctx)

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.stock.ListLowStock(ctx, actor, pager)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	items := make([]productStockPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductStockPayload(product))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *AdminHandlers) listAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, _ := auth.IdentityFromContext(ctx)

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.stock.AuditTrail(ctx, actor, chi.URLParam(r, "productID"), pager)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	items := make([]stockAuditPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, stockAuditPayload{
			ID:            entry.ID,
			ProductID:     entry.ProductID,
			Action:        string(entry.Action),
			Quantity:      entry.Quantity,
			PreviousStock: entry.PreviousStock,
			NewStock:      entry.NewStock,
			Reason:        entry.Reason,
			Actor:         entry.Actor,
			OccurredAt:    formatTime(entry.OccurredAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

type productStockResponse struct {
	Product productStockPayload `json:"product"`
}

type productStockPayload struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	SKU               string `json:"sku,omitempty"`
	Stock             int    `json:"stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	LowStock          bool   `json:"low_stock"`
}

type stockAuditPayload struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	Action        string `json:"action"`
	Quantity      int    `json:"quantity"`
	PreviousStock int    `json:"previous_stock"`
	NewStock      int    `json:"new_stock"`
	Reason        string `json:"reason,omitempty"`
	Actor         string `json:"actor,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

func buildProductStockPayload(product domain.Product) productStockPayload {
	return productStockPayload{
		ID:                product.ID,
		Name:              product.Name,
		SKU:               product.SKU,
		Stock:             product.Stock,
		LowStockThreshold: product.LowStockThreshold,
		LowStock:          product.LowStock,
	}
}

func writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStockInsufficient):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStockForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("stock_error", "failed to process stock request", http.StatusInternalServerError))
	}
}
