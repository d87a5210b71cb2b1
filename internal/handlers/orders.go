package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/platform/auth"
	"github.com/supplyvend/api/internal/platform/httpx"
	"github.com/supplyvend/api/internal/services"
)

// OrderHandlers exposes checkout and order lifecycle endpoints for
// authenticated customers.
type OrderHandlers struct {
	checkout services.CheckoutService
	orders   services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(checkout services.CheckoutService, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		checkout: checkout,
		orders:   orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireUser)
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/number/{orderNumber}", h.getOrderByNumber)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

type createOrderRequest struct {
	UserID   string             `json:"user_id,omitempty"`
	Items    []orderItemRequest `json:"items"`
	Shipping *addressPayload    `json:"shipping_address,omitempty"`
	Billing  *addressPayload    `json:"billing_address,omitempty"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	items := make([]services.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.CheckoutItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	order, err := h.checkout.CreateOrder(ctx, services.CreateOrderCommand{
		Actor:    actor,
		UserID:   strings.TrimSpace(req.UserID),
		Items:    items,
		Shipping: req.Shipping.toDomain(),
		Billing:  req.Billing.toDomain(),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, actor, strings.TrimSpace(r.URL.Query().Get("user_id")), pager)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	order, err := h.orders.GetOrder(ctx, actor, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	order, err := h.orders.GetOrderByNumber(ctx, actor, chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		Actor:   actor,
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	ItemsCount  int    `json:"items_count"`
	Total       string `json:"total"`
	CreatedAt   string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID            string                `json:"id"`
	OrderNumber   string                `json:"order_number"`
	UserID        string                `json:"user_id"`
	Status        string                `json:"status"`
	Currency      string                `json:"currency"`
	Totals        orderTotalsPayload    `json:"totals"`
	Items         []orderItemPayload    `json:"items"`
	StatusHistory []statusEntryPayload  `json:"status_history,omitempty"`
	Payment       *paymentRecordPayload `json:"payment,omitempty"`
	Shipping      *addressPayload       `json:"shipping_address,omitempty"`
	Billing       *addressPayload       `json:"billing_address,omitempty"`
	CancelReason  *string               `json:"cancel_reason,omitempty"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at,omitempty"`
	PaidAt        string                `json:"paid_at,omitempty"`
	ShippedAt     string                `json:"shipped_at,omitempty"`
	DeliveredAt   string                `json:"delivered_at,omitempty"`
	CompletedAt   string                `json:"completed_at,omitempty"`
	CancelledAt   string                `json:"cancelled_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal string `json:"subtotal"`
	TaxRate  string `json:"tax_rate"`
	Tax      string `json:"tax"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
}

type orderItemPayload struct {
	ProductID string                  `json:"product_id"`
	Name      string                  `json:"name"`
	SKU       string                  `json:"sku,omitempty"`
	Kind      string                  `json:"kind"`
	UnitPrice string                  `json:"unit_price"`
	Quantity  int                     `json:"quantity"`
	LineTotal string                  `json:"line_total"`
	Digital   *digitalDeliveryPayload `json:"digital,omitempty"`
}

type digitalDeliveryPayload struct {
	Status          string `json:"status"`
	DownloadLink    string `json:"download_link,omitempty"`
	DownloadCount   int    `json:"download_count"`
	DownloadLimit   int    `json:"download_limit"`
	AccessExpiresAt string `json:"access_expires_at,omitempty"`
}

type statusEntryPayload struct {
	Status     string `json:"status"`
	Note       string `json:"note,omitempty"`
	Actor      string `json:"actor,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

type paymentRecordPayload struct {
	Method        string `json:"method,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Currency:    order.Currency,
		ItemsCount:  order.ItemsCount,
		Total:       order.Totals.Total.StringFixed(2),
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Currency:    order.Currency,
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal.StringFixed(2),
			TaxRate:  order.Totals.TaxRate.String(),
			Tax:      order.Totals.TaxAmount.StringFixed(2),
			Shipping: order.Totals.ShippingAmount.StringFixed(2),
			Total:    order.Totals.Total.StringFixed(2),
		},
		Items:        make([]orderItemPayload, 0, len(order.Items)),
		CancelReason: order.CancelReason,
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
		PaidAt:       formatTimePtr(order.PaidAt),
		ShippedAt:    formatTimePtr(order.ShippedAt),
		DeliveredAt:  formatTimePtr(order.DeliveredAt),
		CompletedAt:  formatTimePtr(order.CompletedAt),
		CancelledAt:  formatTimePtr(order.CancelledAt),
	}

	for _, item := range order.Items {
		entry := orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			Kind:      string(item.Kind),
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal().StringFixed(2),
		}
		if item.Digital != nil {
			entry.Digital = &digitalDeliveryPayload{
				Status:          string(item.Digital.Status),
				DownloadLink:    item.Digital.DownloadLink,
				DownloadCount:   item.Digital.DownloadCount,
				DownloadLimit:   item.Digital.DownloadLimit,
				AccessExpiresAt: formatTimePtr(item.Digital.AccessExpiresAt),
			}
		}
		payload.Items = append(payload.Items, entry)
	}

	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusEntryPayload{
			Status:     string(entry.Status),
			Note:       entry.Note,
			Actor:      entry.Actor,
			OccurredAt: formatTime(entry.OccurredAt),
		})
	}

	if order.Payment.Status != "" {
		payload.Payment = &paymentRecordPayload{
			Method:        string(order.Payment.Method),
			Amount:        order.Payment.Amount.StringFixed(2),
			Currency:      order.Payment.Currency,
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			CompletedAt:   formatTimePtr(order.Payment.CompletedAt),
		}
	}

	if order.Shipping != nil {
		addr := buildAddressPayload(*order.Shipping)
		payload.Shipping = &addr
	}
	if order.Billing != nil {
		addr := buildAddressPayload(*order.Billing)
		payload.Billing = &addr
	}

	return payload
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "one or more items are out of stock", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "cannot create orders for another user", http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to create order", http.StatusInternalServerError))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
