package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/services"
)

func adminRouter(orders services.OrderService, payments services.PaymentService, stock services.StockService) chi.Router {
	handler := NewAdminHandlers(orders, payments, stock)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)
	return router
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	router := adminRouter(&stubOrderService{}, &stubPaymentService{}, &stubStockService{})

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1:transition", bytes.NewReader([]byte(`{"status":"paid"}`)))
	rr := serveAs(router, req, customer)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAdminTransitionOrder(t *testing.T) {
	var captured services.TransitionOrderCommand
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.TransitionOrderCommand) (domain.Order, error) {
			captured = cmd
			shipped := sampleOrder()
			shipped.Status = domain.OrderStatusShipped
			return shipped, nil
		},
	}
	router := adminRouter(orders, &stubPaymentService{}, &stubStockService{})

	body := []byte(`{"status":" Shipped ","note":"dispatched via courier"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1:transition", bytes.NewReader(body))
	rr := serveAs(router, req, dashboardOps)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.TargetStatus != domain.OrderStatusShipped {
		t.Fatalf("command = %+v", captured)
	}
	if captured.Note != "dispatched via courier" {
		t.Fatalf("note = %q", captured.Note)
	}
}

func TestAdminTransitionIllegalEdgeConflict(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(context.Context, services.TransitionOrderCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidState
		},
	}
	router := adminRouter(orders, &stubPaymentService{}, &stubStockService{})

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1:transition", bytes.NewReader([]byte(`{"status":"shipped"}`)))
	rr := serveAs(router, req, dashboardOps)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAdminVerifyPayment(t *testing.T) {
	var captured services.VerifyManualPaymentCommand
	payments := &stubPaymentService{
		verifyFn: func(_ context.Context, cmd services.VerifyManualPaymentCommand) (domain.Transaction, error) {
			captured = cmd
			tx := sampleTransaction()
			tx.Status = domain.TransactionStatusCompleted
			return tx, nil
		},
	}
	router := adminRouter(&stubOrderService{}, payments, &stubStockService{})

	body := []byte(`{"approve":true,"note":"reference matched bank statement"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/payments/BNK-12345678-ABCD:verify", bytes.NewReader(body))
	rr := serveAs(router, req, dashboardOps)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if captured.TransactionID != "BNK-12345678-ABCD" || !captured.Approve {
		t.Fatalf("command = %+v", captured)
	}
	if captured.Actor.UserID != "admin-1" {
		t.Fatalf("actor = %+v", captured.Actor)
	}
}

func TestAdminRefundPayment(t *testing.T) {
	var captured services.RefundPaymentCommand
	payments := &stubPaymentService{
		refundFn: func(_ context.Context, cmd services.RefundPaymentCommand) (domain.Transaction, error) {
			captured = cmd
			tx := sampleTransaction()
			tx.Status = domain.TransactionStatusPartiallyRefunded
			tx.TotalRefunded = cmd.Amount
			return tx, nil
		},
	}
	router := adminRouter(&stubOrderService{}, payments, &stubStockService{})

	body := []byte(`{"amount":"5.00","reason":"damaged item"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/payments/CRD-12345678-ABCD:refund", bytes.NewReader(body))
	rr := serveAs(router, req, dashboardOps)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if !captured.Amount.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("amount = %s", captured.Amount)
	}

	var resp struct {
		Transaction struct {
			TotalRefunded string `json:"total_refunded"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Transaction.TotalRefunded != "5.00" {
		t.Fatalf("total_refunded = %q", resp.Transaction.TotalRefunded)
	}
}

func TestAdminRefundBadAmount(t *testing.T) {
	router := adminRouter(&stubOrderService{}, &stubPaymentService{}, &stubStockService{})

	req := httptest.NewRequest(http.MethodPost, "/admin/payments/CRD-12345678-ABCD:refund", bytes.NewReader([]byte(`{"amount":"five dollars"}`)))
	rr := serveAs(router, req, dashboardOps)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAdminRefundExceedsRemaining(t *testing.T) {
	payments := &stubPaymentService{
		refundFn: func(context.Context, services.RefundPaymentCommand) (domain.Transaction, error) {
			return domain.Transaction{}, services.ErrPaymentRefundExceedsRemaining
		},
	}
	router := adminRouter(&stubOrderService{}, payments, &stubStockService{})

	req := httptest.NewRequest(http.MethodPost, "/admin/payments/CRD-12345678-ABCD:refund", bytes.NewReader([]byte(`{"amount":"99.00"}`)))
	rr := serveAs(router, req, dashboardOps)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAdminAdjustStock(t *testing.T) {
	var captured services.AdjustStockCommand
	stock := &stubStockService{
		adjustFn: func(_ context.Context, cmd services.AdjustStockCommand) (domain.Product, error) {
			captured = cmd
			return domain.Product{
				ID:                cmd.ProductID,
				Name:              "Spiral Notebook A5",
				SKU:               "NB-A5",
				Stock:             40,
				LowStockThreshold: 10,
			}, nil
		},
	}
	router := adminRouter(&stubOrderService{}, &stubPaymentService{}, stock)

	body := []byte(`{"action":"Add","quantity":15,"reason":"restock delivery"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/inventory/prod-notebook:adjust", bytes.NewReader(body))
	rr := serveAs(router, req, dashboardOps)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if captured.ProductID != "prod-notebook" || captured.Action != domain.StockActionAdd || captured.Quantity != 15 {
		t.Fatalf("command = %+v", captured)
	}

	var resp struct {
		Product productStockPayload `json:"product"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Product.Stock != 40 {
		t.Fatalf("stock = %d", resp.Product.Stock)
	}
}

func TestAdminListLowStock(t *testing.T) {
	stock := &stubStockService{
		lowFn: func(_ context.Context, _ domain.Actor, _ domain.Pagination) (domain.CursorPage[domain.Product], error) {
			return domain.CursorPage[domain.Product]{
				Items: []domain.Product{{
					ID:                "prod-atlas",
					Name:              "World Atlas",
					Stock:             2,
					LowStockThreshold: 5,
					LowStock:          true,
				}},
			}, nil
		},
	}
	router := adminRouter(&stubOrderService{}, &stubPaymentService{}, stock)

	req := httptest.NewRequest(http.MethodGet, "/admin/inventory/low-stock", nil)
	rr := serveAs(router, req, dashboardOps)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Items []productStockPayload `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "prod-atlas" || !resp.Items[0].LowStock {
		t.Fatalf("items = %+v", resp.Items)
	}
}

func TestAdminStockAuditTrail(t *testing.T) {
	stock := &stubStockService{
		auditFn: func(_ context.Context, _ domain.Actor, productID string, _ domain.Pagination) (domain.CursorPage[domain.StockAuditEntry], error) {
			return domain.CursorPage[domain.StockAuditEntry]{
				Items: []domain.StockAuditEntry{{
					ID:            "aud_1",
					ProductID:     productID,
					Action:        domain.StockActionRemove,
					Quantity:      2,
					PreviousStock: 42,
					NewStock:      40,
					Reason:        "order SV-260824-0001",
					OccurredAt:    testNow,
				}},
				NextPageToken: "tok-audit",
			}, nil
		},
	}
	router := adminRouter(&stubOrderService{}, &stubPaymentService{}, stock)

	req := httptest.NewRequest(http.MethodGet, "/admin/inventory/prod-notebook/audit", nil)
	rr := serveAs(router, req, dashboardOps)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Items         []stockAuditPayload `json:"items"`
		NextPageToken string              `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Action != "remove" || resp.Items[0].NewStock != 40 {
		t.Fatalf("items = %+v", resp.Items)
	}
	if resp.NextPageToken != "tok-audit" {
		t.Fatalf("next page token = %q", resp.NextPageToken)
	}
}
