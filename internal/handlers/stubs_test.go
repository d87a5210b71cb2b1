package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/platform/auth"
	"github.com/supplyvend/api/internal/services"
)

var (
	testNow      = time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	customer     = domain.Actor{UserID: "user-1", Role: domain.RoleCustomer}
	dashboardOps = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}
)

func sampleOrder() domain.Order {
	order := domain.Order{
		ID:          "ord_1",
		OrderNumber: "SV-260824-0001",
		UserID:      "user-1",
		Currency:    "USD",
		Status:      domain.OrderStatusPending,
		Items: []domain.OrderItem{{
			ProductID: "prod-notebook",
			Name:      "Spiral Notebook A5",
			SKU:       "NB-A5",
			UnitPrice: decimal.RequireFromString("4.50"),
			Quantity:  2,
			Kind:      domain.ProductKindPhysical,
		}},
		Totals: domain.OrderTotals{
			Subtotal:       decimal.RequireFromString("9.00"),
			TaxRate:        decimal.RequireFromString("0.10"),
			TaxAmount:      decimal.RequireFromString("0.90"),
			ShippingAmount: decimal.RequireFromString("5.00"),
			Total:          decimal.RequireFromString("14.90"),
		},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	order.RecalculateFlags()
	return order
}

func sampleTransaction() domain.Transaction {
	return domain.Transaction{
		ID:       "CRD-12345678-ABCD",
		OrderID:  "ord_1",
		UserID:   "user-1",
		Amount:   decimal.RequireFromString("14.90"),
		Currency: "USD",
		Method:   domain.PaymentMethodCardGateway,
		Status:   domain.TransactionStatusPending,
		Details: domain.ProviderDetails{
			CardGateway: &domain.CardGatewayDetails{IntentID: "pi_123", CardLast4: "4242"},
		},
		TotalRefunded: decimal.Zero,
		ExpiresAt:     testNow.Add(time.Hour),
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
}

type stubCheckoutService struct {
	createFn func(context.Context, services.CreateOrderCommand) (domain.Order, error)
}

func (s *stubCheckoutService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

type stubOrderService struct {
	getFn        func(context.Context, domain.Actor, string) (domain.Order, error)
	getByNumFn   func(context.Context, domain.Actor, string) (domain.Order, error)
	listFn       func(context.Context, domain.Actor, string, domain.Pagination) (domain.CursorPage[domain.Order], error)
	transitionFn func(context.Context, services.TransitionOrderCommand) (domain.Order, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (domain.Order, error)
	recordFn     func(context.Context, services.RecordPaymentAttemptCommand) (domain.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderByNumber(ctx context.Context, actor domain.Actor, orderNumber string) (domain.Order, error) {
	if s.getByNumFn != nil {
		return s.getByNumFn(ctx, actor, orderNumber)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, actor domain.Actor, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, userID, pager)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.TransitionOrderCommand) (domain.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) RecordPaymentAttempt(ctx context.Context, cmd services.RecordPaymentAttemptCommand) (domain.Order, error) {
	if s.recordFn != nil {
		return s.recordFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

type stubPaymentService struct {
	initiateFn func(context.Context, services.InitiatePaymentCommand) (services.PaymentInitiation, error)
	webhookFn  func(context.Context, services.WebhookCommand) error
	proofFn    func(context.Context, services.ManualProofCommand) (domain.Transaction, error)
	verifyFn   func(context.Context, services.VerifyManualPaymentCommand) (domain.Transaction, error)
	refundFn   func(context.Context, services.RefundPaymentCommand) (domain.Transaction, error)
	getFn      func(context.Context, domain.Actor, string) (domain.Transaction, error)
	listFn     func(context.Context, domain.Actor, string) ([]domain.Transaction, error)
}

func (s *stubPaymentService) InitiatePayment(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
	if s.initiateFn != nil {
		return s.initiateFn(ctx, cmd)
	}
	return services.PaymentInitiation{}, errors.New("not implemented")
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, cmd services.WebhookCommand) error {
	if s.webhookFn != nil {
		return s.webhookFn(ctx, cmd)
	}
	return nil
}

func (s *stubPaymentService) SubmitManualProof(ctx context.Context, cmd services.ManualProofCommand) (domain.Transaction, error) {
	if s.proofFn != nil {
		return s.proofFn(ctx, cmd)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubPaymentService) VerifyManualPayment(ctx context.Context, cmd services.VerifyManualPaymentCommand) (domain.Transaction, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubPaymentService) RefundPayment(ctx context.Context, cmd services.RefundPaymentCommand) (domain.Transaction, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubPaymentService) GetTransaction(ctx context.Context, actor domain.Actor, transactionID string) (domain.Transaction, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, transactionID)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

func (s *stubPaymentService) ListOrderTransactions(ctx context.Context, actor domain.Actor, orderID string) ([]domain.Transaction, error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, orderID)
	}
	return nil, nil
}

type stubStockService struct {
	adjustFn func(context.Context, services.AdjustStockCommand) (domain.Product, error)
	lowFn    func(context.Context, domain.Actor, domain.Pagination) (domain.CursorPage[domain.Product], error)
	auditFn  func(context.Context, domain.Actor, string, domain.Pagination) (domain.CursorPage[domain.StockAuditEntry], error)
}

func (s *stubStockService) Reserve(context.Context, services.ReserveStockCommand) error { return nil }
func (s *stubStockService) Restore(context.Context, services.RestoreStockCommand) error { return nil }

func (s *stubStockService) Adjust(ctx context.Context, cmd services.AdjustStockCommand) (domain.Product, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, cmd)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubStockService) ListLowStock(ctx context.Context, actor domain.Actor, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	if s.lowFn != nil {
		return s.lowFn(ctx, actor, pager)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

func (s *stubStockService) AuditTrail(ctx context.Context, actor domain.Actor, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockAuditEntry], error) {
	if s.auditFn != nil {
		return s.auditFn(ctx, actor, productID, pager)
	}
	return domain.CursorPage[domain.StockAuditEntry]{}, nil
}

type stubDeliveryService struct {
	redeemFn func(context.Context, services.RedeemDownloadCommand) (services.DownloadGrant, error)
}

func (s *stubDeliveryService) IssueDigitalAccess(context.Context, *domain.Order, time.Time) error {
	return nil
}

func (s *stubDeliveryService) RedeemDownload(ctx context.Context, cmd services.RedeemDownloadCommand) (services.DownloadGrant, error) {
	if s.redeemFn != nil {
		return s.redeemFn(ctx, cmd)
	}
	return services.DownloadGrant{}, errors.New("not implemented")
}

func serveAs(router chi.Router, req *http.Request, actor domain.Actor) *httptest.ResponseRecorder {
	if actor.UserID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), actor))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
