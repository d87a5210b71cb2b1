package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/payments"
	"github.com/supplyvend/api/internal/repositories"
)

var fixedNow = time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr() error { return &stubRepoError{notFound: true} }

type stubOrderRepo struct {
	mu           sync.Mutex
	insertFn     func(ctx context.Context, order domain.Order) error
	updateFn     func(ctx context.Context, order domain.Order) error
	findByIDFn   func(ctx context.Context, orderID string) (domain.Order, error)
	findByNumFn  func(ctx context.Context, orderNumber string) (domain.Order, error)
	listByUserFn func(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)

	inserted []domain.Order
	updated  []domain.Order
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	s.inserted = append(s.inserted, order)
	s.mu.Unlock()
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	s.mu.Lock()
	s.updated = append(s.updated, order)
	s.mu.Unlock()
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, orderID)
	}
	return domain.Order{}, notFoundErr()
}

func (s *stubOrderRepo) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.findByNumFn != nil {
		return s.findByNumFn(ctx, orderNumber)
	}
	return domain.Order{}, notFoundErr()
}

func (s *stubOrderRepo) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if s.listByUserFn != nil {
		return s.listByUserFn(ctx, userID, pager)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) lastUpdated() (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updated) == 0 {
		return domain.Order{}, false
	}
	return s.updated[len(s.updated)-1], true
}

type stubTransactionRepo struct {
	mu         sync.Mutex
	insertFn   func(ctx context.Context, tx domain.Transaction) error
	updateFn   func(ctx context.Context, tx domain.Transaction) error
	findByIDFn func(ctx context.Context, transactionID string) (domain.Transaction, error)
	findByRefFn func(ctx context.Context, reference string) (domain.Transaction, error)
	listFn     func(ctx context.Context, orderID string) ([]domain.Transaction, error)

	inserted []domain.Transaction
	updated  []domain.Transaction
}

func (s *stubTransactionRepo) Insert(ctx context.Context, tx domain.Transaction) error {
	s.mu.Lock()
	s.inserted = append(s.inserted, tx)
	s.mu.Unlock()
	if s.insertFn != nil {
		return s.insertFn(ctx, tx)
	}
	return nil
}

func (s *stubTransactionRepo) Update(ctx context.Context, tx domain.Transaction) error {
	s.mu.Lock()
	s.updated = append(s.updated, tx)
	s.mu.Unlock()
	if s.updateFn != nil {
		return s.updateFn(ctx, tx)
	}
	return nil
}

func (s *stubTransactionRepo) FindByID(ctx context.Context, transactionID string) (domain.Transaction, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, transactionID)
	}
	return domain.Transaction{}, notFoundErr()
}

func (s *stubTransactionRepo) FindByMerchantReference(ctx context.Context, reference string) (domain.Transaction, error) {
	if s.findByRefFn != nil {
		return s.findByRefFn(ctx, reference)
	}
	return domain.Transaction{}, notFoundErr()
}

func (s *stubTransactionRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Transaction, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubTransactionRepo) lastUpdated() (domain.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updated) == 0 {
		return domain.Transaction{}, false
	}
	return s.updated[len(s.updated)-1], true
}

type stubProductRepo struct {
	mu        sync.Mutex
	findFn    func(ctx context.Context, productID string) (domain.Product, error)
	adjustFn  func(ctx context.Context, adj repositories.StockAdjustment) (repositories.StockAdjustmentResult, error)
	lowFn     func(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Product], error)
	auditFn   func(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockAuditEntry], error)
	adjusted  []repositories.StockAdjustment
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, notFoundErr()
}

func (s *stubProductRepo) ApplyStockAdjustment(ctx context.Context, adj repositories.StockAdjustment) (repositories.StockAdjustmentResult, error) {
	s.mu.Lock()
	s.adjusted = append(s.adjusted, adj)
	s.mu.Unlock()
	if s.adjustFn != nil {
		return s.adjustFn(ctx, adj)
	}
	return repositories.StockAdjustmentResult{}, nil
}

func (s *stubProductRepo) ListLowStock(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	if s.lowFn != nil {
		return s.lowFn(ctx, pager)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

func (s *stubProductRepo) ListAuditTrail(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockAuditEntry], error) {
	if s.auditFn != nil {
		return s.auditFn(ctx, productID, pager)
	}
	return domain.CursorPage[domain.StockAuditEntry]{}, nil
}

func (s *stubProductRepo) adjustments() []repositories.StockAdjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repositories.StockAdjustment, len(s.adjusted))
	copy(out, s.adjusted)
	return out
}

type captureEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return c.err
}

func (c *captureEvents) byType(eventType string) []OrderEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []OrderEvent
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type stubGateway struct {
	initiateFn func(ctx context.Context, method domain.PaymentMethod, req payments.InitiationRequest) (payments.InitiationResult, error)
	parseFn    func(ctx context.Context, slug string, body []byte, signature string) (payments.WebhookEvent, error)
	refundFn   func(ctx context.Context, method domain.PaymentMethod, req payments.RefundRequest) error
}

func (s *stubGateway) Initiate(ctx context.Context, method domain.PaymentMethod, req payments.InitiationRequest) (payments.InitiationResult, error) {
	if s.initiateFn != nil {
		return s.initiateFn(ctx, method, req)
	}
	return payments.InitiationResult{}, nil
}

func (s *stubGateway) ParseWebhook(ctx context.Context, slug string, body []byte, signature string) (payments.WebhookEvent, error) {
	if s.parseFn != nil {
		return s.parseFn(ctx, slug, body, signature)
	}
	return payments.WebhookEvent{}, nil
}

func (s *stubGateway) Refund(ctx context.Context, method domain.PaymentMethod, req payments.RefundRequest) error {
	if s.refundFn != nil {
		return s.refundFn(ctx, method, req)
	}
	return nil
}

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *memoryDeduper) Seen(_ context.Context, key string, _ time.Time, _ time.Duration) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}

type sequenceCounter struct {
	mu   sync.Mutex
	next int64
}

func (c *sequenceCounter) Next(_ context.Context, counterID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return c.next, nil
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%04d", prefix, n)
	}
}
