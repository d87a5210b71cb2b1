package repositories

import (
	"context"
	"time"

	"github.com/supplyvend/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with the
// categorisation services rely on for error mapping.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order aggregates. Orders are financial records
// and are never deleted.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
}

// TransactionRepository persists payment attempts. Transactions are never
// deleted.
type TransactionRepository interface {
	Insert(ctx context.Context, tx domain.Transaction) error
	Update(ctx context.Context, tx domain.Transaction) error
	FindByID(ctx context.Context, transactionID string) (domain.Transaction, error)
	// FindByMerchantReference resolves the secondary webhook correlation
	// key: the provider-assigned reference stored on the detail block.
	FindByMerchantReference(ctx context.Context, reference string) (domain.Transaction, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Transaction, error)
}

// StockAdjustment describes one conditional stock mutation. Quantity is the
// delta for add/remove actions and the absolute target for set.
type StockAdjustment struct {
	ProductID string
	Action    domain.StockAction
	Quantity  int
	Reason    string
	Actor     string
	Now       time.Time
}

// StockAdjustmentResult returns the post-mutation product state together
// with the audit entry appended for it.
type StockAdjustmentResult struct {
	Product domain.Product
	Audit   domain.StockAuditEntry
}

// ProductRepository reads catalog records and owns the transactional stock
// mutation path with its append-only audit side-channel.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// ApplyStockAdjustment atomically re-reads the product, validates the
	// mutation (remove fails on insufficient stock), applies it, and
	// appends the audit entry — all inside one transaction.
	ApplyStockAdjustment(ctx context.Context, adj StockAdjustment) (StockAdjustmentResult, error)
	ListLowStock(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Product], error)
	ListAuditTrail(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockAuditEntry], error)
}

// CounterRepository issues monotonically increasing sequence values scoped
// by counter id, e.g. one counter per order-number day bucket.
type CounterRepository interface {
	Next(ctx context.Context, counterID string) (int64, error)
}
