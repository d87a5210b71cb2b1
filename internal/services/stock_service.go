package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/repositories"
)

var (
	// ErrStockInvalidInput signals the caller provided invalid data.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockInsufficient indicates a reservation exceeded availability.
	ErrStockInsufficient = errors.New("stock: insufficient stock")
	// ErrStockProductNotFound indicates the product does not exist.
	ErrStockProductNotFound = errors.New("stock: product not found")
	// ErrStockForbidden indicates the actor may not perform the operation.
	ErrStockForbidden = errors.New("stock: forbidden")
)

// StockServiceDeps bundles collaborators for the stock service.
type StockServiceDeps struct {
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type stockService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewStockService wires dependencies into a StockService.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Products == nil {
		return nil, errors.New("stock service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &stockService{
		products: deps.Products,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// Reserve decrements stock for each line. On a failed line every line
// already reserved is returned before the error surfaces, so a rejected
// checkout leaves inventory untouched.
func (s *stockService) Reserve(ctx context.Context, cmd ReserveStockCommand) error {
	if len(cmd.Lines) == 0 {
		return nil
	}
	now := s.clock()
	reason := fmt.Sprintf("Reserved for order %s", defaultOrderRef(cmd.OrderNumber, cmd.OrderID))

	reserved := make([]StockLine, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive for product %s", ErrStockInvalidInput, line.ProductID)
		}
		_, err := s.products.ApplyStockAdjustment(ctx, repositories.StockAdjustment{
			ProductID: line.ProductID,
			Action:    domain.StockActionRemove,
			Quantity:  line.Quantity,
			Reason:    reason,
			Actor:     cmd.ActorID,
			Now:       now,
		})
		if err != nil {
			s.rollbackReservation(ctx, cmd, reserved, now)
			return s.mapStockError(err)
		}
		reserved = append(reserved, line)
	}
	return nil
}

func (s *stockService) rollbackReservation(ctx context.Context, cmd ReserveStockCommand, reserved []StockLine, now time.Time) {
	reason := fmt.Sprintf("Reservation rollback for order %s", defaultOrderRef(cmd.OrderNumber, cmd.OrderID))
	for _, line := range reserved {
		if _, err := s.products.ApplyStockAdjustment(ctx, repositories.StockAdjustment{
			ProductID: line.ProductID,
			Action:    domain.StockActionAdd,
			Quantity:  line.Quantity,
			Reason:    reason,
			Actor:     cmd.ActorID,
			Now:       now,
		}); err != nil {
			s.logger(ctx, "stock.reserve.rollback.failed", map[string]any{
				"orderId":   cmd.OrderID,
				"productId": line.ProductID,
				"quantity":  line.Quantity,
				"error":     err.Error(),
			})
		}
	}
}

// Restore returns previously reserved stock, e.g. on cancellation. Failures
// on individual lines are logged and do not stop the remaining lines.
func (s *stockService) Restore(ctx context.Context, cmd RestoreStockCommand) error {
	now := s.clock()
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = fmt.Sprintf("Restored for order %s", defaultOrderRef(cmd.OrderNumber, cmd.OrderID))
	}

	var firstErr error
	for _, line := range cmd.Lines {
		if line.Quantity <= 0 {
			continue
		}
		if _, err := s.products.ApplyStockAdjustment(ctx, repositories.StockAdjustment{
			ProductID: line.ProductID,
			Action:    domain.StockActionAdd,
			Quantity:  line.Quantity,
			Reason:    reason,
			Actor:     cmd.ActorID,
			Now:       now,
		}); err != nil {
			s.logger(ctx, "stock.restore.failed", map[string]any{
				"orderId":   cmd.OrderID,
				"productId": line.ProductID,
				"quantity":  line.Quantity,
				"error":     err.Error(),
			})
			if firstErr == nil {
				firstErr = s.mapStockError(err)
			}
		}
	}
	return firstErr
}

// Adjust applies an administrative stock correction.
func (s *stockService) Adjust(ctx context.Context, cmd AdjustStockCommand) (domain.Product, error) {
	if !cmd.Actor.IsAdmin() {
		return domain.Product{}, ErrStockForbidden
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	if cmd.Quantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: quantity must not be negative", ErrStockInvalidInput)
	}

	result, err := s.products.ApplyStockAdjustment(ctx, repositories.StockAdjustment{
		ProductID: productID,
		Action:    cmd.Action,
		Quantity:  cmd.Quantity,
		Reason:    strings.TrimSpace(cmd.Reason),
		Actor:     cmd.Actor.UserID,
		Now:       s.clock(),
	})
	if err != nil {
		return domain.Product{}, s.mapStockError(err)
	}

	if result.Product.LowStock {
		s.logger(ctx, "stock.low", map[string]any{
			"productId": result.Product.ID,
			"sku":       result.Product.SKU,
			"stock":     result.Product.Stock,
			"threshold": result.Product.LowStockThreshold,
		})
	}
	return result.Product, nil
}

// ListLowStock pages products at or below their threshold.
func (s *stockService) ListLowStock(ctx context.Context, actor domain.Actor, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	if !actor.IsAdmin() {
		return domain.CursorPage[domain.Product]{}, ErrStockForbidden
	}
	page, err := s.products.ListLowStock(ctx, pager)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, s.mapStockError(err)
	}
	return page, nil
}

// AuditTrail pages a product's stock mutation history.
func (s *stockService) AuditTrail(ctx context.Context, actor domain.Actor, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockAuditEntry], error) {
	if !actor.IsAdmin() {
		return domain.CursorPage[domain.StockAuditEntry]{}, ErrStockForbidden
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[domain.StockAuditEntry]{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	page, err := s.products.ListAuditTrail(ctx, productID, pager)
	if err != nil {
		return domain.CursorPage[domain.StockAuditEntry]{}, s.mapStockError(err)
	}
	return page, nil
}

func (s *stockService) mapStockError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrStockInsufficient, stockErr.Message)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrStockProductNotFound, stockErr.Message)
		case repositories.StockErrorInvalidAdjustment:
			return fmt.Errorf("%w: %s", ErrStockInvalidInput, stockErr.Message)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrStockProductNotFound, err)
	}
	return err
}

func defaultOrderRef(orderNumber, orderID string) string {
	if trimmed := strings.TrimSpace(orderNumber); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(orderID)
}
