package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix = "ord_"

	stockFailureNote = "Failed to reserve stock"

	defaultDownloadLimit = 5
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutProductNotFound indicates an item references a missing product.
	ErrCheckoutProductNotFound = errors.New("checkout: product not found")
	// ErrCheckoutInsufficientStock indicates the reservation failed and the
	// order was cancelled.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutForbidden indicates the actor may not order for this user.
	ErrCheckoutForbidden = errors.New("checkout: forbidden")
)

// PricingPolicy carries the totals computation inputs.
type PricingPolicy struct {
	Currency         string
	TaxRate          decimal.Decimal
	ShippingFlatRate decimal.Decimal
}

// CheckoutServiceDeps bundles collaborators for the checkout service.
type CheckoutServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Stock       StockService
	Numbering   NumberingService
	Pricing     PricingPolicy
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	stock     StockService
	numbering NumberingService
	pricing   PricingPolicy
	clock     func() time.Time
	newID     func() string
	events    OrderEventPublisher
	logger    func(context.Context, string, map[string]any)
}

// NewCheckoutService wires dependencies into a CheckoutService.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("checkout service: stock service is required")
	}
	if deps.Numbering == nil {
		return nil, errors.New("checkout service: numbering service is required")
	}
	if strings.TrimSpace(deps.Pricing.Currency) == "" {
		return nil, errors.New("checkout service: pricing currency is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		orders:    deps.Orders,
		products:  deps.Products,
		stock:     deps.Stock,
		numbering: deps.Numbering,
		pricing:   deps.Pricing,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
		events:    deps.Events,
		logger:    logger,
	}, nil
}

// CreateOrder snapshots the requested products, prices the order once,
// persists it, and reserves stock for the physical lines. A failed
// reservation cancels the order rather than leaving it half-placed.
func (s *checkoutService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		userID = cmd.Actor.UserID
	}
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if userID != cmd.Actor.UserID && !cmd.Actor.IsAdmin() {
		return domain.Order{}, ErrCheckoutForbidden
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item is required", ErrCheckoutInvalidInput)
	}

	now := s.clock()

	items, err := s.snapshotItems(ctx, cmd.Items, now)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:        orderIDPrefix + s.newID(),
		UserID:    userID,
		Items:     items,
		Currency:  s.pricing.Currency,
		Status:    domain.OrderStatusPending,
		Shipping:  cloneAddress(cmd.Shipping),
		Billing:   cloneAddress(cmd.Billing),
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.RecalculateFlags()

	if order.HasPhysicalItems && order.Shipping == nil {
		return domain.Order{}, fmt.Errorf("%w: shipping address is required for physical items", ErrCheckoutInvalidInput)
	}

	order.Totals = s.computeTotals(order)
	order.Payment = domain.PaymentRecord{
		Amount:   order.Totals.Total,
		Currency: order.Currency,
		Status:   domain.PaymentRecordStatusPending,
	}

	number, err := s.numbering.NextOrderNumber(ctx, now)
	if err != nil {
		return domain.Order{}, err
	}
	order.OrderNumber = number
	order.StatusHistory = []domain.StatusHistoryEntry{{
		Status:     domain.OrderStatusPending,
		Note:       "Order created",
		Actor:      cmd.Actor.UserID,
		OccurredAt: now,
	}}

	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if err := s.reserveStock(ctx, &order, cmd.Actor); err != nil {
		return domain.Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: order.Status,
		ActorID:       cmd.Actor.UserID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"itemsCount": order.ItemsCount,
			"total":      order.Totals.Total.StringFixed(2),
		},
	})

	return order, nil
}

func (s *checkoutService) snapshotItems(ctx context.Context, items []CheckoutItem, now time.Time) ([]domain.OrderItem, error) {
	out := make([]domain.OrderItem, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrCheckoutInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %s", ErrCheckoutInvalidInput, productID)
		}
		if seen[productID] {
			return nil, fmt.Errorf("%w: duplicate product %s", ErrCheckoutInvalidInput, productID)
		}
		seen[productID] = true

		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, fmt.Errorf("%w: %s", ErrCheckoutProductNotFound, productID)
			}
			return nil, err
		}

		orderItem := domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			SKU:       product.SKU,
			UnitPrice: domain.NormalizeAmount(product.EffectivePrice(now)),
			Quantity:  item.Quantity,
			Kind:      product.Kind,
		}
		if product.Kind.GrantsDigitalAccess() {
			limit := defaultDownloadLimit
			if product.Digital != nil && product.Digital.DownloadLimit > 0 {
				limit = product.Digital.DownloadLimit
			}
			orderItem.Digital = &domain.DigitalDelivery{
				Status:        domain.DeliveryStatusPending,
				DownloadLimit: limit,
			}
		}
		out = append(out, orderItem)
	}
	return out, nil
}

// computeTotals prices the order exactly once. Shipping applies only when
// something has to be shipped.
func (s *checkoutService) computeTotals(order domain.Order) domain.OrderTotals {
	subtotal := decimal.Zero
	for _, item := range order.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = domain.NormalizeAmount(subtotal)

	tax := domain.NormalizeAmount(subtotal.Mul(s.pricing.TaxRate))

	shipping := decimal.Zero
	if order.HasPhysicalItems {
		shipping = domain.NormalizeAmount(s.pricing.ShippingFlatRate)
	}

	return domain.OrderTotals{
		Subtotal:       subtotal,
		TaxRate:        s.pricing.TaxRate,
		TaxAmount:      tax,
		ShippingAmount: shipping,
		Total:          domain.NormalizeAmount(subtotal.Add(tax).Add(shipping)),
	}
}

func (s *checkoutService) reserveStock(ctx context.Context, order *domain.Order, actor domain.Actor) error {
	lines := physicalLines(order.Items)
	if len(lines) == 0 {
		return nil
	}

	err := s.stock.Reserve(ctx, ReserveStockCommand{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		ActorID:     actor.UserID,
		Lines:       lines,
	})
	if err == nil {
		return nil
	}

	now := s.clock()
	reason := stockFailureNote
	order.Status = domain.OrderStatusCancelled
	order.CancelReason = &reason
	order.CancelledAt = &now
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		Status:     domain.OrderStatusCancelled,
		Note:       stockFailureNote,
		Actor:      actor.UserID,
		OccurredAt: now,
	})
	if updateErr := s.orders.Update(ctx, *order); updateErr != nil {
		s.logger(ctx, "checkout.cancel.failed", map[string]any{
			"orderId": order.ID,
			"error":   updateErr.Error(),
		})
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: domain.OrderStatusPending,
		CurrentStatus:  domain.OrderStatusCancelled,
		ActorID:        actor.UserID,
		OccurredAt:     now,
		Metadata:       map[string]any{"reason": stockFailureNote},
	})

	if errors.Is(err, ErrStockInsufficient) || errors.Is(err, ErrStockProductNotFound) {
		return fmt.Errorf("%w: %v", ErrCheckoutInsufficientStock, err)
	}
	return err
}

func (s *checkoutService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCheckoutProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("checkout: conflict: %w", err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("checkout: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *checkoutService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func physicalLines(items []domain.OrderItem) []StockLine {
	var lines []StockLine
	for _, item := range items {
		if item.Kind.RequiresStock() {
			lines = append(lines, StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}
	}
	return lines
}

func cloneAddress(addr *domain.Address) *domain.Address {
	if addr == nil {
		return nil
	}
	copied := *addr
	return &copied
}
