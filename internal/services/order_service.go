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
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an illegal status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderForbidden indicates the actor may not act on this order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderConflict indicates duplicate writes or concurrent updates.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles collaborators for the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Stock    StockService
	Delivery DeliveryService
	Clock    func() time.Time
	Events   OrderEventPublisher
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	stock    StockService
	delivery DeliveryService
	clock    func() time.Time
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into an OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:   deps.Orders,
		stock:    deps.Stock,
		delivery: deps.Delivery,
		clock:    func() time.Time { return clock().UTC() },
		events:   deps.Events,
		logger:   logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(actor, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, actor domain.Actor, orderNumber string) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(actor, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor domain.Actor, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID && !actor.IsAdmin() {
		return domain.CursorPage[domain.Order]{}, ErrOrderForbidden
	}
	page, err := s.orders.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// TransitionStatus moves an order to the target status and applies the
// status side effects. Secondary effects that touch other documents are
// applied after the order commits; their failures are logged, never rolled
// back into the transition.
func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (domain.Order, error) {
	if !cmd.Actor.IsAdmin() {
		return domain.Order{}, ErrOrderForbidden
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.OrderStatusValid(cmd.TargetStatus) {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	return s.transition(ctx, order, cmd.TargetStatus, cmd.Actor.UserID, cmd.Note)
}

// Cancel cancels an order with a reason. Customers may cancel their own
// orders while cancellation is still a legal edge.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(cmd.Actor, order); err != nil {
		return domain.Order{}, err
	}

	reason := strings.TrimSpace(cmd.Reason)
	if reason != "" {
		order.CancelReason = &reason
	}
	note := reason
	if note == "" {
		note = "Order cancelled"
	}

	return s.transition(ctx, order, domain.OrderStatusCancelled, cmd.Actor.UserID, note)
}

// RecordPaymentAttempt mirrors the active payment attempt onto the order
// and moves it into payment_pending when it is not there already.
func (s *orderService) RecordPaymentAttempt(ctx context.Context, cmd RecordPaymentAttemptCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusPaymentPending, domain.OrderStatusPaymentFailed:
	default:
		return domain.Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, order.ID, order.Status)
	}

	order.Payment = cmd.Record
	if order.Status != domain.OrderStatusPaymentPending {
		return s.transition(ctx, order, domain.OrderStatusPaymentPending, cmd.ActorID, "Payment initiated")
	}

	order.UpdatedAt = s.clock()
	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// transition validates the edge, mutates the order document, persists it,
// then runs the post-commit side effects.
func (s *orderService) transition(ctx context.Context, order domain.Order, target domain.OrderStatus, actorID, note string) (domain.Order, error) {
	previous := order.Status
	// Re-asserting the current status is a no-op with no history entry:
	// reconciliation paths re-drive statuses they may already have applied.
	if previous == target {
		return order, nil
	}
	if !domain.CanTransitionOrder(previous, target) {
		return domain.Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, previous, target)
	}

	now := s.clock()
	order.Status = target
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		Status:     target,
		Note:       note,
		Actor:      actorID,
		OccurredAt: now,
	})
	s.applyStatusEffects(ctx, &order, target, now)

	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: previous,
		CurrentStatus:  target,
		ActorID:        actorID,
		OccurredAt:     now,
		Metadata:       map[string]any{"note": note},
	})

	s.runPostCommitEffects(ctx, &order, previous, target, actorID)

	return order, nil
}

// applyStatusEffects mutates the order document for effects that must land
// in the same write as the transition.
func (s *orderService) applyStatusEffects(ctx context.Context, order *domain.Order, target domain.OrderStatus, now time.Time) {
	switch target {
	case domain.OrderStatusPaid:
		order.PaidAt = &now
		order.Payment.Status = domain.PaymentRecordStatusCompleted
		order.Payment.CompletedAt = &now
	case domain.OrderStatusPaymentFailed:
		order.Payment.Status = domain.PaymentRecordStatusFailed
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCompleted:
		order.CompletedAt = &now
		s.issueDigitalAccess(ctx, order, now)
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	case domain.OrderStatusRefunded:
		order.Payment.Status = domain.PaymentRecordStatusRefunded
	}
}

// runPostCommitEffects performs the cross-document side effects of a
// committed transition. Failures are logged and never unwind the order.
func (s *orderService) runPostCommitEffects(ctx context.Context, order *domain.Order, previous, target domain.OrderStatus, actorID string) {
	switch target {
	case domain.OrderStatusPaid:
		if order.DigitalOnly() {
			completed, err := s.transition(ctx, *order, domain.OrderStatusCompleted, actorID, "Digital order auto-completed")
			if err != nil {
				s.logger(ctx, "order.autocomplete.failed", map[string]any{
					"orderId": order.ID,
					"error":   err.Error(),
				})
				return
			}
			*order = completed
		}
	case domain.OrderStatusCancelled:
		if previous == domain.OrderStatusCompleted {
			return
		}
		lines := physicalLines(order.Items)
		if len(lines) == 0 || s.stock == nil {
			return
		}
		err := s.stock.Restore(ctx, RestoreStockCommand{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			ActorID:     actorID,
			Reason:      fmt.Sprintf("Order %s cancelled", order.OrderNumber),
			Lines:       lines,
		})
		if err != nil {
			s.logger(ctx, "order.cancel.restock.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}
}

func (s *orderService) issueDigitalAccess(ctx context.Context, order *domain.Order, now time.Time) {
	if !order.HasDigitalItems || s.delivery == nil {
		return
	}
	if err := s.delivery.IssueDigitalAccess(ctx, order, now); err != nil {
		s.logger(ctx, "order.delivery.issue.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		for i := range order.Items {
			if order.Items[i].Digital != nil && order.Items[i].Digital.Status == domain.DeliveryStatusPending {
				order.Items[i].Digital.Status = domain.DeliveryStatusFailed
			}
		}
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
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

func authorizeOrderAccess(actor domain.Actor, order domain.Order) error {
	if actor.IsAdmin() {
		return nil
	}
	if strings.TrimSpace(actor.UserID) == "" || actor.UserID != order.UserID {
		return ErrOrderForbidden
	}
	return nil
}
