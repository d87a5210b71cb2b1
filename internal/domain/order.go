package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusProcessing       OrderStatus = "processing"
	OrderStatusPaymentPending   OrderStatus = "payment_pending"
	OrderStatusPaymentFailed    OrderStatus = "payment_failed"
	OrderStatusPaid             OrderStatus = "paid"
	OrderStatusReadyForShipping OrderStatus = "ready_for_shipping"
	OrderStatusShipped          OrderStatus = "shipped"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusRefunded         OrderStatus = "refunded"
)

// orderStateTransitions lists every legal status edge. Anything outside
// this table is rejected and leaves the order untouched.
var orderStateTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:          {OrderStatusProcessing, OrderStatusPaymentPending, OrderStatusCancelled},
	OrderStatusProcessing:       {OrderStatusReadyForShipping, OrderStatusShipped, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusPaymentPending:   {OrderStatusPaid, OrderStatusPaymentFailed, OrderStatusCancelled},
	OrderStatusPaymentFailed:    {OrderStatusPaymentPending, OrderStatusCancelled},
	OrderStatusPaid:             {OrderStatusProcessing, OrderStatusReadyForShipping, OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusReadyForShipping: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:          {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:        {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusCompleted:        {OrderStatusRefunded},
	OrderStatusCancelled:        {},
	OrderStatusRefunded:         {},
}

// CanTransitionOrder reports whether the order status edge is legal.
func CanTransitionOrder(current, target OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// OrderStatusValid reports whether the value names a known order status.
func OrderStatusValid(s OrderStatus) bool {
	_, ok := orderStateTransitions[s]
	return ok
}

// DeliveryStatus tracks the state of a digital line item's fulfilment.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// DigitalDelivery is the access-granting sub-record attached to a digital
// order item.
type DigitalDelivery struct {
	Status          DeliveryStatus
	DownloadLink    string
	DownloadCount   int
	DownloadLimit   int
	AccessExpiresAt *time.Time
}

// OrderItem is a frozen snapshot of a product at purchase time. Prices and
// names on the item never track later catalog edits.
type OrderItem struct {
	ProductID string
	Name      string
	SKU       string
	UnitPrice decimal.Decimal
	Quantity  int
	Kind      ProductKind
	Digital   *DigitalDelivery
}

// LineTotal returns unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderTotals are computed once at creation and immutable afterwards.
type OrderTotals struct {
	Subtotal       decimal.Decimal
	TaxRate        decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	Total          decimal.Decimal
}

// StatusHistoryEntry is one line of the append-only order status log.
type StatusHistoryEntry struct {
	Status     OrderStatus
	Note       string
	Actor      string
	OccurredAt time.Time
}

// PaymentRecordStatus tracks the order-side view of payment progress.
type PaymentRecordStatus string

const (
	PaymentRecordStatusPending   PaymentRecordStatus = "pending"
	PaymentRecordStatusCompleted PaymentRecordStatus = "completed"
	PaymentRecordStatusFailed    PaymentRecordStatus = "failed"
	PaymentRecordStatusRefunded  PaymentRecordStatus = "refunded"
)

// PaymentRecord is the payment sub-record embedded in the order. The full
// payment attempt history lives on Transaction documents; the order only
// mirrors the currently active attempt.
type PaymentRecord struct {
	Method        PaymentMethod
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentRecordStatus
	TransactionID string
	CompletedAt   *time.Time
}

// Order is the aggregate root for a customer purchase. Orders are financial
// records: they are never hard-deleted, and all mutation flows through the
// state machine.
type Order struct {
	ID            string
	OrderNumber   string
	UserID        string
	Items         []OrderItem
	ItemsCount    int
	Currency      string
	Totals        OrderTotals
	Status        OrderStatus
	StatusHistory []StatusHistoryEntry
	Payment       PaymentRecord
	Shipping      *Address
	Billing       *Address

	HasDigitalItems  bool
	HasPhysicalItems bool

	CancelReason *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// DigitalOnly reports whether the order contains no physical fulfilment.
func (o Order) DigitalOnly() bool {
	return o.HasDigitalItems && !o.HasPhysicalItems
}

// RecalculateFlags derives the item-kind flags and count from the items
// slice. Called once at construction; the flags are invariant afterwards.
func (o *Order) RecalculateFlags() {
	o.ItemsCount = len(o.Items)
	o.HasDigitalItems = false
	o.HasPhysicalItems = false
	for _, item := range o.Items {
		if item.Kind.GrantsDigitalAccess() {
			o.HasDigitalItems = true
		}
		if item.Kind.RequiresStock() {
			o.HasPhysicalItems = true
		}
	}
}
