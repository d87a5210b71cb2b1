package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/supplyvend/api/internal/domain"
)

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus domain.OrderStatus
	CurrentStatus  domain.OrderStatus
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// CheckoutItem names one product and quantity in a checkout request.
type CheckoutItem struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand carries the checkout payload.
type CreateOrderCommand struct {
	Actor    domain.Actor
	UserID   string
	Items    []CheckoutItem
	Shipping *domain.Address
	Billing  *domain.Address
}

// CheckoutService turns a validated cart into a priced, stock-reserved order.
type CheckoutService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
}

// TransitionOrderCommand moves an order along the status state machine.
type TransitionOrderCommand struct {
	Actor        domain.Actor
	OrderID      string
	TargetStatus domain.OrderStatus
	Note         string
}

// CancelOrderCommand cancels an order with an optional reason.
type CancelOrderCommand struct {
	Actor   domain.Actor
	OrderID string
	Reason  string
}

// RecordPaymentAttemptCommand mirrors the active payment attempt onto the
// order and moves it into payment_pending.
type RecordPaymentAttemptCommand struct {
	OrderID string
	ActorID string
	Record  domain.PaymentRecord
}

// OrderService exposes order reads and the status state machine.
type OrderService interface {
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	GetOrderByNumber(ctx context.Context, actor domain.Actor, orderNumber string) (domain.Order, error)
	ListOrders(ctx context.Context, actor domain.Actor, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	TransitionStatus(ctx context.Context, cmd TransitionOrderCommand) (domain.Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	RecordPaymentAttempt(ctx context.Context, cmd RecordPaymentAttemptCommand) (domain.Order, error)
}

// InitiatePaymentCommand opens a payment attempt for an order.
type InitiatePaymentCommand struct {
	Actor       domain.Actor
	OrderID     string
	Method      domain.PaymentMethod
	PhoneNumber string
	Email       string
	ReturnURL   string
}

// PaymentInitiation is returned to the client after an attempt is opened.
type PaymentInitiation struct {
	Transaction  domain.Transaction
	ClientSecret string
	RedirectURL  string
	Instructions map[string]string
	NextAction   string
}

// WebhookCommand carries one inbound provider notification.
type WebhookCommand struct {
	ProviderSlug string
	Body         []byte
	Signature    string
	SourceIP     string
}

// ManualProofCommand submits the customer's proof of a manual settlement.
type ManualProofCommand struct {
	Actor         domain.Actor
	TransactionID string
	Reference     string
	ReceiptNumber string
	SenderName    string
}

// VerifyManualPaymentCommand records an administrator's settlement decision.
type VerifyManualPaymentCommand struct {
	Actor         domain.Actor
	TransactionID string
	Approve       bool
	Note          string
}

// RefundPaymentCommand returns funds against a completed transaction.
type RefundPaymentCommand struct {
	Actor         domain.Actor
	TransactionID string
	Amount        decimal.Decimal
	Reason        string
}

// PaymentService owns payment attempts: initiation, webhook reconciliation,
// manual verification, and refunds.
type PaymentService interface {
	InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInitiation, error)
	HandleWebhook(ctx context.Context, cmd WebhookCommand) error
	SubmitManualProof(ctx context.Context, cmd ManualProofCommand) (domain.Transaction, error)
	VerifyManualPayment(ctx context.Context, cmd VerifyManualPaymentCommand) (domain.Transaction, error)
	RefundPayment(ctx context.Context, cmd RefundPaymentCommand) (domain.Transaction, error)
	GetTransaction(ctx context.Context, actor domain.Actor, transactionID string) (domain.Transaction, error)
	ListOrderTransactions(ctx context.Context, actor domain.Actor, orderID string) ([]domain.Transaction, error)
}

// StockLine names one product and quantity in a reservation or restoration.
type StockLine struct {
	ProductID string
	Quantity  int
}

// ReserveStockCommand decrements stock for an order's physical lines.
type ReserveStockCommand struct {
	OrderID     string
	OrderNumber string
	ActorID     string
	Lines       []StockLine
}

// RestoreStockCommand returns previously reserved stock.
type RestoreStockCommand struct {
	OrderID     string
	OrderNumber string
	ActorID     string
	Reason      string
	Lines       []StockLine
}

// AdjustStockCommand applies an administrative stock correction.
type AdjustStockCommand struct {
	Actor     domain.Actor
	ProductID string
	Action    domain.StockAction
	Quantity  int
	Reason    string
}

// StockService owns inventory mutations and their audit trail.
type StockService interface {
	Reserve(ctx context.Context, cmd ReserveStockCommand) error
	Restore(ctx context.Context, cmd RestoreStockCommand) error
	Adjust(ctx context.Context, cmd AdjustStockCommand) (domain.Product, error)
	ListLowStock(ctx context.Context, actor domain.Actor, pager domain.Pagination) (domain.CursorPage[domain.Product], error)
	AuditTrail(ctx context.Context, actor domain.Actor, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockAuditEntry], error)
}

// RedeemDownloadCommand exchanges a signed download token for access.
type RedeemDownloadCommand struct {
	Token    string
	SourceIP string
}

// DownloadGrant is the successful result of redeeming a download token.
type DownloadGrant struct {
	OrderID            string
	ProductID          string
	ProductName        string
	RemainingDownloads int
	ExpiresAt          *time.Time
}

// DeliveryService issues and redeems digital download access.
type DeliveryService interface {
	IssueDigitalAccess(ctx context.Context, order *domain.Order, now time.Time) error
	RedeemDownload(ctx context.Context, cmd RedeemDownloadCommand) (DownloadGrant, error)
}

// NumberingService issues order numbers and transaction identifiers.
type NumberingService interface {
	NextOrderNumber(ctx context.Context, now time.Time) (string, error)
	NextTransactionID(method domain.PaymentMethod, now time.Time) (string, error)
}
