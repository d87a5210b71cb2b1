package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/supplyvend/api/internal/domain"
	pfirestore "github.com/supplyvend/api/internal/platform/firestore"
)

const ordersCollection = "orders"

type digitalDeliveryDocument struct {
	Status          string     `firestore:"status"`
	DownloadLink    string     `firestore:"downloadLink,omitempty"`
	DownloadCount   int        `firestore:"downloadCount"`
	DownloadLimit   int        `firestore:"downloadLimit"`
	AccessExpiresAt *time.Time `firestore:"accessExpiresAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string                   `firestore:"productId"`
	Name      string                   `firestore:"name"`
	SKU       string                   `firestore:"sku"`
	UnitPrice string                   `firestore:"unitPrice"`
	Quantity  int                      `firestore:"quantity"`
	Kind      string                   `firestore:"kind"`
	Digital   *digitalDeliveryDocument `firestore:"digitalDelivery,omitempty"`
}

type statusHistoryDocument struct {
	Status     string    `firestore:"status"`
	Note       string    `firestore:"note,omitempty"`
	Actor      string    `firestore:"actor,omitempty"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

type paymentRecordDocument struct {
	Method        string     `firestore:"method,omitempty"`
	Amount        string     `firestore:"amount"`
	Currency      string     `firestore:"currency"`
	Status        string     `firestore:"status"`
	TransactionID string     `firestore:"transactionId,omitempty"`
	CompletedAt   *time.Time `firestore:"completedAt,omitempty"`
}

type orderDocument struct {
	OrderNumber      string                  `firestore:"orderNumber"`
	UserID           string                  `firestore:"userId"`
	Items            []orderItemDocument     `firestore:"items"`
	ItemsCount       int                     `firestore:"itemsCount"`
	Currency         string                  `firestore:"currency"`
	Subtotal         string                  `firestore:"subtotal"`
	TaxRate          string                  `firestore:"taxRate"`
	TaxAmount        string                  `firestore:"taxAmount"`
	ShippingAmount   string                  `firestore:"shippingAmount"`
	TotalAmount      string                  `firestore:"totalAmount"`
	Status           string                  `firestore:"status"`
	StatusHistory    []statusHistoryDocument `firestore:"statusHistory"`
	Payment          paymentRecordDocument   `firestore:"payment"`
	Shipping         *addressDocument        `firestore:"shipping,omitempty"`
	Billing          *addressDocument        `firestore:"billing,omitempty"`
	HasDigitalItems  bool                    `firestore:"hasDigitalItems"`
	HasPhysicalItems bool                    `firestore:"hasPhysicalItems"`
	CancelReason     string                  `firestore:"cancelReason,omitempty"`
	CreatedAt        time.Time               `firestore:"createdAt"`
	UpdatedAt        time.Time               `firestore:"updatedAt"`
	PaidAt           *time.Time              `firestore:"paidAt,omitempty"`
	ShippedAt        *time.Time              `firestore:"shippedAt,omitempty"`
	DeliveredAt      *time.Time              `firestore:"deliveredAt,omitempty"`
	CompletedAt      *time.Time              `firestore:"completedAt,omitempty"`
	CancelledAt      *time.Time              `firestore:"cancelledAt,omitempty"`
}

// OrderRepository implements repositories.OrderRepository on Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

// Insert creates the order document, failing on duplicate ids.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order insert: id is required")
	}
	if _, err := client.Collection(ordersCollection).Doc(id).Create(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order update: id is required")
	}
	if _, err := client.Collection(ordersCollection).Doc(id).Set(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID loads one order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, pfirestore.NewNotFound("orders.findById", errors.New("order id is required"))
	}
	snap, err := client.Collection(ordersCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findById", err)
	}
	return decodeOrderSnapshot(snap)
}

// FindByNumber resolves an order by its customer-facing number.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return domain.Order{}, pfirestore.NewNotFound("orders.findByNumber", errors.New("order number is required"))
	}

	iter := client.Collection(ordersCollection).Where("orderNumber", "==", number).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, pfirestore.NewNotFound("orders.findByNumber", fmt.Errorf("order %s not found", number))
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByNumber", err)
	}
	return decodeOrderSnapshot(snap)
}

// ListByUser pages a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	pageSize := pager.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := client.Collection(ordersCollection).
		Where("userId", "==", strings.TrimSpace(userID)).
		OrderBy("createdAt", firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursor, err := time.Parse(time.RFC3339Nano, token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.listByUser",
				status.Error(codes.InvalidArgument, "invalid page token"))
		}
		query = query.StartAfter(cursor)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.listByUser", err)
		}
		order, err := decodeOrderSnapshot(snap)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		orders = append(orders, order)
	}

	page := domain.CursorPage[domain.Order]{Items: orders}
	if len(orders) > pageSize {
		page.Items = orders[:pageSize]
		page.NextPageToken = page.Items[pageSize-1].CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return page, nil
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		ItemsCount:       order.ItemsCount,
		Currency:         order.Currency,
		Subtotal:         encodeAmount(order.Totals.Subtotal),
		TaxRate:          order.Totals.TaxRate.String(),
		TaxAmount:        encodeAmount(order.Totals.TaxAmount),
		ShippingAmount:   encodeAmount(order.Totals.ShippingAmount),
		TotalAmount:      encodeAmount(order.Totals.Total),
		Status:           string(order.Status),
		Shipping:         newAddressDocument(order.Shipping),
		Billing:          newAddressDocument(order.Billing),
		HasDigitalItems:  order.HasDigitalItems,
		HasPhysicalItems: order.HasPhysicalItems,
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
		PaidAt:           optionalTime(order.PaidAt),
		ShippedAt:        optionalTime(order.ShippedAt),
		DeliveredAt:      optionalTime(order.DeliveredAt),
		CompletedAt:      optionalTime(order.CompletedAt),
		CancelledAt:      optionalTime(order.CancelledAt),
	}
	if order.CancelReason != nil {
		doc.CancelReason = *order.CancelReason
	}

	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		itemDoc := orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			UnitPrice: encodeAmount(item.UnitPrice),
			Quantity:  item.Quantity,
			Kind:      string(item.Kind),
		}
		if item.Digital != nil {
			itemDoc.Digital = &digitalDeliveryDocument{
				Status:          string(item.Digital.Status),
				DownloadLink:    item.Digital.DownloadLink,
				DownloadCount:   item.Digital.DownloadCount,
				DownloadLimit:   item.Digital.DownloadLimit,
				AccessExpiresAt: optionalTime(item.Digital.AccessExpiresAt),
			}
		}
		doc.Items = append(doc.Items, itemDoc)
	}

	doc.StatusHistory = make([]statusHistoryDocument, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusHistoryDocument{
			Status:     string(entry.Status),
			Note:       entry.Note,
			Actor:      entry.Actor,
			OccurredAt: entry.OccurredAt.UTC(),
		})
	}

	doc.Payment = paymentRecordDocument{
		Method:        string(order.Payment.Method),
		Amount:        encodeAmount(order.Payment.Amount),
		Currency:      order.Payment.Currency,
		Status:        string(order.Payment.Status),
		TransactionID: order.Payment.TransactionID,
		CompletedAt:   optionalTime(order.Payment.CompletedAt),
	}

	return doc
}

func decodeOrderSnapshot(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}

	subtotal, err := decodeAmount(doc.Subtotal)
	if err != nil {
		return domain.Order{}, err
	}
	taxRate, err := decodeAmount(doc.TaxRate)
	if err != nil {
		return domain.Order{}, err
	}
	taxAmount, err := decodeAmount(doc.TaxAmount)
	if err != nil {
		return domain.Order{}, err
	}
	shipping, err := decodeAmount(doc.ShippingAmount)
	if err != nil {
		return domain.Order{}, err
	}
	total, err := decodeAmount(doc.TotalAmount)
	if err != nil {
		return domain.Order{}, err
	}
	paymentAmount, err := decodeAmount(doc.Payment.Amount)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:          snap.Ref.ID,
		OrderNumber: doc.OrderNumber,
		UserID:      doc.UserID,
		ItemsCount:  doc.ItemsCount,
		Currency:    doc.Currency,
		Totals: domain.OrderTotals{
			Subtotal:       subtotal,
			TaxRate:        taxRate,
			TaxAmount:      taxAmount,
			ShippingAmount: shipping,
			Total:          total,
		},
		Status:           domain.OrderStatus(doc.Status),
		Shipping:         doc.Shipping.toDomain(),
		Billing:          doc.Billing.toDomain(),
		HasDigitalItems:  doc.HasDigitalItems,
		HasPhysicalItems: doc.HasPhysicalItems,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		PaidAt:           doc.PaidAt,
		ShippedAt:        doc.ShippedAt,
		DeliveredAt:      doc.DeliveredAt,
		CompletedAt:      doc.CompletedAt,
		CancelledAt:      doc.CancelledAt,
	}
	if doc.CancelReason != "" {
		reason := doc.CancelReason
		order.CancelReason = &reason
	}

	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, itemDoc := range doc.Items {
		unitPrice, err := decodeAmount(itemDoc.UnitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		item := domain.OrderItem{
			ProductID: itemDoc.ProductID,
			Name:      itemDoc.Name,
			SKU:       itemDoc.SKU,
			UnitPrice: unitPrice,
			Quantity:  itemDoc.Quantity,
			Kind:      domain.ProductKind(itemDoc.Kind),
		}
		if itemDoc.Digital != nil {
			item.Digital = &domain.DigitalDelivery{
				Status:          domain.DeliveryStatus(itemDoc.Digital.Status),
				DownloadLink:    itemDoc.Digital.DownloadLink,
				DownloadCount:   itemDoc.Digital.DownloadCount,
				DownloadLimit:   itemDoc.Digital.DownloadLimit,
				AccessExpiresAt: itemDoc.Digital.AccessExpiresAt,
			}
		}
		order.Items = append(order.Items, item)
	}

	order.StatusHistory = make([]domain.StatusHistoryEntry, 0, len(doc.StatusHistory))
	for _, entry := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:     domain.OrderStatus(entry.Status),
			Note:       entry.Note,
			Actor:      entry.Actor,
			OccurredAt: entry.OccurredAt,
		})
	}

	order.Payment = domain.PaymentRecord{
		Method:        domain.PaymentMethod(doc.Payment.Method),
		Amount:        paymentAmount,
		Currency:      doc.Payment.Currency,
		Status:        domain.PaymentRecordStatus(doc.Payment.Status),
		TransactionID: doc.Payment.TransactionID,
		CompletedAt:   doc.Payment.CompletedAt,
	}

	return order, nil
}
