package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/supplyvend/api/internal/domain"
	pfirestore "github.com/supplyvend/api/internal/platform/firestore"
	"github.com/supplyvend/api/internal/repositories"
)

const (
	productsCollection   = "products"
	stockAuditCollection = "stockAudits"
)

type digitalRulesDocument struct {
	DownloadLimit     int   `firestore:"downloadLimit"`
	AccessDurationSec int64 `firestore:"accessDurationSec"`
}

type productDocument struct {
	Name              string                `firestore:"name"`
	SKU               string                `firestore:"sku"`
	CategoryRef       string                `firestore:"categoryRef,omitempty"`
	Price             string                `firestore:"price"`
	SalePrice         string                `firestore:"salePrice,omitempty"`
	SaleStartsAt      *time.Time            `firestore:"saleStartsAt,omitempty"`
	SaleEndsAt        *time.Time            `firestore:"saleEndsAt,omitempty"`
	Stock             int                   `firestore:"stock"`
	LowStockThreshold int                   `firestore:"lowStockThreshold"`
	LowStock          bool                  `firestore:"lowStock"`
	Kind              string                `firestore:"kind"`
	Digital           *digitalRulesDocument `firestore:"digital,omitempty"`
	CreatedAt         time.Time             `firestore:"createdAt"`
	UpdatedAt         time.Time             `firestore:"updatedAt"`
}

type stockAuditDocument struct {
	ProductID     string    `firestore:"productId"`
	Action        string    `firestore:"action"`
	Quantity      int       `firestore:"quantity"`
	PreviousStock int       `firestore:"previousStock"`
	NewStock      int       `firestore:"newStock"`
	Reason        string    `firestore:"reason,omitempty"`
	Actor         string    `firestore:"actor,omitempty"`
	OccurredAt    time.Time `firestore:"occurredAt"`
}

// ProductRepository implements repositories.ProductRepository on Firestore.
// Stock mutations run inside Firestore transactions so concurrent checkouts
// cannot oversell.
type ProductRepository struct {
	provider *pfirestore.Provider
	entropy  func() string
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		entropy:  func() string { return ulid.Make().String() },
	}, nil
}

// FindByID loads one product document.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, pfirestore.NewNotFound("products.findById", errors.New("product id is required"))
	}
	snap, err := client.Collection(productsCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.findById", err)
	}
	return decodeProductSnapshot(snap)
}

// ApplyStockAdjustment re-reads the product inside a transaction, validates
// and applies the mutation, and appends the audit entry in the same commit.
func (r *ProductRepository) ApplyStockAdjustment(ctx context.Context, adj repositories.StockAdjustment) (repositories.StockAdjustmentResult, error) {
	productID := strings.TrimSpace(adj.ProductID)
	if productID == "" {
		return repositories.StockAdjustmentResult{}, repositories.NewStockError(
			repositories.StockErrorInvalidAdjustment, "product id is required", nil)
	}
	if adj.Quantity < 0 {
		return repositories.StockAdjustmentResult{}, repositories.NewStockError(
			repositories.StockErrorInvalidAdjustment, "quantity must not be negative", nil)
	}
	switch adj.Action {
	case domain.StockActionAdd, domain.StockActionRemove, domain.StockActionSet:
	default:
		return repositories.StockAdjustmentResult{}, repositories.NewStockError(
			repositories.StockErrorInvalidAdjustment, fmt.Sprintf("unknown action %q", adj.Action), nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.StockAdjustmentResult{}, err
	}

	now := adj.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result repositories.StockAdjustmentResult
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		productRef := client.Collection(productsCollection).Doc(productID)
		snap, err := tx.Get(productRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound,
					fmt.Sprintf("product %s not found", productID), err)
			}
			return pfirestore.WrapError("products.applyStockAdjustment", err)
		}
		product, err := decodeProductSnapshot(snap)
		if err != nil {
			return err
		}

		previous := product.Stock
		switch adj.Action {
		case domain.StockActionAdd:
			product.Stock = previous + adj.Quantity
		case domain.StockActionRemove:
			if adj.Quantity > previous {
				return repositories.NewStockError(repositories.StockErrorInsufficientStock,
					fmt.Sprintf("product %s has %d in stock, requested %d", productID, previous, adj.Quantity), nil)
			}
			product.Stock = previous - adj.Quantity
		case domain.StockActionSet:
			product.Stock = adj.Quantity
		}
		product.LowStock = product.Stock <= product.LowStockThreshold
		product.UpdatedAt = now

		audit := domain.StockAuditEntry{
			ID:            r.entropy(),
			ProductID:     productID,
			Action:        adj.Action,
			Quantity:      adj.Quantity,
			PreviousStock: previous,
			NewStock:      product.Stock,
			Reason:        adj.Reason,
			Actor:         adj.Actor,
			OccurredAt:    now,
		}

		if err := tx.Set(productRef, newProductDocument(product)); err != nil {
			return pfirestore.WrapError("products.applyStockAdjustment", err)
		}
		auditRef := client.Collection(stockAuditCollection).Doc(audit.ID)
		if err := tx.Create(auditRef, newStockAuditDocument(audit)); err != nil {
			return pfirestore.WrapError("products.applyStockAdjustment", err)
		}

		result = repositories.StockAdjustmentResult{Product: product, Audit: audit}
		return nil
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return repositories.StockAdjustmentResult{}, stockErr
		}
		return repositories.StockAdjustmentResult{}, pfirestore.WrapError("products.applyStockAdjustment", err)
	}
	return result, nil
}

// ListLowStock pages products whose stock sits at or below their threshold.
func (r *ProductRepository) ListLowStock(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Product], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	pageSize := pager.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := client.Collection(productsCollection).
		Where("lowStock", "==", true).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		query = query.StartAfter(token)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.listLowStock", err)
		}
		product, err := decodeProductSnapshot(snap)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		products = append(products, product)
	}

	page := domain.CursorPage[domain.Product]{Items: products}
	if len(products) > pageSize {
		page.Items = products[:pageSize]
		page.NextPageToken = page.Items[pageSize-1].ID
	}
	return page, nil
}

// ListAuditTrail pages a product's stock audit entries, newest first.
func (r *ProductRepository) ListAuditTrail(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.StockAuditEntry], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.StockAuditEntry]{}, err
	}

	pageSize := pager.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := client.Collection(stockAuditCollection).
		Where("productId", "==", strings.TrimSpace(productID)).
		OrderBy("occurredAt", firestore.Desc).
		Limit(pageSize + 1)
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursor, err := time.Parse(time.RFC3339Nano, token)
		if err != nil {
			return domain.CursorPage[domain.StockAuditEntry]{}, pfirestore.WrapError("products.listAuditTrail",
				status.Error(codes.InvalidArgument, "invalid page token"))
		}
		query = query.StartAfter(cursor)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []domain.StockAuditEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.StockAuditEntry]{}, pfirestore.WrapError("products.listAuditTrail", err)
		}
		var doc stockAuditDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.StockAuditEntry]{}, fmt.Errorf("decode stock audit %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, domain.StockAuditEntry{
			ID:            snap.Ref.ID,
			ProductID:     doc.ProductID,
			Action:        domain.StockAction(doc.Action),
			Quantity:      doc.Quantity,
			PreviousStock: doc.PreviousStock,
			NewStock:      doc.NewStock,
			Reason:        doc.Reason,
			Actor:         doc.Actor,
			OccurredAt:    doc.OccurredAt,
		})
	}

	page := domain.CursorPage[domain.StockAuditEntry]{Items: entries}
	if len(entries) > pageSize {
		page.Items = entries[:pageSize]
		page.NextPageToken = page.Items[pageSize-1].OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return page, nil
}

func newProductDocument(product domain.Product) productDocument {
	doc := productDocument{
		Name:              product.Name,
		SKU:               product.SKU,
		CategoryRef:       product.CategoryRef,
		Price:             encodeAmount(product.Price),
		SalePrice:         encodeOptionalAmount(product.SalePrice),
		SaleStartsAt:      optionalTime(product.SaleStartsAt),
		SaleEndsAt:        optionalTime(product.SaleEndsAt),
		Stock:             product.Stock,
		LowStockThreshold: product.LowStockThreshold,
		LowStock:          product.LowStock,
		Kind:              string(product.Kind),
		CreatedAt:         product.CreatedAt.UTC(),
		UpdatedAt:         product.UpdatedAt.UTC(),
	}
	if product.Digital != nil {
		doc.Digital = &digitalRulesDocument{
			DownloadLimit:     product.Digital.DownloadLimit,
			AccessDurationSec: int64(product.Digital.AccessDuration / time.Second),
		}
	}
	return doc
}

func newStockAuditDocument(entry domain.StockAuditEntry) stockAuditDocument {
	return stockAuditDocument{
		ProductID:     entry.ProductID,
		Action:        string(entry.Action),
		Quantity:      entry.Quantity,
		PreviousStock: entry.PreviousStock,
		NewStock:      entry.NewStock,
		Reason:        entry.Reason,
		Actor:         entry.Actor,
		OccurredAt:    entry.OccurredAt.UTC(),
	}
}

func decodeProductSnapshot(snap *firestore.DocumentSnapshot) (domain.Product, error) {
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
	}

	price, err := decodeAmount(doc.Price)
	if err != nil {
		return domain.Product{}, err
	}
	salePrice, err := decodeOptionalAmount(doc.SalePrice)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:                snap.Ref.ID,
		Name:              doc.Name,
		SKU:               doc.SKU,
		CategoryRef:       doc.CategoryRef,
		Price:             price,
		SalePrice:         salePrice,
		SaleStartsAt:      doc.SaleStartsAt,
		SaleEndsAt:        doc.SaleEndsAt,
		Stock:             doc.Stock,
		LowStockThreshold: doc.LowStockThreshold,
		LowStock:          doc.LowStock,
		Kind:              domain.ProductKind(doc.Kind),
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
	if doc.Digital != nil {
		product.Digital = &domain.DigitalAccessRules{
			DownloadLimit:  doc.Digital.DownloadLimit,
			AccessDuration: time.Duration(doc.Digital.AccessDurationSec) * time.Second,
		}
	}
	return product, nil
}
