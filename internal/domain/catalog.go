package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductKind distinguishes how a product is fulfilled.
type ProductKind string

const (
	// ProductKindPhysical is shipped and consumes stock.
	ProductKindPhysical ProductKind = "physical"
	// ProductKindDigital is delivered by download link and never consumes stock.
	ProductKindDigital ProductKind = "digital"
	// ProductKindBoth ships a physical copy and grants digital access.
	ProductKindBoth ProductKind = "both"
)

// RequiresStock reports whether ordering this kind decrements inventory.
func (k ProductKind) RequiresStock() bool {
	return k == ProductKindPhysical || k == ProductKindBoth
}

// GrantsDigitalAccess reports whether this kind carries a digital delivery.
func (k ProductKind) GrantsDigitalAccess() bool {
	return k == ProductKindDigital || k == ProductKindBoth
}

// DigitalAccessRules configures download entitlements for digital products.
type DigitalAccessRules struct {
	DownloadLimit  int
	AccessDuration time.Duration
}

// Product is the catalog record the order core reads and whose stock it
// mutates. Catalog management itself lives with an external collaborator.
type Product struct {
	ID                string
	Name              string
	SKU               string
	CategoryRef       string
	Price             decimal.Decimal
	SalePrice         *decimal.Decimal
	SaleStartsAt      *time.Time
	SaleEndsAt        *time.Time
	Stock             int
	LowStockThreshold int
	LowStock          bool
	Kind              ProductKind
	Digital           *DigitalAccessRules
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SaleActive reports whether the sale window covers the given instant.
func (p Product) SaleActive(now time.Time) bool {
	if p.SalePrice == nil {
		return false
	}
	if p.SaleStartsAt != nil && now.Before(*p.SaleStartsAt) {
		return false
	}
	if p.SaleEndsAt != nil && now.After(*p.SaleEndsAt) {
		return false
	}
	return true
}

// EffectivePrice returns the unit price in force at the given instant.
func (p Product) EffectivePrice(now time.Time) decimal.Decimal {
	if p.SaleActive(now) {
		return *p.SalePrice
	}
	return p.Price
}

// StockAction enumerates the kinds of stock ledger mutations.
type StockAction string

const (
	// StockActionRemove records a reservation decrement.
	StockActionRemove StockAction = "remove"
	// StockActionAdd records a restoration increment.
	StockActionAdd StockAction = "add"
	// StockActionSet records an administrative absolute adjustment.
	StockActionSet StockAction = "set"
)

// StockAuditEntry is one line of the append-only per-product stock trail.
type StockAuditEntry struct {
	ID            string
	ProductID     string
	Action        StockAction
	Quantity      int
	PreviousStock int
	NewStock      int
	Reason        string
	Actor         string
	OccurredAt    time.Time
}
