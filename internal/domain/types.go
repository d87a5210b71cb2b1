package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Pagination carries cursor-based page parameters shared by list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Address captures a shipping or billing destination snapshot.
type Address struct {
	FullName   string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
	Phone      string
}

// Actor identifies the authenticated principal performing an operation.
// Authentication happens upstream; the core only authorises by role.
type Actor struct {
	UserID string
	Role   string
}

const (
	// RoleCustomer is the default storefront role.
	RoleCustomer = "customer"
	// RoleAdmin marks dashboard operators allowed to verify payments,
	// force transitions, and adjust stock.
	RoleAdmin = "admin"
)

// IsAdmin reports whether the actor carries the elevated dashboard role.
func (a Actor) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(a.Role), RoleAdmin)
}

// NormalizeAmount quantises a money value to two decimal places, the
// precision carried end to end by orders and transactions.
func NormalizeAmount(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
