package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRecalculateFlags(t *testing.T) {
	cases := []struct {
		name         string
		kinds        []ProductKind
		wantDigital  bool
		wantPhysical bool
	}{
		{"physical only", []ProductKind{ProductKindPhysical, ProductKindPhysical}, false, true},
		{"digital only", []ProductKind{ProductKindDigital}, true, false},
		{"mixed", []ProductKind{ProductKindPhysical, ProductKindDigital}, true, true},
		{"both kind", []ProductKind{ProductKindBoth}, true, true},
		{"empty", nil, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := Order{}
			for _, kind := range tc.kinds {
				order.Items = append(order.Items, OrderItem{Kind: kind, Quantity: 1})
			}
			order.RecalculateFlags()

			if order.ItemsCount != len(tc.kinds) {
				t.Fatalf("ItemsCount = %d, want %d", order.ItemsCount, len(tc.kinds))
			}
			if order.HasDigitalItems != tc.wantDigital {
				t.Errorf("HasDigitalItems = %v, want %v", order.HasDigitalItems, tc.wantDigital)
			}
			if order.HasPhysicalItems != tc.wantPhysical {
				t.Errorf("HasPhysicalItems = %v, want %v", order.HasPhysicalItems, tc.wantPhysical)
			}
		})
	}
}

func TestCanTransitionOrder(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{OrderStatusPending, OrderStatusPaymentPending},
		{OrderStatusPaymentPending, OrderStatusPaid},
		{OrderStatusPaymentFailed, OrderStatusPaymentPending},
		{OrderStatusPaid, OrderStatusCompleted},
		{OrderStatusShipped, OrderStatusDelivered},
		{OrderStatusDelivered, OrderStatusRefunded},
		{OrderStatusCompleted, OrderStatusRefunded},
	}
	for _, tc := range allowed {
		if !CanTransitionOrder(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to OrderStatus }{
		{OrderStatusShipped, OrderStatusProcessing},
		{OrderStatusCancelled, OrderStatusPending},
		{OrderStatusRefunded, OrderStatusPaid},
		{OrderStatusPending, OrderStatusPaid},
		{OrderStatusCompleted, OrderStatusCancelled},
	}
	for _, tc := range denied {
		if CanTransitionOrder(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	for _, terminal := range []OrderStatus{OrderStatusCancelled, OrderStatusRefunded} {
		if got := orderStateTransitions[terminal]; len(got) != 0 {
			t.Errorf("terminal status %s has outgoing edges %v", terminal, got)
		}
	}
}

func TestDigitalOnly(t *testing.T) {
	order := Order{Items: []OrderItem{{Kind: ProductKindDigital, Quantity: 1}}}
	order.RecalculateFlags()
	if !order.DigitalOnly() {
		t.Fatal("expected digital-only order")
	}

	order.Items = append(order.Items, OrderItem{Kind: ProductKindPhysical, Quantity: 1})
	order.RecalculateFlags()
	if order.DigitalOnly() {
		t.Fatal("mixed order must not be digital-only")
	}
}

func TestProductEffectivePrice(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sale := decimal.RequireFromString("80.00")
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	product := Product{
		Price:        decimal.RequireFromString("100.00"),
		SalePrice:    &sale,
		SaleStartsAt: &before,
		SaleEndsAt:   &after,
	}

	if got := product.EffectivePrice(now); !got.Equal(sale) {
		t.Errorf("in-window price = %s, want %s", got, sale)
	}
	if got := product.EffectivePrice(after.Add(time.Minute)); !got.Equal(product.Price) {
		t.Errorf("out-of-window price = %s, want %s", got, product.Price)
	}

	product.SalePrice = nil
	if got := product.EffectivePrice(now); !got.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("no-sale price = %s", got)
	}
}
