package services

import (
	"context"
	"errors"
	"testing"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/repositories"
)

func newTestStockService(t *testing.T, products repositories.ProductRepository) StockService {
	t.Helper()
	svc, err := NewStockService(StockServiceDeps{Products: products, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewStockService: %v", err)
	}
	return svc
}

func TestReserveDecrementsEachLine(t *testing.T) {
	repo := &stubProductRepo{
		adjustFn: func(_ context.Context, adj repositories.StockAdjustment) (repositories.StockAdjustmentResult, error) {
			return repositories.StockAdjustmentResult{}, nil
		},
	}
	svc := newTestStockService(t, repo)

	err := svc.Reserve(context.Background(), ReserveStockCommand{
		OrderID:     "ord_1",
		OrderNumber: "SV-260824-0001",
		ActorID:     "user-1",
		Lines: []StockLine{
			{ProductID: "prod-a", Quantity: 2},
			{ProductID: "prod-b", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	adjustments := repo.adjustments()
	if len(adjustments) != 2 {
		t.Fatalf("adjustments = %d", len(adjustments))
	}
	for _, adj := range adjustments {
		if adj.Action != domain.StockActionRemove {
			t.Fatalf("action = %s", adj.Action)
		}
	}
}

func TestReserveRollsBackOnPartialFailure(t *testing.T) {
	repo := &stubProductRepo{
		adjustFn: func(_ context.Context, adj repositories.StockAdjustment) (repositories.StockAdjustmentResult, error) {
			if adj.ProductID == "prod-b" && adj.Action == domain.StockActionRemove {
				return repositories.StockAdjustmentResult{}, repositories.NewStockError(
					repositories.StockErrorInsufficientStock, "only 1 left", nil)
			}
			return repositories.StockAdjustmentResult{}, nil
		},
	}
	svc := newTestStockService(t, repo)

	err := svc.Reserve(context.Background(), ReserveStockCommand{
		OrderID: "ord_1",
		Lines: []StockLine{
			{ProductID: "prod-a", Quantity: 2},
			{ProductID: "prod-b", Quantity: 5},
		},
	})
	if !errors.Is(err, ErrStockInsufficient) {
		t.Fatalf("expected ErrStockInsufficient, got %v", err)
	}

	// prod-a remove, prod-b remove (failed), prod-a add back.
	adjustments := repo.adjustments()
	if len(adjustments) != 3 {
		t.Fatalf("adjustments = %d", len(adjustments))
	}
	last := adjustments[2]
	if last.ProductID != "prod-a" || last.Action != domain.StockActionAdd || last.Quantity != 2 {
		t.Fatalf("rollback adjustment = %+v", last)
	}
}

func TestRestoreContinuesPastLineFailures(t *testing.T) {
	repo := &stubProductRepo{
		adjustFn: func(_ context.Context, adj repositories.StockAdjustment) (repositories.StockAdjustmentResult, error) {
			if adj.ProductID == "prod-a" {
				return repositories.StockAdjustmentResult{}, repositories.NewStockError(
					repositories.StockErrorProductNotFound, "gone", nil)
			}
			return repositories.StockAdjustmentResult{}, nil
		},
	}
	svc := newTestStockService(t, repo)

	err := svc.Restore(context.Background(), RestoreStockCommand{
		OrderID: "ord_1",
		Lines: []StockLine{
			{ProductID: "prod-a", Quantity: 1},
			{ProductID: "prod-b", Quantity: 2},
		},
	})
	if !errors.Is(err, ErrStockProductNotFound) {
		t.Fatalf("expected ErrStockProductNotFound, got %v", err)
	}
	if len(repo.adjustments()) != 2 {
		t.Fatalf("adjustments = %d, want both lines attempted", len(repo.adjustments()))
	}
}

func TestAdjustRequiresAdmin(t *testing.T) {
	svc := newTestStockService(t, &stubProductRepo{})
	_, err := svc.Adjust(context.Background(), AdjustStockCommand{
		Actor:     domain.Actor{UserID: "user-1", Role: domain.RoleCustomer},
		ProductID: "prod-a",
		Action:    domain.StockActionSet,
		Quantity:  10,
	})
	if !errors.Is(err, ErrStockForbidden) {
		t.Fatalf("expected ErrStockForbidden, got %v", err)
	}
}

func TestAdjustPassesActorAndReason(t *testing.T) {
	repo := &stubProductRepo{
		adjustFn: func(_ context.Context, adj repositories.StockAdjustment) (repositories.StockAdjustmentResult, error) {
			return repositories.StockAdjustmentResult{
				Product: domain.Product{ID: adj.ProductID, Stock: 3, LowStockThreshold: 5, LowStock: true},
			}, nil
		},
	}
	svc := newTestStockService(t, repo)

	product, err := svc.Adjust(context.Background(), AdjustStockCommand{
		Actor:     domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin},
		ProductID: "prod-a",
		Action:    domain.StockActionSet,
		Quantity:  3,
		Reason:    "Annual count",
	})
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if product.Stock != 3 {
		t.Fatalf("stock = %d", product.Stock)
	}

	adjustments := repo.adjustments()
	if len(adjustments) != 1 {
		t.Fatalf("adjustments = %d", len(adjustments))
	}
	if adjustments[0].Actor != "admin-1" || adjustments[0].Reason != "Annual count" {
		t.Fatalf("adjustment = %+v", adjustments[0])
	}
}

func TestListLowStockRequiresAdmin(t *testing.T) {
	svc := newTestStockService(t, &stubProductRepo{})
	_, err := svc.ListLowStock(context.Background(), domain.Actor{Role: domain.RoleCustomer}, domain.Pagination{})
	if !errors.Is(err, ErrStockForbidden) {
		t.Fatalf("expected ErrStockForbidden, got %v", err)
	}
}
