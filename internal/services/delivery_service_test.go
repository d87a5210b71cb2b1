package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/supplyvend/api/internal/domain"
)

func newTestDeliveryService(t *testing.T, orders *stubOrderRepo, secret string) DeliveryService {
	t.Helper()
	svc, err := NewDeliveryService(DeliveryServiceDeps{
		Orders:        orders,
		SigningSecret: secret,
		BaseURL:       "https://shop.example.com",
		LinkTTL:       48 * time.Hour,
		Clock:         fixedClock,
	})
	if err != nil {
		t.Fatalf("NewDeliveryService: %v", err)
	}
	return svc
}

func TestIssueDigitalAccessStampsPendingItems(t *testing.T) {
	svc := newTestDeliveryService(t, &stubOrderRepo{}, "test-secret")
	order := digitalOrder(domain.OrderStatusPaid)

	if err := svc.IssueDigitalAccess(context.Background(), &order, fixedNow); err != nil {
		t.Fatalf("IssueDigitalAccess: %v", err)
	}

	item := order.Items[0]
	if item.Digital.Status != domain.DeliveryStatusDelivered {
		t.Fatalf("status = %s", item.Digital.Status)
	}
	if !strings.HasPrefix(item.Digital.DownloadLink, "https://shop.example.com/downloads/") {
		t.Fatalf("download link = %q", item.Digital.DownloadLink)
	}
	if item.Digital.DownloadCount != 0 {
		t.Fatalf("download count = %d", item.Digital.DownloadCount)
	}
	want := fixedNow.Add(48 * time.Hour)
	if item.Digital.AccessExpiresAt == nil || !item.Digital.AccessExpiresAt.Equal(want) {
		t.Fatalf("access expiry = %v, want %v", item.Digital.AccessExpiresAt, want)
	}
}

func TestIssueDigitalAccessSkipsDeliveredItems(t *testing.T) {
	svc := newTestDeliveryService(t, &stubOrderRepo{}, "test-secret")
	order := digitalOrder(domain.OrderStatusPaid)
	order.Items[0].Digital.Status = domain.DeliveryStatusDelivered
	order.Items[0].Digital.DownloadLink = "existing-link"
	order.Items[0].Digital.DownloadCount = 2

	if err := svc.IssueDigitalAccess(context.Background(), &order, fixedNow); err != nil {
		t.Fatalf("IssueDigitalAccess: %v", err)
	}
	if order.Items[0].Digital.DownloadLink != "existing-link" {
		t.Fatal("delivered items must keep their original link")
	}
	if order.Items[0].Digital.DownloadCount != 2 {
		t.Fatal("delivered items must keep their download count")
	}
}

func issuedToken(t *testing.T, svc DeliveryService, order *domain.Order) string {
	t.Helper()
	if err := svc.IssueDigitalAccess(context.Background(), order, fixedNow); err != nil {
		t.Fatalf("IssueDigitalAccess: %v", err)
	}
	link := order.Items[0].Digital.DownloadLink
	return link[strings.LastIndex(link, "/")+1:]
}

func TestRedeemDownloadSpendsAllowance(t *testing.T) {
	order := digitalOrder(domain.OrderStatusCompleted)
	orders := orderRepoWith(order)
	svc := newTestDeliveryService(t, orders, "test-secret")

	issued := order
	token := issuedToken(t, svc, &issued)
	orders.findByIDFn = func(_ context.Context, orderID string) (domain.Order, error) {
		if orderID != issued.ID {
			return domain.Order{}, notFoundErr()
		}
		return issued, nil
	}

	grant, err := svc.RedeemDownload(context.Background(), RedeemDownloadCommand{Token: token, SourceIP: "203.0.113.9"})
	if err != nil {
		t.Fatalf("RedeemDownload: %v", err)
	}
	if grant.OrderID != "ord_2" || grant.ProductID != "prod-workbook" {
		t.Fatalf("grant = %+v", grant)
	}
	if grant.RemainingDownloads != 2 {
		t.Fatalf("remaining = %d", grant.RemainingDownloads)
	}

	updated, ok := orders.lastUpdated()
	if !ok {
		t.Fatal("order not persisted after redemption")
	}
	if updated.Items[0].Digital.DownloadCount != 1 {
		t.Fatalf("download count = %d", updated.Items[0].Digital.DownloadCount)
	}
}

func TestRedeemDownloadEnforcesLimit(t *testing.T) {
	order := digitalOrder(domain.OrderStatusCompleted)
	orders := orderRepoWith(order)
	svc := newTestDeliveryService(t, orders, "test-secret")

	issued := order
	token := issuedToken(t, svc, &issued)
	issued.Items[0].Digital.DownloadCount = issued.Items[0].Digital.DownloadLimit
	orders.findByIDFn = func(context.Context, string) (domain.Order, error) {
		return issued, nil
	}

	_, err := svc.RedeemDownload(context.Background(), RedeemDownloadCommand{Token: token})
	if !errors.Is(err, ErrDownloadLimitReached) {
		t.Fatalf("expected ErrDownloadLimitReached, got %v", err)
	}
}

func TestRedeemDownloadExpiredAccess(t *testing.T) {
	order := digitalOrder(domain.OrderStatusCompleted)
	orders := orderRepoWith(order)
	svc := newTestDeliveryService(t, orders, "test-secret")

	issued := order
	token := issuedToken(t, svc, &issued)
	past := fixedNow.Add(-time.Minute)
	issued.Items[0].Digital.AccessExpiresAt = &past
	orders.findByIDFn = func(context.Context, string) (domain.Order, error) {
		return issued, nil
	}

	_, err := svc.RedeemDownload(context.Background(), RedeemDownloadCommand{Token: token})
	if !errors.Is(err, ErrDownloadExpired) {
		t.Fatalf("expected ErrDownloadExpired, got %v", err)
	}
}

func TestRedeemDownloadExpiredToken(t *testing.T) {
	svc := newTestDeliveryService(t, &stubOrderRepo{}, "test-secret")

	claims := downloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(fixedNow.Add(-49 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(-time.Hour)),
		},
		OrderID:   "ord_2",
		ProductID: "prod-workbook",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := svc.RedeemDownload(context.Background(), RedeemDownloadCommand{Token: token}); !errors.Is(err, ErrDownloadExpired) {
		t.Fatalf("expected ErrDownloadExpired, got %v", err)
	}
}

func TestRedeemDownloadRejectsForgedToken(t *testing.T) {
	order := digitalOrder(domain.OrderStatusCompleted)
	orders := orderRepoWith(order)

	issuer := newTestDeliveryService(t, orders, "other-secret")
	issued := order
	token := issuedToken(t, issuer, &issued)

	svc := newTestDeliveryService(t, orders, "test-secret")
	_, err := svc.RedeemDownload(context.Background(), RedeemDownloadCommand{Token: token})
	if !errors.Is(err, ErrDownloadInvalidToken) {
		t.Fatalf("expected ErrDownloadInvalidToken, got %v", err)
	}
}

func TestRedeemDownloadRejectsGarbageToken(t *testing.T) {
	svc := newTestDeliveryService(t, &stubOrderRepo{}, "test-secret")
	for _, token := range []string{"", "   ", "not-a-jwt"} {
		if _, err := svc.RedeemDownload(context.Background(), RedeemDownloadCommand{Token: token}); !errors.Is(err, ErrDownloadInvalidToken) {
			t.Fatalf("token %q: expected ErrDownloadInvalidToken, got %v", token, err)
		}
	}
}

func TestRedeemDownloadUnknownOrder(t *testing.T) {
	order := digitalOrder(domain.OrderStatusCompleted)
	svc := newTestDeliveryService(t, &stubOrderRepo{}, "test-secret")

	issued := order
	token := issuedToken(t, svc, &issued)

	_, err := svc.RedeemDownload(context.Background(), RedeemDownloadCommand{Token: token})
	if !errors.Is(err, ErrDownloadNotFound) {
		t.Fatalf("expected ErrDownloadNotFound, got %v", err)
	}
}
