package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/repositories"
)

var (
	// ErrDownloadInvalidToken indicates the token failed verification.
	ErrDownloadInvalidToken = errors.New("delivery: invalid download token")
	// ErrDownloadExpired indicates the access window has closed.
	ErrDownloadExpired = errors.New("delivery: download access expired")
	// ErrDownloadLimitReached indicates the download allowance is spent.
	ErrDownloadLimitReached = errors.New("delivery: download limit reached")
	// ErrDownloadNotFound indicates the token references a missing order or item.
	ErrDownloadNotFound = errors.New("delivery: download not found")
)

type downloadClaims struct {
	jwt.RegisteredClaims
	OrderID   string `json:"orderId"`
	ProductID string `json:"productId"`
}

// DeliveryServiceDeps bundles collaborators for the delivery service.
type DeliveryServiceDeps struct {
	Orders        repositories.OrderRepository
	SigningSecret string
	BaseURL       string
	LinkTTL       time.Duration
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type deliveryService struct {
	orders  repositories.OrderRepository
	secret  []byte
	baseURL string
	linkTTL time.Duration
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewDeliveryService wires dependencies into a DeliveryService.
func NewDeliveryService(deps DeliveryServiceDeps) (DeliveryService, error) {
	if deps.Orders == nil {
		return nil, errors.New("delivery service: order repository is required")
	}
	secret := strings.TrimSpace(deps.SigningSecret)
	if secret == "" {
		return nil, errors.New("delivery service: signing secret is required")
	}
	linkTTL := deps.LinkTTL
	if linkTTL <= 0 {
		linkTTL = 72 * time.Hour
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &deliveryService{
		orders:  deps.Orders,
		secret:  []byte(secret),
		baseURL: strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/"),
		linkTTL: linkTTL,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// IssueDigitalAccess stamps every pending digital line with a signed,
// expiring download link. The caller persists the order.
func (s *deliveryService) IssueDigitalAccess(ctx context.Context, order *domain.Order, now time.Time) error {
	if order == nil {
		return errors.New("delivery: order is required")
	}
	expiresAt := now.Add(s.linkTTL)

	for i := range order.Items {
		item := &order.Items[i]
		if item.Digital == nil || item.Digital.Status == domain.DeliveryStatusDelivered {
			continue
		}
		token, err := s.signToken(order, item.ProductID, now, expiresAt)
		if err != nil {
			return fmt.Errorf("delivery: sign download token for %s: %w", item.ProductID, err)
		}
		item.Digital.Status = domain.DeliveryStatusDelivered
		item.Digital.DownloadLink = s.downloadURL(token)
		item.Digital.DownloadCount = 0
		item.Digital.AccessExpiresAt = &expiresAt
	}

	s.logger(ctx, "delivery.access.issued", map[string]any{
		"orderId":   order.ID,
		"expiresAt": expiresAt.Format(time.RFC3339),
	})
	return nil
}

// RedeemDownload exchanges a signed token for access, spending one download
// from the item's allowance.
func (s *deliveryService) RedeemDownload(ctx context.Context, cmd RedeemDownloadCommand) (DownloadGrant, error) {
	claims, err := s.parseToken(cmd.Token)
	if err != nil {
		return DownloadGrant{}, err
	}

	order, err := s.orders.FindByID(ctx, claims.OrderID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return DownloadGrant{}, ErrDownloadNotFound
		}
		return DownloadGrant{}, err
	}

	now := s.clock()
	for i := range order.Items {
		item := &order.Items[i]
		if item.ProductID != claims.ProductID || item.Digital == nil {
			continue
		}
		if item.Digital.Status != domain.DeliveryStatusDelivered {
			return DownloadGrant{}, ErrDownloadNotFound
		}
		if item.Digital.AccessExpiresAt != nil && now.After(*item.Digital.AccessExpiresAt) {
			return DownloadGrant{}, ErrDownloadExpired
		}
		if item.Digital.DownloadLimit > 0 && item.Digital.DownloadCount >= item.Digital.DownloadLimit {
			return DownloadGrant{}, ErrDownloadLimitReached
		}

		item.Digital.DownloadCount++
		order.UpdatedAt = now
		if err := s.orders.Update(ctx, order); err != nil {
			return DownloadGrant{}, err
		}

		s.logger(ctx, "delivery.download.redeemed", map[string]any{
			"orderId":   order.ID,
			"productId": item.ProductID,
			"count":     item.Digital.DownloadCount,
			"sourceIp":  cmd.SourceIP,
		})

		remaining := 0
		if item.Digital.DownloadLimit > 0 {
			remaining = item.Digital.DownloadLimit - item.Digital.DownloadCount
		}
		return DownloadGrant{
			OrderID:            order.ID,
			ProductID:          item.ProductID,
			ProductName:        item.Name,
			RemainingDownloads: remaining,
			ExpiresAt:          item.Digital.AccessExpiresAt,
		}, nil
	}

	return DownloadGrant{}, ErrDownloadNotFound
}

func (s *deliveryService) signToken(order *domain.Order, productID string, now, expiresAt time.Time) (string, error) {
	claims := downloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   order.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		OrderID:   order.ID,
		ProductID: productID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *deliveryService) parseToken(token string) (downloadClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return downloadClaims{}, ErrDownloadInvalidToken
	}

	var claims downloadClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	if err != nil {
		return downloadClaims{}, fmt.Errorf("%w: %v", ErrDownloadInvalidToken, err)
	}
	if !parsed.Valid || claims.OrderID == "" || claims.ProductID == "" || claims.ExpiresAt == nil {
		return downloadClaims{}, ErrDownloadInvalidToken
	}
	// Claims validation is skipped above so expiry can be checked against
	// the injected clock instead of the parser's wall clock.
	if s.clock().After(claims.ExpiresAt.Time) {
		return downloadClaims{}, ErrDownloadExpired
	}
	return claims, nil
}

func (s *deliveryService) downloadURL(token string) string {
	if s.baseURL == "" {
		return token
	}
	return s.baseURL + "/downloads/" + token
}
