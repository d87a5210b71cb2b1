package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/supplyvend/api/internal/platform/httpx"
	"github.com/supplyvend/api/internal/services"
)

// DownloadHandlers redeems signed digital download links. The token itself
// authenticates the request, so the group carries no auth middleware.
type DownloadHandlers struct {
	delivery services.DeliveryService
}

// NewDownloadHandlers constructs a new DownloadHandlers instance.
func NewDownloadHandlers(delivery services.DeliveryService) *DownloadHandlers {
	return &DownloadHandlers{delivery: delivery}
}

// Routes registers the /downloads endpoints.
func (h *DownloadHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{token}", h.redeem)
}

func (h *DownloadHandlers) redeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	grant, err := h.delivery.RedeemDownload(ctx, services.RedeemDownloadCommand{
		Token:    chi.URLParam(r, "token"),
		SourceIP: r.RemoteAddr,
	})
	if err != nil {
		writeDownloadError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, downloadGrantPayload{
		OrderID:            grant.OrderID,
		ProductID:          grant.ProductID,
		ProductName:        grant.ProductName,
		RemainingDownloads: grant.RemainingDownloads,
		ExpiresAt:          formatTimePtr(grant.ExpiresAt),
	})
}

type downloadGrantPayload struct {
	OrderID            string `json:"order_id"`
	ProductID          string `json:"product_id"`
	ProductName        string `json:"product_name"`
	RemainingDownloads int    `json:"remaining_downloads"`
	ExpiresAt          string `json:"expires_at,omitempty"`
}

func writeDownloadError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDownloadInvalidToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "download token is invalid", http.StatusUnauthorized))
	case errors.Is(err, services.ErrDownloadExpired):
		httpx.WriteError(ctx, w, httpx.NewError("download_expired", "download access has expired", http.StatusGone))
	case errors.Is(err, services.ErrDownloadLimitReached):
		httpx.WriteError(ctx, w, httpx.NewError("download_limit_reached", "download limit reached", http.StatusTooManyRequests))
	case errors.Is(err, services.ErrDownloadNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("download_not_found", "download not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("download_error", "failed to process download", http.StatusInternalServerError))
	}
}
