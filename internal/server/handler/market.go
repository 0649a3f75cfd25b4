package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/server/middleware"
	"github.com/alanyoungcy/wagerloo/internal/service"
)

// MarketService is what the market handler needs from the service layer.
type MarketService interface {
	Browse(ctx context.Context, userID string, excludeVoted bool) ([]domain.MarketListing, error)
	Get(ctx context.Context, id string) (domain.Market, error)
	Leaderboard(ctx context.Context) ([]service.RankedMarket, error)
}

// MarketHandler serves browsing, market detail and the leaderboard.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// ListMarkets returns active markets in random order.
// GET /api/markets?excludeVoted=true
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	exclude := r.URL.Query().Get("excludeVoted") == "true"
	listings, err := h.markets.Browse(r.Context(), middleware.UserID(r.Context()), exclude)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	out := make([]marketView, len(listings))
	for i, l := range listings {
		out[i] = newListingView(l)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMarket returns one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketView(m))
}

// Leaderboard returns the highest active lines.
// GET /api/leaderboard
func (h *MarketHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.markets.Leaderboard(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, newRankedViews(rows))
}
