package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/wagerloo/internal/server/middleware"
	"github.com/alanyoungcy/wagerloo/internal/service"
)

// VoteService casts votes.
type VoteService interface {
	Cast(ctx context.Context, req service.CastVoteRequest) (service.VoteResult, error)
}

// VoteHandler serves the vote endpoint.
type VoteHandler struct {
	votes  VoteService
	logger *slog.Logger
}

// NewVoteHandler creates a VoteHandler.
func NewVoteHandler(votes VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{votes: votes, logger: logger}
}

type voteRequest struct {
	MarketID string `json:"marketId"`
	Side     string `json:"side"`
}

type voteResponse struct {
	Success     bool    `json:"success"`
	NewLine     float64 `json:"newLine"`
	DisplayLine string  `json:"displayLine"`
	OverVotes   int     `json:"overVotes"`
	UnderVotes  int     `json:"underVotes"`
}

// Cast records the caller's vote.
// POST /api/vote
func (h *VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req voteRequest
	if userID != "" {
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, r, h.logger, "vote", err)
			return
		}
	}

	res, err := h.votes.Cast(r.Context(), service.CastVoteRequest{
		UserID:   userID,
		MarketID: req.MarketID,
		Side:     req.Side,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "vote", err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{
		Success:     true,
		NewLine:     res.NewLine,
		DisplayLine: displayLine(res.NewLine),
		OverVotes:   res.OverVotes,
		UnderVotes:  res.UnderVotes,
	})
}
