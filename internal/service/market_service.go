package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// DefaultLeaderboardSize is the number of markets on the leaderboard.
const DefaultLeaderboardSize = 25

// RankedMarket is one leaderboard row.
type RankedMarket struct {
	Rank int
	domain.MarketListing
}

// MarketService serves market browsing, detail and the leaderboard.
type MarketService struct {
	markets         domain.MarketStore
	votes           domain.VoteStore
	cache           domain.MarketCache
	leaderboardSize int
	logger          *slog.Logger
	shuffle         func(n int, swap func(i, j int))
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(
	markets domain.MarketStore,
	votes domain.VoteStore,
	cache domain.MarketCache,
	leaderboardSize int,
	logger *slog.Logger,
) *MarketService {
	if leaderboardSize <= 0 {
		leaderboardSize = DefaultLeaderboardSize
	}
	return &MarketService{
		markets:         markets,
		votes:           votes,
		cache:           cache,
		leaderboardSize: leaderboardSize,
		logger:          logger.With(slog.String("component", "market_service")),
		shuffle:         rand.Shuffle,
	}
}

// Browse lists active markets in random order. With excludeVoted and a
// known caller, markets the caller voted on are hidden while any unvoted
// market remains; once every market has the caller's vote, only the most
// recently voted one is hidden.
func (s *MarketService) Browse(ctx context.Context, userID string, excludeVoted bool) ([]domain.MarketListing, error) {
	var exclude []string
	if excludeVoted && userID != "" {
		var err error
		exclude, err = s.excludedFor(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	listings, err := s.markets.ListActive(ctx, domain.ListOpts{ExcludeIDs: exclude})
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}

	// Fisher-Yates.
	s.shuffle(len(listings), func(i, j int) {
		listings[i], listings[j] = listings[j], listings[i]
	})
	return listings, nil
}

func (s *MarketService) excludedFor(ctx context.Context, userID string) ([]string, error) {
	voted, err := s.votes.ListMarketIDsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("market_service: voted markets: %w", err)
	}
	if len(voted) == 0 {
		return nil, nil
	}

	unvoted, err := s.markets.ListActive(ctx, domain.ListOpts{ExcludeIDs: voted, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("market_service: unvoted markets: %w", err)
	}
	if len(unvoted) > 0 {
		return voted, nil
	}

	active, err := s.markets.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: count active: %w", err)
	}
	if active == 0 {
		return nil, nil
	}

	latest, err := s.votes.LatestByUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("market_service: latest vote: %w", err)
	}
	return []string{latest.MarketID}, nil
}

// Get returns a market by id, reading through the cache.
func (s *MarketService) Get(ctx context.Context, id string) (domain.Market, error) {
	if id == "" {
		return domain.Market{}, domain.ErrInvalidInput
	}
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: cache get failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("market_service: get %s: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return m, nil
}

// Leaderboard returns the highest lines, ranked from 1.
func (s *MarketService) Leaderboard(ctx context.Context) ([]RankedMarket, error) {
	listings, err := s.markets.Leaderboard(ctx, s.leaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("market_service: leaderboard: %w", err)
	}
	out := make([]RankedMarket, len(listings))
	for i, l := range listings {
		out[i] = RankedMarket{Rank: i + 1, MarketListing: l}
	}
	return out, nil
}
