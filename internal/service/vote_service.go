package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/line"
)

// VoteConfig tunes the vote transaction.
type VoteConfig struct {
	// MaxAttempts is the total number of transaction attempts on a storage
	// conflict, including the first.
	MaxAttempts int
	// RetryBackoff is the sleep before the second attempt; it doubles for
	// each attempt after that.
	RetryBackoff time.Duration
}

// DefaultVoteConfig returns three attempts starting at 50ms.
func DefaultVoteConfig() VoteConfig {
	return VoteConfig{MaxAttempts: 3, RetryBackoff: 50 * time.Millisecond}
}

// CastVoteRequest is the raw vote input. UserID is empty for anonymous
// callers.
type CastVoteRequest struct {
	UserID   string
	MarketID string
	Side     string
}

// VoteResult is the market state after an accepted vote.
type VoteResult struct {
	MarketID   string
	NewLine    float64
	OverVotes  int
	UnderVotes int
}

type validVote struct {
	userID   string
	marketID string
	side     domain.Side
}

// validate applies the identity and input checks, in that order.
func (r CastVoteRequest) validate() (validVote, error) {
	if r.UserID == "" {
		return validVote{}, domain.ErrUnauthenticated
	}
	side, ok := domain.ParseSide(r.Side)
	marketID := strings.TrimSpace(r.MarketID)
	if !ok || marketID == "" {
		return validVote{}, domain.ErrInvalidInput
	}
	return validVote{userID: r.UserID, marketID: marketID, side: side}, nil
}

// VoteService records votes and moves market lines.
type VoteService struct {
	users  domain.UserStore
	txs    domain.TxStore
	cache  domain.MarketCache
	bus    domain.EventBus
	audit  domain.AuditStore
	cfg    VoteConfig
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewVoteService creates a VoteService. cache, bus and audit may be nil.
func NewVoteService(
	users domain.UserStore,
	txs domain.TxStore,
	cache domain.MarketCache,
	bus domain.EventBus,
	audit domain.AuditStore,
	cfg VoteConfig,
	logger *slog.Logger,
) *VoteService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &VoteService{
		users:  users,
		txs:    txs,
		cache:  cache,
		bus:    bus,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "vote_service")),
		now:    time.Now,
		sleep:  sleepWithContext,
	}
}

// Cast records one vote. Rejections are checked in a fixed order and
// returned as the matching domain sentinel: ErrUnauthenticated,
// ErrInvalidInput, ErrEmailUnverified, ErrDuplicateVote, ErrNotFound,
// ErrSelfVoteForbidden. A rejected vote changes nothing.
func (s *VoteService) Cast(ctx context.Context, req CastVoteRequest) (VoteResult, error) {
	v, err := req.validate()
	if err != nil {
		return VoteResult{}, err
	}

	user, err := s.users.GetByID(ctx, v.userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return VoteResult{}, fmt.Errorf("vote_service: load user: %w", err)
	}
	if err != nil || !user.EmailVerified {
		return VoteResult{}, domain.ErrEmailUnverified
	}

	var (
		market  domain.Market
		update  domain.LineUpdate
		backoff = s.cfg.RetryBackoff
	)
	for attempt := 1; ; attempt++ {
		market, update, err = s.castOnce(ctx, v)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrStorageConflict) {
			return VoteResult{}, err
		}
		if attempt >= s.cfg.MaxAttempts {
			s.logger.WarnContext(ctx, "vote_service: conflict retries exhausted",
				slog.String("market_id", v.marketID),
				slog.Int("attempts", attempt),
			)
			return VoteResult{}, fmt.Errorf("vote_service: cast after %d attempts: %w", attempt, err)
		}
		s.logger.DebugContext(ctx, "vote_service: retrying after conflict",
			slog.String("market_id", v.marketID),
			slog.Int("attempt", attempt),
		)
		if err := s.sleep(ctx, backoff); err != nil {
			return VoteResult{}, fmt.Errorf("vote_service: retry wait: %w", err)
		}
		backoff *= 2
	}

	s.afterCommit(ctx, v, market, update)
	return VoteResult{
		MarketID:   market.ID,
		NewLine:    market.CurrentLine,
		OverVotes:  market.OverVotes,
		UnderVotes: market.UnderVotes,
	}, nil
}

// castOnce runs the checks that need storage and both writes inside one
// transaction, returning the market as committed.
func (s *VoteService) castOnce(ctx context.Context, v validVote) (domain.Market, domain.LineUpdate, error) {
	tx, err := s.txs.Begin(ctx)
	if err != nil {
		return domain.Market{}, domain.LineUpdate{}, fmt.Errorf("vote_service: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	voted, err := tx.HasVote(ctx, v.userID, v.marketID)
	if err != nil {
		return domain.Market{}, domain.LineUpdate{}, fmt.Errorf("vote_service: check vote: %w", err)
	}
	if voted {
		return domain.Market{}, domain.LineUpdate{}, domain.ErrDuplicateVote
	}

	m, err := tx.GetMarketForUpdate(ctx, v.marketID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, domain.LineUpdate{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, domain.LineUpdate{}, fmt.Errorf("vote_service: lock market: %w", err)
	}
	if m.Status != domain.MarketStatusActive {
		return domain.Market{}, domain.LineUpdate{}, domain.ErrNotFound
	}
	if m.OwnerUserID == v.userID {
		return domain.Market{}, domain.LineUpdate{}, domain.ErrSelfVoteForbidden
	}

	next := line.Adjust(line.Tally{
		OverVotes:  m.OverVotes,
		UnderVotes: m.UnderVotes,
		Line:       m.CurrentLine,
	}, v.side)
	now := s.now().UTC()

	err = tx.InsertVote(ctx, domain.Vote{
		ID:         uuid.NewString(),
		UserID:     v.userID,
		MarketID:   m.ID,
		Side:       v.side,
		LineAtVote: m.CurrentLine,
		CreatedAt:  now,
	})
	if errors.Is(err, domain.ErrDuplicateVote) {
		return domain.Market{}, domain.LineUpdate{}, domain.ErrDuplicateVote
	}
	if err != nil {
		return domain.Market{}, domain.LineUpdate{}, fmt.Errorf("vote_service: insert vote: %w", err)
	}

	lineBefore := m.CurrentLine
	m.OverVotes, m.UnderVotes, m.CurrentLine = next.OverVotes, next.UnderVotes, next.Line
	m.UpdatedAt = now
	if err := tx.UpdateMarketTally(ctx, m); err != nil {
		return domain.Market{}, domain.LineUpdate{}, fmt.Errorf("vote_service: update market: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Market{}, domain.LineUpdate{}, fmt.Errorf("vote_service: commit: %w", err)
	}

	update := domain.LineUpdate{
		MarketID:   m.ID,
		Side:       v.side,
		LineBefore: lineBefore,
		NewLine:    m.CurrentLine,
		OverVotes:  m.OverVotes,
		UnderVotes: m.UnderVotes,
		At:         now,
	}
	return m, update, nil
}

// afterCommit runs side effects that must never fail an accepted vote.
func (s *VoteService) afterCommit(ctx context.Context, v validVote, m domain.Market, u domain.LineUpdate) {
	// Write-through; Set drops copies with fewer votes.
	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "vote_service: cache write failed",
				slog.String("market_id", u.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(u)
		if err == nil {
			err = s.bus.Publish(ctx, domain.ChannelLineUpdates, payload)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "vote_service: publish line update failed",
				slog.String("market_id", u.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "vote.cast", map[string]any{
			"user_id":     v.userID,
			"market_id":   u.MarketID,
			"side":        string(u.Side),
			"line_before": u.LineBefore,
			"new_line":    u.NewLine,
		}); err != nil {
			s.logger.WarnContext(ctx, "vote_service: audit log failed",
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "vote_service: vote accepted",
		slog.String("market_id", u.MarketID),
		slog.String("side", string(u.Side)),
		slog.Float64("new_line", u.NewLine),
	)
}

// sleepWithContext waits for d or until ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
