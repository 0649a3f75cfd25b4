package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// VoteStore implements domain.VoteStore using PostgreSQL.
type VoteStore struct {
	pool *pgxpool.Pool
}

// NewVoteStore creates a new VoteStore backed by the given connection pool.
func NewVoteStore(pool *pgxpool.Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

const voteColumns = `id, user_id, market_id, side, line_at_vote, created_at`

func scanVote(row pgx.Row) (domain.Vote, error) {
	var v domain.Vote
	var side string
	err := row.Scan(&v.ID, &v.UserID, &v.MarketID, &side, &v.LineAtVote, &v.CreatedAt)
	v.Side = domain.Side(side)
	return v, err
}

// ListMarketIDsByUser returns the ids of every market userID voted on.
func (s *VoteStore) ListMarketIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT market_id FROM votes WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: voted markets of %s: %w", userID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: voted markets of %s: %w", userID, err)
	}
	return ids, nil
}

// LatestByUser returns the most recent vote cast by userID.
func (s *VoteStore) LatestByUser(ctx context.Context, userID string) (domain.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`
	v, err := scanVote(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Vote{}, fmt.Errorf("postgres: latest vote of %s: %w", userID, domain.ErrNotFound)
		}
		return domain.Vote{}, fmt.Errorf("postgres: latest vote of %s: %w", userID, err)
	}
	return v, nil
}

// collectVotes drains rows produced by a voteColumns select.
func collectVotes(rows pgx.Rows) ([]domain.Vote, error) {
	defer rows.Close()

	var votes []domain.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return votes, nil
}
