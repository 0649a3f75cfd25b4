package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketColumns = `m.id, m.profile_id, p.user_id, m.title, m.description, m.status,
	m.current_line, m.initial_line, m.over_votes, m.under_votes, m.created_at, m.updated_at`

const listingSelect = `
	SELECT ` + marketColumns + `,
	       p.name, COALESCE(p.profile_picture, ''), COALESCE(p.resume_url, ''), u.email
	FROM markets m
	JOIN profiles p ON p.id = m.profile_id
	JOIN users u ON u.id = p.user_id`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	err := row.Scan(
		&m.ID, &m.ProfileID, &m.OwnerUserID, &m.Title, &m.Description, &status,
		&m.CurrentLine, &m.InitialLine, &m.OverVotes, &m.UnderVotes,
		&m.CreatedAt, &m.UpdatedAt,
	)
	m.Status = domain.MarketStatus(status)
	return m, err
}

func scanListing(row pgx.Row) (domain.MarketListing, error) {
	var l domain.MarketListing
	var status string
	err := row.Scan(
		&l.ID, &l.ProfileID, &l.OwnerUserID, &l.Title, &l.Description, &status,
		&l.CurrentLine, &l.InitialLine, &l.OverVotes, &l.UnderVotes,
		&l.CreatedAt, &l.UpdatedAt,
		&l.ProfileName, &l.ProfilePicture, &l.ResumeURL, &l.OwnerEmail,
	)
	l.Status = domain.MarketStatus(status)
	return l, err
}

// GetByID returns the market with the given id.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	query := `SELECT ` + marketColumns + `
		FROM markets m JOIN profiles p ON p.id = m.profile_id
		WHERE m.id = $1`
	m, err := scanMarket(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, err)
	}
	return m, nil
}

// ListActive returns active markets with their profile fields, newest first.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.MarketListing, error) {
	query := listingSelect + ` WHERE m.status = $1`
	args := []any{string(domain.MarketStatusActive)}
	argIdx := 2

	if len(opts.ExcludeIDs) > 0 {
		query += fmt.Sprintf(" AND NOT (m.id = ANY($%d))", argIdx)
		args = append(args, opts.ExcludeIDs)
		argIdx++
	}

	query += " ORDER BY m.created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryListings(ctx, "list active markets", query, args...)
}

// Leaderboard returns active markets ordered by current line, highest first.
func (s *MarketStore) Leaderboard(ctx context.Context, limit int) ([]domain.MarketListing, error) {
	query := listingSelect + `
		WHERE m.status = $1
		ORDER BY m.current_line DESC, m.created_at
		LIMIT $2`
	return s.queryListings(ctx, "leaderboard", query, string(domain.MarketStatusActive), limit)
}

// CountActive returns the number of active markets.
func (s *MarketStore) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM markets WHERE status = $1`, string(domain.MarketStatusActive),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count active markets: %w", err)
	}
	return n, nil
}

func (s *MarketStore) queryListings(ctx context.Context, op, query string, args ...any) ([]domain.MarketListing, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.MarketListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}
