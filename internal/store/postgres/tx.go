package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// Isolation names accepted by ParseIsolation.
const (
	IsolationReadCommitted = "read_committed"
	IsolationSerializable  = "serializable"
)

// ParseIsolation maps a config value to a pgx isolation level.
func ParseIsolation(s string) (pgx.TxIsoLevel, error) {
	switch s {
	case "", IsolationReadCommitted:
		return pgx.ReadCommitted, nil
	case IsolationSerializable:
		return pgx.Serializable, nil
	default:
		return "", fmt.Errorf("postgres: unknown isolation level %q", s)
	}
}

// TxStore implements domain.TxStore using PostgreSQL transactions.
type TxStore struct {
	pool *pgxpool.Pool
	iso  pgx.TxIsoLevel
}

// NewTxStore creates a TxStore opening transactions at the given isolation.
func NewTxStore(pool *pgxpool.Pool, iso pgx.TxIsoLevel) *TxStore {
	if iso == "" {
		iso = pgx.ReadCommitted
	}
	return &TxStore{pool: pool, iso: iso}
}

// Begin starts a new unit of work.
func (s *TxStore) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.iso})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx implements domain.Tx over a pgx.Tx.
type Tx struct {
	tx pgx.Tx
}

// wrap attaches op context and lifts transient failures to
// domain.ErrStorageConflict so callers can retry.
func wrap(op string, err error) error {
	if isConflict(err) {
		return fmt.Errorf("postgres: %s: %w: %v", op, domain.ErrStorageConflict, err)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

func (t *Tx) HasVote(ctx context.Context, userID, marketID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM votes WHERE user_id = $1 AND market_id = $2)`,
		userID, marketID,
	).Scan(&exists)
	if err != nil {
		return false, wrap("has vote", err)
	}
	return exists, nil
}

func (t *Tx) GetMarketForUpdate(ctx context.Context, id string) (domain.Market, error) {
	query := `SELECT ` + marketColumns + `
		FROM markets m JOIN profiles p ON p.id = m.profile_id
		WHERE m.id = $1
		FOR UPDATE OF m`
	m, err := scanMarket(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: lock market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, wrap("lock market "+id, err)
	}
	return m, nil
}

func (t *Tx) InsertVote(ctx context.Context, v domain.Vote) error {
	const query = `
		INSERT INTO votes (id, user_id, market_id, side, line_at_vote, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := t.tx.Exec(ctx, query, v.ID, v.UserID, v.MarketID, string(v.Side), v.LineAtVote, v.CreatedAt)
	if err != nil {
		if isDuplicateVote(err) {
			return fmt.Errorf("postgres: insert vote: %w", domain.ErrDuplicateVote)
		}
		return wrap("insert vote", err)
	}
	return nil
}

func (t *Tx) UpdateMarketTally(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets
		SET current_line = $2, over_votes = $3, under_votes = $4, updated_at = $5
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query, m.ID, m.CurrentLine, m.OverVotes, m.UnderVotes, m.UpdatedAt)
	if err != nil {
		return wrap("update tally "+m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update tally %s: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *Tx) CreateProfile(ctx context.Context, p domain.Profile) error {
	const query = `
		INSERT INTO profiles (id, user_id, name, profile_picture, resume_url)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := t.tx.Exec(ctx, query, p.ID, p.UserID, p.Name, nullable(p.ProfilePicture), nullable(p.ResumeURL))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create profile: %w", domain.ErrAlreadyExists)
		}
		return wrap("create profile", err)
	}
	return nil
}

func (t *Tx) CreateMarket(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, profile_id, title, description, status,
			current_line, initial_line, over_votes, under_votes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := t.tx.Exec(ctx, query,
		m.ID, m.ProfileID, m.Title, m.Description, string(m.Status),
		m.CurrentLine, m.InitialLine, m.OverVotes, m.UnderVotes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create market: %w", domain.ErrAlreadyExists)
		}
		return wrap("create market", err)
	}
	return nil
}

// DeleteUser removes the user's votes (both the ones they cast and the ones
// cast on their market), then the market, profile and account.
func (t *Tx) DeleteUser(ctx context.Context, userID string) (domain.UserDeletion, error) {
	var d domain.UserDeletion

	const deleteVotes = `WITH gone AS (
		DELETE FROM votes
		WHERE user_id = $1
		   OR market_id IN (
			SELECT m.id FROM markets m JOIN profiles p ON p.id = m.profile_id
			WHERE p.user_id = $1)
		RETURNING ` + voteColumns + `
	)
	SELECT ` + voteColumns + ` FROM gone ORDER BY created_at`
	rows, err := t.tx.Query(ctx, deleteVotes, userID)
	if err != nil {
		return d, wrap("delete votes of "+userID, err)
	}
	d.Votes, err = collectVotes(rows)
	if err != nil {
		return d, wrap("delete votes of "+userID, err)
	}

	rows, err = t.tx.Query(ctx,
		`DELETE FROM markets WHERE profile_id IN (SELECT id FROM profiles WHERE user_id = $1) RETURNING id`, userID)
	if err != nil {
		return d, wrap("delete markets of "+userID, err)
	}
	d.Markets, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return d, wrap("delete markets of "+userID, err)
	}

	tag, err := t.tx.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		return d, wrap("delete profile of "+userID, err)
	}
	d.Profiles = tag.RowsAffected()

	tag, err = t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return d, wrap("delete user "+userID, err)
	}
	if tag.RowsAffected() == 0 {
		return d, fmt.Errorf("postgres: delete user %s: %w", userID, domain.ErrNotFound)
	}
	return d, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return wrap("commit", err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}
