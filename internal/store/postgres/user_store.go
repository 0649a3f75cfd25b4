package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `id, name, email, password_hash, email_verified,
	COALESCE(verification_token, ''), created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.EmailVerified,
		&u.VerificationToken, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (id, name, email, password_hash, email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		u.ID, u.Name, u.Email, u.PasswordHash, u.EmailVerified, nullable(u.VerificationToken),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create user %s: %w", u.Email, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create user %s: %w", u.Email, err)
	}
	return nil
}

// GetByID returns the user with the given id.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	return s.getOne(ctx, "id", id)
}

// GetByEmail returns the user with the given email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.getOne(ctx, "email", email)
}

// GetByVerificationToken returns the unverified user holding token.
func (s *UserStore) GetByVerificationToken(ctx context.Context, token string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE verification_token = $1 AND email_verified = FALSE`
	u, err := scanUser(s.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("postgres: user by token: %w", domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("postgres: user by token: %w", err)
	}
	return u, nil
}

// MarkVerified flags the user's email as verified and clears the token.
func (s *UserStore) MarkVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE users
		SET email_verified = TRUE, verification_token = NULL, updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: verify user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: verify user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListExcept returns every user other than keepID, oldest first.
func (s *UserStore) ListExcept(ctx context.Context, keepID string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id <> $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, keepID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list users rows: %w", err)
	}
	return users, nil
}

func (s *UserStore) getOne(ctx context.Context, column, value string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	u, err := scanUser(s.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("postgres: user %s %s: %w", column, value, domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("postgres: user %s %s: %w", column, value, err)
	}
	return u, nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
