package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// ProfileStore implements domain.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new ProfileStore backed by the given connection pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

const profileSelect = `
	SELECT p.id, p.user_id, p.name,
	       COALESCE(p.profile_picture, ''), COALESCE(p.resume_url, ''),
	       u.email, p.created_at, p.updated_at
	FROM profiles p
	JOIN users u ON u.id = p.user_id`

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.ProfilePicture, &p.ResumeURL,
		&p.OwnerEmail, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// GetByID returns the profile with the given id.
func (s *ProfileStore) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, profileSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, fmt.Errorf("postgres: profile %s: %w", id, domain.ErrNotFound)
		}
		return domain.Profile{}, fmt.Errorf("postgres: profile %s: %w", id, err)
	}
	return p, nil
}

// GetByUserID returns the profile owned by userID.
func (s *ProfileStore) GetByUserID(ctx context.Context, userID string) (domain.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, profileSelect+` WHERE p.user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, fmt.Errorf("postgres: profile of user %s: %w", userID, domain.ErrNotFound)
		}
		return domain.Profile{}, fmt.Errorf("postgres: profile of user %s: %w", userID, err)
	}
	return p, nil
}

// Update overwrites the editable profile fields.
func (s *ProfileStore) Update(ctx context.Context, p domain.Profile) error {
	const query = `
		UPDATE profiles
		SET name = $2, profile_picture = $3, resume_url = $4, updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, p.ID, p.Name, nullable(p.ProfilePicture), nullable(p.ResumeURL))
	if err != nil {
		return fmt.Errorf("postgres: update profile %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update profile %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}
