package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit      int
	Offset     int
	ExcludeIDs []string
}

// UserStore persists accounts.
type UserStore interface {
	// Create inserts a user. It returns ErrAlreadyExists when the email is taken.
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	// GetByVerificationToken only matches users that are not yet verified.
	GetByVerificationToken(ctx context.Context, token string) (User, error)
	// MarkVerified sets email_verified and clears the verification token.
	MarkVerified(ctx context.Context, id string) error
	ListExcept(ctx context.Context, keepID string) ([]User, error)
}

// ProfileStore persists profiles. Profiles are created through Tx together
// with their market.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (Profile, error)
	GetByUserID(ctx context.Context, userID string) (Profile, error)
	Update(ctx context.Context, p Profile) error
}

// MarketStore provides read access to markets. Tallies and the line are only
// ever written through Tx.
type MarketStore interface {
	GetByID(ctx context.Context, id string) (Market, error)
	// ListActive returns active markets joined with profile fields, skipping
	// opts.ExcludeIDs.
	ListActive(ctx context.Context, opts ListOpts) ([]MarketListing, error)
	// Leaderboard returns active markets ordered by current line, highest first.
	Leaderboard(ctx context.Context, limit int) ([]MarketListing, error)
	CountActive(ctx context.Context) (int64, error)
}

// VoteStore provides read access to votes.
type VoteStore interface {
	ListMarketIDsByUser(ctx context.Context, userID string) ([]string, error)
	// LatestByUser returns ErrNotFound when the user has never voted.
	LatestByUser(ctx context.Context, userID string) (Vote, error)
}

// TxStore opens units of work against storage.
type TxStore interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a unit of work. Every read and write goes through the handle and
// becomes visible to others only after Commit. Rollback after Commit is a
// no-op, so callers can always defer it.
type Tx interface {
	HasVote(ctx context.Context, userID, marketID string) (bool, error)
	// GetMarketForUpdate reads a market and holds its row until the
	// transaction ends.
	GetMarketForUpdate(ctx context.Context, id string) (Market, error)
	// InsertVote returns ErrDuplicateVote when (user, market) already has a vote.
	InsertVote(ctx context.Context, v Vote) error
	UpdateMarketTally(ctx context.Context, m Market) error

	// CreateProfile returns ErrAlreadyExists when the user already has one.
	CreateProfile(ctx context.Context, p Profile) error
	CreateMarket(ctx context.Context, m Market) error

	// DeleteUser removes a user with their profile and market. Every vote the
	// user cast and every vote cast on their market is removed and returned,
	// so callers can archive the rows before committing.
	DeleteUser(ctx context.Context, userID string) (UserDeletion, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UserDeletion describes the rows removed by Tx.DeleteUser.
type UserDeletion struct {
	Markets  []string // ids
	Profiles int64
	Votes    []Vote
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
