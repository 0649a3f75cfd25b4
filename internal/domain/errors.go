package domain

import "errors"

// Vote rejections. Each is an expected outcome the caller maps to a
// transport-level error; none of them is fatal to the process.
var (
	ErrUnauthenticated   = errors.New("authentication required")
	ErrInvalidInput      = errors.New("invalid request")
	ErrEmailUnverified   = errors.New("verification required")
	ErrDuplicateVote     = errors.New("duplicate vote")
	ErrNotFound          = errors.New("not found")
	ErrSelfVoteForbidden = errors.New("self-vote forbidden")
	ErrStorageConflict   = errors.New("storage conflict")
)

var (
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailDomain        = errors.New("email domain not allowed")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrRateLimited        = errors.New("rate limited")
	ErrLockHeld           = errors.New("lock already held")
)
