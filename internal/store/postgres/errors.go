package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the stores react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// voteUniqueConstraint is the (user_id, market_id) constraint on votes.
const voteUniqueConstraint = "votes_user_market_key"

func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func isUniqueViolation(err error) bool {
	code, _ := pgErrorCode(err)
	return code == codeUniqueViolation
}

// isDuplicateVote reports whether err is the votes (user, market) constraint
// firing.
func isDuplicateVote(err error) bool {
	code, constraint := pgErrorCode(err)
	return code == codeUniqueViolation && constraint == voteUniqueConstraint
}

// isConflict reports whether err is a transient concurrent-write failure that
// is safe to retry with a fresh transaction.
func isConflict(err error) bool {
	code, _ := pgErrorCode(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}
