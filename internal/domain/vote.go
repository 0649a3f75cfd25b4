package domain

import "time"

// Side is the direction of a vote relative to the current line.
type Side string

const (
	SideOver  Side = "over"
	SideUnder Side = "under"
)

// ParseSide returns the Side for s, or false when s is neither "over" nor
// "under". Matching is exact.
func ParseSide(s string) (Side, bool) {
	switch Side(s) {
	case SideOver, SideUnder:
		return Side(s), true
	default:
		return "", false
	}
}

// Vote is one user's over/under call on one market. LineAtVote is the line
// before this vote's adjustment and is never recomputed.
type Vote struct {
	ID         string
	UserID     string
	MarketID   string
	Side       Side
	LineAtVote float64
	CreatedAt  time.Time
}
