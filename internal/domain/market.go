package domain

import "time"

// MarketStatus represents the lifecycle state of a market. Only active
// markets are browsed and accept votes.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Line bounds and defaults, in dollars per hour.
const (
	MinLine     = 10.0
	MaxLine     = 100.0
	InitialLine = 25.0
)

// Market is the voteable over/under line attached 1:1 to a profile.
type Market struct {
	ID          string
	ProfileID   string
	OwnerUserID string // user behind ProfileID; filled on reads
	Title       string
	Description string
	Status      MarketStatus
	CurrentLine float64
	InitialLine float64
	OverVotes   int
	UnderVotes  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TotalVotes returns over + under.
func (m Market) TotalVotes() int {
	return m.OverVotes + m.UnderVotes
}

// MarketListing is a market joined with the public fields of its profile,
// as shown on the browse page and the leaderboard.
type MarketListing struct {
	Market
	ProfileName    string
	ProfilePicture string
	ResumeURL      string
	OwnerEmail     string
}
