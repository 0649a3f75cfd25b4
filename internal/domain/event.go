package domain

import "time"

// ChannelLineUpdates carries a LineUpdate for every accepted vote.
const ChannelLineUpdates = "ch:line"

// LineUpdate is published after a vote commits.
type LineUpdate struct {
	MarketID   string    `json:"market_id"`
	Side       Side      `json:"side"`
	LineBefore float64   `json:"line_before"`
	NewLine    float64   `json:"new_line"`
	OverVotes  int       `json:"over_votes"`
	UnderVotes int       `json:"under_votes"`
	At         time.Time `json:"at"`
}
