// Package line computes how a market's over/under line moves when a vote is
// cast.
package line

import (
	"math"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// BaseAdjustment is the dollar amount a fully one-sided market moves per
// unit of sqrt(total votes).
const BaseAdjustment = 2.0

// Tally is a market's vote counts and line at a point in time.
type Tally struct {
	OverVotes  int
	UnderVotes int
	Line       float64
}

// Adjust records one vote on side against the pre-vote tally and returns the
// post-vote tally.
//
// The line moves by imbalance * BaseAdjustment * (total / sqrt(total)), where
// imbalance is the over fraction minus 0.5 after the vote is counted, and is
// then clamped to [domain.MinLine, domain.MaxLine]. total / sqrt(total) is
// sqrt(total), so the step grows with participation while the imbalance
// shrinks as votes even out.
func Adjust(t Tally, side domain.Side) Tally {
	over, under := t.OverVotes, t.UnderVotes
	if side == domain.SideOver {
		over++
	} else {
		under++
	}

	total := float64(over + under)
	imbalance := float64(over)/total - 0.5
	adjustment := imbalance * BaseAdjustment * (total / math.Sqrt(total))

	return Tally{
		OverVotes:  over,
		UnderVotes: under,
		Line:       Clamp(t.Line + adjustment),
	}
}

// Clamp bounds v to [domain.MinLine, domain.MaxLine].
func Clamp(v float64) float64 {
	return math.Max(domain.MinLine, math.Min(domain.MaxLine, v))
}
