package handler

import (
	"time"

	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/service"
	"github.com/shopspring/decimal"
)

// Lines are stored as float64; responses round to cents and carry a fixed
// two-decimal string for display.

func cents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func displayLine(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

type ownerView struct {
	Email string `json:"email"`
}

type profileView struct {
	ID             string     `json:"id,omitempty"`
	Name           string     `json:"name"`
	ProfilePicture string     `json:"profilePicture,omitempty"`
	ResumeURL      string     `json:"resumeUrl,omitempty"`
	User           ownerView  `json:"user"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

type marketView struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      string       `json:"status,omitempty"`
	CurrentLine float64      `json:"currentLine"`
	DisplayLine string       `json:"displayLine"`
	InitialLine float64      `json:"initialLine,omitempty"`
	OverVotes   int          `json:"overVotes"`
	UnderVotes  int          `json:"underVotes"`
	TotalVotes  int          `json:"totalVotes"`
	Profile     *profileView `json:"profile,omitempty"`
}

type rankedView struct {
	Rank int `json:"rank"`
	marketView
}

func newMarketView(m domain.Market) marketView {
	return marketView{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Status:      string(m.Status),
		CurrentLine: cents(m.CurrentLine),
		DisplayLine: displayLine(m.CurrentLine),
		InitialLine: m.InitialLine,
		OverVotes:   m.OverVotes,
		UnderVotes:  m.UnderVotes,
		TotalVotes:  m.TotalVotes(),
	}
}

func newListingView(l domain.MarketListing) marketView {
	v := newMarketView(l.Market)
	v.Profile = &profileView{
		Name:           l.ProfileName,
		ProfilePicture: l.ProfilePicture,
		ResumeURL:      l.ResumeURL,
		User:           ownerView{Email: l.OwnerEmail},
	}
	return v
}

func newRankedViews(rows []service.RankedMarket) []rankedView {
	out := make([]rankedView, len(rows))
	for i, r := range rows {
		out[i] = rankedView{Rank: r.Rank, marketView: newListingView(r.MarketListing)}
	}
	return out
}

func newProfileView(p domain.Profile) profileView {
	created, updated := p.CreatedAt, p.UpdatedAt
	return profileView{
		ID:             p.ID,
		Name:           p.Name,
		ProfilePicture: p.ProfilePicture,
		ResumeURL:      p.ResumeURL,
		User:           ownerView{Email: p.OwnerEmail},
		CreatedAt:      &created,
		UpdatedAt:      &updated,
	}
}
