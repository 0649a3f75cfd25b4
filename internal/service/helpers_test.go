package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// addUser stores a user directly.
func addUser(t *testing.T, st *memory.Store, id string, verified bool) {
	t.Helper()
	err := st.Users().Create(context.Background(), domain.User{
		ID:            id,
		Name:          id,
		Email:         id + "@uwaterloo.ca",
		EmailVerified: verified,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

// addMarket creates a profile and market owned by userID.
func addMarket(t *testing.T, st *memory.Store, userID, marketID string, status domain.MarketStatus, line float64, over, under int) {
	t.Helper()
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	profileID := "p-" + marketID
	if err := tx.CreateProfile(ctx, domain.Profile{ID: profileID, UserID: userID, Name: userID}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := tx.CreateMarket(ctx, domain.Market{
		ID: marketID, ProfileID: profileID, Status: status,
		CurrentLine: line, InitialLine: domain.InitialLine,
		OverVotes: over, UnderVotes: under,
	}); err != nil {
		t.Fatalf("create market: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func mustMarket(t *testing.T, st *memory.Store, id string) domain.Market {
	t.Helper()
	m, err := st.Markets().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get market %s: %v", id, err)
	}
	return m
}
