package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/cache/local"
	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/store/memory"
)

func newVoteService(st *memory.Store, bus domain.EventBus) *VoteService {
	svc := NewVoteService(st.Users(), st, nil, bus, st.Audit(), DefaultVoteConfig(), testLogger())
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCastFirstOverVote(t *testing.T) {
	st := memory.New()
	addUser(t, st, "owner", true)
	addUser(t, st, "voter", true)
	addMarket(t, st, "owner", "m1", domain.MarketStatusActive, 25, 0, 0)

	res, err := newVoteService(st, nil).Cast(context.Background(), CastVoteRequest{
		UserID: "voter", MarketID: "m1", Side: "over",
	})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	if !approx(res.NewLine, 26) || res.OverVotes != 1 || res.UnderVotes != 0 {
		t.Fatalf("result = %+v, want line 26 with 1/0", res)
	}

	votes, _ := st.Votes().ListByUser(context.Background(), "voter")
	if len(votes) != 1 || votes[0].LineAtVote != 25 || votes[0].Side != domain.SideOver {
		t.Fatalf("votes = %+v", votes)
	}
	if m := mustMarket(t, st, "m1"); !approx(m.CurrentLine, 26) {
		t.Fatalf("stored line = %v", m.CurrentLine)
	}
}

func TestCastBalancingUnderVote(t *testing.T) {
	st := memory.New()
	addUser(t, st, "owner", true)
	addUser(t, st, "voter", true)
	addMarket(t, st, "owner", "m1", domain.MarketStatusActive, 26, 1, 0)

	res, err := newVoteService(st, nil).Cast(context.Background(), CastVoteRequest{
		UserID: "voter", MarketID: "m1", Side: "under",
	})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	if !approx(res.NewLine, 26) || res.OverVotes != 1 || res.UnderVotes != 1 {
		t.Fatalf("result = %+v, want line 26 with 1/1", res)
	}
}

func TestCastRejectionOrder(t *testing.T) {
	st := memory.New()
	addUser(t, st, "owner", true)
	addUser(t, st, "voter", true)
	addUser(t, st, "retired", true)
	addUser(t, st, "unverified", false)
	addMarket(t, st, "owner", "m1", domain.MarketStatusActive, 25, 0, 0)
	addMarket(t, st, "voter", "mine", domain.MarketStatusActive, 25, 0, 0)
	addMarket(t, st, "retired", "closed", domain.MarketStatusClosed, 25, 0, 0)

	svc := newVoteService(st, nil)
	ctx := context.Background()
	if _, err := svc.Cast(ctx, CastVoteRequest{UserID: "voter", MarketID: "m1", Side: "over"}); err != nil {
		t.Fatalf("seed vote: %v", err)
	}

	cases := []struct {
		name string
		req  CastVoteRequest
		want error
	}{
		{"anonymous beats bad input", CastVoteRequest{MarketID: "", Side: "sideways"}, domain.ErrUnauthenticated},
		{"bad side", CastVoteRequest{UserID: "voter", MarketID: "m1", Side: "Over"}, domain.ErrInvalidInput},
		{"empty market", CastVoteRequest{UserID: "voter", MarketID: " ", Side: "over"}, domain.ErrInvalidInput},
		{"unverified", CastVoteRequest{UserID: "unverified", MarketID: "m1", Side: "over"}, domain.ErrEmailUnverified},
		{"unknown user", CastVoteRequest{UserID: "ghost", MarketID: "m1", Side: "over"}, domain.ErrEmailUnverified},
		{"duplicate", CastVoteRequest{UserID: "voter", MarketID: "m1", Side: "under"}, domain.ErrDuplicateVote},
		{"missing market", CastVoteRequest{UserID: "voter", MarketID: "nope", Side: "over"}, domain.ErrNotFound},
		{"inactive market", CastVoteRequest{UserID: "voter", MarketID: "closed", Side: "over"}, domain.ErrNotFound},
		{"self vote", CastVoteRequest{UserID: "voter", MarketID: "mine", Side: "over"}, domain.ErrSelfVoteForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Cast(ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	// Rejections changed nothing.
	m := mustMarket(t, st, "m1")
	if m.OverVotes != 1 || m.UnderVotes != 0 || !approx(m.CurrentLine, 26) {
		t.Fatalf("m1 = %+v", m)
	}
	if mine := mustMarket(t, st, "mine"); mine.TotalVotes() != 0 || mine.CurrentLine != 25 {
		t.Fatalf("mine = %+v", mine)
	}
	votes, _ := st.Votes().ListByUser(ctx, "voter")
	if len(votes) != 1 {
		t.Fatalf("voter has %d votes, want 1", len(votes))
	}
}

func TestCastDuplicateIsIdempotent(t *testing.T) {
	st := memory.New()
	addUser(t, st, "owner", true)
	addUser(t, st, "voter", true)
	addMarket(t, st, "owner", "m1", domain.MarketStatusActive, 25, 0, 0)
	svc := newVoteService(st, nil)
	ctx := context.Background()

	first, err := svc.Cast(ctx, CastVoteRequest{UserID: "voter", MarketID: "m1", Side: "over"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Cast(ctx, CastVoteRequest{UserID: "voter", MarketID: "m1", Side: "over"}); !errors.Is(err, domain.ErrDuplicateVote) {
			t.Fatalf("repeat %d: err = %v", i, err)
		}
	}
	m := mustMarket(t, st, "m1")
	if m.CurrentLine != first.NewLine || m.OverVotes != 1 {
		t.Fatalf("market moved after duplicates: %+v", m)
	}
}

func TestCastConcurrentVoters(t *testing.T) {
	st := memory.New()
	addUser(t, st, "owner", true)
	addUser(t, st, "a", true)
	addUser(t, st, "b", true)
	addMarket(t, st, "owner", "m1", domain.MarketStatusActive, 25, 0, 0)
	svc := newVoteService(st, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, u := range []string{"a", "b"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := svc.Cast(context.Background(), CastVoteRequest{UserID: u, MarketID: "m1", Side: "over"})
			errs <- err
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("cast: %v", err)
		}
	}

	// Serialized: 25 -> 26 -> 26 + 0.5*2*sqrt(2).
	m := mustMarket(t, st, "m1")
	want := 26 + math.Sqrt(2)
	if m.OverVotes != 2 || !approx(m.CurrentLine, want) {
		t.Fatalf("market = %+v, want 2 over votes at %v", m, want)
	}

	lines := map[float64]bool{}
	for _, u := range []string{"a", "b"} {
		votes, _ := st.Votes().ListByUser(context.Background(), u)
		lines[votes[0].LineAtVote] = true
	}
	if !lines[25] || !lines[26] {
		t.Fatalf("line_at_vote values = %v, want {25, 26}", lines)
	}
}

func TestCastConcurrentSameUser(t *testing.T) {
	st := memory.New()
	addUser(t, st, "owner", true)
	addUser(t, st, "voter", true)
	addMarket(t, st, "owner", "m1", domain.MarketStatusActive, 25, 0, 0)
	svc := newVoteService(st, nil)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Cast(context.Background(), CastVoteRequest{UserID: "voter", MarketID: "m1", Side: "over"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrDuplicateVote):
			dup++
		default:
			t.Fatalf("cast: %v", err)
		}
	}
	if ok != 1 || dup != n-1 {
		t.Fatalf("ok=%d dup=%d, want 1 and %d", ok, dup, n-1)
	}
	if m := mustMarket(t, st, "m1"); m.TotalVotes() != 1 || !approx(m.CurrentLine, 26) {
		t.Fatalf("market = %+v, want one vote at 26", m)
	}
}

// racedTx passes the existence check but loses the insert to a concurrent
// vote, as a unique constraint violation would.
type racedTx struct {
	committed bool
	tallied   bool
}

func (r *racedTx) HasVote(context.Context, string, string) (bool, error) { return false, nil }

func (r *racedTx) GetMarketForUpdate(_ context.Context, id string) (domain.Market, error) {
	return domain.Market{
		ID: id, OwnerUserID: "owner", Status: domain.MarketStatusActive,
		CurrentLine: 25, InitialLine: domain.InitialLine,
	}, nil
}

func (r *racedTx) InsertVote(context.Context, domain.Vote) error {
	return fmt.Errorf("postgres: insert vote: %w", domain.ErrDuplicateVote)
}

func (r *racedTx) UpdateMarketTally(context.Context, domain.Market) error {
	r.tallied = true
	return nil
}

func (r *racedTx) CreateProfile(context.Context, domain.Profile) error { return nil }
func (r *racedTx) CreateMarket(context.Context, domain.Market) error   { return nil }

func (r *racedTx) DeleteUser(context.Context, string) (domain.UserDeletion, error) {
	return domain.UserDeletion{}, nil
}

func (r *racedTx) Commit(context.Context) error {
	r.committed = true
	return nil
}

func (r *racedTx) Rollback(context.Context) error { return nil }

type racedTxs struct{ tx *racedTx }

func (r racedTxs) Begin(context.Context) (domain.Tx, error) { return r.tx, nil }

func TestCastInsertDuplicateAfterCheck(t *testing.T) {
	st := memory.New()
	addUser(t, st, "voter", true)
	tx := &racedTx{}
	bus := local.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, _ := bus.Subscribe(ctx, domain.ChannelLineUpdates)

	svc := NewVoteService(st.Users(), racedTxs{tx}, nil, bus, st.Audit(), DefaultVoteConfig(), testLogger())
	_, err := svc.Cast(ctx, CastVoteRequest{UserID: "voter", MarketID: "m1", Side: "over"})
	if !errors.Is(err, domain.ErrDuplicateVote) {
		t.Fatalf("err = %v, want ErrDuplicateVote", err)
	}
	if tx.committed || tx.tallied {
		t.Fatalf("committed=%v tallied=%v after a lost insert", tx.committed, tx.tallied)
	}
	select {
	case raw := <-updates:
		t.Fatalf("published %s for a rejected vote", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCastRetriesConflicts(t *testing.T) {
	st := memory.New()
	addUser(t, st, "owner", true)
	addUser(t, st, "voter", true)
	addMarket(t, st, "owner", "m1", domain.MarketStatusActive, 25, 0, 0)
	st.InjectConflicts(2)

	svc := newVoteService(st, nil)
	var waits []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	res, err := svc.Cast(context.Background(), CastVoteRequest{UserID: "voter", MarketID: "m1", Side: "over"})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	if !approx(res.NewLine, 26) {
		t.Fatalf("line = %v", res.NewLine)
	}
	if len(waits) != 2 || waits[0] != 50*time.Millisecond || waits[1] != 100*time.Millisecond {
		t.Fatalf("backoff = %v", waits)
	}
}

func TestCastConflictExhausted(t *testing.T) {
	st := memory.New()
	addUser(t, st, "owner", true)
	addUser(t, st, "voter", true)
	addMarket(t, st, "owner", "m1", domain.MarketStatusActive, 25, 0, 0)
	st.InjectConflicts(3)

	_, err := newVoteService(st, nil).Cast(context.Background(), CastVoteRequest{UserID: "voter", MarketID: "m1", Side: "over"})
	if !errors.Is(err, domain.ErrStorageConflict) {
		t.Fatalf("err = %v, want ErrStorageConflict", err)
	}
	if m := mustMarket(t, st, "m1"); m.TotalVotes() != 0 || m.CurrentLine != 25 {
		t.Fatalf("market changed: %+v", m)
	}
}

func TestCastPublishesLineUpdate(t *testing.T) {
	st := memory.New()
	addUser(t, st, "owner", true)
	addUser(t, st, "voter", true)
	addMarket(t, st, "owner", "m1", domain.MarketStatusActive, 25, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := local.NewBus()
	updates, _ := bus.Subscribe(ctx, domain.ChannelLineUpdates)

	if _, err := newVoteService(st, bus).Cast(ctx, CastVoteRequest{UserID: "voter", MarketID: "m1", Side: "over"}); err != nil {
		t.Fatalf("cast: %v", err)
	}

	select {
	case raw := <-updates:
		var u domain.LineUpdate
		if err := json.Unmarshal(raw, &u); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if u.MarketID != "m1" || u.LineBefore != 25 || !approx(u.NewLine, 26) || u.Side != domain.SideOver {
			t.Fatalf("update = %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no line update published")
	}

	entries, _ := st.Audit().List(ctx, domain.ListOpts{})
	if len(entries) != 1 || entries[0].Event != "vote.cast" {
		t.Fatalf("audit = %+v", entries)
	}
}
