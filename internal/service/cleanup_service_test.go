package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	blobmem "github.com/alanyoungcy/wagerloo/internal/blob/memory"
	s3blob "github.com/alanyoungcy/wagerloo/internal/blob/s3"
	"github.com/alanyoungcy/wagerloo/internal/cache/local"
	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/store/memory"
)

type recordingAlerts struct{ events []string }

func (r *recordingAlerts) Notify(_ context.Context, event, _, _ string) error {
	r.events = append(r.events, event)
	return nil
}

func newCleanup(st *memory.Store, blobs *blobmem.Store, locks domain.LockManager, alerts Alerter) *CleanupService {
	return newCleanupWithCache(st, blobs, locks, alerts, nil)
}

func newCleanupWithCache(st *memory.Store, blobs *blobmem.Store, locks domain.LockManager, alerts Alerter, cache domain.MarketCache) *CleanupService {
	return NewCleanupService(CleanupDeps{
		Users:    st.Users(),
		Profiles: st.Profiles(),
		Txs:      st,
		Cache:    cache,
		Archiver: s3blob.NewArchiver(blobs),
		Blobs:    blobs,
		Locks:    locks,
		Audit:    st.Audit(),
		Alerts:   alerts,
	}, time.Minute, testLogger())
}

func TestCleanupKeepsOneUser(t *testing.T) {
	st := memory.New()
	blobs := blobmem.New()
	ctx := context.Background()
	for _, u := range []string{"keep", "b", "c"} {
		addUser(t, st, u, true)
	}
	addMarket(t, st, "keep", "mk", domain.MarketStatusActive, 25, 0, 0)
	addMarket(t, st, "b", "mb", domain.MarketStatusActive, 25, 0, 0)

	votes := newVoteService(st, nil)
	for _, v := range []CastVoteRequest{
		{UserID: "b", MarketID: "mk", Side: "over"},
		{UserID: "c", MarketID: "mk", Side: "under"},
		{UserID: "keep", MarketID: "mb", Side: "over"},
		{UserID: "c", MarketID: "mb", Side: "under"},
	} {
		if _, err := votes.Cast(ctx, v); err != nil {
			t.Fatalf("cast %+v: %v", v, err)
		}
	}
	_ = blobs.Put(ctx, AssetPath("p-mb", AssetPicture), strings.NewReader("img"), "image/png")

	cache := &mapCache{m: map[string]domain.Market{}}
	_ = cache.Set(ctx, mustMarket(t, st, "mb"))
	_ = cache.Set(ctx, mustMarket(t, st, "mk"))

	alerts := &recordingAlerts{}
	report, err := newCleanupWithCache(st, blobs, local.NewLocks(), alerts, cache).Run(ctx, "KEEP@uwaterloo.ca")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Users != 2 || report.Markets != 1 || report.Profiles != 1 || report.Votes != 4 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Archives) != 2 {
		t.Fatalf("archives = %v", report.Archives)
	}

	// Every deleted row is archived exactly once, including the kept
	// user's vote on b's market.
	archived := map[string]int{}
	for _, p := range report.Archives {
		obj, ok := blobs.Object(p)
		if !ok {
			t.Fatalf("archive %s not stored", p)
		}
		for _, line := range strings.Split(strings.TrimSpace(string(obj.Data)), "\n") {
			var v struct {
				UserID   string `json:"user_id"`
				MarketID string `json:"market_id"`
			}
			if err := json.Unmarshal([]byte(line), &v); err != nil {
				t.Fatalf("archive line %q: %v", line, err)
			}
			archived[v.UserID+"->"+v.MarketID]++
		}
	}
	for _, want := range []string{"b->mk", "c->mk", "keep->mb", "c->mb"} {
		if archived[want] != 1 {
			t.Fatalf("archived = %v, want %s once", archived, want)
		}
	}
	if len(archived) != 4 {
		t.Fatalf("archived = %v", archived)
	}

	if _, err := cache.Get(ctx, "mb"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("deleted market still cached")
	}
	if _, err := cache.Get(ctx, "mk"); err != nil {
		t.Fatalf("kept market evicted: %v", err)
	}

	if _, ok := blobs.Object(AssetPath("p-mb", AssetPicture)); ok {
		t.Fatal("deleted profile's picture still stored")
	}
	remaining, _ := st.Users().ListExcept(ctx, "")
	if len(remaining) != 1 || remaining[0].ID != "keep" {
		t.Fatalf("remaining users = %+v", remaining)
	}
	if vs, _ := st.Votes().ListByUser(ctx, "keep"); len(vs) != 0 {
		t.Fatalf("keep votes = %d", len(vs))
	}
	if _, err := st.Markets().GetByID(ctx, "mk"); err != nil {
		t.Fatalf("kept market: %v", err)
	}
	if len(alerts.events) != 1 || alerts.events[0] != "cleanup.completed" {
		t.Fatalf("alerts = %v", alerts.events)
	}
}

type failingArchiver struct{}

func (failingArchiver) ArchiveVotes(context.Context, string, []domain.Vote) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestCleanupArchiveFailureKeepsUser(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	addUser(t, st, "keep", true)
	addUser(t, st, "b", true)
	addMarket(t, st, "b", "mb", domain.MarketStatusActive, 25, 0, 0)
	if _, err := newVoteService(st, nil).Cast(ctx, CastVoteRequest{UserID: "keep", MarketID: "mb", Side: "over"}); err != nil {
		t.Fatalf("cast: %v", err)
	}

	alerts := &recordingAlerts{}
	svc := NewCleanupService(CleanupDeps{
		Users:    st.Users(),
		Profiles: st.Profiles(),
		Txs:      st,
		Archiver: failingArchiver{},
		Alerts:   alerts,
	}, time.Minute, testLogger())
	if _, err := svc.Run(ctx, "keep@uwaterloo.ca"); err == nil {
		t.Fatal("run succeeded without an archive")
	}

	if _, err := st.Users().GetByID(ctx, "b"); err != nil {
		t.Fatalf("user b deleted without an archive: %v", err)
	}
	if vs, _ := st.Votes().ListByUser(ctx, "keep"); len(vs) != 1 {
		t.Fatalf("keep votes = %d, want 1", len(vs))
	}
	if len(alerts.events) != 1 || alerts.events[0] != "cleanup.failed" {
		t.Fatalf("alerts = %v", alerts.events)
	}
}

func TestCleanupUnknownKeepUser(t *testing.T) {
	st := memory.New()
	addUser(t, st, "a", true)
	alerts := &recordingAlerts{}

	_, err := newCleanup(st, blobmem.New(), nil, alerts).Run(context.Background(), "nobody@uwaterloo.ca")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := st.Users().GetByID(context.Background(), "a"); err != nil {
		t.Fatal("user deleted despite failed run")
	}
	if len(alerts.events) != 1 || alerts.events[0] != "cleanup.failed" {
		t.Fatalf("alerts = %v", alerts.events)
	}
}

func TestCleanupLockHeld(t *testing.T) {
	st := memory.New()
	addUser(t, st, "a", true)
	locks := local.NewLocks()
	unlock, _ := locks.Acquire(context.Background(), cleanupLockKey, time.Minute)
	defer unlock()

	_, err := newCleanup(st, blobmem.New(), locks, nil).Run(context.Background(), "a@uwaterloo.ca")
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
}

func TestCleanupRequiresEmail(t *testing.T) {
	_, err := newCleanup(memory.New(), blobmem.New(), nil, nil).Run(context.Background(), " ")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}
