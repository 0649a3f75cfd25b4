// Package memory is an in-process implementation of the domain storage
// interfaces. Transactions are serialized, so it behaves like a database
// where every transaction locks every row it touches. It backs local
// development (database.driver = "memory") and package tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

type state struct {
	users    map[string]domain.User
	profiles map[string]domain.Profile
	markets  map[string]domain.Market
	votes    []domain.Vote
}

func newState() *state {
	return &state{
		users:    make(map[string]domain.User),
		profiles: make(map[string]domain.Profile),
		markets:  make(map[string]domain.Market),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.markets {
		c.markets[k] = v
	}
	c.votes = append([]domain.Vote(nil), s.votes...)
	return c
}

func (s *state) hasVote(userID, marketID string) bool {
	for _, v := range s.votes {
		if v.UserID == userID && v.MarketID == marketID {
			return true
		}
	}
	return false
}

func (s *state) profileByUser(userID string) (domain.Profile, bool) {
	for _, p := range s.profiles {
		if p.UserID == userID {
			return p, true
		}
	}
	return domain.Profile{}, false
}

// market fills OwnerUserID from the owning profile.
func (s *state) market(id string) (domain.Market, bool) {
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, false
	}
	m.OwnerUserID = s.profiles[m.ProfileID].UserID
	return m, true
}

func (s *state) listing(m domain.Market) domain.MarketListing {
	p := s.profiles[m.ProfileID]
	m.OwnerUserID = p.UserID
	return domain.MarketListing{
		Market:         m,
		ProfileName:    p.Name,
		ProfilePicture: p.ProfilePicture,
		ResumeURL:      p.ResumeURL,
		OwnerEmail:     s.users[p.UserID].Email,
	}
}

// Store holds all data in memory.
type Store struct {
	txMu sync.Mutex // held by an open Tx and by every non-transactional write

	mu    sync.RWMutex
	data  *state
	audit []domain.AuditEntry

	conflictMu sync.Mutex
	conflicts  int

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: newState(), now: time.Now}
}

// InjectConflicts makes the next n commits fail with
// domain.ErrStorageConflict, as a serialization failure would.
func (s *Store) InjectConflicts(n int) {
	s.conflictMu.Lock()
	s.conflicts = n
	s.conflictMu.Unlock()
}

func (s *Store) takeConflict() bool {
	s.conflictMu.Lock()
	defer s.conflictMu.Unlock()
	if s.conflicts > 0 {
		s.conflicts--
		return true
	}
	return false
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

func (s *Store) write(fn func(st *state) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// Users returns the domain.UserStore view.
func (s *Store) Users() *UserStore { return &UserStore{s: s} }

// Profiles returns the domain.ProfileStore view.
func (s *Store) Profiles() *ProfileStore { return &ProfileStore{s: s} }

// Markets returns the domain.MarketStore view.
func (s *Store) Markets() *MarketStore { return &MarketStore{s: s} }

// Votes returns the domain.VoteStore view.
func (s *Store) Votes() *VoteStore { return &VoteStore{s: s} }

// Audit returns the domain.AuditStore view.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

// UserStore implements domain.UserStore.
type UserStore struct{ s *Store }

func (u *UserStore) Create(_ context.Context, user domain.User) error {
	return u.s.write(func(st *state) error {
		for _, existing := range st.users {
			if existing.Email == user.Email {
				return fmt.Errorf("memory: create user %s: %w", user.Email, domain.ErrAlreadyExists)
			}
		}
		now := u.s.now()
		user.CreatedAt, user.UpdatedAt = now, now
		st.users[user.ID] = user
		return nil
	})
}

func (u *UserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	var (
		user domain.User
		ok   bool
	)
	u.s.read(func(st *state) { user, ok = st.users[id] })
	if !ok {
		return domain.User{}, fmt.Errorf("memory: user %s: %w", id, domain.ErrNotFound)
	}
	return user, nil
}

func (u *UserStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	return u.find(func(user domain.User) bool { return user.Email == email }, "email "+email)
}

func (u *UserStore) GetByVerificationToken(_ context.Context, token string) (domain.User, error) {
	return u.find(func(user domain.User) bool {
		return token != "" && user.VerificationToken == token && !user.EmailVerified
	}, "token")
}

func (u *UserStore) find(match func(domain.User) bool, what string) (domain.User, error) {
	var (
		found domain.User
		ok    bool
	)
	u.s.read(func(st *state) {
		for _, user := range st.users {
			if match(user) {
				found, ok = user, true
				return
			}
		}
	})
	if !ok {
		return domain.User{}, fmt.Errorf("memory: user by %s: %w", what, domain.ErrNotFound)
	}
	return found, nil
}

func (u *UserStore) MarkVerified(_ context.Context, id string) error {
	return u.s.write(func(st *state) error {
		user, ok := st.users[id]
		if !ok {
			return fmt.Errorf("memory: verify user %s: %w", id, domain.ErrNotFound)
		}
		user.EmailVerified = true
		user.VerificationToken = ""
		user.UpdatedAt = u.s.now()
		st.users[id] = user
		return nil
	})
}

func (u *UserStore) ListExcept(_ context.Context, keepID string) ([]domain.User, error) {
	var out []domain.User
	u.s.read(func(st *state) {
		for id, user := range st.users {
			if id != keepID {
				out = append(out, user)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ProfileStore implements domain.ProfileStore.
type ProfileStore struct{ s *Store }

func (p *ProfileStore) GetByID(_ context.Context, id string) (domain.Profile, error) {
	var (
		prof domain.Profile
		ok   bool
	)
	p.s.read(func(st *state) {
		prof, ok = st.profiles[id]
		prof.OwnerEmail = st.users[prof.UserID].Email
	})
	if !ok {
		return domain.Profile{}, fmt.Errorf("memory: profile %s: %w", id, domain.ErrNotFound)
	}
	return prof, nil
}

func (p *ProfileStore) GetByUserID(_ context.Context, userID string) (domain.Profile, error) {
	var (
		prof domain.Profile
		ok   bool
	)
	p.s.read(func(st *state) {
		prof, ok = st.profileByUser(userID)
		prof.OwnerEmail = st.users[userID].Email
	})
	if !ok {
		return domain.Profile{}, fmt.Errorf("memory: profile of user %s: %w", userID, domain.ErrNotFound)
	}
	return prof, nil
}

func (p *ProfileStore) Update(_ context.Context, prof domain.Profile) error {
	return p.s.write(func(st *state) error {
		cur, ok := st.profiles[prof.ID]
		if !ok {
			return fmt.Errorf("memory: update profile %s: %w", prof.ID, domain.ErrNotFound)
		}
		cur.Name = prof.Name
		cur.ProfilePicture = prof.ProfilePicture
		cur.ResumeURL = prof.ResumeURL
		cur.UpdatedAt = p.s.now()
		st.profiles[prof.ID] = cur
		return nil
	})
}

// MarketStore implements domain.MarketStore.
type MarketStore struct{ s *Store }

func (m *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	var (
		mk domain.Market
		ok bool
	)
	m.s.read(func(st *state) { mk, ok = st.market(id) })
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: market %s: %w", id, domain.ErrNotFound)
	}
	return mk, nil
}

func (m *MarketStore) active() []domain.MarketListing {
	var out []domain.MarketListing
	m.s.read(func(st *state) {
		for _, mk := range st.markets {
			if mk.Status == domain.MarketStatusActive {
				out = append(out, st.listing(mk))
			}
		}
	})
	return out
}

func (m *MarketStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.MarketListing, error) {
	exclude := make(map[string]bool, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		exclude[id] = true
	}

	var out []domain.MarketListing
	for _, l := range m.active() {
		if !exclude[l.ID] {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts.Limit, opts.Offset), nil
}

func (m *MarketStore) Leaderboard(_ context.Context, limit int) ([]domain.MarketListing, error) {
	out := m.active()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CurrentLine != out[j].CurrentLine {
			return out[i].CurrentLine > out[j].CurrentLine
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, limit, 0), nil
}

func (m *MarketStore) CountActive(context.Context) (int64, error) {
	return int64(len(m.active())), nil
}

// VoteStore implements domain.VoteStore.
type VoteStore struct{ s *Store }

func (v *VoteStore) ListMarketIDsByUser(ctx context.Context, userID string) ([]string, error) {
	votes, err := v.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(votes))
	for _, vote := range votes {
		ids = append(ids, vote.MarketID)
	}
	return ids, nil
}

func (v *VoteStore) LatestByUser(ctx context.Context, userID string) (domain.Vote, error) {
	votes, err := v.ListByUser(ctx, userID)
	if err != nil {
		return domain.Vote{}, err
	}
	if len(votes) == 0 {
		return domain.Vote{}, fmt.Errorf("memory: latest vote of %s: %w", userID, domain.ErrNotFound)
	}
	return votes[len(votes)-1], nil
}

// ListByUser returns votes in insertion order.
func (v *VoteStore) ListByUser(ctx context.Context, userID string) ([]domain.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory: votes of %s: %w", userID, err)
	}
	var out []domain.Vote
	v.s.read(func(st *state) {
		for _, vote := range st.votes {
			if vote.UserID == userID {
				out = append(out, vote)
			}
		}
	})
	return out, nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct{ s *Store }

func (a *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.audit = append(a.s.audit, domain.AuditEntry{
		ID:        int64(len(a.s.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: a.s.now(),
	})
	return nil
}

// List returns entries newest first. Only tests read the log back.
func (a *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.s.mu.RLock()
	out := make([]domain.AuditEntry, 0, len(a.s.audit))
	for i := len(a.s.audit) - 1; i >= 0; i-- {
		out = append(out, a.s.audit[i])
	}
	a.s.mu.RUnlock()
	return paginate(out, opts.Limit, opts.Offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
