package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

var errTxDone = errors.New("memory: transaction already finished")

// Begin opens a unit of work. It blocks until any other open Tx finishes.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory: begin: %w", err)
	}
	s.txMu.Lock()
	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()
	return &Tx{s: s, work: work}, nil
}

// Tx applies its writes to a private copy that replaces the store's data on
// Commit.
type Tx struct {
	s    *Store
	work *state
	done bool
}

func (t *Tx) HasVote(_ context.Context, userID, marketID string) (bool, error) {
	if t.done {
		return false, errTxDone
	}
	return t.work.hasVote(userID, marketID), nil
}

func (t *Tx) GetMarketForUpdate(_ context.Context, id string) (domain.Market, error) {
	if t.done {
		return domain.Market{}, errTxDone
	}
	m, ok := t.work.market(id)
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: lock market %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func (t *Tx) InsertVote(_ context.Context, v domain.Vote) error {
	if t.done {
		return errTxDone
	}
	if t.work.hasVote(v.UserID, v.MarketID) {
		return fmt.Errorf("memory: insert vote: %w", domain.ErrDuplicateVote)
	}
	if _, ok := t.work.markets[v.MarketID]; !ok {
		return fmt.Errorf("memory: insert vote: market %s: %w", v.MarketID, domain.ErrNotFound)
	}
	t.work.votes = append(t.work.votes, v)
	return nil
}

func (t *Tx) UpdateMarketTally(_ context.Context, m domain.Market) error {
	if t.done {
		return errTxDone
	}
	cur, ok := t.work.markets[m.ID]
	if !ok {
		return fmt.Errorf("memory: update tally %s: %w", m.ID, domain.ErrNotFound)
	}
	if m.CurrentLine < domain.MinLine || m.CurrentLine > domain.MaxLine || m.OverVotes < 0 || m.UnderVotes < 0 {
		return fmt.Errorf("memory: update tally %s: out of range", m.ID)
	}
	cur.CurrentLine = m.CurrentLine
	cur.OverVotes = m.OverVotes
	cur.UnderVotes = m.UnderVotes
	cur.UpdatedAt = m.UpdatedAt
	t.work.markets[m.ID] = cur
	return nil
}

func (t *Tx) CreateProfile(_ context.Context, p domain.Profile) error {
	if t.done {
		return errTxDone
	}
	if _, exists := t.work.profileByUser(p.UserID); exists {
		return fmt.Errorf("memory: create profile: %w", domain.ErrAlreadyExists)
	}
	if _, ok := t.work.users[p.UserID]; !ok {
		return fmt.Errorf("memory: create profile: user %s: %w", p.UserID, domain.ErrNotFound)
	}
	now := t.s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.OwnerEmail = ""
	t.work.profiles[p.ID] = p
	return nil
}

func (t *Tx) CreateMarket(_ context.Context, m domain.Market) error {
	if t.done {
		return errTxDone
	}
	for _, existing := range t.work.markets {
		if existing.ProfileID == m.ProfileID {
			return fmt.Errorf("memory: create market: %w", domain.ErrAlreadyExists)
		}
	}
	if _, ok := t.work.profiles[m.ProfileID]; !ok {
		return fmt.Errorf("memory: create market: profile %s: %w", m.ProfileID, domain.ErrNotFound)
	}
	now := t.s.now()
	m.CreatedAt, m.UpdatedAt = now, now
	m.OwnerUserID = ""
	t.work.markets[m.ID] = m
	return nil
}

func (t *Tx) DeleteUser(_ context.Context, userID string) (domain.UserDeletion, error) {
	var d domain.UserDeletion
	if t.done {
		return d, errTxDone
	}
	if _, ok := t.work.users[userID]; !ok {
		return d, fmt.Errorf("memory: delete user %s: %w", userID, domain.ErrNotFound)
	}

	// Votes on the user's own market go with it and are reported too.
	doomedMarkets := make(map[string]bool)
	if p, ok := t.work.profileByUser(userID); ok {
		for id, m := range t.work.markets {
			if m.ProfileID == p.ID {
				doomedMarkets[id] = true
				delete(t.work.markets, id)
				d.Markets = append(d.Markets, id)
			}
		}
		delete(t.work.profiles, p.ID)
		d.Profiles++
	}

	kept := t.work.votes[:0]
	for _, v := range t.work.votes {
		if v.UserID == userID || doomedMarkets[v.MarketID] {
			d.Votes = append(d.Votes, v)
			continue
		}
		kept = append(kept, v)
	}
	t.work.votes = kept

	delete(t.work.users, userID)
	return d, nil
}

func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer t.s.txMu.Unlock()

	if t.s.takeConflict() {
		return fmt.Errorf("memory: commit: %w", domain.ErrStorageConflict)
	}

	t.s.mu.Lock()
	t.s.data = t.work
	t.s.mu.Unlock()
	return nil
}

func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.txMu.Unlock()
	return nil
}
