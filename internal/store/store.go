// Package store defines the persistence boundary of the auction engine and an
// in-memory implementation used by tests and single-process deployments.
package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
)

// Store is the persistent home of teams, lots, auctions and bids. Commit
// must apply a changeset all-or-nothing.
type Store interface {
	// Load returns the canonical state at boot: the most recently created
	// auction whatever its status (if any), every team and lot, and the bids
	// already placed on the current lot.
	Load(ctx context.Context) (engine.State, error)
	Commit(ctx context.Context, changes engine.Changeset) error
	// BidHistory lists every bid ever placed on a lot, oldest first.
	BidHistory(ctx context.Context, lotID int64) ([]engine.Bid, error)
}

var ErrNotFound = errors.New("not found")

// Memory is a Store held in process memory. FailNext makes the next Commit
// fail without applying anything.
type Memory struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]engine.Auction
	live     *uuid.UUID
	latest   *uuid.UUID
	teams    map[int64]engine.Team
	lots     map[int64]engine.Lot
	bids     []engine.Bid
	failNext error
	commits  int
}

func NewMemory(teams []engine.Team, lots []engine.Lot) *Memory {
	m := &Memory{
		auctions: make(map[uuid.UUID]engine.Auction),
		teams:    make(map[int64]engine.Team, len(teams)),
		lots:     make(map[int64]engine.Lot, len(lots)),
	}
	for _, t := range teams {
		m.teams[t.ID] = t
	}
	for _, l := range lots {
		m.lots[l.ID] = l
	}
	return m
}

func (m *Memory) Load(_ context.Context) (engine.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *engine.Auction
	var lotBids []engine.Bid
	if m.latest != nil {
		a := m.auctions[*m.latest]
		latest = &a
		if a.CurrentLot != nil {
			for _, b := range m.bids {
				if b.AuctionID == a.ID && b.LotID == *a.CurrentLot {
					lotBids = append(lotBids, b)
				}
			}
		}
	}
	teams := make([]engine.Team, 0, len(m.teams))
	for _, t := range m.teams {
		teams = append(teams, t)
	}
	lots := make([]engine.Lot, 0, len(m.lots))
	for _, l := range m.lots {
		lots = append(lots, l)
	}
	return engine.NewState(latest, teams, lots, lotBids), nil
}

func (m *Memory) Commit(_ context.Context, changes engine.Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}

	// Validate everything before the first write.
	if a := changes.Auction; a != nil && a.Status.Active() && m.live != nil && *m.live != a.ID {
		return engine.ErrAuctionActive
	}
	for _, t := range changes.Teams {
		if _, ok := m.teams[t.ID]; !ok {
			return engine.ErrUnknownTeam
		}
	}
	for _, l := range changes.Lots {
		if _, ok := m.lots[l.ID]; !ok {
			return engine.ErrUnknownLot
		}
	}

	if a := changes.Auction; a != nil {
		if _, seen := m.auctions[a.ID]; !seen {
			id := a.ID
			m.latest = &id
		}
		m.auctions[a.ID] = *a
		switch {
		case a.Status.Active():
			id := a.ID
			m.live = &id
		case m.live != nil && *m.live == a.ID:
			m.live = nil
		}
	}
	for _, t := range changes.Teams {
		m.teams[t.ID] = t
	}
	for _, l := range changes.Lots {
		m.lots[l.ID] = l
	}
	if changes.NewBid != nil {
		m.bids = append(m.bids, *changes.NewBid)
	}
	if changes.WinningBid != nil {
		for i := range m.bids {
			if m.bids[i].ID == *changes.WinningBid {
				m.bids[i].IsWinning = true
			}
		}
	}
	m.commits++
	return nil
}

func (m *Memory) BidHistory(_ context.Context, lotID int64) ([]engine.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lots[lotID]; !ok {
		return nil, ErrNotFound
	}
	out := []engine.Bid{}
	for _, b := range m.bids {
		if b.LotID == lotID {
			out = append(out, b)
		}
	}
	return out, nil
}

// FailNext arranges for the next Commit to return err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// Commits reports how many changesets have been applied.
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *Memory) Team(id int64) (engine.Team, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	return t, ok
}

func (m *Memory) Lot(id int64) (engine.Lot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lots[id]
	return l, ok
}

func (m *Memory) Bids() []engine.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.bids)
}
