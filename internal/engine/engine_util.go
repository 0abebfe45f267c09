package engine

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

func NewState(auction *Auction, teams []Team, lots []Lot, lotBids []Bid) State {
	s := State{
		Teams:   make(map[int64]Team, len(teams)),
		Lots:    make(map[int64]Lot, len(lots)),
		LotBids: slices.Clone(lotBids),
	}
	for _, t := range teams {
		s.Teams[t.ID] = t
	}
	for _, l := range lots {
		s.Lots[l.ID] = l
	}
	if auction != nil {
		a := *auction
		s.Auction = &a
	}
	return s
}

// Clone copies everything a transition may write. Pointer fields inside
// Team, Lot and Auction are never written through, only replaced.
func (s State) Clone() State {
	ns := State{
		Teams:   maps.Clone(s.Teams),
		Lots:    maps.Clone(s.Lots),
		LotBids: slices.Clone(s.LotBids),
	}
	if ns.Teams == nil {
		ns.Teams = map[int64]Team{}
	}
	if ns.Lots == nil {
		ns.Lots = map[int64]Lot{}
	}
	if s.Auction != nil {
		a := *s.Auction
		ns.Auction = &a
	}
	return ns
}

// View is the public snapshot of the auction sent to observers.
type View struct {
	AuctionID          *uuid.UUID    `json:"auction_id,omitempty"`
	Season             int           `json:"season,omitempty"`
	Status             AuctionStatus `json:"status"`
	CurrentLot         *Lot          `json:"current_player,omitempty"`
	CurrentBidAmount   *int64        `json:"current_bid_amount,omitempty"`
	CurrentBiddingTeam *Team         `json:"current_bidding_team,omitempty"`
	MinimumNextBid     *int64        `json:"minimum_next_bid,omitempty"`
	StartedAt          *time.Time    `json:"started_at,omitempty"`
	EndedAt            *time.Time    `json:"ended_at,omitempty"`
	Teams              []Standing    `json:"teams"`
}

type Standing struct {
	TeamID          int64  `json:"team_id"`
	Name            string `json:"name"`
	RemainingBudget int64  `json:"remaining_budget"`
	PlayersCount    int    `json:"players_count"`
	MaxBid          int64  `json:"max_bid"`
}

func (m *Machine) View(s State) View {
	v := View{Status: StatusNotStarted, Teams: make([]Standing, 0, len(s.Teams))}
	for _, id := range sortedKeys(s.Teams) {
		t := s.Teams[id]
		v.Teams = append(v.Teams, Standing{
			TeamID:          t.ID,
			Name:            t.Name,
			RemainingBudget: t.RemainingBudget,
			PlayersCount:    t.PlayersCount,
			MaxBid:          m.Rules.MaxBid(t),
		})
	}

	a := s.Auction
	if a == nil {
		return v
	}
	id := a.ID
	v.AuctionID = &id
	v.Season = a.Season
	v.Status = a.Status
	v.StartedAt = a.StartedAt
	v.EndedAt = a.EndedAt
	v.CurrentBidAmount = a.CurrentBidAmount
	if a.CurrentLot != nil {
		if l, ok := s.Lots[*a.CurrentLot]; ok {
			v.CurrentLot = &l
		}
		if a.CurrentBidAmount != nil {
			next := *a.CurrentBidAmount + m.Rules.MinIncrement
			v.MinimumNextBid = &next
		}
	}
	if a.CurrentBiddingTeam != nil {
		if t, ok := s.Teams[*a.CurrentBiddingTeam]; ok {
			v.CurrentBiddingTeam = &t
		}
	}
	return v
}

// MaxBidFor is the budget-policy limit for a team in s.
func (m *Machine) MaxBidFor(s State, teamID int64) (int64, error) {
	t, ok := s.Teams[teamID]
	if !ok {
		return 0, ErrUnknownTeam
	}
	return m.Rules.MaxBid(t), nil
}

func ptr[T any](v T) *T { return &v }

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, cmp.Compare[int64])
	return keys
}
