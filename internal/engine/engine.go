package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AuctionStatus string

const (
	StatusNotStarted AuctionStatus = "not_started"
	StatusInProgress AuctionStatus = "in_progress"
	StatusPaused     AuctionStatus = "paused"
	StatusCompleted  AuctionStatus = "completed"
)

// Active reports whether an auction in this status holds the single live slot.
func (s AuctionStatus) Active() bool {
	return s == StatusInProgress || s == StatusPaused
}

type LotStatus string

const (
	LotRegistered LotStatus = "registered"
	LotAvailable  LotStatus = "available"
	LotSold       LotStatus = "sold"
	LotUnsold     LotStatus = "unsold"
)

type Team struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	ShortName       string `json:"short_name,omitempty"`
	Budget          int64  `json:"budget"`
	RemainingBudget int64  `json:"remaining_budget"`
	PlayersCount    int    `json:"players_count"`
}

// Lot is a player put up for auction. SoldPrice and WinningTeam are set iff
// Status is LotSold.
type Lot struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Role          string    `json:"role,omitempty"`
	Status        LotStatus `json:"status"`
	BasePrice     int64     `json:"base_price"`
	SoldPrice     *int64    `json:"sold_price,omitempty"`
	WinningTeam   *int64    `json:"winning_team,omitempty"`
	SequenceOrder *int      `json:"sequence_order,omitempty"`
	FeePaid       bool      `json:"fee_paid"`
}

type Auction struct {
	ID                 uuid.UUID     `json:"id"`
	Season             int           `json:"season"`
	Status             AuctionStatus `json:"status"`
	CurrentLot         *int64        `json:"current_player_id,omitempty"`
	CurrentBidAmount   *int64        `json:"current_bid_amount,omitempty"`
	CurrentBiddingTeam *int64        `json:"current_bidding_team_id,omitempty"`
	StartedAt          *time.Time    `json:"started_at,omitempty"`
	EndedAt            *time.Time    `json:"ended_at,omitempty"`
}

// present puts lot on the block at its base price with no holder.
func (a *Auction) present(lot Lot) {
	a.CurrentLot = ptr(lot.ID)
	a.CurrentBidAmount = ptr(lot.BasePrice)
	a.CurrentBiddingTeam = nil
}

func (a *Auction) complete(at time.Time) {
	a.Status = StatusCompleted
	a.CurrentLot = nil
	a.CurrentBidAmount = nil
	a.CurrentBiddingTeam = nil
	a.EndedAt = ptr(at)
}

type Bid struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auction_id"`
	LotID     int64     `json:"player_id"`
	TeamID    int64     `json:"team_id"`
	Amount    int64     `json:"bid_amount"`
	IsWinning bool      `json:"is_winning_bid"`
	CreatedAt time.Time `json:"created_at"`
}

type Rules struct {
	Season           int
	MinimumSquadSize int
	MinIncrement     int64
	BasePlayerPrice  int64
	ReadmitUnsold    bool
	AdvancePolicy    Policy
}

func DefaultRules() Rules {
	return Rules{
		Season:           1,
		MinimumSquadSize: 10,
		MinIncrement:     5000,
		BasePlayerPrice:  10000,
		AdvancePolicy:    PolicyOrdered,
	}
}

// State is the complete mutable auction world owned by one writer.
// Transitions never modify a State in place; they return a clone.
type State struct {
	Auction *Auction
	Teams   map[int64]Team
	Lots    map[int64]Lot
	LotBids []Bid // bids on the current lot, oldest first
}

type CommandType string

const (
	CmdStart       CommandType = "Start"
	CmdBid         CommandType = "Bid"
	CmdSold        CommandType = "Sold"
	CmdUnsold      CommandType = "Unsold"
	CmdJump        CommandType = "Jump"
	CmdEditLastBid CommandType = "EditLastBid"
	CmdPause       CommandType = "Pause"
	CmdResume      CommandType = "Resume"
	CmdReset       CommandType = "Reset"
	CmdSetSequence CommandType = "SetSequence"
)

type Command struct {
	Type     CommandType
	TeamID   int64
	Amount   int64
	Policy   Policy        // Jump only; empty means Rules.AdvancePolicy
	LotID    int64         // Jump only; non-zero picks this lot explicitly
	Sequence map[int64]int // SetSequence only
	At       time.Time
}

type EventType string

const (
	EvtAuctionStarted  EventType = "auction_started"
	EvtBidPlaced       EventType = "new_bid"
	EvtLotSold         EventType = "player_sold"
	EvtLotUnsold       EventType = "player_unsold"
	EvtLotSwitched     EventType = "next_player"
	EvtBidEdited       EventType = "bid_updated"
	EvtAuctionPaused   EventType = "auction_paused"
	EvtAuctionResumed  EventType = "auction_resumed"
	EvtAuctionReset    EventType = "auction_reset"
	EvtSequenceUpdated EventType = "sequence_updated"
)

// Event is the single outward fact produced by a committed transition.
// Lot is the lot the transition closed or bypassed; Team is the team whose
// standing the transition touched.
type Event struct {
	Type      EventType `json:"type"`
	Version   int       `json:"version"`
	Bid       *Bid      `json:"bid,omitempty"`
	Lot       *Lot      `json:"player,omitempty"`
	Team      *Team     `json:"team,omitempty"`
	Completed bool      `json:"completed,omitempty"`
	View      View      `json:"view"`
	At        time.Time `json:"at"`
}

// Changeset is everything a store must write atomically for one transition.
type Changeset struct {
	Auction    *Auction
	Teams      []Team
	Lots       []Lot
	NewBid     *Bid
	WinningBid *uuid.UUID
}

type Transition struct {
	Event   Event
	State   State
	Changes Changeset
}

type Machine struct {
	Rules     Rules
	Sequencer Sequencer
	Eligible  EligibilityFunc
}

func NewMachine(rules Rules) *Machine {
	if rules.AdvancePolicy == "" {
		rules.AdvancePolicy = PolicyOrdered
	}
	return &Machine{
		Rules:     rules,
		Sequencer: Sequencer{ReadmitUnsold: rules.ReadmitUnsold},
		Eligible:  RegistrationSettled,
	}
}

// Apply validates cmd against s. On success it returns the new state, the
// changes to persist and the event to publish; on failure s is untouched.
func (m *Machine) Apply(s State, cmd Command) (Transition, error) {
	switch cmd.Type {
	case CmdStart:
		if s.Auction != nil && s.Auction.Status.Active() {
			return Transition{}, ErrAuctionActive
		}
		first, ok := m.Sequencer.Next(s.Lots, PolicyOrdered, nil, m.Eligible)
		if !ok {
			return Transition{}, ErrNoEligibleLots
		}

		ns := s.Clone()
		ns.Auction = &Auction{
			ID:        uuid.New(),
			Season:    m.Rules.Season,
			Status:    StatusInProgress,
			StartedAt: ptr(cmd.At),
		}
		ns.Auction.present(first)
		ns.LotBids = nil
		return m.transition(ns, Event{Type: EvtAuctionStarted, Lot: &first}, Changeset{}, cmd.At), nil

	case CmdBid:
		a, err := liveLot(s)
		if err != nil {
			return Transition{}, err
		}
		team, ok := s.Teams[cmd.TeamID]
		if !ok {
			return Transition{}, ErrUnknownTeam
		}
		if err := m.Rules.CheckAmount(team, deref(a.CurrentBidAmount)+m.Rules.MinIncrement, cmd.Amount); err != nil {
			return Transition{}, err
		}

		bid := Bid{
			ID:        uuid.New(),
			AuctionID: a.ID,
			LotID:     *a.CurrentLot,
			TeamID:    team.ID,
			Amount:    cmd.Amount,
			CreatedAt: cmd.At,
		}
		ns := s.Clone()
		ns.Auction.CurrentBidAmount = ptr(cmd.Amount)
		ns.Auction.CurrentBiddingTeam = ptr(team.ID)
		ns.LotBids = append(ns.LotBids, bid)
		return m.transition(ns, Event{Type: EvtBidPlaced, Bid: &bid, Team: &team}, Changeset{NewBid: &bid}, cmd.At), nil

	case CmdSold:
		a, err := liveLot(s)
		if err != nil {
			return Transition{}, err
		}
		if a.CurrentBiddingTeam == nil {
			return Transition{}, ErrNoBid
		}
		team, ok := s.Teams[*a.CurrentBiddingTeam]
		if !ok {
			return Transition{}, ErrUnknownTeam
		}
		lot, ok := s.Lots[*a.CurrentLot]
		if !ok {
			return Transition{}, ErrUnknownLot
		}
		amount := *a.CurrentBidAmount

		ns := s.Clone()
		changes := Changeset{}
		ev := Event{Type: EvtLotSold}
		if i := winningBidIndex(ns.LotBids, lot.ID, team.ID, amount); i >= 0 {
			ns.LotBids[i].IsWinning = true
			won := ns.LotBids[i]
			changes.WinningBid = &won.ID
			ev.Bid = &won
		}

		lot.Status = LotSold
		lot.SoldPrice = ptr(amount)
		lot.WinningTeam = ptr(team.ID)
		ns.Lots[lot.ID] = lot

		team.RemainingBudget -= amount
		team.PlayersCount++
		ns.Teams[team.ID] = team

		changes.Lots = []Lot{lot}
		changes.Teams = []Team{team}
		ev.Lot, ev.Team = &lot, &team
		ev.Completed = m.advance(&ns, m.Rules.AdvancePolicy, []int64{lot.ID}, cmd.At)
		return m.transition(ns, ev, changes, cmd.At), nil

	case CmdUnsold:
		a, err := liveLot(s)
		if err != nil {
			return Transition{}, err
		}
		lot, ok := s.Lots[*a.CurrentLot]
		if !ok {
			return Transition{}, ErrUnknownLot
		}

		ns := s.Clone()
		lot.Status = LotUnsold
		ns.Lots[lot.ID] = lot
		ev := Event{Type: EvtLotUnsold, Lot: &lot}
		ev.Completed = m.advance(&ns, m.Rules.AdvancePolicy, []int64{lot.ID}, cmd.At)
		return m.transition(ns, ev, Changeset{Lots: []Lot{lot}}, cmd.At), nil

	case CmdJump:
		a, err := liveLot(s)
		if err != nil {
			return Transition{}, err
		}
		current := *a.CurrentLot

		var next Lot
		if cmd.LotID != 0 {
			l, ok := s.Lots[cmd.LotID]
			if !ok {
				return Transition{}, ErrUnknownLot
			}
			if l.ID == current || !m.Sequencer.Admits(l, m.Eligible) {
				return Transition{}, ErrLotNotEligible
			}
			next = l
		} else {
			policy := cmd.Policy
			if policy == "" {
				policy = m.Rules.AdvancePolicy
			}
			l, ok := m.Sequencer.Next(s.Lots, policy, []int64{current}, m.Eligible)
			if !ok {
				return Transition{}, ErrNoEligibleLots
			}
			next = l
		}

		ns := s.Clone()
		ns.Auction.present(next)
		ns.LotBids = nil
		bypassed := s.Lots[current]
		return m.transition(ns, Event{Type: EvtLotSwitched, Lot: &bypassed}, Changeset{}, cmd.At), nil

	case CmdEditLastBid:
		a, err := liveLot(s)
		if err != nil {
			return Transition{}, err
		}
		team, ok := s.Teams[cmd.TeamID]
		if !ok {
			return Transition{}, ErrUnknownTeam
		}
		lot, ok := s.Lots[*a.CurrentLot]
		if !ok {
			return Transition{}, ErrUnknownLot
		}
		if err := m.Rules.CheckAmount(team, lot.BasePrice, cmd.Amount); err != nil {
			return Transition{}, err
		}

		ns := s.Clone()
		ns.Auction.CurrentBidAmount = ptr(cmd.Amount)
		ns.Auction.CurrentBiddingTeam = ptr(team.ID)
		return m.transition(ns, Event{Type: EvtBidEdited, Team: &team}, Changeset{}, cmd.At), nil

	case CmdPause:
		if s.Auction == nil || !s.Auction.Status.Active() {
			return Transition{}, ErrNoActiveAuction
		}
		if s.Auction.Status == StatusPaused {
			return Transition{}, ErrAuctionPaused
		}
		ns := s.Clone()
		ns.Auction.Status = StatusPaused
		return m.transition(ns, Event{Type: EvtAuctionPaused}, Changeset{}, cmd.At), nil

	case CmdResume:
		if s.Auction == nil || s.Auction.Status != StatusPaused {
			return Transition{}, ErrAuctionNotPaused
		}
		ns := s.Clone()
		ns.Auction.Status = StatusInProgress
		return m.transition(ns, Event{Type: EvtAuctionResumed}, Changeset{}, cmd.At), nil

	case CmdReset:
		ns := s.Clone()
		changes := Changeset{}
		for _, id := range sortedKeys(ns.Lots) {
			l := ns.Lots[id]
			l.Status = LotAvailable
			l.SoldPrice = nil
			l.WinningTeam = nil
			ns.Lots[id] = l
			changes.Lots = append(changes.Lots, l)
		}
		for _, id := range sortedKeys(ns.Teams) {
			t := ns.Teams[id]
			t.RemainingBudget = t.Budget
			t.PlayersCount = 0
			ns.Teams[id] = t
			changes.Teams = append(changes.Teams, t)
		}
		if ns.Auction != nil {
			ended := ns.Auction.EndedAt
			ns.Auction.complete(cmd.At)
			if ended != nil {
				ns.Auction.EndedAt = ended
			}
		}
		ns.LotBids = nil
		return m.transition(ns, Event{Type: EvtAuctionReset}, changes, cmd.At), nil

	case CmdSetSequence:
		if len(cmd.Sequence) == 0 {
			return Transition{}, ErrEmptySequence
		}
		updated, unknown := ApplySequence(s.Lots, cmd.Sequence)
		if len(unknown) > 0 {
			return Transition{}, fmt.Errorf("%w: auction order names unknown ids %v", ErrUnknownLot, unknown)
		}
		ns := s.Clone()
		for _, l := range updated {
			ns.Lots[l.ID] = l
		}
		return m.transition(ns, Event{Type: EvtSequenceUpdated}, Changeset{Lots: updated}, cmd.At), nil

	default:
		return Transition{}, ErrUnsupportedCommand
	}
}

// advance moves ns to the next lot chosen by policy, or completes the
// auction when none remains. It reports whether the auction completed.
func (m *Machine) advance(ns *State, policy Policy, exclude []int64, at time.Time) bool {
	ns.LotBids = nil
	next, ok := m.Sequencer.Next(ns.Lots, policy, exclude, m.Eligible)
	if !ok {
		ns.Auction.complete(at)
		return true
	}
	ns.Auction.present(next)
	return false
}

func (m *Machine) transition(ns State, ev Event, changes Changeset, at time.Time) Transition {
	if ns.Auction != nil {
		a := *ns.Auction
		changes.Auction = &a
	}
	ev.At = at
	ev.View = m.View(ns)
	return Transition{Event: ev, State: ns, Changes: changes}
}

// liveLot returns the auction if commands that act on the current lot may
// run against it.
func liveLot(s State) (*Auction, error) {
	if s.Auction == nil || !s.Auction.Status.Active() {
		return nil, ErrNoActiveAuction
	}
	if s.Auction.Status == StatusPaused {
		return nil, ErrAuctionPaused
	}
	if s.Auction.CurrentLot == nil || s.Auction.CurrentBidAmount == nil {
		return nil, ErrNoCurrentLot
	}
	return s.Auction, nil
}

// winningBidIndex finds the latest bid matching the accepted final amount.
// An amount set by EditLastBid may have no matching bid.
func winningBidIndex(bids []Bid, lotID, teamID, amount int64) int {
	for i := len(bids) - 1; i >= 0; i-- {
		b := bids[i]
		if b.LotID == lotID && b.TeamID == teamID && b.Amount == amount {
			return i
		}
	}
	return -1
}
