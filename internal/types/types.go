package types

import (
	"fmt"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
	"github.com/DoyleJ11/cricket-auction-backend/internal/hub"
	wire "github.com/DoyleJ11/cricket-auction-backend/pkg/types"
)

type ClientMessage struct {
	Type      string       `json:"type"`
	RequestID string       `json:"request_id,omitempty"`
	TeamID    int64        `json:"team_id,omitempty"`
	Amount    int64        `json:"bid_amount,omitempty"`
	Policy    string       `json:"policy,omitempty"`
	PlayerID  int64        `json:"player_id,omitempty"`
	Order     []OrderEntry `json:"order,omitempty"`
}

type OrderEntry struct {
	PlayerID int64 `json:"player_id"`
	Order    int   `json:"order"`
}

type ServerMessage struct {
	Type      string        `json:"type"`
	RequestID string        `json:"request_id,omitempty"`
	Version   int           `json:"version"`
	View      *engine.View  `json:"view,omitempty"`
	Event     *engine.Event `json:"event,omitempty"`
	Error     string        `json:"error,omitempty"`
	Kind      engine.Kind   `json:"kind,omitempty"`
	Limit     *int64        `json:"limit,omitempty"`
}

// BidRequest is the body of /auction/bid and /auction/edit-last-bid.
type BidRequest struct {
	TeamID int64 `json:"team_id"`
	Amount int64 `json:"bid_amount"`
}

type JumpRequest struct {
	Policy   string `json:"policy,omitempty"`
	PlayerID int64  `json:"player_id,omitempty"`
}

type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  engine.Kind `json:"kind"`
	Limit *int64      `json:"limit,omitempty"`
}

type MaxBidResponse struct {
	TeamID int64 `json:"team_id"`
	MaxBid int64 `json:"max_bid"`
}

func FromHub(msg hub.Message) ServerMessage {
	out := ServerMessage{Version: msg.Version, View: msg.Snapshot, Event: msg.Event}
	if msg.Event != nil {
		out.Type = wire.MsgEvent
	} else {
		out.Type = wire.MsgSnapshot
	}
	return out
}

func ErrorMessage(requestID string, err error) ServerMessage {
	out := ServerMessage{Type: wire.MsgError, RequestID: requestID, Error: err.Error(), Kind: engine.KindOf(err)}
	if limit, ok := engine.LimitOf(err); ok {
		out.Limit = &limit
	}
	return out
}

// Sequence turns order entries into the map SetSequence takes. A player
// listed twice keeps its last entry.
func Sequence(entries []OrderEntry) map[int64]int {
	orders := make(map[int64]int, len(entries))
	for _, e := range entries {
		orders[e.PlayerID] = e.Order
	}
	return orders
}

// ToCommand maps a websocket client message onto an engine command.
func ToCommand(m ClientMessage) (engine.Command, error) {
	switch m.Type {
	case wire.CmdStart:
		return engine.Command{Type: engine.CmdStart}, nil
	case wire.CmdBid:
		return engine.Command{Type: engine.CmdBid, TeamID: m.TeamID, Amount: m.Amount}, nil
	case wire.CmdSold:
		return engine.Command{Type: engine.CmdSold}, nil
	case wire.CmdUnsold:
		return engine.Command{Type: engine.CmdUnsold}, nil
	case wire.CmdNext:
		policy, err := ParsePolicy(m.Policy)
		if err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdJump, Policy: policy, LotID: m.PlayerID}, nil
	case wire.CmdNextRandom:
		return engine.Command{Type: engine.CmdJump, Policy: engine.PolicyRandom}, nil
	case wire.CmdEditLastBid:
		return engine.Command{Type: engine.CmdEditLastBid, TeamID: m.TeamID, Amount: m.Amount}, nil
	case wire.CmdPause:
		return engine.Command{Type: engine.CmdPause}, nil
	case wire.CmdResume:
		return engine.Command{Type: engine.CmdResume}, nil
	case wire.CmdReset:
		return engine.Command{Type: engine.CmdReset}, nil
	case wire.CmdSetAuctionOrder:
		return engine.Command{Type: engine.CmdSetSequence, Sequence: Sequence(m.Order)}, nil
	default:
		return engine.Command{}, fmt.Errorf("%w: %q", engine.ErrUnsupportedCommand, m.Type)
	}
}

// ParsePolicy accepts an empty string as "use the configured default".
func ParsePolicy(s string) (engine.Policy, error) {
	p, ok := engine.ParsePolicy(s)
	if !ok {
		return "", fmt.Errorf("%w: unknown policy %q", engine.ErrUnsupportedCommand, s)
	}
	return p, nil
}
