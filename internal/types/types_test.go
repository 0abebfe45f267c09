package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
	"github.com/DoyleJ11/cricket-auction-backend/internal/hub"
)

func TestToCommand(t *testing.T) {
	cases := []struct {
		name string
		in   ClientMessage
		want engine.Command
	}{
		{name: "bid", in: ClientMessage{Type: "bid", TeamID: 2, Amount: 15000}, want: engine.Command{Type: engine.CmdBid, TeamID: 2, Amount: 15000}},
		{name: "explicit next", in: ClientMessage{Type: "next", PlayerID: 7}, want: engine.Command{Type: engine.CmdJump, LotID: 7}},
		{name: "next random", in: ClientMessage{Type: "next_random"}, want: engine.Command{Type: engine.CmdJump, Policy: engine.PolicyRandom}},
		{name: "next ordered", in: ClientMessage{Type: "next", Policy: "ordered"}, want: engine.Command{Type: engine.CmdJump, Policy: engine.PolicyOrdered}},
		{name: "edit", in: ClientMessage{Type: "edit_last_bid", TeamID: 1, Amount: 12000}, want: engine.Command{Type: engine.CmdEditLastBid, TeamID: 1, Amount: 12000}},
		{
			name: "order",
			in:   ClientMessage{Type: "set_auction_order", Order: []OrderEntry{{PlayerID: 3, Order: 1}, {PlayerID: 4, Order: 2}, {PlayerID: 3, Order: 5}}},
			want: engine.Command{Type: engine.CmdSetSequence, Sequence: map[int64]int{3: 5, 4: 2}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToCommand(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ToCommand(ClientMessage{Type: "LockPick"})
	require.ErrorIs(t, err, engine.ErrUnsupportedCommand)
	_, err = ToCommand(ClientMessage{Type: "next", Policy: "alphabetical"})
	require.ErrorIs(t, err, engine.ErrUnsupportedCommand)
}

func TestErrorMessageCarriesLimit(t *testing.T) {
	r := engine.DefaultRules()
	err := r.CheckAmount(engine.Team{RemainingBudget: 500000}, 15000, 12000)
	msg := ErrorMessage("req-1", err)

	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "req-1", msg.RequestID)
	assert.Equal(t, engine.KindValidation, msg.Kind)
	require.NotNil(t, msg.Limit)
	assert.Equal(t, int64(15000), *msg.Limit)

	plain := ErrorMessage("", errors.New("boom"))
	assert.Nil(t, plain.Limit)
	assert.Equal(t, engine.KindUnknown, plain.Kind)
}

func TestFromHub(t *testing.T) {
	view := engine.View{Status: engine.StatusPaused}
	assert.Equal(t, "snapshot", FromHub(hub.Message{Version: 4, Snapshot: &view}).Type)
	ev := engine.Event{Type: engine.EvtAuctionPaused}
	got := FromHub(hub.Message{Version: 5, Event: &ev})
	assert.Equal(t, "event", got.Type)
	assert.Equal(t, 5, got.Version)
}
