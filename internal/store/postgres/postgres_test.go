package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
	"github.com/DoyleJ11/cricket-auction-backend/internal/store"
)

func TestIsActiveAuctionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "live auction index", err: fmt.Errorf("save auction: %w", &pgconn.PgError{Code: "23505", ConstraintName: "auctions_single_active"}), want: true},
		{name: "duplicate bid id", err: fmt.Errorf("insert bid: %w", &pgconn.PgError{Code: "23505", ConstraintName: "bids_pkey"})},
		{name: "duplicate team name", err: &pgconn.PgError{Code: "23505", ConstraintName: "idx_teams_name"}},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001", ConstraintName: "auctions_single_active"}},
		{name: "plain error", err: errors.New("23505")},
		{name: "nil", err: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isActiveAuctionConflict(tc.err))
		})
	}
}

func TestLotMapping_SoldPlayer(t *testing.T) {
	price, team, order := int64(45000), int64(3), 7
	lot := engine.Lot{
		ID: 9, Name: "Kiran", Role: "Bowler", Status: engine.LotSold,
		BasePrice: 10000, SoldPrice: &price, WinningTeam: &team, SequenceOrder: &order, FeePaid: true,
	}
	assert.Equal(t, lot, toLot(fromLot(lot)))

	up := lotUpdates(lot)
	assert.Equal(t, "sold", up["status"])
	assert.Equal(t, &team, up["team_id"])

	// Reset clears sold fields; the nil pointers must still be written.
	lot.Status, lot.SoldPrice, lot.WinningTeam = engine.LotAvailable, nil, nil
	up = lotUpdates(lot)
	assert.Contains(t, up, "sold_price")
	assert.Nil(t, up["sold_price"])
	assert.Contains(t, up, "team_id")
}

func TestAuctionMapping(t *testing.T) {
	started := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	lot, amount := int64(4), int64(10000)
	a := engine.Auction{Season: 2, Status: engine.StatusPaused, CurrentLot: &lot, CurrentBidAmount: &amount, StartedAt: &started}
	assert.Equal(t, a, toAuction(fromAuction(a)))
}

// TestStore_Postgres runs against a real database when AUCTION_TEST_DSN is set.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("AUCTION_TEST_DSN")
	if dsn == "" {
		t.Skip("AUCTION_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(Config{DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.db.Exec("TRUNCATE bids, auctions, players, teams").Error)
	require.NoError(t, s.Seed(ctx,
		[]engine.Team{{ID: 1, Name: "Falcons", Budget: 500000, RemainingBudget: 500000}},
		[]engine.Lot{
			{ID: 1, Name: "Arjun", Status: engine.LotAvailable, BasePrice: 10000, FeePaid: true},
			{ID: 2, Name: "Bilal", Status: engine.LotAvailable, BasePrice: 10000, FeePaid: true},
		}))

	m := engine.NewMachine(engine.DefaultRules())
	st, err := s.Load(ctx)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Millisecond)
	for _, cmd := range []engine.Command{
		{Type: engine.CmdStart, At: now},
		{Type: engine.CmdBid, TeamID: 1, Amount: 15000, At: now},
		{Type: engine.CmdSold, At: now},
	} {
		tr, err := m.Apply(st, cmd)
		require.NoError(t, err)
		require.NoError(t, s.Commit(ctx, tr.Changes))
		st = tr.State
	}

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded.Auction)
	assert.Equal(t, int64(2), *loaded.Auction.CurrentLot)
	assert.Equal(t, int64(485000), loaded.Teams[1].RemainingBudget)
	assert.Equal(t, engine.LotSold, loaded.Lots[1].Status)

	history, err := s.BidHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsWinning)
	_, err = s.BidHistory(ctx, 99)
	require.ErrorIs(t, err, store.ErrNotFound)

	// A second live auction is refused by the partial unique index.
	other := engine.Auction{ID: loaded.Auction.ID, Status: engine.StatusInProgress}
	other.ID[0] ^= 0xff
	err = s.Commit(ctx, engine.Changeset{Auction: &other})
	require.ErrorIs(t, err, engine.ErrAuctionActive)

	err = s.Commit(ctx, engine.Changeset{Lots: []engine.Lot{{ID: 99, Status: engine.LotSold}}})
	require.ErrorIs(t, err, engine.ErrUnknownLot)

	// Any other unique violation is a store failure, not a live auction.
	err = s.Commit(ctx, engine.Changeset{NewBid: &history[0]})
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrAuctionActive)

	// A completed auction is still loaded after a restart.
	tr, err := m.Apply(st, engine.Command{Type: engine.CmdReset, At: now})
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, tr.Changes))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded.Auction)
	assert.Equal(t, tr.State.Auction.ID, loaded.Auction.ID)
	assert.Equal(t, engine.StatusCompleted, loaded.Auction.Status)
}
