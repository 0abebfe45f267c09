package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
)

const sample = `
log_level = "debug"

[server]
addr = ":9090"
shutdown_timeout = "3s"

[auction]
season = 4
minimum_squad_size = 11
advance_policy = "random"
command_timeout = "750ms"

[[seed.teams]]
id = 1
name = "Falcons"
budget = 500000

[[seed.players]]
id = 10
name = "Arjun"
role = "Batsman"
order = 2
fee_paid = true

[[seed.players]]
id = 11
name = "Bilal"
base_price = 20000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auction.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat, "untouched keys keep their default")
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration)
	assert.Equal(t, 750*time.Millisecond, cfg.Auction.CommandTimeout.Duration)

	rules := cfg.Rules()
	assert.Equal(t, 4, rules.Season)
	assert.Equal(t, 11, rules.MinimumSquadSize)
	assert.Equal(t, engine.PolicyRandom, rules.AdvancePolicy)
	assert.Equal(t, int64(5000), rules.MinIncrement)

	teams, lots := cfg.SeedEntities()
	require.Len(t, teams, 1)
	assert.Equal(t, int64(500000), teams[0].RemainingBudget)
	require.Len(t, lots, 2)
	assert.Equal(t, int64(10000), lots[0].BasePrice)
	assert.Equal(t, 2, *lots[0].SequenceOrder)
	assert.Equal(t, int64(20000), lots[1].BasePrice)
	assert.Equal(t, engine.LotAvailable, lots[1].Status)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("AUCTION_SERVER_ADDR", ":7000")
	t.Setenv("AUCTION_MIN_INCREMENT", "2500")
	t.Setenv("AUCTION_READMIT_UNSOLD", "true")
	t.Setenv("AUCTION_STORE_TIMEOUT", "9s")
	t.Setenv("AUCTION_SERVER_ORIGIN_PATTERNS", "localhost:*, example.com ,")
	t.Setenv("AUCTION_SEASON", "not-a-number")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, int64(2500), cfg.Auction.MinIncrement)
	assert.True(t, cfg.Auction.ReadmitUnsold)
	assert.Equal(t, 9*time.Second, cfg.Auction.StoreTimeout.Duration)
	assert.Equal(t, []string{"localhost:*", "example.com"}, cfg.Server.OriginPatterns)
	assert.Equal(t, 4, cfg.Auction.Season, "unparseable override is ignored")
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Database.DSN)
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(writeConfig(t, "[auction\nseason = 1"))
	require.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Auction.MinIncrement = 0
	cfg.Auction.AdvancePolicy = "alphabetical"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	cfg.Seed.Teams = []SeedTeam{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 5)
}
