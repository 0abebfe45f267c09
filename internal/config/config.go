// Package config holds the server configuration: built-in defaults, an
// optional TOML file, a .env file and AUCTION_* environment overrides, in
// that order of precedence (last wins).
package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
)

type Config struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	Server   ServerConfig   `toml:"server"`
	Auction  AuctionConfig  `toml:"auction"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Seed     SeedConfig     `toml:"seed"`
}

type ServerConfig struct {
	Addr              string   `toml:"addr"`
	ReadHeaderTimeout duration `toml:"read_header_timeout"`
	ShutdownTimeout   duration `toml:"shutdown_timeout"`
	// OriginPatterns are passed to the websocket handshake; empty means
	// same-origin only.
	OriginPatterns []string `toml:"origin_patterns"`
}

// AuctionConfig carries the auction rules and executor limits.
type AuctionConfig struct {
	Season           int      `toml:"season"`
	MinimumSquadSize int      `toml:"minimum_squad_size"`
	MinIncrement     int64    `toml:"min_increment"`
	BasePlayerPrice  int64    `toml:"base_player_price"`
	ReadmitUnsold    bool     `toml:"readmit_unsold"`
	AdvancePolicy    string   `toml:"advance_policy"`
	CommandTimeout   duration `toml:"command_timeout"`
	StoreTimeout     duration `toml:"store_timeout"`
	InboxSize        int      `toml:"inbox_size"`
	ObserverBuffer   int      `toml:"observer_buffer"`
}

// DatabaseConfig selects the store. An empty DSN keeps everything in
// memory, seeded from SeedConfig.
type DatabaseConfig struct {
	DSN             string   `toml:"dsn"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime duration `toml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Channel    string `toml:"channel"`
	Stream     string `toml:"stream"`
}

type SeedConfig struct {
	Teams   []SeedTeam   `toml:"teams"`
	Players []SeedPlayer `toml:"players"`
}

type SeedTeam struct {
	ID        int64  `toml:"id"`
	Name      string `toml:"name"`
	ShortName string `toml:"short_name"`
	Budget    int64  `toml:"budget"`
}

type SeedPlayer struct {
	ID        int64  `toml:"id"`
	Name      string `toml:"name"`
	Role      string `toml:"role"`
	BasePrice int64  `toml:"base_price"`
	Order     *int   `toml:"order"`
	FeePaid   bool   `toml:"fee_paid"`
}

// duration wraps time.Duration so TOML strings like "5s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Defaults() Config {
	rules := engine.DefaultRules()
	return Config{
		LogLevel:  "info",
		LogFormat: "json",
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: duration{5 * time.Second},
			ShutdownTimeout:   duration{10 * time.Second},
		},
		Auction: AuctionConfig{
			Season:           rules.Season,
			MinimumSquadSize: rules.MinimumSquadSize,
			MinIncrement:     rules.MinIncrement,
			BasePlayerPrice:  rules.BasePlayerPrice,
			AdvancePolicy:    string(rules.AdvancePolicy),
			CommandTimeout:   duration{2 * time.Second},
			StoreTimeout:     duration{5 * time.Second},
			InboxSize:        64,
			ObserverBuffer:   32,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: duration{30 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "auction:events",
			Stream:  "auction:events:log",
		},
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func (c *Config) Validate() error {
	var err error
	if !validLevels[strings.ToLower(c.LogLevel)] {
		err = multierr.Append(err, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		err = multierr.Append(err, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	if c.Server.Addr == "" {
		err = multierr.Append(err, fmt.Errorf("server.addr is required"))
	}

	a := c.Auction
	if a.MinimumSquadSize < 1 {
		err = multierr.Append(err, fmt.Errorf("auction.minimum_squad_size must be positive, got %d", a.MinimumSquadSize))
	}
	if a.MinIncrement < 1 {
		err = multierr.Append(err, fmt.Errorf("auction.min_increment must be positive, got %d", a.MinIncrement))
	}
	if a.BasePlayerPrice < 1 {
		err = multierr.Append(err, fmt.Errorf("auction.base_player_price must be positive, got %d", a.BasePlayerPrice))
	}
	if p, ok := engine.ParsePolicy(a.AdvancePolicy); !ok || p == "" {
		err = multierr.Append(err, fmt.Errorf("auction.advance_policy must be ordered or random, got %q", a.AdvancePolicy))
	}
	if a.CommandTimeout.Duration <= 0 || a.StoreTimeout.Duration <= 0 {
		err = multierr.Append(err, fmt.Errorf("auction.command_timeout and auction.store_timeout must be positive"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		err = multierr.Append(err, fmt.Errorf("redis.addr is required when redis is enabled"))
	}

	teams := make(map[int64]bool, len(c.Seed.Teams))
	for _, t := range c.Seed.Teams {
		if t.ID == 0 || teams[t.ID] {
			err = multierr.Append(err, fmt.Errorf("seed team %q needs a unique non-zero id", t.Name))
		}
		teams[t.ID] = true
		if t.Budget < 0 {
			err = multierr.Append(err, fmt.Errorf("seed team %q has a negative budget", t.Name))
		}
	}
	players := make(map[int64]bool, len(c.Seed.Players))
	for _, p := range c.Seed.Players {
		if p.ID == 0 || players[p.ID] {
			err = multierr.Append(err, fmt.Errorf("seed player %q needs a unique non-zero id", p.Name))
		}
		players[p.ID] = true
	}
	return err
}

func (c *Config) Rules() engine.Rules {
	policy, _ := engine.ParsePolicy(c.Auction.AdvancePolicy)
	return engine.Rules{
		Season:           c.Auction.Season,
		MinimumSquadSize: c.Auction.MinimumSquadSize,
		MinIncrement:     c.Auction.MinIncrement,
		BasePlayerPrice:  c.Auction.BasePlayerPrice,
		ReadmitUnsold:    c.Auction.ReadmitUnsold,
		AdvancePolicy:    policy,
	}
}

// SeedEntities converts the seed section into engine entities. Teams start
// with their full budget; players start available, using the configured
// base price when none is given.
func (c *Config) SeedEntities() ([]engine.Team, []engine.Lot) {
	teams := make([]engine.Team, 0, len(c.Seed.Teams))
	for _, t := range c.Seed.Teams {
		teams = append(teams, engine.Team{
			ID:              t.ID,
			Name:            t.Name,
			ShortName:       t.ShortName,
			Budget:          t.Budget,
			RemainingBudget: t.Budget,
		})
	}
	lots := make([]engine.Lot, 0, len(c.Seed.Players))
	for _, p := range c.Seed.Players {
		base := p.BasePrice
		if base == 0 {
			base = c.Auction.BasePlayerPrice
		}
		lots = append(lots, engine.Lot{
			ID:            p.ID,
			Name:          p.Name,
			Role:          p.Role,
			Status:        engine.LotAvailable,
			BasePrice:     base,
			SequenceOrder: p.Order,
			FeePaid:       p.FeePaid,
		})
	}
	return teams, lots
}
