package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when path is empty) over the
// defaults, loads .env if present and applies AUCTION_* overrides. The
// result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "AUCTION_LOG_LEVEL")
	setStr(&cfg.LogFormat, "AUCTION_LOG_FORMAT")

	setStr(&cfg.Server.Addr, "AUCTION_SERVER_ADDR")
	setDuration(&cfg.Server.ShutdownTimeout, "AUCTION_SERVER_SHUTDOWN_TIMEOUT")
	setStringSlice(&cfg.Server.OriginPatterns, "AUCTION_SERVER_ORIGIN_PATTERNS")

	setInt(&cfg.Auction.Season, "AUCTION_SEASON")
	setInt(&cfg.Auction.MinimumSquadSize, "AUCTION_MINIMUM_SQUAD_SIZE")
	setInt64(&cfg.Auction.MinIncrement, "AUCTION_MIN_INCREMENT")
	setInt64(&cfg.Auction.BasePlayerPrice, "AUCTION_BASE_PLAYER_PRICE")
	setBool(&cfg.Auction.ReadmitUnsold, "AUCTION_READMIT_UNSOLD")
	setStr(&cfg.Auction.AdvancePolicy, "AUCTION_ADVANCE_POLICY")
	setDuration(&cfg.Auction.CommandTimeout, "AUCTION_COMMAND_TIMEOUT")
	setDuration(&cfg.Auction.StoreTimeout, "AUCTION_STORE_TIMEOUT")

	setStr(&cfg.Database.DSN, "AUCTION_DATABASE_DSN")

	setBool(&cfg.Redis.Enabled, "AUCTION_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AUCTION_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTION_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTION_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "AUCTION_REDIS_TLS_ENABLED")
}

// Each helper only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
