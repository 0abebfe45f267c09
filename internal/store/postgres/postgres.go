// Package postgres is the gorm-backed Postgres implementation of
// store.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
	"github.com/DoyleJ11/cricket-auction-backend/internal/store"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint hit.
const uniqueViolation = "23505"

const activeAuctionIndexName = "auctions_single_active"

// activeAuctionIndex allows at most one auction row in a live status.
const activeAuctionIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ` + activeAuctionIndexName + `
	ON auctions ((true)) WHERE status IN ('in_progress', 'paused')`

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ store.Store = (*Store)(nil)

func Open(cfg Config, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(gormpg.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return New(db, log), nil
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate creates or updates the schema, including the index that keeps a
// second live auction out of the table.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&teamModel{}, &playerModel{}, &auctionModel{}, &bidModel{}); err != nil {
		return fmt.Errorf("postgres: automigrate: %w", err)
	}
	if err := db.Exec(activeAuctionIndex).Error; err != nil {
		return fmt.Errorf("postgres: active auction index: %w", err)
	}
	s.log.Info("schema migrated")
	return nil
}

// Seed inserts teams and players that do not exist yet. Existing rows are
// left alone.
func (s *Store) Seed(ctx context.Context, teams []engine.Team, lots []engine.Lot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range teams {
			m := fromTeam(t)
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
				return fmt.Errorf("seed team %d: %w", t.ID, err)
			}
		}
		for _, l := range lots {
			m := fromLot(l)
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
				return fmt.Errorf("seed player %d: %w", l.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) Load(ctx context.Context) (engine.State, error) {
	db := s.db.WithContext(ctx)

	var teams []teamModel
	if err := db.Order("id").Find(&teams).Error; err != nil {
		return engine.State{}, fmt.Errorf("load teams: %w", err)
	}
	var players []playerModel
	if err := db.Order("id").Find(&players).Error; err != nil {
		return engine.State{}, fmt.Errorf("load players: %w", err)
	}
	// The latest auction, live or not; a completed one is still reported.
	var auctions []auctionModel
	if err := db.Order("created_at DESC").Limit(1).Find(&auctions).Error; err != nil {
		return engine.State{}, fmt.Errorf("load auction: %w", err)
	}

	var latest *engine.Auction
	var lotBids []engine.Bid
	if len(auctions) == 1 {
		a := toAuction(auctions[0])
		latest = &a
		if a.CurrentLot != nil {
			var bids []bidModel
			err := db.Where("auction_id = ? AND player_id = ?", a.ID, *a.CurrentLot).
				Order("created_at, id").Find(&bids).Error
			if err != nil {
				return engine.State{}, fmt.Errorf("load bids: %w", err)
			}
			for _, b := range bids {
				lotBids = append(lotBids, toBid(b))
			}
		}
	}

	ts := make([]engine.Team, 0, len(teams))
	for _, t := range teams {
		ts = append(ts, toTeam(t))
	}
	ls := make([]engine.Lot, 0, len(players))
	for _, p := range players {
		ls = append(ls, toLot(p))
	}
	return engine.NewState(latest, ts, ls, lotBids), nil
}

// Commit writes a changeset in one transaction.
func (s *Store) Commit(ctx context.Context, c engine.Changeset) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.Auction != nil {
			m := fromAuction(*c.Auction)
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(&m).Error
			if err != nil {
				return fmt.Errorf("save auction: %w", err)
			}
		}
		for _, t := range c.Teams {
			res := tx.Model(&teamModel{}).Where("id = ?", t.ID).Updates(map[string]any{
				"remaining_budget": t.RemainingBudget,
				"players_count":    t.PlayersCount,
			})
			if res.Error != nil {
				return fmt.Errorf("update team %d: %w", t.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %d", engine.ErrUnknownTeam, t.ID)
			}
		}
		for _, l := range c.Lots {
			res := tx.Model(&playerModel{}).Where("id = ?", l.ID).Updates(lotUpdates(l))
			if res.Error != nil {
				return fmt.Errorf("update player %d: %w", l.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %d", engine.ErrUnknownLot, l.ID)
			}
		}
		if c.NewBid != nil {
			m := fromBid(*c.NewBid)
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("insert bid: %w", err)
			}
		}
		if c.WinningBid != nil {
			err := tx.Model(&bidModel{}).Where("id = ?", *c.WinningBid).Update("is_winning_bid", true).Error
			if err != nil {
				return fmt.Errorf("mark winning bid: %w", err)
			}
		}
		return nil
	})
	if isActiveAuctionConflict(err) {
		return fmt.Errorf("%w: %w", engine.ErrAuctionActive, err)
	}
	return err
}

func (s *Store) BidHistory(ctx context.Context, lotID int64) ([]engine.Bid, error) {
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&playerModel{}).Where("id = ?", lotID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}

	var rows []bidModel
	if err := db.Where("player_id = ?", lotID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	bids := make([]engine.Bid, 0, len(rows))
	for _, r := range rows {
		bids = append(bids, toBid(r))
	}
	return bids, nil
}

// isActiveAuctionConflict reports whether err is the single-live-auction
// index refusing a second live auction. Other unique violations are plain
// store failures.
func isActiveAuctionConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeAuctionIndexName
}
