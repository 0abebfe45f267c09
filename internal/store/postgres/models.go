package postgres

import (
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
)

type teamModel struct {
	ID              int64  `gorm:"primaryKey"`
	Name            string `gorm:"type:varchar(100);not null;uniqueIndex"`
	ShortName       string `gorm:"type:varchar(10)"`
	Budget          int64  `gorm:"not null"`
	RemainingBudget int64  `gorm:"not null"`
	PlayersCount    int    `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (teamModel) TableName() string { return "teams" }

type playerModel struct {
	ID           int64  `gorm:"primaryKey"`
	Name         string `gorm:"type:varchar(100);not null"`
	Role         string `gorm:"type:varchar(30)"`
	Status       string `gorm:"type:varchar(20);not null;index"`
	BasePrice    int64  `gorm:"not null"`
	SoldPrice    *int64
	TeamID       *int64 `gorm:"index"`
	AuctionOrder *int
	FeePaid      bool `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (playerModel) TableName() string { return "players" }

type auctionModel struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Season               int       `gorm:"not null"`
	Status               string    `gorm:"type:varchar(20);not null;index"`
	CurrentPlayerID      *int64
	CurrentBidAmount     *int64
	CurrentBiddingTeamID *int64
	StartedAt            *time.Time `gorm:"type:timestamp with time zone"`
	EndedAt              *time.Time `gorm:"type:timestamp with time zone"`
	CreatedAt            time.Time
}

func (auctionModel) TableName() string { return "auctions" }

type bidModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	AuctionID    uuid.UUID `gorm:"type:uuid;not null;index"`
	PlayerID     int64     `gorm:"not null;index"`
	TeamID       int64     `gorm:"not null"`
	BidAmount    int64     `gorm:"not null"`
	IsWinningBid bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"type:timestamp with time zone;not null"`
}

func (bidModel) TableName() string { return "bids" }

func toTeam(m teamModel) engine.Team {
	return engine.Team{
		ID:              m.ID,
		Name:            m.Name,
		ShortName:       m.ShortName,
		Budget:          m.Budget,
		RemainingBudget: m.RemainingBudget,
		PlayersCount:    m.PlayersCount,
	}
}

func fromTeam(t engine.Team) teamModel {
	return teamModel{
		ID:              t.ID,
		Name:            t.Name,
		ShortName:       t.ShortName,
		Budget:          t.Budget,
		RemainingBudget: t.RemainingBudget,
		PlayersCount:    t.PlayersCount,
	}
}

func toLot(m playerModel) engine.Lot {
	return engine.Lot{
		ID:            m.ID,
		Name:          m.Name,
		Role:          m.Role,
		Status:        engine.LotStatus(m.Status),
		BasePrice:     m.BasePrice,
		SoldPrice:     m.SoldPrice,
		WinningTeam:   m.TeamID,
		SequenceOrder: m.AuctionOrder,
		FeePaid:       m.FeePaid,
	}
}

func fromLot(l engine.Lot) playerModel {
	return playerModel{
		ID:           l.ID,
		Name:         l.Name,
		Role:         l.Role,
		Status:       string(l.Status),
		BasePrice:    l.BasePrice,
		SoldPrice:    l.SoldPrice,
		TeamID:       l.WinningTeam,
		AuctionOrder: l.SequenceOrder,
		FeePaid:      l.FeePaid,
	}
}

// lotUpdates lists the columns a transition may change on a player.
func lotUpdates(l engine.Lot) map[string]any {
	return map[string]any{
		"status":        string(l.Status),
		"sold_price":    l.SoldPrice,
		"team_id":       l.WinningTeam,
		"auction_order": l.SequenceOrder,
	}
}

func toAuction(m auctionModel) engine.Auction {
	return engine.Auction{
		ID:                 m.ID,
		Season:             m.Season,
		Status:             engine.AuctionStatus(m.Status),
		CurrentLot:         m.CurrentPlayerID,
		CurrentBidAmount:   m.CurrentBidAmount,
		CurrentBiddingTeam: m.CurrentBiddingTeamID,
		StartedAt:          m.StartedAt,
		EndedAt:            m.EndedAt,
	}
}

func fromAuction(a engine.Auction) auctionModel {
	return auctionModel{
		ID:                   a.ID,
		Season:               a.Season,
		Status:               string(a.Status),
		CurrentPlayerID:      a.CurrentLot,
		CurrentBidAmount:     a.CurrentBidAmount,
		CurrentBiddingTeamID: a.CurrentBiddingTeam,
		StartedAt:            a.StartedAt,
		EndedAt:              a.EndedAt,
	}
}

func toBid(m bidModel) engine.Bid {
	return engine.Bid{
		ID:        m.ID,
		AuctionID: m.AuctionID,
		LotID:     m.PlayerID,
		TeamID:    m.TeamID,
		Amount:    m.BidAmount,
		IsWinning: m.IsWinningBid,
		CreatedAt: m.CreatedAt,
	}
}

func fromBid(b engine.Bid) bidModel {
	return bidModel{
		ID:           b.ID,
		AuctionID:    b.AuctionID,
		PlayerID:     b.LotID,
		TeamID:       b.TeamID,
		BidAmount:    b.Amount,
		IsWinningBid: b.IsWinning,
		CreatedAt:    b.CreatedAt,
	}
}
