package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOpeningBalance is the cash every portfolio starts with when it is
// lazily created on first access.
var DefaultOpeningBalance = decimal.RequireFromString("100000.00")

// Portfolio is the per-user paper-trading account. InitialBalance is the
// denominator for percentage P&L and moves only with deposits/withdrawals;
// CashBalance and RealizedPnl move only through the trading engine.
type Portfolio struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"not null;uniqueIndex" json:"user_id"`
	InitialBalance decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"initial_balance"`
	CashBalance    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"cash_balance"`
	RealizedPnl    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"realized_pnl"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	Holdings []Holding            `gorm:"foreignKey:PortfolioID;constraint:OnDelete:CASCADE" json:"holdings,omitempty"`
	Trades   []Trade              `gorm:"foreignKey:PortfolioID;constraint:OnDelete:CASCADE" json:"trades,omitempty"`
	Fundings []FundingTransaction `gorm:"foreignKey:PortfolioID;constraint:OnDelete:CASCADE" json:"fundings,omitempty"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}

// Holding is the open position of one portfolio in one asset. AvgCost is the
// volume-weighted entry price of the quantity currently held; it changes on
// buys only. A holding whose quantity reaches exactly zero is deleted, so no
// zero-quantity rows persist.
type Holding struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	PortfolioID uint            `gorm:"not null;uniqueIndex:ux_holdings_portfolio_asset,priority:1" json:"portfolio_id"`
	AssetID     uint            `gorm:"not null;uniqueIndex:ux_holdings_portfolio_asset,priority:2" json:"asset_id"`
	Quantity    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"quantity"`
	AvgCost     decimal.Decimal `gorm:"type:numeric(25,8);not null" json:"avg_cost"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Asset *Asset `gorm:"constraint:OnDelete:CASCADE" json:"asset,omitempty"`
}

func (Holding) TableName() string {
	return "holdings"
}
