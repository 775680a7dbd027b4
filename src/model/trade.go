package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// Trade is the immutable record of one executed paper order.
type Trade struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Reference   string          `gorm:"size:36;not null;index" json:"reference"`
	PortfolioID uint            `gorm:"not null;index" json:"portfolio_id"`
	AssetID     uint            `gorm:"not null;index" json:"asset_id"`
	Side        string          `gorm:"size:4;not null" json:"side"`
	Quantity    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"quantity"`
	PriceUSD    decimal.Decimal `gorm:"type:numeric(25,8);not null" json:"price_usd"`
	TotalUSD    decimal.Decimal `gorm:"type:numeric(25,2);not null" json:"total_usd"`
	CreatedAt   time.Time       `json:"created_at"`

	Asset *Asset `gorm:"constraint:OnDelete:CASCADE" json:"asset,omitempty"`
}

func (Trade) TableName() string {
	return "trades"
}
