package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one observation of an asset's market state. The series is
// append-only: rows are never updated or deleted, and (asset_id, timestamp)
// is unique so re-ingesting the same observation is a no-op.
type PricePoint struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	AssetID uint `gorm:"not null;uniqueIndex:ux_price_points_asset_ts,priority:1;index:idx_price_points_asset_ts,priority:1" json:"asset_id"`

	PriceUSD  decimal.Decimal `json:"price_usd"  gorm:"type:numeric(25,8);not null"`
	Volume24h decimal.Decimal `json:"volume_24h" gorm:"type:numeric(30,2);not null"`
	MarketCap decimal.Decimal `json:"market_cap" gorm:"type:numeric(30,2);not null"`

	PctChange1h  float64 `json:"price_change_percentage_1h"`
	PctChange24h float64 `json:"price_change_percentage_24h"`
	PctChange7d  float64 `json:"price_change_percentage_7d"`

	Timestamp time.Time `gorm:"not null;uniqueIndex:ux_price_points_asset_ts,priority:2;index:idx_price_points_asset_ts,priority:2;index:idx_price_points_ts" json:"timestamp"`

	Asset *Asset `gorm:"constraint:OnDelete:CASCADE" json:"asset,omitempty"`
}

func (PricePoint) TableName() string {
	return "price_points"
}
