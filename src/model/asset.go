package model

import "time"

// Asset is a tracked tradable instrument. Identity comes from the external
// catalog (coingecko id); symbol and name are refreshed on every ingest.
type Asset struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CoingeckoID string    `gorm:"size:100;not null;uniqueIndex" json:"coingecko_id"`
	Symbol      string    `gorm:"size:20;not null;index" json:"symbol"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Asset) TableName() string {
	return "assets"
}
