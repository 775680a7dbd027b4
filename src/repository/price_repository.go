package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"papertrader/src/database"
	"papertrader/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PricePointRecord is one decoded market observation handed over by the
// price-feed collaborator, keyed by the external catalog identity.
type PricePointRecord struct {
	CoingeckoID  string
	Symbol       string
	Name         string
	PriceUSD     decimal.Decimal
	Volume24h    decimal.Decimal
	MarketCap    decimal.Decimal
	PctChange1h  float64
	PctChange24h float64
	PctChange7d  float64
	Timestamp    time.Time
}

// PriceRepository is the append-only price time series store. Writes are
// commutative across assets and idempotent per (asset, timestamp).
type PriceRepository struct {
	db *gorm.DB
}

// NewPriceRepository creates a new repository instance using the main read/write database.
func NewPriceRepository() *PriceRepository {
	logger.WithField("component", "PriceRepository").
		Info("Creating new PriceRepository with MainDB")

	return &PriceRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when reading through the read-only connection.
func (r *PriceRepository) WithDB(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// UpsertPoint resolves the Asset by its external identity (creating it and
// refreshing symbol/name as needed) and appends the price point. A point that
// collides with an existing (asset, timestamp) row is silently dropped.
// Returns true when a new point was actually applied.
func (r *PriceRepository) UpsertPoint(ctx context.Context, rec PricePointRecord) (bool, error) {
	asset, err := r.upsertAsset(ctx, rec.CoingeckoID, rec.Symbol, rec.Name)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "PriceRepository",
			"op":           "UpsertPoint",
			"coingecko_id": rec.CoingeckoID,
		}).WithError(err).Error("Failed to upsert asset")

		return false, err
	}

	point := model.PricePoint{
		AssetID:      asset.ID,
		PriceUSD:     rec.PriceUSD,
		Volume24h:    rec.Volume24h,
		MarketCap:    rec.MarketCap,
		PctChange1h:  rec.PctChange1h,
		PctChange24h: rec.PctChange24h,
		PctChange7d:  rec.PctChange7d,
		Timestamp:    rec.Timestamp,
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}, {Name: "timestamp"}},
		DoNothing: true,
	}).Create(&point)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "PriceRepository",
			"op":        "UpsertPoint",
			"asset_id":  asset.ID,
			"timestamp": rec.Timestamp,
		}).WithError(res.Error).Error("Failed to insert price point")

		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (r *PriceRepository) upsertAsset(ctx context.Context, coingeckoID, symbol, name string) (*model.Asset, error) {
	asset := model.Asset{
		CoingeckoID: coingeckoID,
		Symbol:      strings.ToUpper(symbol),
		Name:        name,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "coingecko_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"symbol", "name", "updated_at"}),
	}).Create(&asset).Error
	if err != nil {
		return nil, err
	}

	// OnConflict DoUpdates does not reliably backfill the ID on every
	// dialect, so re-read by the unique external identity.
	if asset.ID == 0 {
		if err := r.db.WithContext(ctx).
			Where("coingecko_id = ?", coingeckoID).
			First(&asset).Error; err != nil {
			return nil, err
		}
	}

	return &asset, nil
}

// FindAssetBySymbol fetches an asset by ticker symbol.
// Returns (nil, nil) if the asset is not found.
func (r *PriceRepository) FindAssetBySymbol(ctx context.Context, symbol string) (*model.Asset, error) {
	var asset model.Asset

	err := r.db.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(symbol)).
		First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "PriceRepository",
			"op":     "FindAssetBySymbol",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch asset by symbol")

		return nil, err
	}

	return &asset, nil
}

// Latest returns the most recent price point for the asset, or (nil, nil)
// when the asset has no history yet.
func (r *PriceRepository) Latest(ctx context.Context, assetID uint) (*model.PricePoint, error) {
	var point model.PricePoint

	err := r.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("timestamp DESC").
		First(&point).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "PriceRepository",
			"op":       "Latest",
			"asset_id": assetID,
		}).WithError(err).Error("Failed to fetch latest price point")

		return nil, err
	}

	return &point, nil
}

// Range returns the asset's points with start <= timestamp <= end in
// ascending chronological order.
func (r *PriceRepository) Range(ctx context.Context, assetID uint, start, end time.Time) ([]model.PricePoint, error) {
	var points []model.PricePoint

	err := r.db.WithContext(ctx).
		Where("asset_id = ? AND timestamp >= ? AND timestamp <= ?", assetID, start, end).
		Order("timestamp ASC").
		Find(&points).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PriceRepository",
			"op":       "Range",
			"asset_id": assetID,
		}).WithError(err).Error("Failed to fetch price range")

		return nil, err
	}

	return points, nil
}

// LatestPerAsset returns, for every asset with at least one point at or after
// since, that asset's single most recent point with the Asset preloaded.
// Rows are scanned ordered by asset id then timestamp descending, so the
// result is deterministic.
func (r *PriceRepository) LatestPerAsset(ctx context.Context, since time.Time) ([]model.PricePoint, error) {
	var rows []model.PricePoint

	err := r.db.WithContext(ctx).
		Preload("Asset").
		Where("timestamp >= ?", since).
		Order("asset_id ASC").
		Order("timestamp DESC").
		Find(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PriceRepository",
			"op":   "LatestPerAsset",
		}).WithError(err).Error("Failed to fetch latest points per asset")

		return nil, err
	}

	latest := make([]model.PricePoint, 0, len(rows))
	var lastAsset uint
	for i := range rows {
		if len(latest) > 0 && rows[i].AssetID == lastAsset {
			continue
		}
		latest = append(latest, rows[i])
		lastAsset = rows[i].AssetID
	}

	return latest, nil
}

// SeriesPrices returns the full ascending price series for the asset.
// Input for moving-average indicators.
func (r *PriceRepository) SeriesPrices(ctx context.Context, assetID uint) ([]decimal.Decimal, error) {
	var points []model.PricePoint

	err := r.db.WithContext(ctx).
		Select("price_usd", "timestamp").
		Where("asset_id = ?", assetID).
		Order("timestamp ASC").
		Find(&points).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PriceRepository",
			"op":       "SeriesPrices",
			"asset_id": assetID,
		}).WithError(err).Error("Failed to fetch price series")

		return nil, err
	}

	prices := make([]decimal.Decimal, len(points))
	for i := range points {
		prices[i] = points[i].PriceUSD
	}

	return prices, nil
}
