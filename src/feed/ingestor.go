package feed

import (
	"context"
	"time"

	"papertrader/src/repository"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// PriceWriter is the append side of the price store.
type PriceWriter interface {
	UpsertPoint(ctx context.Context, rec repository.PricePointRecord) (bool, error)
}

// TickPublisher receives the ticks that were actually applied, for live
// fan-out to subscribers.
type TickPublisher interface {
	PublishTick(symbol string, price float64, timestamp time.Time)
}

// Ingestor turns raw market records into price points. One bad record is
// logged and skipped; the batch never aborts wholesale.
type Ingestor struct {
	prices PriceWriter
	ticks  TickPublisher
}

func NewIngestor(prices PriceWriter) *Ingestor {
	return &Ingestor{prices: prices}
}

// WithPublisher attaches a live tick sink. Applied points are published
// after their insert commits.
func (i *Ingestor) WithPublisher(ticks TickPublisher) *Ingestor {
	return &Ingestor{prices: i.prices, ticks: ticks}
}

// IngestBatch upserts every record of the batch and returns the number of
// price points actually applied. Duplicates of an already stored
// (asset, timestamp) pair count as not applied.
func (i *Ingestor) IngestBatch(ctx context.Context, records []MarketRecord) int {
	applied := 0

	for idx := range records {
		rec := records[idx]

		timestamp, err := time.Parse(time.RFC3339, rec.LastUpdated)
		if err != nil || timestamp.IsZero() {
			logger.WithFields(map[string]interface{}{
				"component":    "Ingestor",
				"op":           "IngestBatch",
				"coingecko_id": rec.ID,
				"last_updated": rec.LastUpdated,
			}).Warn("record has malformed timestamp, skipping")
			continue
		}

		inserted, err := i.prices.UpsertPoint(ctx, repository.PricePointRecord{
			CoingeckoID:  rec.ID,
			Symbol:       rec.Symbol,
			Name:         rec.Name,
			PriceUSD:     decimal.NewFromFloat(rec.CurrentPrice),
			Volume24h:    decimal.NewFromFloat(rec.TotalVolume),
			MarketCap:    decimal.NewFromFloat(rec.MarketCap),
			PctChange1h:  zeroIfNil(rec.PctChange1h),
			PctChange24h: zeroIfNil(rec.PctChange24h),
			PctChange7d:  zeroIfNil(rec.PctChange7d),
			Timestamp:    timestamp,
		})
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"component":    "Ingestor",
				"op":           "IngestBatch",
				"coingecko_id": rec.ID,
			}).WithError(err).Error("failed to upsert price point, skipping record")
			continue
		}
		if !inserted {
			continue
		}

		applied++
		if i.ticks != nil {
			i.ticks.PublishTick(rec.Symbol, rec.CurrentPrice, timestamp)
		}
	}

	logger.WithFields(map[string]interface{}{
		"component": "Ingestor",
		"op":        "IngestBatch",
		"received":  len(records),
		"applied":   applied,
	}).Info("Price batch ingested")

	return applied
}

func zeroIfNil(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
