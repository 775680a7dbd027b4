package backfill

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"papertrader/src/model"
	"papertrader/src/repository"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
)

const (
	Duration1m = "1m"
	Duration1h = "1h"
)

// Backfill pulls exchange klines for one symbol and appends their closes to
// the price history, so charts and indicators have data before the first
// live feed poll.
type Backfill struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (b *Backfill) Start(ctx context.Context) error {
	b.Config = GetConfig()

	b.exchange = b.newBinanceInstance()

	if b.Config.AutoMode {
		if err := b.determineStartPoint(); err != nil {
			return err
		}
	}

	return b.fetchAndIngest(ctx)
}

func (*Backfill) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (b *Backfill) fetchAndIngest(ctx context.Context) error {
	klines, err := b.fetchKlineSeries()
	if err != nil {
		return err
	}

	prices := repository.NewPriceRepository().WithDB(b.DB)
	applied := 0

	for i := range klines {
		k := klines[i]

		inserted, err := prices.UpsertPoint(ctx, repository.PricePointRecord{
			CoingeckoID: b.Config.CoingeckoID,
			Symbol:      b.Config.Symbol,
			Name:        b.Config.AssetName,
			PriceUSD:    decimal.NewFromFloat(k.Close),
			Volume24h:   decimal.NewFromFloat(k.Vol),
			MarketCap:   decimal.Zero,
			Timestamp:   time.Unix(k.Timestamp, 0).UTC(),
		})
		if err != nil {
			b.Log.WithError(err).Error("fetchAndIngest, UpsertPoint")
			return err
		}
		if inserted {
			applied++
		}
	}

	b.Log.WithFields(logger.Fields{
		"Symbol":   b.Config.Symbol,
		"received": len(klines),
		"applied":  applied,
	}).Info("kline backfill ingested into price history")

	return nil
}

func (b *Backfill) determineStartPoint() error {
	b.Config.StartDt = b.Config.StartDt.Add(-b.parseDuration())
	b.Config.EndDt = time.Now()

	var latestTime *sql.NullTime
	result := b.DB.Model(&model.PricePoint{}).
		Select("MAX(price_points.timestamp)").
		Joins("JOIN assets ON assets.id = price_points.asset_id").
		Where("assets.coingecko_id = ?", b.Config.CoingeckoID).
		Take(&latestTime)

	b.Log.
		WithField("latestTime", latestTime).
		Info("determineStartPoint")

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			b.Log.
				WithError(result.Error).
				WithField("StartDt", b.Config.StartDt.String()).
				WithField("EndDt", b.Config.EndDt.String()).
				Error("no records found, start from the configured StartDt")
		} else {
			b.Log.
				WithError(result.Error).
				Error("Failed to query latest timestamp")
			return result.Error
		}
	}

	if latestTime != nil && latestTime.Valid {
		// resume one interval before the newest stored point so the
		// boundary candle is re-fetched complete
		b.Config.StartDt = latestTime.Time.Add(-b.parseDuration())
		b.Log.
			WithField("StartDt", b.Config.StartDt.String()).
			WithField("EndDt", b.Config.EndDt.String()).
			Info("determineStartPoint valid date found")
	}

	return nil
}

func (b *Backfill) fetchKlineSeries() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(goex.Currency{Symbol: b.Config.Symbol}, goex.Currency{Symbol: b.Config.Quote})

	const millis = 1000
	klines, err := b.exchange.GetKlineRecords(
		targetSymbol,
		b.parseDurationToGoex(),
		b.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", b.Config.StartDt.Unix()*millis).
			Optional("endTime", b.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}

func (b *Backfill) parseDuration() time.Duration {
	var duration time.Duration
	switch b.Config.DurationStr {
	case Duration1m:
		duration = time.Minute
	case Duration1h:
		duration = time.Hour
	default:
		panic("invalid DURATION env var")
	}
	return duration
}

func (b *Backfill) parseDurationToGoex() goex.KlinePeriod {
	var duration goex.KlinePeriod
	switch b.Config.DurationStr {
	case Duration1m:
		duration = goex.KLINE_PERIOD_1MIN
	case Duration1h:
		duration = goex.KLINE_PERIOD_1H
	default:
		panic("invalid DURATION env var")
	}
	return duration
}
