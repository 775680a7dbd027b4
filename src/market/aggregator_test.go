package market

import (
	"context"
	"testing"
	"time"

	"papertrader/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePriceStore struct {
	assets map[string]*model.Asset
	points []model.PricePoint
	series []decimal.Decimal

	rangeCalls  int
	latestSince time.Time
}

func (f *fakePriceStore) FindAssetBySymbol(_ context.Context, symbol string) (*model.Asset, error) {
	return f.assets[symbol], nil
}

func (f *fakePriceStore) Range(_ context.Context, assetID uint, start, end time.Time) ([]model.PricePoint, error) {
	f.rangeCalls++
	var out []model.PricePoint
	for _, p := range f.points {
		if p.AssetID != assetID {
			continue
		}
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePriceStore) LatestPerAsset(_ context.Context, since time.Time) ([]model.PricePoint, error) {
	f.latestSince = since
	var out []model.PricePoint
	for _, p := range f.points {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePriceStore) SeriesPrices(context.Context, uint) ([]decimal.Decimal, error) {
	return f.series, nil
}

func point(assetID uint, ts time.Time, price float64) model.PricePoint {
	return model.PricePoint{
		AssetID:   assetID,
		PriceUSD:  decimal.NewFromFloat(price),
		Timestamp: ts,
	}
}

func newTestAggregator(store *fakePriceStore, now time.Time) *Aggregator {
	agg := NewAggregator(store)
	agg.now = func() time.Time { return now }
	return agg
}

func TestOHLCSingleBucket(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store := &fakePriceStore{
		assets: map[string]*model.Asset{"BTC": {ID: 1, Symbol: "BTC"}},
		points: []model.PricePoint{
			point(1, base.Add(1*time.Minute), 100),
			point(1, base.Add(5*time.Minute), 105),
			point(1, base.Add(10*time.Minute), 95),
			point(1, base.Add(15*time.Minute), 102),
		},
	}

	candles, err := newTestAggregator(store, now).OHLC(context.Background(), "BTC", "1h", "24h")
	require.NoError(t, err)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.Equal(t, base, c.Timestamp)
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 102.0, c.Close)
	assert.Equal(t, 105.0, c.High)
	assert.Equal(t, 95.0, c.Low)
}

func TestOHLCMultipleBucketsAscending(t *testing.T) {
	now := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store := &fakePriceStore{
		assets: map[string]*model.Asset{"ETH": {ID: 2, Symbol: "ETH"}},
		points: []model.PricePoint{
			point(2, base.Add(2*time.Minute), 10),
			point(2, base.Add(4*time.Minute), 12),
			point(2, base.Add(7*time.Minute), 11),
			// 12:10..12:15 bucket has no points on purpose
			point(2, base.Add(16*time.Minute), 20),
		},
	}

	candles, err := newTestAggregator(store, now).OHLC(context.Background(), "ETH", "5m", "24h")
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, base, candles[0].Timestamp)
	assert.Equal(t, 10.0, candles[0].Open)
	assert.Equal(t, 12.0, candles[0].Close)

	assert.Equal(t, base.Add(5*time.Minute), candles[1].Timestamp)
	assert.Equal(t, 11.0, candles[1].Open)

	assert.Equal(t, base.Add(15*time.Minute), candles[2].Timestamp)
	assert.Equal(t, 20.0, candles[2].Close)
}

func TestOHLCDailyBucketTruncatesToMidnight(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ts := time.Date(2026, 3, 2, 7, 42, 0, 0, time.UTC)

	store := &fakePriceStore{
		assets: map[string]*model.Asset{"BTC": {ID: 1, Symbol: "BTC"}},
		points: []model.PricePoint{point(1, ts, 50000)},
	}

	candles, err := newTestAggregator(store, now).OHLC(context.Background(), "BTC", "1d", "24h")
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), candles[0].Timestamp)
}

func TestOHLCEmptyRange(t *testing.T) {
	store := &fakePriceStore{
		assets: map[string]*model.Asset{"BTC": {ID: 1, Symbol: "BTC"}},
	}

	candles, err := newTestAggregator(store, time.Now()).OHLC(context.Background(), "BTC", "1h", "24h")
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestOHLCUnknownSymbol(t *testing.T) {
	store := &fakePriceStore{assets: map[string]*model.Asset{}}

	_, err := newTestAggregator(store, time.Now()).OHLC(context.Background(), "NOPE", "1h", "24h")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestHeatmapWindowAndKeying(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	btc := &model.Asset{ID: 1, Symbol: "BTC", Name: "Bitcoin"}
	eth := &model.Asset{ID: 2, Symbol: "ETH", Name: "Ethereum"}

	inWindow1 := point(1, now.Add(-time.Hour), 50000)
	inWindow1.Asset = btc
	inWindow2 := point(2, now.Add(-2*time.Hour), 3000)
	inWindow2.Asset = eth

	store := &fakePriceStore{
		assets: map[string]*model.Asset{"BTC": btc, "ETH": eth},
		points: []model.PricePoint{inWindow1, inWindow2},
	}

	data, err := newTestAggregator(store, now).Heatmap(context.Background(), "24h")
	require.NoError(t, err)

	assert.Equal(t, now.Add(-24*time.Hour), store.latestSince)
	require.Len(t, data, 2)
	assert.Equal(t, 50000.0, data["BTC"].Price)
	assert.Equal(t, "Ethereum", data["ETH"].Name)
}

func TestHeatmapInvalidRange(t *testing.T) {
	store := &fakePriceStore{}

	_, err := newTestAggregator(store, time.Now()).Heatmap(context.Background(), "90d")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestIndicatorsPair(t *testing.T) {
	series := make([]decimal.Decimal, 0, 10)
	for i := 1; i <= 10; i++ {
		series = append(series, decimal.NewFromInt(int64(i)))
	}

	store := &fakePriceStore{
		assets: map[string]*model.Asset{"BTC": {ID: 1, Symbol: "BTC"}},
		series: series,
	}

	indicators, err := newTestAggregator(store, time.Now()).Indicators(context.Background(), "BTC")
	require.NoError(t, err)

	// last 7 of 1..10 are 4..10, mean 7
	require.NotNil(t, indicators.SMA7)
	assert.InDelta(t, 7.0, *indicators.SMA7, 1e-9)
	// only 10 points, SMA(25) unavailable
	assert.Nil(t, indicators.SMA25)
}

func TestIndicatorsUnknownSymbol(t *testing.T) {
	store := &fakePriceStore{assets: map[string]*model.Asset{}}

	_, err := newTestAggregator(store, time.Now()).Indicators(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestPriceHistoryViewsCarryAssetIdentity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	btc := &model.Asset{ID: 1, Symbol: "BTC", Name: "Bitcoin"}

	store := &fakePriceStore{
		assets: map[string]*model.Asset{"BTC": btc},
		points: []model.PricePoint{point(1, now.Add(-time.Hour), 50000)},
	}

	views, err := newTestAggregator(store, now).PriceHistory(context.Background(), "BTC", "24h")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "BTC", views[0].Symbol)
	assert.Equal(t, "Bitcoin", views[0].Name)
	assert.True(t, views[0].PriceUSD.Equal(decimal.NewFromInt(50000)))
}
