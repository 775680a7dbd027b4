package market

import (
	"context"
	"errors"
	"time"

	"papertrader/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrInvalidRange  = errors.New("invalid range. allowed: 1h,24h,7d")
)

// PriceStore is the slice of the price repository the aggregator reads from.
type PriceStore interface {
	FindAssetBySymbol(ctx context.Context, symbol string) (*model.Asset, error)
	Range(ctx context.Context, assetID uint, start, end time.Time) ([]model.PricePoint, error)
	LatestPerAsset(ctx context.Context, since time.Time) ([]model.PricePoint, error)
	SeriesPrices(ctx context.Context, assetID uint) ([]decimal.Decimal, error)
}

// Candle is one OHLC bucket. Timestamp is the bucket start.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	Close     float64   `json:"close"`
	Low       float64   `json:"low"`
	High      float64   `json:"high"`
}

// Snapshot is one heatmap cell: the most recent observation of an asset
// inside the lookback window.
type Snapshot struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	PctChange1h  float64 `json:"percent_change_1h"`
	PctChange24h float64 `json:"percent_change_24h"`
	PctChange7d  float64 `json:"percent_change_7d"`
	MarketCap    float64 `json:"market_cap"`
}

// IndicatorSet carries the standard moving-average pair. A member is nil
// when the series is shorter than its window.
type IndicatorSet struct {
	SMA7  *float64 `json:"SMA_7"`
	SMA25 *float64 `json:"SMA_25"`
}

// Aggregator derives time-bucketed market views from the price store.
// It takes no locks; a view may be stale by the time it is rendered.
type Aggregator struct {
	prices PriceStore
	now    func() time.Time
}

func NewAggregator(prices PriceStore) *Aggregator {
	return &Aggregator{prices: prices, now: time.Now}
}

// bucket widths in minutes per supported interval
var bucketMinutes = map[string]int{
	"1m":  1,
	"5m":  5,
	"15m": 15,
	"1h":  60,
	"4h":  240,
	"1d":  1440,
}

// lookback windows per range parameter
var (
	ohlcRanges = map[string]time.Duration{
		"1h":  time.Hour,
		"24h": 24 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"30d": 30 * 24 * time.Hour,
	}
	historyRanges = map[string]time.Duration{
		"1h":  time.Hour,
		"6h":  6 * time.Hour,
		"24h": 24 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"30d": 30 * 24 * time.Hour,
		"90d": 90 * 24 * time.Hour,
	}
	heatmapRanges = map[string]time.Duration{
		"1h":  time.Hour,
		"24h": 24 * time.Hour,
		"7d":  7 * 24 * time.Hour,
	}
)

// bucketStart truncates the minute-of-day to a multiple of the bucket width,
// keeping the point's own location. No timezone conversion happens here.
func bucketStart(t time.Time, minutes int) time.Time {
	m := (t.Hour()*60 + t.Minute()) / minutes * minutes
	return time.Date(t.Year(), t.Month(), t.Day(), m/60, m%60, 0, 0, t.Location())
}

// OHLC partitions the asset's points inside the range into fixed-width
// buckets and emits one candle per non-empty bucket, ascending by bucket
// start. An empty range yields an empty slice, not an error. Unknown
// interval and range values fall back to 1h / 24h.
func (a *Aggregator) OHLC(ctx context.Context, symbol, interval, rng string) ([]Candle, error) {
	asset, err := a.prices.FindAssetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrAssetNotFound
	}

	end := a.now()
	lookback, ok := ohlcRanges[rng]
	if !ok {
		lookback = 24 * time.Hour
	}

	points, err := a.prices.Range(ctx, asset.ID, end.Add(-lookback), end)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return []Candle{}, nil
	}

	minutes, ok := bucketMinutes[interval]
	if !ok {
		minutes = 60
	}

	candles := make([]Candle, 0, len(points)/minutes+1)
	var cur Candle
	hasCur := false

	// points arrive in ascending order, so a single pass with a flush on
	// bucket change is enough.
	for i := range points {
		price := points[i].PriceUSD.InexactFloat64()
		b := bucketStart(points[i].Timestamp, minutes)

		if !hasCur || !b.Equal(cur.Timestamp) {
			if hasCur {
				candles = append(candles, cur)
			}
			cur = Candle{Timestamp: b, Open: price, Close: price, Low: price, High: price}
			hasCur = true
			continue
		}

		cur.Close = price
		if price > cur.High {
			cur.High = price
		}
		if price < cur.Low {
			cur.Low = price
		}
	}
	candles = append(candles, cur)

	return candles, nil
}

// Heatmap maps the range parameter to a lookback window and returns the most
// recent observation per asset inside it, keyed by symbol. An unsupported
// range is a request error, never a silent default.
func (a *Aggregator) Heatmap(ctx context.Context, rng string) (map[string]Snapshot, error) {
	lookback, ok := heatmapRanges[rng]
	if !ok {
		return nil, ErrInvalidRange
	}

	rows, err := a.prices.LatestPerAsset(ctx, a.now().Add(-lookback))
	if err != nil {
		return nil, err
	}

	data := make(map[string]Snapshot, len(rows))
	for i := range rows {
		p := rows[i]
		if p.Asset == nil {
			logger.WithFields(map[string]interface{}{
				"component": "Aggregator",
				"op":        "Heatmap",
				"asset_id":  p.AssetID,
			}).Warn("price point without preloaded asset, skipping")
			continue
		}

		data[p.Asset.Symbol] = Snapshot{
			Symbol:       p.Asset.Symbol,
			Name:         p.Asset.Name,
			Price:        p.PriceUSD.InexactFloat64(),
			PctChange1h:  p.PctChange1h,
			PctChange24h: p.PctChange24h,
			PctChange7d:  p.PctChange7d,
			MarketCap:    p.MarketCap.InexactFloat64(),
		}
	}

	return data, nil
}

// Indicators computes the SMA(7)/SMA(25) pair over the asset's full
// ascending price series.
func (a *Aggregator) Indicators(ctx context.Context, symbol string) (*IndicatorSet, error) {
	asset, err := a.prices.FindAssetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrAssetNotFound
	}

	prices, err := a.prices.SeriesPrices(ctx, asset.ID)
	if err != nil {
		return nil, err
	}

	return &IndicatorSet{
		SMA7:  sma(prices, 7),
		SMA25: sma(prices, 25),
	}, nil
}

// sma returns the arithmetic mean of the last window values, or nil when
// fewer than window points exist.
func sma(prices []decimal.Decimal, window int) *float64 {
	if len(prices) < window {
		return nil
	}

	sum := decimal.Zero
	for _, p := range prices[len(prices)-window:] {
		sum = sum.Add(p)
	}

	mean := sum.Div(decimal.NewFromInt(int64(window))).InexactFloat64()
	return &mean
}

// PricePointView is one raw series point flattened with its asset identity.
type PricePointView struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	PriceUSD     decimal.Decimal `json:"price_usd"`
	Volume24h    decimal.Decimal `json:"volume_24h"`
	MarketCap    decimal.Decimal `json:"market_cap"`
	PctChange1h  float64         `json:"price_change_percentage_1h"`
	PctChange24h float64         `json:"price_change_percentage_24h"`
	PctChange7d  float64         `json:"price_change_percentage_7d"`
	Timestamp    time.Time       `json:"timestamp"`
}

// PriceHistory returns the raw ascending points for the asset over the
// requested range. Unknown range values fall back to 24h.
func (a *Aggregator) PriceHistory(ctx context.Context, symbol, rng string) ([]PricePointView, error) {
	asset, err := a.prices.FindAssetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrAssetNotFound
	}

	end := a.now()
	lookback, ok := historyRanges[rng]
	if !ok {
		lookback = 24 * time.Hour
	}

	points, err := a.prices.Range(ctx, asset.ID, end.Add(-lookback), end)
	if err != nil {
		return nil, err
	}

	views := make([]PricePointView, len(points))
	for i := range points {
		views[i] = PricePointView{
			Symbol:       asset.Symbol,
			Name:         asset.Name,
			PriceUSD:     points[i].PriceUSD,
			Volume24h:    points[i].Volume24h,
			MarketCap:    points[i].MarketCap,
			PctChange1h:  points[i].PctChange1h,
			PctChange24h: points[i].PctChange24h,
			PctChange7d:  points[i].PctChange7d,
			Timestamp:    points[i].Timestamp,
		}
	}

	return views, nil
}
