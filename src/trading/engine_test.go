package trading

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"papertrader/src/model"
	"papertrader/src/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// one shared in-memory database per test, named after the test so
	// parallel packages never collide
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Asset{},
		&model.PricePoint{},
		&model.Portfolio{},
		&model.Holding{},
		&model.Trade{},
		&model.FundingTransaction{},
	))

	return db
}

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	ledger := repository.NewLedgerRepository().WithDB(db)
	prices := repository.NewPriceRepository().WithDB(db)

	return NewEngine(ledger, prices), db
}

func seedAsset(t *testing.T, db *gorm.DB, coingeckoID, symbol, name string) *model.Asset {
	t.Helper()

	asset := &model.Asset{CoingeckoID: coingeckoID, Symbol: symbol, Name: name}
	require.NoError(t, db.Create(asset).Error)
	return asset
}

func seedPrice(t *testing.T, db *gorm.DB, assetID uint, price float64, ts time.Time) {
	t.Helper()

	require.NoError(t, db.Create(&model.PricePoint{
		AssetID:   assetID,
		PriceUSD:  decimal.NewFromFloat(price),
		Timestamp: ts,
	}).Error)
}

func seedPortfolio(t *testing.T, db *gorm.DB, userID uint) *model.Portfolio {
	t.Helper()

	pf := &model.Portfolio{
		UserID:         userID,
		InitialBalance: model.DefaultOpeningBalance,
		CashBalance:    model.DefaultOpeningBalance,
		RealizedPnl:    decimal.Zero,
	}
	require.NoError(t, db.Create(pf).Error)
	return pf
}

func floatPtr(v float64) *float64 { return &v }

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

func TestPlaceTradeBuyOpensPosition(t *testing.T) {
	engine, db := newTestEngine(t)
	seedAsset(t, db, "bitcoin", "BTC", "Bitcoin")

	trade, pf, err := engine.PlaceTrade(context.Background(), 1, TradeRequest{
		Side:     model.TradeSideBuy,
		Symbol:   "BTC",
		Quantity: 1,
		Price:    floatPtr(50000),
	})
	require.NoError(t, err)

	requireDecimal(t, "50000", pf.CashBalance)
	requireDecimal(t, "100000", pf.InitialBalance)
	requireDecimal(t, "0", pf.RealizedPnl)

	assert.Equal(t, model.TradeSideBuy, trade.Side)
	assert.Len(t, trade.Reference, 36)
	requireDecimal(t, "50000", trade.TotalUSD)

	var holding model.Holding
	require.NoError(t, db.Where("portfolio_id = ?", pf.ID).First(&holding).Error)
	requireDecimal(t, "1", holding.Quantity)
	requireDecimal(t, "50000", holding.AvgCost)
}

func TestPlaceTradeBuyInsufficientFunds(t *testing.T) {
	engine, db := newTestEngine(t)
	seedAsset(t, db, "bitcoin", "BTC", "Bitcoin")
	seedPortfolio(t, db, 1)

	_, _, err := engine.PlaceTrade(context.Background(), 1, TradeRequest{
		Side:     model.TradeSideBuy,
		Symbol:   "BTC",
		Quantity: 3,
		Price:    floatPtr(50000),
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// the rejected order leaves no rows behind
	var trades int64
	require.NoError(t, db.Model(&model.Trade{}).Count(&trades).Error)
	assert.Zero(t, trades)

	var pf model.Portfolio
	require.NoError(t, db.Where("user_id = ?", 1).First(&pf).Error)
	requireDecimal(t, "100000", pf.CashBalance)
}

func TestPlaceTradeBuyBlendsAverageCost(t *testing.T) {
	engine, db := newTestEngine(t)
	seedAsset(t, db, "bitcoin", "BTC", "Bitcoin")
	ctx := context.Background()

	_, _, err := engine.PlaceTrade(ctx, 1, TradeRequest{
		Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 1, Price: floatPtr(40000),
	})
	require.NoError(t, err)

	_, pf, err := engine.PlaceTrade(ctx, 1, TradeRequest{
		Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 1, Price: floatPtr(50000),
	})
	require.NoError(t, err)

	requireDecimal(t, "10000", pf.CashBalance)

	var holding model.Holding
	require.NoError(t, db.Where("portfolio_id = ?", pf.ID).First(&holding).Error)
	requireDecimal(t, "2", holding.Quantity)
	requireDecimal(t, "45000", holding.AvgCost)
}

func TestPlaceTradePartialSellKeepsCostBasis(t *testing.T) {
	engine, db := newTestEngine(t)
	seedAsset(t, db, "bitcoin", "BTC", "Bitcoin")
	ctx := context.Background()

	_, _, err := engine.PlaceTrade(ctx, 1, TradeRequest{
		Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 1, Price: floatPtr(50000),
	})
	require.NoError(t, err)

	_, pf, err := engine.PlaceTrade(ctx, 1, TradeRequest{
		Side: model.TradeSideSell, Symbol: "BTC", Quantity: 0.5, Price: floatPtr(70000),
	})
	require.NoError(t, err)

	requireDecimal(t, "85000", pf.CashBalance)
	requireDecimal(t, "10000", pf.RealizedPnl)

	var holding model.Holding
	require.NoError(t, db.Where("portfolio_id = ?", pf.ID).First(&holding).Error)
	requireDecimal(t, "0.5", holding.Quantity)
	requireDecimal(t, "50000", holding.AvgCost)
}

func TestPlaceTradeFullSellDeletesHolding(t *testing.T) {
	engine, db := newTestEngine(t)
	seedAsset(t, db, "bitcoin", "BTC", "Bitcoin")
	ctx := context.Background()

	_, _, err := engine.PlaceTrade(ctx, 1, TradeRequest{
		Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 1, Price: floatPtr(50000),
	})
	require.NoError(t, err)

	_, pf, err := engine.PlaceTrade(ctx, 1, TradeRequest{
		Side: model.TradeSideSell, Symbol: "BTC", Quantity: 1, Price: floatPtr(60000),
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&model.Holding{}).Where("portfolio_id = ?", pf.ID).Count(&count).Error)
	assert.Zero(t, count)

	// a fresh buy after a flat position starts a new cost basis
	_, _, err = engine.PlaceTrade(ctx, 1, TradeRequest{
		Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 1, Price: floatPtr(30000),
	})
	require.NoError(t, err)

	var holding model.Holding
	require.NoError(t, db.Where("portfolio_id = ?", pf.ID).First(&holding).Error)
	requireDecimal(t, "30000", holding.AvgCost)
}

func TestPlaceTradeSellWithoutHolding(t *testing.T) {
	engine, db := newTestEngine(t)
	seedAsset(t, db, "bitcoin", "BTC", "Bitcoin")

	_, _, err := engine.PlaceTrade(context.Background(), 1, TradeRequest{
		Side: model.TradeSideSell, Symbol: "BTC", Quantity: 1, Price: floatPtr(50000),
	})
	require.ErrorIs(t, err, ErrInsufficientHoldings)
}

func TestPlaceTradeSellMoreThanHeld(t *testing.T) {
	engine, db := newTestEngine(t)
	seedAsset(t, db, "bitcoin", "BTC", "Bitcoin")
	ctx := context.Background()

	_, _, err := engine.PlaceTrade(ctx, 1, TradeRequest{
		Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 1, Price: floatPtr(50000),
	})
	require.NoError(t, err)

	_, _, err = engine.PlaceTrade(ctx, 1, TradeRequest{
		Side: model.TradeSideSell, Symbol: "BTC", Quantity: 2, Price: floatPtr(50000),
	})
	require.ErrorIs(t, err, ErrInsufficientHoldings)
}

func TestPlaceTradeUsesLatestStoredPrice(t *testing.T) {
	engine, db := newTestEngine(t)
	asset := seedAsset(t, db, "bitcoin", "BTC", "Bitcoin")
	now := time.Now().UTC().Truncate(time.Second)
	seedPrice(t, db, asset.ID, 40000, now.Add(-time.Hour))
	seedPrice(t, db, asset.ID, 42000, now)

	trade, pf, err := engine.PlaceTrade(context.Background(), 1, TradeRequest{
		Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 1,
	})
	require.NoError(t, err)

	requireDecimal(t, "42000", trade.PriceUSD)
	requireDecimal(t, "58000", pf.CashBalance)
}

func TestPlaceTradeNoPriceAvailable(t *testing.T) {
	engine, db := newTestEngine(t)
	seedAsset(t, db, "bitcoin", "BTC", "Bitcoin")

	_, _, err := engine.PlaceTrade(context.Background(), 1, TradeRequest{
		Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 1,
	})
	require.ErrorIs(t, err, ErrNoPriceAvailable)
}

func TestPlaceTradeUnknownAsset(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, _, err := engine.PlaceTrade(context.Background(), 1, TradeRequest{
		Side: model.TradeSideBuy, Symbol: "NOPE", Quantity: 1, Price: floatPtr(10),
	})
	require.ErrorIs(t, err, ErrAssetNotFound)
}

func TestPlaceTradeValidation(t *testing.T) {
	engine, db := newTestEngine(t)
	seedAsset(t, db, "bitcoin", "BTC", "Bitcoin")
	ctx := context.Background()

	cases := []struct {
		name string
		req  TradeRequest
		want error
	}{
		{"missing symbol", TradeRequest{Side: model.TradeSideBuy, Quantity: 1}, ErrMissingField},
		{"bad side", TradeRequest{Side: "hold", Symbol: "BTC", Quantity: 1}, ErrInvalidSide},
		{"zero quantity", TradeRequest{Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 0}, ErrInvalidQuantity},
		{"negative quantity", TradeRequest{Side: model.TradeSideBuy, Symbol: "BTC", Quantity: -1}, ErrInvalidQuantity},
		{"zero price", TradeRequest{Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 1, Price: floatPtr(0)}, ErrInvalidPrice},
		{"negative price", TradeRequest{Side: model.TradeSideBuy, Symbol: "BTC", Quantity: 1, Price: floatPtr(-5)}, ErrInvalidPrice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := engine.PlaceTrade(ctx, 1, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRoundTripConservesValue(t *testing.T) {
	engine, db := newTestEngine(t)
	seedAsset(t, db, "ethereum", "ETH", "Ethereum")
	ctx := context.Background()

	// buy and sell at the same price: cash returns to the opening balance
	// and realized P&L stays zero
	_, _, err := engine.PlaceTrade(ctx, 7, TradeRequest{
		Side: model.TradeSideBuy, Symbol: "ETH", Quantity: 2.5, Price: floatPtr(3000),
	})
	require.NoError(t, err)

	_, pf, err := engine.PlaceTrade(ctx, 7, TradeRequest{
		Side: model.TradeSideSell, Symbol: "ETH", Quantity: 2.5, Price: floatPtr(3000),
	})
	require.NoError(t, err)

	requireDecimal(t, "100000", pf.CashBalance)
	requireDecimal(t, "0", pf.RealizedPnl)
}

func TestFundDeposit(t *testing.T) {
	engine, db := newTestEngine(t)

	pf, err := engine.Fund(context.Background(), 1, FundingRequest{
		Direction: model.FundingDirectionDeposit,
		Amount:    5000,
	})
	require.NoError(t, err)

	requireDecimal(t, "105000", pf.CashBalance)
	requireDecimal(t, "105000", pf.InitialBalance)

	var funding model.FundingTransaction
	require.NoError(t, db.Where("portfolio_id = ?", pf.ID).First(&funding).Error)
	assert.Equal(t, model.FundingDirectionDeposit, funding.Direction)
	requireDecimal(t, "5000", funding.Amount)
}

func TestFundWithdraw(t *testing.T) {
	engine, _ := newTestEngine(t)

	pf, err := engine.Fund(context.Background(), 1, FundingRequest{
		Direction: model.FundingDirectionWithdraw,
		Amount:    40000,
	})
	require.NoError(t, err)

	requireDecimal(t, "60000", pf.CashBalance)
	requireDecimal(t, "60000", pf.InitialBalance)
}

func TestFundOverWithdrawRecordsNothing(t *testing.T) {
	engine, db := newTestEngine(t)
	seedPortfolio(t, db, 1)

	_, err := engine.Fund(context.Background(), 1, FundingRequest{
		Direction: model.FundingDirectionWithdraw,
		Amount:    100001,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	var count int64
	require.NoError(t, db.Model(&model.FundingTransaction{}).Count(&count).Error)
	assert.Zero(t, count)

	var pf model.Portfolio
	require.NoError(t, db.Where("user_id = ?", 1).First(&pf).Error)
	requireDecimal(t, "100000", pf.CashBalance)
}

func TestFundValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Fund(ctx, 1, FundingRequest{Direction: "sideways", Amount: 10})
	require.ErrorIs(t, err, ErrInvalidDirection)

	_, err = engine.Fund(ctx, 1, FundingRequest{Direction: model.FundingDirectionDeposit, Amount: 0})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = engine.Fund(ctx, 1, FundingRequest{Direction: model.FundingDirectionDeposit, Amount: -10})
	require.ErrorIs(t, err, ErrInvalidAmount)
}
