package valuation

import (
	"context"

	"papertrader/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// LedgerReader is the lock-free read slice of the ledger store.
type LedgerReader interface {
	GetOrCreatePortfolio(ctx context.Context, userID uint) (*model.Portfolio, error)
	HoldingsByPortfolio(ctx context.Context, portfolioID uint) ([]model.Holding, error)
}

// PriceReader resolves the latest stored price per asset.
type PriceReader interface {
	Latest(ctx context.Context, assetID uint) (*model.PricePoint, error)
}

// HoldingView is one open position marked to the latest stored price.
type HoldingView struct {
	AssetID     uint             `json:"asset_id"`
	Symbol      string           `json:"symbol"`
	Name        string           `json:"name"`
	Quantity    decimal.Decimal  `json:"quantity"`
	AvgCost     decimal.Decimal  `json:"avg_cost"`
	LatestPrice *decimal.Decimal `json:"latest_price,omitempty"`
	MarketValue decimal.Decimal  `json:"market_value"`
	PnlAbs      decimal.Decimal  `json:"pnl_abs"`
	PnlPct      decimal.Decimal  `json:"pnl_pct"`
}

// PortfolioView is the equity/P&L snapshot of one portfolio.
type PortfolioView struct {
	PortfolioID    uint            `json:"portfolio_id"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	RealizedPnl    decimal.Decimal `json:"realized_pnl"`
	HoldingsValue  decimal.Decimal `json:"holdings_value"`
	Equity         decimal.Decimal `json:"equity"`
	Pnl            decimal.Decimal `json:"pnl"`
	PnlPct         decimal.Decimal `json:"pnl_pct"`
	Holdings       []HoldingView   `json:"holdings"`
}

// Service composes the ledger and the price series into portfolio snapshots.
// It is a pure read path: no locks, and the snapshot may be stale by the
// time the response is rendered.
type Service struct {
	ledger LedgerReader
	prices PriceReader
}

func NewService(ledger LedgerReader, prices PriceReader) *Service {
	return &Service{ledger: ledger, prices: prices}
}

var hundred = decimal.NewFromInt(100)

// Summary values every holding at its latest stored price. A holding with no
// price history contributes zero market value; that is not an error. Prices
// are memoized per asset for the duration of this call only, so the
// portfolio-level and holding-level figures always agree within one request.
func (s *Service) Summary(ctx context.Context, userID uint) (*PortfolioView, error) {
	portfolio, err := s.ledger.GetOrCreatePortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	holdings, err := s.ledger.HoldingsByPortfolio(ctx, portfolio.ID)
	if err != nil {
		return nil, err
	}

	priceMemo := make(map[uint]*decimal.Decimal, len(holdings))
	lookup := func(assetID uint) (*decimal.Decimal, error) {
		if cached, ok := priceMemo[assetID]; ok {
			return cached, nil
		}
		point, err := s.prices.Latest(ctx, assetID)
		if err != nil {
			return nil, err
		}
		var price *decimal.Decimal
		if point != nil {
			p := point.PriceUSD
			price = &p
		}
		priceMemo[assetID] = price
		return price, nil
	}

	views := make([]HoldingView, 0, len(holdings))
	holdingsValue := decimal.Zero

	for i := range holdings {
		h := holdings[i]

		view := HoldingView{
			AssetID:     h.AssetID,
			Quantity:    h.Quantity,
			AvgCost:     h.AvgCost,
			MarketValue: decimal.Zero,
			PnlAbs:      decimal.Zero,
			PnlPct:      decimal.Zero,
		}
		if h.Asset != nil {
			view.Symbol = h.Asset.Symbol
			view.Name = h.Asset.Name
		}

		price, err := lookup(h.AssetID)
		if err != nil {
			return nil, err
		}
		if price == nil {
			logger.WithFields(map[string]interface{}{
				"component": "ValuationService",
				"op":        "Summary",
				"asset_id":  h.AssetID,
			}).Warn("holding has no price history, valuing at zero")

			views = append(views, view)
			continue
		}

		view.LatestPrice = price
		view.MarketValue = price.Mul(h.Quantity).Round(2)
		view.PnlAbs = price.Sub(h.AvgCost).Mul(h.Quantity).Round(2)
		if !h.AvgCost.IsZero() {
			view.PnlPct = hundred.Mul(price.Sub(h.AvgCost)).Div(h.AvgCost).Round(4)
		}

		holdingsValue = holdingsValue.Add(price.Mul(h.Quantity))
		views = append(views, view)
	}

	holdingsValue = holdingsValue.Round(2)
	equity := holdingsValue.Add(portfolio.CashBalance)
	pnl := equity.Sub(portfolio.InitialBalance)

	pnlPct := decimal.Zero
	if !portfolio.InitialBalance.IsZero() {
		pnlPct = hundred.Mul(pnl).Div(portfolio.InitialBalance).Round(4)
	}

	return &PortfolioView{
		PortfolioID:    portfolio.ID,
		InitialBalance: portfolio.InitialBalance,
		CashBalance:    portfolio.CashBalance,
		RealizedPnl:    portfolio.RealizedPnl,
		HoldingsValue:  holdingsValue,
		Equity:         equity,
		Pnl:            pnl,
		PnlPct:         pnlPct,
		Holdings:       views,
	}, nil
}
