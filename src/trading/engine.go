package trading

import (
	"context"
	"math"

	"papertrader/src/model"
	"papertrader/src/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// cashScale is the currency precision for totals, balances and realized P&L.
	cashScale = 2
	// costScale is the price precision for the blended average cost. Finer
	// than cashScale so the cost basis does not accumulate rounding error
	// across many small buys.
	costScale = 8
)

// Quoter resolves assets and their latest market price.
type Quoter interface {
	FindAssetBySymbol(ctx context.Context, symbol string) (*model.Asset, error)
	Latest(ctx context.Context, assetID uint) (*model.PricePoint, error)
}

// TradeRequest is one buy/sell order against the virtual ledger. Price is
// optional; when absent the order executes at the latest stored price.
type TradeRequest struct {
	Side     string
	Symbol   string
	Quantity float64
	Price    *float64
}

// FundingRequest moves cash in or out of the portfolio.
type FundingRequest struct {
	Direction string
	Amount    float64
}

// Engine is the sole write path for ledger mutation. Each operation is
// validated up front, then committed as a single transaction holding an
// exclusive lock on the portfolio row, so concurrent operations on the same
// portfolio serialize rather than interleave.
type Engine struct {
	ledger *repository.LedgerRepository
	quotes Quoter
}

func NewEngine(ledger *repository.LedgerRepository, quotes Quoter) *Engine {
	return &Engine{ledger: ledger, quotes: quotes}
}

// PlaceTrade validates and executes one order. On success the returned trade
// is the appended immutable record and the portfolio reflects the committed
// balances.
func (e *Engine) PlaceTrade(ctx context.Context, userID uint, req TradeRequest) (*model.Trade, *model.Portfolio, error) {
	if req.Symbol == "" {
		return nil, nil, ErrMissingField
	}
	if req.Side != model.TradeSideBuy && req.Side != model.TradeSideSell {
		return nil, nil, ErrInvalidSide
	}
	if math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) || req.Quantity <= 0 {
		return nil, nil, ErrInvalidQuantity
	}
	if req.Price != nil && (math.IsNaN(*req.Price) || math.IsInf(*req.Price, 0) || *req.Price <= 0) {
		return nil, nil, ErrInvalidPrice
	}

	asset, err := e.quotes.FindAssetBySymbol(ctx, req.Symbol)
	if err != nil {
		return nil, nil, err
	}
	if asset == nil {
		return nil, nil, ErrAssetNotFound
	}

	price, err := e.resolvePrice(ctx, asset, req.Price)
	if err != nil {
		return nil, nil, err
	}

	quantity := decimal.NewFromFloat(req.Quantity)
	total := price.Mul(quantity).Round(cashScale)

	var (
		trade     *model.Trade
		portfolio *model.Portfolio
	)

	err = e.ledger.Transaction(ctx, func(tx *gorm.DB) error {
		pf, err := e.ledger.GetOrCreatePortfolioForUpdate(tx, userID)
		if err != nil {
			return err
		}

		switch req.Side {
		case model.TradeSideBuy:
			err = e.applyBuy(tx, pf, asset, quantity, price, total)
		case model.TradeSideSell:
			err = e.applySell(tx, pf, asset, quantity, price, total)
		}
		if err != nil {
			return err
		}

		if err := e.ledger.SavePortfolio(tx, pf); err != nil {
			return err
		}

		t := &model.Trade{
			Reference:   uuid.NewString(),
			PortfolioID: pf.ID,
			AssetID:     asset.ID,
			Side:        req.Side,
			Quantity:    quantity,
			PriceUSD:    price,
			TotalUSD:    total,
		}
		if err := e.ledger.CreateTrade(tx, t); err != nil {
			return err
		}

		trade = t
		portfolio = pf
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component":    "TradingEngine",
		"op":           "PlaceTrade",
		"portfolio_id": portfolio.ID,
		"symbol":       asset.Symbol,
		"side":         req.Side,
		"qty":          quantity,
		"price":        price,
	}).Info("Trade executed")

	return trade, portfolio, nil
}

// applyBuy debits cash and blends the new quantity into the holding's
// average cost. No position → open position, or open → open with blended cost.
func (e *Engine) applyBuy(tx *gorm.DB, pf *model.Portfolio, asset *model.Asset, quantity, price, total decimal.Decimal) error {
	if pf.CashBalance.LessThan(total) {
		return ErrInsufficientFunds
	}
	pf.CashBalance = pf.CashBalance.Sub(total)

	holding, err := e.ledger.HoldingForUpdate(tx, pf.ID, asset.ID)
	if err != nil {
		return err
	}

	if holding == nil {
		holding = &model.Holding{
			PortfolioID: pf.ID,
			AssetID:     asset.ID,
			Quantity:    quantity,
			AvgCost:     price,
		}
	} else {
		newQty := holding.Quantity.Add(quantity)
		holding.AvgCost = holding.Quantity.Mul(holding.AvgCost).
			Add(quantity.Mul(price)).
			Div(newQty).
			Round(costScale)
		holding.Quantity = newQty
	}

	return e.ledger.SaveHolding(tx, holding)
}

// applySell credits cash, locks in realized P&L against the average cost and
// reduces the position. The cost basis of the remaining shares is untouched
// by a partial sale; selling everything deletes the holding row.
func (e *Engine) applySell(tx *gorm.DB, pf *model.Portfolio, asset *model.Asset, quantity, price, total decimal.Decimal) error {
	holding, err := e.ledger.HoldingForUpdate(tx, pf.ID, asset.ID)
	if err != nil {
		return err
	}
	if holding == nil || holding.Quantity.LessThan(quantity) {
		return ErrInsufficientHoldings
	}

	realized := price.Sub(holding.AvgCost).Mul(quantity).Round(cashScale)
	pf.RealizedPnl = pf.RealizedPnl.Add(realized)
	pf.CashBalance = pf.CashBalance.Add(total)

	remaining := holding.Quantity.Sub(quantity)
	if remaining.IsZero() {
		return e.ledger.DeleteHolding(tx, holding)
	}

	holding.Quantity = remaining
	return e.ledger.SaveHolding(tx, holding)
}

// Fund deposits to or withdraws from the portfolio. A deposit raises the
// initial balance together with the cash balance so injected capital does
// not manufacture artificial P&L; a withdrawal lowers both, with the initial
// balance floored at zero. Rejected attempts record nothing.
func (e *Engine) Fund(ctx context.Context, userID uint, req FundingRequest) (*model.Portfolio, error) {
	if req.Direction != model.FundingDirectionDeposit && req.Direction != model.FundingDirectionWithdraw {
		return nil, ErrInvalidDirection
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	amount := decimal.NewFromFloat(req.Amount).Round(cashScale)

	var portfolio *model.Portfolio

	err := e.ledger.Transaction(ctx, func(tx *gorm.DB) error {
		pf, err := e.ledger.GetOrCreatePortfolioForUpdate(tx, userID)
		if err != nil {
			return err
		}

		switch req.Direction {
		case model.FundingDirectionDeposit:
			pf.CashBalance = pf.CashBalance.Add(amount)
			pf.InitialBalance = pf.InitialBalance.Add(amount)
		case model.FundingDirectionWithdraw:
			if amount.GreaterThan(pf.CashBalance) {
				return ErrInsufficientFunds
			}
			pf.CashBalance = pf.CashBalance.Sub(amount)
			pf.InitialBalance = pf.InitialBalance.Sub(amount)
			if pf.InitialBalance.IsNegative() {
				pf.InitialBalance = decimal.Zero
			}
		}

		if err := e.ledger.SavePortfolio(tx, pf); err != nil {
			return err
		}

		if err := e.ledger.CreateFunding(tx, &model.FundingTransaction{
			PortfolioID: pf.ID,
			Direction:   req.Direction,
			Amount:      amount,
		}); err != nil {
			return err
		}

		portfolio = pf
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component":    "TradingEngine",
		"op":           "Fund",
		"portfolio_id": portfolio.ID,
		"direction":    req.Direction,
		"amount":       amount,
	}).Info("Funding applied")

	return portfolio, nil
}

// resolvePrice takes the explicit request price when present, otherwise the
// latest stored price for the asset.
func (e *Engine) resolvePrice(ctx context.Context, asset *model.Asset, explicit *float64) (decimal.Decimal, error) {
	if explicit != nil {
		return decimal.NewFromFloat(*explicit), nil
	}

	latest, err := e.quotes.Latest(ctx, asset.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if latest == nil {
		return decimal.Zero, ErrNoPriceAvailable
	}

	return latest.PriceUSD, nil
}
