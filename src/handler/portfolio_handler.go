package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"papertrader/src/auth"
	"papertrader/src/model"
	"papertrader/src/trading"
	"papertrader/src/valuation"

	logger "github.com/sirupsen/logrus"
)

type tradeExecutor interface {
	PlaceTrade(ctx context.Context, userID uint, req trading.TradeRequest) (*model.Trade, *model.Portfolio, error)
	Fund(ctx context.Context, userID uint, req trading.FundingRequest) (*model.Portfolio, error)
}

type summaryReader interface {
	Summary(ctx context.Context, userID uint) (*valuation.PortfolioView, error)
}

// LedgerHistory is the read slice of the ledger store the history routes use.
type LedgerHistory interface {
	GetOrCreatePortfolio(ctx context.Context, userID uint) (*model.Portfolio, error)
	TradesByPortfolio(ctx context.Context, portfolioID uint) ([]model.Trade, error)
	FundingByPortfolio(ctx context.Context, portfolioID uint) ([]model.FundingTransaction, error)
}

// statusForTradingError maps engine rejections to HTTP statuses. Validation
// problems are 400, unknown assets 404, a missing execution price 409 and
// business-rule violations 422.
func statusForTradingError(err error) int {
	switch {
	case errors.Is(err, trading.ErrMissingField),
		errors.Is(err, trading.ErrInvalidSide),
		errors.Is(err, trading.ErrInvalidQuantity),
		errors.Is(err, trading.ErrInvalidPrice),
		errors.Is(err, trading.ErrInvalidAmount),
		errors.Is(err, trading.ErrInvalidDirection):
		return http.StatusBadRequest
	case errors.Is(err, trading.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, trading.ErrNoPriceAvailable):
		return http.StatusConflict
	case errors.Is(err, trading.ErrInsufficientFunds),
		errors.Is(err, trading.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// PortfolioSummaryHandler returns the authenticated user's equity/P&L snapshot.
func PortfolioSummaryHandler(summaries summaryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		summary, err := summaries.Summary(r.Context(), userID)
		if err != nil {
			logger.WithError(err).Error("failed to build portfolio summary")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, summary)
	}
}

type placeTradeRequest struct {
	Side     string   `json:"side"`
	Symbol   string   `json:"symbol"`
	Quantity float64  `json:"quantity"`
	Price    *float64 `json:"price,omitempty"`
}

// PlaceTradeHandler executes a buy/sell order and returns the trade together
// with the refreshed portfolio summary.
func PlaceTradeHandler(engine tradeExecutor, summaries summaryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req placeTradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		trade, _, err := engine.PlaceTrade(r.Context(), userID, trading.TradeRequest{
			Side:     req.Side,
			Symbol:   req.Symbol,
			Quantity: req.Quantity,
			Price:    req.Price,
		})
		if err != nil {
			status := statusForTradingError(err)
			if status == http.StatusInternalServerError {
				logger.WithError(err).Error("failed to place trade")
				writeError(w, status, "Internal Server Error")
				return
			}
			writeError(w, status, err.Error())
			return
		}

		summary, err := summaries.Summary(r.Context(), userID)
		if err != nil {
			logger.WithError(err).Error("failed to build post-trade summary")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"trade":     trade,
			"portfolio": summary,
		})
	}
}

type fundPortfolioRequest struct {
	Direction string  `json:"direction"`
	Amount    float64 `json:"amount"`
}

// FundPortfolioHandler deposits to or withdraws from the user's portfolio.
func FundPortfolioHandler(engine tradeExecutor, summaries summaryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req fundPortfolioRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		_, err := engine.Fund(r.Context(), userID, trading.FundingRequest{
			Direction: req.Direction,
			Amount:    req.Amount,
		})
		if err != nil {
			status := statusForTradingError(err)
			if status == http.StatusInternalServerError {
				logger.WithError(err).Error("failed to fund portfolio")
				writeError(w, status, "Internal Server Error")
				return
			}
			writeError(w, status, err.Error())
			return
		}

		summary, err := summaries.Summary(r.Context(), userID)
		if err != nil {
			logger.WithError(err).Error("failed to build post-funding summary")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"portfolio": summary,
		})
	}
}

// ListTradesHandler returns the user's trade history, newest first.
func ListTradesHandler(ledger LedgerHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		portfolio, err := ledger.GetOrCreatePortfolio(r.Context(), userID)
		if err != nil {
			logger.WithError(err).Error("failed to resolve portfolio")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		trades, err := ledger.TradesByPortfolio(r.Context(), portfolio.ID)
		if err != nil {
			logger.WithError(err).Error("failed to list trades")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, trades)
	}
}

// ListFundingHandler returns the user's funding history, newest first.
func ListFundingHandler(ledger LedgerHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.GetUserIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		portfolio, err := ledger.GetOrCreatePortfolio(r.Context(), userID)
		if err != nil {
			logger.WithError(err).Error("failed to resolve portfolio")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		fundings, err := ledger.FundingByPortfolio(r.Context(), portfolio.ID)
		if err != nil {
			logger.WithError(err).Error("failed to list funding history")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, fundings)
	}
}
