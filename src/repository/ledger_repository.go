package repository

import (
	"context"
	"errors"

	"papertrader/src/database"
	"papertrader/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository is the durable state for portfolios, holdings, trades and
// funding transactions. Every mutation of ledger rows happens inside one
// transaction with the portfolio row locked, so concurrent operations on the
// same portfolio serialize instead of interleaving.
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new repository instance using the main read/write database.
func NewLedgerRepository() *LedgerRepository {
	logger.WithField("component", "LedgerRepository").
		Info("Creating new LedgerRepository with MainDB")

	return &LedgerRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *LedgerRepository) WithDB(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Transaction runs fn inside a database transaction. Any error rolls the
// whole unit back, so failed operations leave zero side effects.
func (r *LedgerRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// lockForUpdate adds a row-level exclusive lock to the query. sqlite has no
// row locks and rejects FOR UPDATE; its single-writer database lock already
// serializes mutations there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// GetOrCreatePortfolioForUpdate fetches the user's portfolio with an
// exclusive row lock, creating it with the default opening balance when the
// user has none yet. Must be called inside a transaction.
func (r *LedgerRepository) GetOrCreatePortfolioForUpdate(tx *gorm.DB, userID uint) (*model.Portfolio, error) {
	var portfolio model.Portfolio

	err := lockForUpdate(tx).
		Where("user_id = ?", userID).
		First(&portfolio).Error
	if err == nil {
		return &portfolio, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	portfolio = model.Portfolio{
		UserID:         userID,
		InitialBalance: model.DefaultOpeningBalance,
		CashBalance:    model.DefaultOpeningBalance,
		RealizedPnl:    decimal.Zero,
	}
	if err := tx.Create(&portfolio).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "LedgerRepository",
			"op":      "GetOrCreatePortfolioForUpdate",
			"user_id": userID,
		}).WithError(err).Error("Failed to create portfolio")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "LedgerRepository",
		"op":           "GetOrCreatePortfolioForUpdate",
		"user_id":      userID,
		"portfolio_id": portfolio.ID,
	}).Info("Portfolio created with default opening balance")

	return &portfolio, nil
}

// SavePortfolio persists the mutated balance columns of a locked portfolio row.
func (r *LedgerRepository) SavePortfolio(tx *gorm.DB, portfolio *model.Portfolio) error {
	return tx.Model(portfolio).
		Select("initial_balance", "cash_balance", "realized_pnl", "updated_at").
		Updates(map[string]interface{}{
			"initial_balance": portfolio.InitialBalance,
			"cash_balance":    portfolio.CashBalance,
			"realized_pnl":    portfolio.RealizedPnl,
		}).Error
}

// HoldingForUpdate fetches the holding for (portfolio, asset) with an
// exclusive row lock. Returns (nil, nil) when there is no open position.
func (r *LedgerRepository) HoldingForUpdate(tx *gorm.DB, portfolioID, assetID uint) (*model.Holding, error) {
	var holding model.Holding

	err := lockForUpdate(tx).
		Where("portfolio_id = ? AND asset_id = ?", portfolioID, assetID).
		First(&holding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &holding, nil
}

// SaveHolding inserts or updates a holding row.
func (r *LedgerRepository) SaveHolding(tx *gorm.DB, holding *model.Holding) error {
	return tx.Save(holding).Error
}

// DeleteHolding removes a holding row. Called when a sell brings the
// quantity to exactly zero, so no zero-quantity rows persist.
func (r *LedgerRepository) DeleteHolding(tx *gorm.DB, holding *model.Holding) error {
	return tx.Delete(holding).Error
}

// CreateTrade appends the immutable trade record.
func (r *LedgerRepository) CreateTrade(tx *gorm.DB, trade *model.Trade) error {
	return tx.Create(trade).Error
}

// CreateFunding appends the immutable funding record.
func (r *LedgerRepository) CreateFunding(tx *gorm.DB, funding *model.FundingTransaction) error {
	return tx.Create(funding).Error
}

// ---------------------------------------------------
// Lock-free read side
// ---------------------------------------------------

// GetOrCreatePortfolio resolves the user's portfolio for a read path,
// creating it lazily on first access.
func (r *LedgerRepository) GetOrCreatePortfolio(ctx context.Context, userID uint) (*model.Portfolio, error) {
	var portfolio *model.Portfolio

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		portfolio, err = r.GetOrCreatePortfolioForUpdate(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return portfolio, nil
}

// HoldingsByPortfolio returns the portfolio's open positions with assets preloaded.
func (r *LedgerRepository) HoldingsByPortfolio(ctx context.Context, portfolioID uint) ([]model.Holding, error) {
	var holdings []model.Holding

	err := r.db.WithContext(ctx).
		Preload("Asset").
		Where("portfolio_id = ?", portfolioID).
		Order("id ASC").
		Find(&holdings).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "LedgerRepository",
			"op":           "HoldingsByPortfolio",
			"portfolio_id": portfolioID,
		}).WithError(err).Error("Failed to fetch holdings")

		return nil, err
	}

	return holdings, nil
}

// TradesByPortfolio returns the trade history ordered from newest to oldest.
func (r *LedgerRepository) TradesByPortfolio(ctx context.Context, portfolioID uint) ([]model.Trade, error) {
	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Preload("Asset").
		Where("portfolio_id = ?", portfolioID).
		Order("created_at DESC, id DESC").
		Find(&trades).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "LedgerRepository",
			"op":           "TradesByPortfolio",
			"portfolio_id": portfolioID,
		}).WithError(err).Error("Failed to fetch trades")

		return nil, err
	}

	return trades, nil
}

// FundingByPortfolio returns the funding history ordered from newest to oldest.
func (r *LedgerRepository) FundingByPortfolio(ctx context.Context, portfolioID uint) ([]model.FundingTransaction, error) {
	var fundings []model.FundingTransaction

	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("created_at DESC, id DESC").
		Find(&fundings).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "LedgerRepository",
			"op":           "FundingByPortfolio",
			"portfolio_id": portfolioID,
		}).WithError(err).Error("Failed to fetch funding history")

		return nil, err
	}

	return fundings, nil
}
