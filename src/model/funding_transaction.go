package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FundingDirectionDeposit  = "deposit"
	FundingDirectionWithdraw = "withdraw"
)

// FundingTransaction records a successful deposit or withdrawal. Rejected
// attempts are never recorded.
type FundingTransaction struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	PortfolioID uint            `gorm:"not null;index" json:"portfolio_id"`
	Direction   string          `gorm:"size:8;not null" json:"direction"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (FundingTransaction) TableName() string {
	return "funding_transactions"
}
