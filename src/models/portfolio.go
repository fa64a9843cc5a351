package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PortfolioBalance is a user's holding of a single asset
type PortfolioBalance struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Asset     string          `json:"asset"`
	Balance   decimal.Decimal `json:"balance"`
	Locked    decimal.Decimal `json:"locked"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Available returns the unlocked part of the balance
func (b *PortfolioBalance) Available() decimal.Decimal {
	return b.Balance.Sub(b.Locked)
}
