package postgres

import (
	"context"
	"fmt"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/google/uuid"
)

// TradeRepository stores executed trades
type TradeRepository struct {
	db *database.Database
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *database.Database) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts a trade
func (r *TradeRepository) Create(ctx context.Context, t *models.Trade) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO trades (id, user_id, order_id, symbol, side, price, quantity, fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING executed_at
	`, t.ID, t.UserID, t.OrderID, t.Symbol, string(t.Side), t.Price, t.Quantity, t.Fee).Scan(&t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// ListByUser returns a user's trades, newest first, optionally for one symbol
func (r *TradeRepository) ListByUser(ctx context.Context, userID uuid.UUID, symbol string, limit, offset int) ([]models.Trade, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, order_id, symbol, side, price, quantity, fee, executed_at
		FROM trades
		WHERE user_id = $1 AND ($2 = '' OR symbol = $2)
		ORDER BY executed_at DESC
		LIMIT $3 OFFSET $4
	`, userID, symbol, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.UserID, &t.OrderID, &t.Symbol, &t.Side, &t.Price, &t.Quantity, &t.Fee, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
