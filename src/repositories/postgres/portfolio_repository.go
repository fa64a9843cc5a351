package postgres

import (
	"context"
	"fmt"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/google/uuid"
)

// PortfolioRepository stores per-asset balances
type PortfolioRepository struct {
	db *database.Database
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *database.Database) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// ListByUser returns all balances of a user ordered by asset
func (r *PortfolioRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PortfolioBalance, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, asset, balance, locked, updated_at
		FROM portfolios WHERE user_id = $1 ORDER BY asset
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio: %w", err)
	}
	defer rows.Close()

	var balances []models.PortfolioBalance
	for rows.Next() {
		var b models.PortfolioBalance
		if err := rows.Scan(&b.ID, &b.UserID, &b.Asset, &b.Balance, &b.Locked, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// Get returns one balance
func (r *PortfolioRepository) Get(ctx context.Context, userID uuid.UUID, asset string) (*models.PortfolioBalance, error) {
	var b models.PortfolioBalance
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, asset, balance, locked, updated_at
		FROM portfolios WHERE user_id = $1 AND asset = $2
	`, userID, asset).Scan(&b.ID, &b.UserID, &b.Asset, &b.Balance, &b.Locked, &b.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

// Upsert creates or replaces the balance for (user, asset)
func (r *PortfolioRepository) Upsert(ctx context.Context, b *models.PortfolioBalance) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO portfolios (id, user_id, asset, balance, locked)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, asset)
		DO UPDATE SET balance = EXCLUDED.balance, locked = EXCLUDED.locked, updated_at = NOW()
		RETURNING id, updated_at
	`, b.ID, b.UserID, b.Asset, b.Balance, b.Locked).Scan(&b.ID, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}
