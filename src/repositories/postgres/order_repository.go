package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, symbol, side, type, price, quantity, filled_quantity, status, created_at, updated_at`

// OrderRepository stores orders
type OrderRepository struct {
	db *database.Database
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.Database) *OrderRepository {
	return &OrderRepository{db: db}
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &o.Side, &o.Type, &o.Price,
		&o.Quantity, &o.FilledQuantity, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts a new order
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, symbol, side, type, price, quantity, filled_quantity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, o.ID, o.UserID, o.Symbol, string(o.Side), string(o.Type), o.Price, o.Quantity, o.FilledQuantity, string(o.Status),
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID returns an order owned by userID
func (r *OrderRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, translate(err)
	}
	return o, nil
}

// ListByUser returns a user's orders, newest first
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, f repositories.OrderFilter) ([]models.Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR symbol = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, userID, string(f.Status), f.Symbol, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// Update persists price, quantity and status of an open order. filled_quantity is never
// written here, and a quantity at or below it marks the order filled. A closed order, or one
// filled past the new quantity, matches no row and yields ErrConflict.
func (r *OrderRepository) Update(ctx context.Context, o *models.Order) error {
	err := r.db.QueryRow(ctx, `
		UPDATE orders
		SET price = $3,
		    quantity = $4::numeric,
		    status = CASE
		        WHEN $5 = 'cancelled' THEN 'cancelled'
		        WHEN filled_quantity >= $4::numeric THEN 'filled'
		        ELSE status
		    END,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		  AND status IN ('open', 'partially_filled')
		  AND filled_quantity <= $4::numeric
		RETURNING filled_quantity, status, updated_at
	`, o.ID, o.UserID, o.Price, o.Quantity, string(o.Status)).Scan(&o.FilledQuantity, &o.Status, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repositories.ErrConflict
	}
	return translate(err)
}

// ApplyFill adds qty to an open order's filled quantity in one statement and returns the
// updated row. ErrConflict means the order is closed or qty exceeds what remains.
func (r *OrderRepository) ApplyFill(ctx context.Context, id, userID uuid.UUID, qty decimal.Decimal) (*models.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `
		UPDATE orders
		SET filled_quantity = filled_quantity + $3::numeric,
		    status = CASE
		        WHEN filled_quantity + $3::numeric >= quantity THEN 'filled'
		        ELSE 'partially_filled'
		    END,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		  AND status IN ('open', 'partially_filled')
		  AND filled_quantity + $3::numeric <= quantity
		RETURNING `+orderColumns, id, userID, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repositories.ErrConflict
	}
	if err != nil {
		return nil, translate(err)
	}
	return o, nil
}
