package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRepository is an in-memory implementation of repositories.OrderRepository
type OrderRepository struct {
	CreateFunc func(ctx context.Context, order *models.Order) error

	// Call tracking
	Calls map[string][]interface{}

	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
}

// NewOrderRepository creates a new mock order repository
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		Calls:  make(map[string][]interface{}),
		orders: make(map[uuid.UUID]*models.Order),
	}
}

func (m *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	m.Calls["Create"] = append(m.Calls["Create"], order)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, order)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now
	stored := *order
	m.orders[order.ID] = &stored
	return nil
}

func (m *OrderRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["GetByID"] = append(m.Calls["GetByID"], id)
	o, ok := m.orders[id]
	if !ok || o.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	out := *o
	return &out, nil
}

func (m *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, f repositories.OrderFilter) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["ListByUser"] = append(m.Calls["ListByUser"], f)
	var out []models.Order
	for _, o := range m.orders {
		if o.UserID != userID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Symbol != "" && o.Symbol != f.Symbol {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), nil
}

func (m *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Update"] = append(m.Calls["Update"], order)
	o, ok := m.orders[order.ID]
	if !ok || o.UserID != order.UserID || !o.IsOpen() || o.FilledQuantity.GreaterThan(order.Quantity) {
		return repositories.ErrConflict
	}
	o.Price, o.Quantity = order.Price, order.Quantity
	switch {
	case order.Status == models.OrderStatusCancelled:
		o.Status = models.OrderStatusCancelled
	case o.FilledQuantity.GreaterThanOrEqual(o.Quantity):
		o.Status = models.OrderStatusFilled
	}
	o.UpdatedAt = time.Now()
	order.FilledQuantity, order.Status, order.UpdatedAt = o.FilledQuantity, o.Status, o.UpdatedAt
	return nil
}

func (m *OrderRepository) ApplyFill(ctx context.Context, id, userID uuid.UUID, qty decimal.Decimal) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["ApplyFill"] = append(m.Calls["ApplyFill"], id)
	o, ok := m.orders[id]
	if !ok || o.UserID != userID || !o.IsOpen() {
		return nil, repositories.ErrConflict
	}
	filled := o.FilledQuantity.Add(qty)
	if filled.GreaterThan(o.Quantity) {
		return nil, repositories.ErrConflict
	}
	o.FilledQuantity = filled
	if filled.GreaterThanOrEqual(o.Quantity) {
		o.Status = models.OrderStatusFilled
	} else {
		o.Status = models.OrderStatusPartiallyFilled
	}
	o.UpdatedAt = time.Now()
	out := *o
	return &out, nil
}

// page applies limit/offset to an already ordered slice
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Ensure OrderRepository implements the interface
var _ repositories.OrderRepository = (*OrderRepository)(nil)
