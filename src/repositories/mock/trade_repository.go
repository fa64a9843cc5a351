package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
)

// TradeRepository is an in-memory implementation of repositories.TradeRepository
type TradeRepository struct {
	// Call tracking
	Calls map[string][]interface{}

	mu     sync.Mutex
	trades []models.Trade
}

// NewTradeRepository creates a new mock trade repository
func NewTradeRepository() *TradeRepository {
	return &TradeRepository{Calls: make(map[string][]interface{})}
}

func (m *TradeRepository) Create(ctx context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Create"] = append(m.Calls["Create"], trade)
	if trade.ID == uuid.Nil {
		trade.ID = uuid.New()
	}
	trade.ExecutedAt = time.Now()
	m.trades = append(m.trades, *trade)
	return nil
}

func (m *TradeRepository) ListByUser(ctx context.Context, userID uuid.UUID, symbol string, limit, offset int) ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["ListByUser"] = append(m.Calls["ListByUser"], userID)
	var out []models.Trade
	for _, t := range m.trades {
		if t.UserID == userID && (symbol == "" || t.Symbol == symbol) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	return page(out, limit, offset), nil
}

// Ensure TradeRepository implements the interface
var _ repositories.TradeRepository = (*TradeRepository)(nil)
