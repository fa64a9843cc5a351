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

// PortfolioRepository is an in-memory implementation of repositories.PortfolioRepository
type PortfolioRepository struct {
	ListByUserFunc func(ctx context.Context, userID uuid.UUID) ([]models.PortfolioBalance, error)

	// Call tracking
	Calls map[string][]interface{}

	mu       sync.Mutex
	balances map[string]*models.PortfolioBalance
}

// NewPortfolioRepository creates a new mock portfolio repository
func NewPortfolioRepository() *PortfolioRepository {
	return &PortfolioRepository{
		Calls:    make(map[string][]interface{}),
		balances: make(map[string]*models.PortfolioBalance),
	}
}

func balanceKey(userID uuid.UUID, asset string) string {
	return userID.String() + "/" + asset
}

func (m *PortfolioRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PortfolioBalance, error) {
	m.mu.Lock()
	m.Calls["ListByUser"] = append(m.Calls["ListByUser"], userID)
	m.mu.Unlock()
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PortfolioBalance
	for _, b := range m.balances {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (m *PortfolioRepository) Get(ctx context.Context, userID uuid.UUID, asset string) (*models.PortfolioBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Get"] = append(m.Calls["Get"], asset)
	b, ok := m.balances[balanceKey(userID, asset)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *b
	return &out, nil
}

func (m *PortfolioRepository) Upsert(ctx context.Context, balance *models.PortfolioBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Upsert"] = append(m.Calls["Upsert"], balance)
	key := balanceKey(balance.UserID, balance.Asset)
	if existing, ok := m.balances[key]; ok {
		balance.ID = existing.ID
	} else if balance.ID == uuid.Nil {
		balance.ID = uuid.New()
	}
	balance.UpdatedAt = time.Now()
	stored := *balance
	m.balances[key] = &stored
	return nil
}

// Ensure PortfolioRepository implements the interface
var _ repositories.PortfolioRepository = (*PortfolioRepository)(nil)
