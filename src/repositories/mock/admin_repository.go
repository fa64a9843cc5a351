package mock

import (
	"context"
	"sync"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
)

// AdminRepository is a mock implementation of repositories.AdminRepository
type AdminRepository struct {
	// Function stubs that can be overridden in tests
	CreateFunc          func(ctx context.Context, admin *models.AdminUser) error
	GetByUsernameFunc   func(ctx context.Context, username string) (*models.AdminUser, error)
	UpdateLastLoginFunc func(ctx context.Context, adminID uuid.UUID) error
	CountFunc           func(ctx context.Context) (int, error)

	// Call tracking
	Calls map[string][]interface{}

	mu     sync.Mutex
	admins map[string]*models.AdminUser
}

// NewAdminRepository creates a new mock admin repository
func NewAdminRepository() *AdminRepository {
	return &AdminRepository{
		Calls:  make(map[string][]interface{}),
		admins: make(map[string]*models.AdminUser),
	}
}

func (m *AdminRepository) record(name string, arg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name] = append(m.Calls[name], arg)
}

func (m *AdminRepository) Create(ctx context.Context, admin *models.AdminUser) error {
	m.record("Create", admin)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, admin)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.admins[admin.Username]; exists {
		return repositories.ErrConflict
	}
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}
	stored := *admin
	m.admins[admin.Username] = &stored
	return nil
}

func (m *AdminRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	m.record("GetByUsername", username)
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[username]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (m *AdminRepository) UpdateLastLogin(ctx context.Context, adminID uuid.UUID) error {
	m.record("UpdateLastLogin", adminID)
	if m.UpdateLastLoginFunc != nil {
		return m.UpdateLastLoginFunc(ctx, adminID)
	}
	return nil
}

func (m *AdminRepository) Count(ctx context.Context) (int, error) {
	m.record("Count", nil)
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.admins), nil
}

// Ensure AdminRepository implements the interface
var _ repositories.AdminRepository = (*AdminRepository)(nil)
