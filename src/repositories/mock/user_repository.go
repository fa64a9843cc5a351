package mock

import (
	"context"
	"sync"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
)

// UserRepository is an in-memory implementation of repositories.UserRepository
type UserRepository struct {
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)

	// Call tracking
	Calls map[string][]interface{}

	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

// NewUserRepository creates a new mock user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{
		Calls: make(map[string][]interface{}),
		users: make(map[uuid.UUID]*models.User),
	}
}

func (m *UserRepository) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Create"] = append(m.Calls["Create"], user)
	for _, u := range m.users {
		if u.Email == user.Email || u.Username == user.Username {
			return repositories.ErrConflict
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	m.Calls["GetByEmail"] = append(m.Calls["GetByEmail"], email)
	m.mu.Unlock()
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["GetByID"] = append(m.Calls["GetByID"], id)
	u, ok := m.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *u
	return &out, nil
}

// Ensure UserRepository implements the interface
var _ repositories.UserRepository = (*UserRepository)(nil)
