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

// APIKeyRepository is an in-memory implementation of repositories.APIKeyRepository.
// Stubs take precedence over the in-memory behavior when set.
type APIKeyRepository struct {
	// Function stubs that can be overridden in tests
	CreateFunc            func(ctx context.Context, key *models.APIKey, maxActive int) error
	GetByPublicKeyFunc    func(ctx context.Context, publicKey string) (*models.APIKey, error)
	TouchLastUsedFunc     func(ctx context.Context, id uuid.UUID, at time.Time) error
	RotateCredentialsFunc func(ctx context.Context, rotation repositories.KeyRotation) error

	// Call tracking
	Calls map[string][]interface{}

	mu   sync.Mutex
	keys map[uuid.UUID]*models.APIKey
}

// NewAPIKeyRepository creates a new mock API key repository
func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{
		Calls: make(map[string][]interface{}),
		keys:  make(map[uuid.UUID]*models.APIKey),
	}
}

func (m *APIKeyRepository) record(name string, arg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name] = append(m.Calls[name], arg)
}

// Stored returns a copy of the stored row, for assertions
func (m *APIKeyRepository) Stored(id uuid.UUID) (models.APIKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return models.APIKey{}, false
	}
	return *k, true
}

func (m *APIKeyRepository) Create(ctx context.Context, key *models.APIKey, maxActive int) error {
	m.record("Create", key)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, key, maxActive)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countActive(key.UserID) >= maxActive {
		return repositories.ErrLimitReached
	}
	for _, k := range m.keys {
		if k.PublicKey == key.PublicKey {
			return repositories.ErrConflict
		}
	}
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	key.IsActive = true
	stored := *key
	m.keys[key.ID] = &stored
	return nil
}

func (m *APIKeyRepository) GetByPublicKey(ctx context.Context, publicKey string) (*models.APIKey, error) {
	m.record("GetByPublicKey", publicKey)
	if m.GetByPublicKeyFunc != nil {
		return m.GetByPublicKeyFunc(ctx, publicKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.PublicKey == publicKey {
			out := *k
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *APIKeyRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.APIKey, error) {
	m.record("GetByID", id)
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	out := *k
	return &out, nil
}

func (m *APIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	m.record("ListByUser", userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(k *models.APIKey) bool { return k.UserID == userID }), nil
}

func (m *APIKeyRepository) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	m.record("CountActiveByUser", userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countActive(userID), nil
}

func (m *APIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.record("TouchLastUsed", id)
	if m.TouchLastUsedFunc != nil {
		return m.TouchLastUsedFunc(ctx, id, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[id]; ok {
		t := at
		k.LastUsed = &t
	}
	return nil
}

func (m *APIKeyRepository) RotateCredentials(ctx context.Context, r repositories.KeyRotation) error {
	m.record("RotateCredentials", r)
	if m.RotateCredentialsFunc != nil {
		return m.RotateCredentialsFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[r.ID]
	if !ok || k.UserID != r.UserID || !k.IsActive || k.PublicKey != r.OldPublicKey {
		return repositories.ErrConflict
	}
	rotatedAt := r.RotatedAt
	k.PublicKey = r.NewPublicKey
	k.SecretHash = r.SecretHash
	k.SecretPrefix = r.SecretPrefix
	k.RotatedAt = &rotatedAt
	k.LastUsed = nil
	return nil
}

func (m *APIKeyRepository) Deactivate(ctx context.Context, id, userID uuid.UUID) error {
	m.record("Deactivate", id)
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.UserID != userID {
		return repositories.ErrNotFound
	}
	k.IsActive = false
	return nil
}

func (m *APIKeyRepository) ListExpired(ctx context.Context, now time.Time) ([]models.APIKey, error) {
	m.record("ListExpired", now)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(k *models.APIKey) bool {
		return k.IsActive && !k.ExpiresAt.After(now)
	}), nil
}

func (m *APIKeyRepository) ListRotationDue(ctx context.Context, cutoff time.Time) ([]models.APIKey, error) {
	m.record("ListRotationDue", cutoff)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(k *models.APIKey) bool {
		last := k.CreatedAt
		if k.RotatedAt != nil {
			last = *k.RotatedAt
		}
		return k.IsActive && last.Before(cutoff)
	}), nil
}

// countActive must be called with mu held
func (m *APIKeyRepository) countActive(userID uuid.UUID) int {
	n := 0
	for _, k := range m.keys {
		if k.UserID == userID && k.IsActive {
			n++
		}
	}
	return n
}

// filter must be called with mu held
func (m *APIKeyRepository) filter(keep func(*models.APIKey) bool) []models.APIKey {
	var out []models.APIKey
	for _, k := range m.keys {
		if keep(k) {
			out = append(out, *k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Ensure APIKeyRepository implements the interface
var _ repositories.APIKeyRepository = (*APIKeyRepository)(nil)
