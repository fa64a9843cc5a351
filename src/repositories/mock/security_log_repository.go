package mock

import (
	"context"
	"sync"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
)

// SecurityLogRepository is an in-memory implementation of repositories.SecurityLogRepository
type SecurityLogRepository struct {
	AppendFunc func(ctx context.Context, entry *models.SecurityLogEntry) error

	// Call tracking
	Calls map[string][]interface{}

	mu      sync.Mutex
	entries []models.SecurityLogEntry
}

// NewSecurityLogRepository creates a new mock security log repository
func NewSecurityLogRepository() *SecurityLogRepository {
	return &SecurityLogRepository{Calls: make(map[string][]interface{})}
}

// Entries returns every appended entry in insertion order
func (m *SecurityLogRepository) Entries() []models.SecurityLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SecurityLogEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Actions returns the action of every appended entry in insertion order
func (m *SecurityLogRepository) Actions() []string {
	var actions []string
	for _, e := range m.Entries() {
		actions = append(actions, e.Action)
	}
	return actions
}

func (m *SecurityLogRepository) Append(ctx context.Context, entry *models.SecurityLogEntry) error {
	m.mu.Lock()
	m.Calls["Append"] = append(m.Calls["Append"], entry)
	m.mu.Unlock()
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *SecurityLogRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SecurityLogEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["ListByUser"] = append(m.Calls["ListByUser"], userID)

	var matched []models.SecurityLogEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.UserID != nil && *e.UserID == userID {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// Ensure SecurityLogRepository implements the interface
var _ repositories.SecurityLogRepository = (*SecurityLogRepository)(nil)
