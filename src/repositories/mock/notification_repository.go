package mock

import (
	"context"
	"sync"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
)

// NotificationRepository is an in-memory implementation of repositories.NotificationRepository
type NotificationRepository struct {
	// Call tracking
	Calls map[string][]interface{}

	mu    sync.Mutex
	items []*models.Notification
}

// NewNotificationRepository creates a new mock notification repository
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{Calls: make(map[string][]interface{})}
}

func (m *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["Create"] = append(m.Calls["Create"], n)
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now()
	stored := *n
	m.items = append(m.items, &stored)
	return nil
}

func (m *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["ListByUser"] = append(m.Calls["ListByUser"], userID)
	var out []models.Notification
	for i := len(m.items) - 1; i >= 0; i-- {
		n := m.items[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, *n)
	}
	return page(out, limit, 0), nil
}

func (m *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["MarkRead"] = append(m.Calls["MarkRead"], id)
	for _, n := range m.items {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (m *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["MarkAllRead"] = append(m.Calls["MarkAllRead"], userID)
	var n int64
	for _, item := range m.items {
		if item.UserID == userID && !item.IsRead {
			item.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *NotificationRepository) HasRecent(ctx context.Context, userID uuid.UUID, title string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["HasRecent"] = append(m.Calls["HasRecent"], title)
	for _, n := range m.items {
		if n.UserID == userID && n.Title == title && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// Ensure NotificationRepository implements the interface
var _ repositories.NotificationRepository = (*NotificationRepository)(nil)
