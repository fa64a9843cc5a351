package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification types
const (
	NotificationSecurity = "security"
	NotificationOrder    = "order"
	NotificationSystem   = "system"
)

// Notification is a message shown in the user's notification center
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
