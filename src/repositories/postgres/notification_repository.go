package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
)

// NotificationRepository stores user notifications
type NotificationRepository struct {
	db *database.Database
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *database.Database) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING is_read, created_at
	`, n.ID, n.UserID, n.Type, n.Title, n.Message).Scan(&n.IsRead, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, title, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead marks one notification read
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of a user read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// HasRecent reports whether a notification with the same title was created since the given time
func (r *NotificationRepository) HasRecent(ctx context.Context, userID uuid.UUID, title string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications WHERE user_id = $1 AND title = $2 AND created_at >= $3
		)
	`, userID, title, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check notifications: %w", err)
	}
	return exists, nil
}
