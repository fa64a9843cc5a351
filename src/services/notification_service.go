package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationService manages the per-user notification center
type NotificationService struct {
	repo   repositories.NotificationRepository
	now    func() time.Time
	logger zerolog.Logger
}

// NewNotificationService creates a notification service. A nil clock uses time.Now.
func NewNotificationService(repo repositories.NotificationRepository, clock func() time.Time) *NotificationService {
	if clock == nil {
		clock = time.Now
	}
	return &NotificationService{
		repo:   repo,
		now:    clock,
		logger: logging.NewLogger("notifications"),
	}
}

// List returns the newest notifications first
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	items, err := s.repo.ListByUser(ctx, userID, unreadOnly, clampLimit(limit, defaultNotificationLimit, maxNotificationLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

// MarkRead marks one notification as read
func (s *NotificationService) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification of a user and returns how many changed
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

// Notify creates a notification
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, kind, title, message string) (*models.Notification, error) {
	n := &models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

// NotifyOnce creates a notification unless one with the same title exists inside window.
// It reports whether a notification was created.
func (s *NotificationService) NotifyOnce(ctx context.Context, userID uuid.UUID, kind, title, message string, window time.Duration) (bool, error) {
	exists, err := s.repo.HasRecent(ctx, userID, title, s.now().Add(-window))
	if err != nil {
		return false, fmt.Errorf("failed to check recent notifications: %w", err)
	}
	if exists {
		return false, nil
	}
	if _, err := s.Notify(ctx, userID, kind, title, message); err != nil {
		return false, err
	}
	return true, nil
}

// NotifyKeyEvent puts API key changes in the owner's notification center
func (s *NotificationService) NotifyKeyEvent(ctx context.Context, event KeyEvent) {
	var title, message string
	switch event.Action {
	case models.ActionAPIKeyCreated:
		title, message = "API key created", fmt.Sprintf("API key %q was created.", event.KeyName)
	case models.ActionAPIKeyRotated:
		title, message = "API key rotated", fmt.Sprintf("API key %q was rotated. Update your clients with the new credentials.", event.KeyName)
	case models.ActionAPIKeyRevoked:
		title, message = "API key revoked", fmt.Sprintf("API key %q was revoked.", event.KeyName)
	default:
		return
	}
	if event.IPAddress != "" {
		message += " Request from " + event.IPAddress + "."
	}

	if _, err := s.Notify(ctx, event.UserID, models.NotificationSecurity, title, message); err != nil {
		s.logger.Warn().Err(err).Str("user_id", event.UserID.String()).Msg("Failed to create security notification")
	}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
