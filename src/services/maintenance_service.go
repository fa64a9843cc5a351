package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RotationReminder sends an out-of-band reminder about overdue keys
type RotationReminder interface {
	SendRotationReminder(ctx context.Context, userID uuid.UUID, keyCount, rotationDays int) error
}

// MaintenanceReport summarizes one maintenance run
type MaintenanceReport struct {
	Expired     int `json:"expired"`
	RotationDue int `json:"rotation_due"`
	Notified    int `json:"notified"`
}

// KeyMaintenanceService periodically scans API keys. It reports and notifies; it never changes keys.
type KeyMaintenanceService struct {
	keys          *APIKeyManager
	notifications *NotificationService
	reminder      RotationReminder
	enabled       bool
	interval      time.Duration
	logger        zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewKeyMaintenanceService creates the maintenance job. reminder may be nil.
func NewKeyMaintenanceService(keys *APIKeyManager, notifications *NotificationService, reminder RotationReminder, enabled bool, interval time.Duration) *KeyMaintenanceService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &KeyMaintenanceService{
		keys:          keys,
		notifications: notifications,
		reminder:      reminder,
		enabled:       enabled,
		interval:      interval,
		logger:        logging.NewLogger("key_maintenance"),
		done:          make(chan struct{}),
	}
}

// Start runs the job on a ticker until ctx ends or Stop is called
func (s *KeyMaintenanceService) Start(ctx context.Context) {
	if !s.enabled {
		s.logger.Info().Msg("Key maintenance is disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("Key maintenance stopped")
				return
			case <-s.done:
				s.logger.Info().Msg("Key maintenance stopped")
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Error().Err(err).Msg("Key maintenance run failed")
				}
			}
		}
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("Key maintenance started")
}

// Stop ends the ticker loop and waits for an in-progress run
func (s *KeyMaintenanceService) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// RunOnce scans expired and rotation-due keys. Each rotation-due key gets at most one
// notification per interval.
func (s *KeyMaintenanceService) RunOnce(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport

	expired, err := s.keys.GetExpiredKeys(ctx)
	if err != nil {
		return report, err
	}
	report.Expired = len(expired)

	due, err := s.keys.GetKeysNeedingRotation(ctx)
	if err != nil {
		return report, err
	}
	report.RotationDue = len(due)

	rotationDays := int(s.keys.Policy().RotationAfter / (24 * time.Hour))
	perUser := make(map[uuid.UUID]int)
	for _, key := range due {
		created, err := s.notifications.NotifyOnce(ctx, key.UserID, models.NotificationSecurity,
			rotationTitle(key),
			fmt.Sprintf("API key %q has not been rotated in over %d days.", key.Name, rotationDays),
			s.interval)
		if err != nil {
			s.logger.Warn().Err(err).Str("key_id", key.ID.String()).Msg("Failed to notify about rotation")
			continue
		}
		if created {
			report.Notified++
			perUser[key.UserID]++
		}
	}

	if s.reminder != nil {
		for userID, count := range perUser {
			if err := s.reminder.SendRotationReminder(ctx, userID, count, rotationDays); err != nil {
				s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("Rotation reminder not sent")
			}
		}
	}

	s.logger.Info().
		Int("expired", report.Expired).
		Int("rotation_due", report.RotationDue).
		Int("notified", report.Notified).
		Msg("Key maintenance completed")
	return report, nil
}

// rotationTitle is unique per key so HasRecent deduplicates per key
func rotationTitle(key models.APIKey) string {
	return fmt.Sprintf("Rotate API key %q (%s)", key.Name, key.ID.String()[:8])
}
