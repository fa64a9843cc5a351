package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog"
)

// HashEmail returns a hex-encoded SHA-256 hash of the email for anonymous distinct IDs
func HashEmail(email string) string {
	h := sha256.Sum256([]byte(email))
	return fmt.Sprintf("%x", h)
}

// AnalyticsService handles product analytics tracking
type AnalyticsService struct {
	client      posthog.Client
	enabled     bool
	environment string
	logger      zerolog.Logger
}

type posthogLogger struct {
	logger zerolog.Logger
}

func (l posthogLogger) Success(m posthog.APIMessage) {
	l.logger.Debug().Str("type", fmt.Sprintf("%T", m)).Msg("PostHog event delivered")
}

func (l posthogLogger) Failure(m posthog.APIMessage, err error) {
	l.logger.Error().Err(err).Str("type", fmt.Sprintf("%T", m)).Msg("PostHog delivery failed")
}

// AnalyticsConfig holds analytics configuration
type AnalyticsConfig struct {
	PostHogAPIKey string
	PostHogHost   string
	Enabled       bool
	Environment   string
}

// NewAnalyticsService creates a new analytics service. Disabled or keyless configs yield a no-op.
func NewAnalyticsService(cfg AnalyticsConfig) (*AnalyticsService, error) {
	logger := logging.NewLogger("analytics")
	if !cfg.Enabled || cfg.PostHogAPIKey == "" {
		return &AnalyticsService{enabled: false, environment: cfg.Environment, logger: logger}, nil
	}

	client, err := posthog.NewWithConfig(
		cfg.PostHogAPIKey,
		posthog.Config{
			Endpoint:  cfg.PostHogHost,
			Interval:  30 * time.Second,
			BatchSize: 100,
			Callback:  posthogLogger{logger: logger},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}

	return &AnalyticsService{
		client:      client,
		enabled:     true,
		environment: cfg.Environment,
		logger:      logger,
	}, nil
}

// Enabled reports whether events are sent
func (s *AnalyticsService) Enabled() bool {
	return s.enabled
}

// Close flushes pending events and closes client
func (s *AnalyticsService) Close() error {
	if !s.enabled {
		return nil
	}
	return s.client.Close()
}

// TrackEvent captures a generic event
func (s *AnalyticsService) TrackEvent(ctx context.Context, distinctID, event string, properties map[string]interface{}) {
	if !s.enabled {
		return
	}

	if properties == nil {
		properties = make(map[string]interface{})
	}
	properties["environment"] = s.environment

	if err := s.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Timestamp:  time.Now(),
		Properties: properties,
	}); err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("PostHog enqueue failed")
	}
}

// Identify sets user properties
func (s *AnalyticsService) Identify(ctx context.Context, userID uuid.UUID, properties map[string]interface{}) {
	if !s.enabled {
		return
	}

	if err := s.client.Enqueue(posthog.Identify{
		DistinctId: userID.String(),
		Properties: properties,
	}); err != nil {
		s.logger.Error().Err(err).Msg("PostHog identify failed")
	}
}

// TrackRegistered tracks a completed sign-up and links the account to its anonymous id
func (s *AnalyticsService) TrackRegistered(ctx context.Context, userID uuid.UUID, email string) {
	if !s.enabled {
		return
	}
	if err := s.client.Enqueue(posthog.Alias{
		DistinctId: userID.String(),
		Alias:      "email_" + HashEmail(email),
	}); err != nil {
		s.logger.Error().Err(err).Msg("PostHog alias failed")
	}
	s.TrackEvent(ctx, userID.String(), "user_registered", nil)
}

// TrackLogin tracks a successful login
func (s *AnalyticsService) TrackLogin(ctx context.Context, userID uuid.UUID) {
	s.TrackEvent(ctx, userID.String(), "user_logged_in", nil)
}

// TrackOrderPlaced tracks a new order without amounts
func (s *AnalyticsService) TrackOrderPlaced(ctx context.Context, userID uuid.UUID, symbol, side, orderType, channel string) {
	s.TrackEvent(ctx, userID.String(), "order_placed", map[string]interface{}{
		"symbol":  symbol,
		"side":    side,
		"type":    orderType,
		"channel": channel,
	})
}

// NotifyKeyEvent records API key lifecycle changes
func (s *AnalyticsService) NotifyKeyEvent(ctx context.Context, event KeyEvent) {
	s.TrackEvent(ctx, event.UserID.String(), event.Action, map[string]interface{}{
		"key_id": event.KeyID.String(),
	})
}
