package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/templates"
	"github.com/google/uuid"
	"github.com/mailgun/mailgun-go/v4"
	"github.com/rs/zerolog"
)

const alertSendTimeout = 30 * time.Second

// AlertConfig holds Mailgun settings for security alerts
type AlertConfig struct {
	Domain    string
	APIKey    string
	FromEmail string
	FromName  string
	// APIBase overrides the Mailgun endpoint, e.g. mailgun.APIBaseEU
	APIBase string
}

// AlertMessage is a rendered security alert
type AlertMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// AlertService emails users when their API keys change
type AlertService struct {
	mg      *mailgun.MailgunImpl
	users   repositories.UserRepository
	from    string
	config  *templates.EmailConfig
	enabled bool
	now     func() time.Time
	logger  zerolog.Logger

	// deliver sends a rendered message; replaced in tests
	deliver func(ctx context.Context, msg AlertMessage) error

	wg sync.WaitGroup
}

// NewAlertService creates the alert sender. Without a Mailgun domain and key it is a no-op.
func NewAlertService(cfg AlertConfig, users repositories.UserRepository) (*AlertService, error) {
	s := &AlertService{
		users:  users,
		from:   fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail),
		now:    time.Now,
		logger: logging.NewLogger("alerts"),
	}

	config, err := templates.LoadEmailConfig()
	if err != nil {
		return nil, err
	}
	s.config = config

	if cfg.Domain == "" || cfg.APIKey == "" {
		s.logger.Info().Msg("Mailgun not configured, security alert emails disabled")
		return s, nil
	}

	s.mg = mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if cfg.APIBase != "" {
		s.mg.SetAPIBase(cfg.APIBase)
	}
	s.deliver = s.sendMailgun
	s.enabled = true
	return s, nil
}

// Enabled reports whether alerts are actually sent
func (s *AlertService) Enabled() bool {
	return s.enabled
}

// NotifyKeyEvent emails the key owner in the background
func (s *AlertService) NotifyKeyEvent(ctx context.Context, event KeyEvent) {
	if !s.enabled {
		return
	}

	user, err := s.users.GetByID(ctx, event.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", event.UserID.String()).Msg("Cannot resolve alert recipient")
		return
	}

	msg, err := s.BuildKeyAlert(user, event)
	if err != nil {
		s.logger.Error().Err(err).Str("action", event.Action).Msg("Failed to render security alert")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.Background(), alertSendTimeout)
		defer cancel()
		if err := s.deliver(sendCtx, msg); err != nil {
			s.logger.Error().Err(err).Str("action", event.Action).Str("user_id", event.UserID.String()).Msg("Security alert not delivered")
			return
		}
		s.logger.Info().Str("action", event.Action).Str("user_id", event.UserID.String()).Msg("Security alert sent")
	}()
}

// SendRotationReminder tells a user how many of their keys are overdue for rotation
func (s *AlertService) SendRotationReminder(ctx context.Context, userID uuid.UUID, keyCount, rotationDays int) error {
	if !s.enabled {
		return nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	body := fmt.Sprintf(s.config.Alert.RotationDue, keyCount, rotationDays)
	msg, err := s.render(user, s.config.Subjects["rotation_due"], body, "")
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, alertSendTimeout)
	defer cancel()
	if err := s.deliver(sendCtx, msg); err != nil {
		return fmt.Errorf("failed to send rotation reminder to %s: %w", user.Email, err)
	}
	return nil
}

// BuildKeyAlert renders the email for a key lifecycle event
func (s *AlertService) BuildKeyAlert(user *models.User, event KeyEvent) (AlertMessage, error) {
	var body string
	switch event.Action {
	case models.ActionAPIKeyCreated:
		body = fmt.Sprintf(s.config.Alert.KeyCreated, event.KeyName)
	case models.ActionAPIKeyRotated:
		body = fmt.Sprintf(s.config.Alert.KeyRotated, event.KeyName)
	case models.ActionAPIKeyRevoked:
		body = fmt.Sprintf(s.config.Alert.KeyRevoked, event.KeyName)
	default:
		return AlertMessage{}, fmt.Errorf("no alert template for action %q", event.Action)
	}
	return s.render(user, s.config.Subjects[event.Action], body, event.IPAddress)
}

func (s *AlertService) render(user *models.User, subject, body, ip string) (AlertMessage, error) {
	name := user.Username
	if name == "" {
		name = "there"
	}

	data := templates.SecurityAlertData{
		Subject:      subject,
		Greeting:     fmt.Sprintf(s.config.Alert.Greeting, name),
		Body:         body,
		IPAddress:    ip,
		OccurredAt:   s.now().UTC().Format("2006-01-02 15:04 MST"),
		BrandName:    s.config.Branding.Name,
		SecurityURL:  s.config.Branding.SecurityURL,
		ButtonText:   s.config.Alert.ButtonText,
		IgnoreText:   s.config.Alert.IgnoreText,
		PrimaryColor: s.config.Design.PrimaryColor,
		TextColor:    s.config.Design.TextColor,
		MutedColor:   s.config.Design.MutedColor,
		BorderColor:  s.config.Design.BorderColor,
	}

	htmlBody, err := templates.RenderSecurityAlertHTML(data)
	if err != nil {
		return AlertMessage{}, err
	}
	textBody, err := templates.RenderSecurityAlertText(data)
	if err != nil {
		return AlertMessage{}, err
	}

	return AlertMessage{To: user.Email, Subject: subject, Text: textBody, HTML: htmlBody}, nil
}

func (s *AlertService) sendMailgun(ctx context.Context, msg AlertMessage) error {
	message := s.mg.NewMessage(s.from, msg.Subject, msg.Text, msg.To)
	message.SetHtml(msg.HTML)

	if _, _, err := s.mg.Send(ctx, message); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}

// Close waits for in-flight alerts
func (s *AlertService) Close() {
	s.wg.Wait()
}
