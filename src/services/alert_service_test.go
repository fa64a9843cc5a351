package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories/mock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu   sync.Mutex
	sent []AlertMessage
}

func (o *outbox) deliver(_ context.Context, msg AlertMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func newTestAlertService(t *testing.T) (*AlertService, *mock.UserRepository, *outbox) {
	t.Helper()
	users := mock.NewUserRepository()
	svc, err := NewAlertService(AlertConfig{FromEmail: "security@example.com", FromName: "Security"}, users)
	require.NoError(t, err)
	assert.False(t, svc.Enabled(), "no Mailgun credentials means disabled")

	box := &outbox{}
	svc.deliver = box.deliver
	svc.enabled = true
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, users, box
}

func TestAlertService_BuildKeyAlert(t *testing.T) {
	svc, _, _ := newTestAlertService(t)
	user := &models.User{Email: "trader@example.com", Username: "trader"}

	msg, err := svc.BuildKeyAlert(user, KeyEvent{Action: models.ActionAPIKeyRotated, KeyName: "grid bot", IPAddress: "198.51.100.20"})
	require.NoError(t, err)
	assert.Equal(t, "trader@example.com", msg.To)
	assert.Equal(t, "Your API key was rotated", msg.Subject)
	assert.Contains(t, msg.Text, `"grid bot"`)
	assert.Contains(t, msg.Text, "198.51.100.20")
	assert.Contains(t, msg.HTML, "2024-03-01 12:00 UTC")

	_, err = svc.BuildKeyAlert(user, KeyEvent{Action: models.ActionLogout})
	assert.Error(t, err)
}

func TestAlertService_NotifyKeyEventSendsInBackground(t *testing.T) {
	svc, users, box := newTestAlertService(t)
	user := &models.User{Email: "owner@example.com", Username: "owner"}
	require.NoError(t, users.Create(context.Background(), user))

	svc.NotifyKeyEvent(context.Background(), KeyEvent{Action: models.ActionAPIKeyCreated, UserID: user.ID, KeyName: "bot"})
	svc.NotifyKeyEvent(context.Background(), KeyEvent{Action: models.ActionAPIKeyCreated, UserID: uuid.New(), KeyName: "bot"})
	svc.Close()

	require.Len(t, box.sent, 1)
	assert.Equal(t, "owner@example.com", box.sent[0].To)
}

func TestAlertService_RotationReminder(t *testing.T) {
	svc, users, box := newTestAlertService(t)
	user := &models.User{Email: "owner@example.com", Username: "owner"}
	require.NoError(t, users.Create(context.Background(), user))

	require.NoError(t, svc.SendRotationReminder(context.Background(), user.ID, 2, 90))
	require.Len(t, box.sent, 1)
	assert.Contains(t, box.sent[0].Text, "2 of your API keys have not been rotated in 90 days")

	assert.Error(t, svc.SendRotationReminder(context.Background(), uuid.New(), 1, 90))
}

func TestAnalyticsService_DisabledIsNoop(t *testing.T) {
	svc, err := NewAnalyticsService(AnalyticsConfig{Enabled: true})
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	svc.NotifyKeyEvent(context.Background(), KeyEvent{Action: models.ActionAPIKeyCreated, UserID: uuid.New()})
	svc.TrackLogin(context.Background(), uuid.New())
	assert.NoError(t, svc.Close())

	assert.Len(t, HashEmail("a@example.com"), 64)
}
