package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(userID uuid.UUID, public string, created time.Time) *models.APIKey {
	return &models.APIKey{
		UserID:       userID,
		Name:         "bot",
		PublicKey:    public,
		SecretHash:   "$2a$10$hash",
		SecretPrefix: "sk_abcd",
		Permissions:  []models.Permission{models.PermissionRead},
		CreatedAt:    created,
		ExpiresAt:    created.Add(365 * 24 * time.Hour),
	}
}

func TestAPIKeyRepository_CeilingAndLifecycle(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		ctx := context.Background()
		repo := NewAPIKeyRepository(tdb.DB)

		userID, err := tdb.CreateTestUser("keys@example.com", "password123")
		require.NoError(t, err)

		now := time.Now().UTC().Truncate(time.Microsecond)
		first := newTestKey(userID, "ak_first", now)
		require.NoError(t, repo.Create(ctx, first, 1))

		err = repo.Create(ctx, newTestKey(userID, "ak_second", now), 1)
		assert.True(t, errors.Is(err, repositories.ErrLimitReached))

		got, err := repo.GetByPublicKey(ctx, "ak_first")
		require.NoError(t, err)
		assert.Equal(t, []models.Permission{models.PermissionRead}, got.Permissions)
		assert.True(t, got.IsActive)

		// Rotation with a stale public key must not apply
		err = repo.RotateCredentials(ctx, repositories.KeyRotation{
			ID: first.ID, UserID: userID, OldPublicKey: "ak_stale",
			NewPublicKey: "ak_new", SecretHash: "h", SecretPrefix: "sk_new", RotatedAt: now,
		})
		assert.True(t, errors.Is(err, repositories.ErrConflict))

		require.NoError(t, repo.RotateCredentials(ctx, repositories.KeyRotation{
			ID: first.ID, UserID: userID, OldPublicKey: "ak_first",
			NewPublicKey: "ak_new", SecretHash: "h", SecretPrefix: "sk_new", RotatedAt: now,
		}))
		_, err = repo.GetByPublicKey(ctx, "ak_first")
		assert.True(t, errors.Is(err, repositories.ErrNotFound))

		// Another user's key is invisible
		assert.True(t, errors.Is(repo.Deactivate(ctx, first.ID, uuid.New()), repositories.ErrNotFound))

		require.NoError(t, repo.Deactivate(ctx, first.ID, userID))
		require.NoError(t, repo.Deactivate(ctx, first.ID, userID))

		count, err := repo.CountActiveByUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestAPIKeyRepository_MaintenanceQueries(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		ctx := context.Background()
		repo := NewAPIKeyRepository(tdb.DB)

		userID, err := tdb.CreateTestUser("maint@example.com", "password123")
		require.NoError(t, err)

		now := time.Now().UTC()
		old := newTestKey(userID, "ak_old", now.Add(-100*24*time.Hour))
		old.ExpiresAt = now.Add(-time.Hour)
		require.NoError(t, repo.Create(ctx, old, 10))
		require.NoError(t, repo.Create(ctx, newTestKey(userID, "ak_fresh", now), 10))

		expired, err := repo.ListExpired(ctx, now)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "ak_old", expired[0].PublicKey)

		due, err := repo.ListRotationDue(ctx, now.Add(-90*24*time.Hour))
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, old.ID, due[0].ID)
	})
}

func TestSecurityLogRepository_AppendAndList(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		ctx := context.Background()
		repo := NewSecurityLogRepository(tdb.DB)

		userID, err := tdb.CreateTestUser("audit@example.com", "password123")
		require.NoError(t, err)

		ip := "203.0.113.9"
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.Append(ctx, &models.SecurityLogEntry{
				UserID:    &userID,
				Action:    models.ActionAPIKeyValidationFailed,
				Details:   map[string]interface{}{"reason": "Invalid API key"},
				IPAddress: &ip,
			}))
		}

		entries, total, err := repo.ListByUser(ctx, userID, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, entries, 2)
		assert.Equal(t, "Invalid API key", entries[0].Details["reason"])
	})
}

func TestPortfolioRepository_Upsert(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		ctx := context.Background()
		repo := NewPortfolioRepository(tdb.DB)

		userID, err := tdb.CreateTestUser("bal@example.com", "password123")
		require.NoError(t, err)

		b := &models.PortfolioBalance{UserID: userID, Asset: "BTC", Balance: decimal.RequireFromString("1.5")}
		require.NoError(t, repo.Upsert(ctx, b))

		b2 := &models.PortfolioBalance{UserID: userID, Asset: "BTC", Balance: decimal.RequireFromString("2.25")}
		require.NoError(t, repo.Upsert(ctx, b2))
		assert.Equal(t, b.ID, b2.ID)

		got, err := repo.Get(ctx, userID, "BTC")
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("2.25")))

		_, err = repo.Get(ctx, userID, "ETH")
		assert.True(t, errors.Is(err, repositories.ErrNotFound))
	})
}

func TestOrderAndNotificationRepositories(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		ctx := context.Background()
		orders := NewOrderRepository(tdb.DB)
		notes := NewNotificationRepository(tdb.DB)

		userID, err := tdb.CreateTestUser("orders@example.com", "password123")
		require.NoError(t, err)

		price := decimal.RequireFromString("65000")
		o := &models.Order{
			UserID: userID, Symbol: "BTC-USD", Side: models.SideBuy, Type: models.OrderTypeLimit,
			Price: &price, Quantity: decimal.RequireFromString("0.1"), Status: models.OrderStatusOpen,
		}
		require.NoError(t, orders.Create(ctx, o))

		list, err := orders.ListByUser(ctx, userID, repositories.OrderFilter{Status: models.OrderStatusOpen, Limit: 10})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Price.Equal(price))

		filled, err := orders.ApplyFill(ctx, o.ID, userID, decimal.RequireFromString("0.04"))
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPartiallyFilled, filled.Status)
		assert.True(t, filled.FilledQuantity.Equal(decimal.RequireFromString("0.04")))

		_, err = orders.ApplyFill(ctx, o.ID, userID, decimal.RequireFromString("0.07"))
		assert.ErrorIs(t, err, repositories.ErrConflict)

		// o still carries the pre-fill filled_quantity; Update must not write it back
		o.Status = models.OrderStatusCancelled
		require.NoError(t, orders.Update(ctx, o))
		assert.Equal(t, models.OrderStatusCancelled, o.Status)
		assert.True(t, o.FilledQuantity.Equal(decimal.RequireFromString("0.04")))

		_, err = orders.ApplyFill(ctx, o.ID, userID, decimal.RequireFromString("0.01"))
		assert.ErrorIs(t, err, repositories.ErrConflict)
		assert.ErrorIs(t, orders.Update(ctx, o), repositories.ErrConflict)

		list, err = orders.ListByUser(ctx, userID, repositories.OrderFilter{Status: models.OrderStatusOpen, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, list)

		require.NoError(t, notes.Create(ctx, &models.Notification{
			UserID: userID, Type: models.NotificationSecurity, Title: "API key expiring", Message: "soon",
		}))
		recent, err := notes.HasRecent(ctx, userID, "API key expiring", time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.True(t, recent)

		n, err := notes.MarkAllRead(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		unread, err := notes.ListByUser(ctx, userID, true, 10)
		require.NoError(t, err)
		assert.Empty(t, unread)
	})
}
