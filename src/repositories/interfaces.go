package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates no row matched (including rows owned by another user)
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a uniqueness or optimistic-concurrency conflict
	ErrConflict = errors.New("record conflict")

	// ErrLimitReached indicates a per-user ceiling would be exceeded
	ErrLimitReached = errors.New("limit reached")
)

// APIKeyRepository defines the interface for API key data access
type APIKeyRepository interface {
	// Create inserts key only while the user holds fewer than maxActive active keys
	Create(ctx context.Context, key *models.APIKey, maxActive int) error
	GetByPublicKey(ctx context.Context, publicKey string) (*models.APIKey, error)
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.APIKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error

	// RotateCredentials replaces key material only if the row still carries oldPublicKey
	RotateCredentials(ctx context.Context, rotation KeyRotation) error
	// Deactivate sets is_active=false on a key owned by userID
	Deactivate(ctx context.Context, id, userID uuid.UUID) error

	ListExpired(ctx context.Context, now time.Time) ([]models.APIKey, error)
	ListRotationDue(ctx context.Context, cutoff time.Time) ([]models.APIKey, error)
}

// KeyRotation describes a conditional credential swap
type KeyRotation struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	OldPublicKey string
	NewPublicKey string
	SecretHash   string
	SecretPrefix string
	RotatedAt    time.Time
}

// SecurityLogRepository defines the interface for the append-only audit trail
type SecurityLogRepository interface {
	Append(ctx context.Context, entry *models.SecurityLogEntry) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SecurityLogEntry, int, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AdminRepository defines the interface for admin data access
type AdminRepository interface {
	Create(ctx context.Context, admin *models.AdminUser) error
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	UpdateLastLogin(ctx context.Context, adminID uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

// OrderFilter narrows order listings
type OrderFilter struct {
	Status models.OrderStatus
	Symbol string
	Limit  int
	Offset int
}

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter OrderFilter) ([]models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	ApplyFill(ctx context.Context, id, userID uuid.UUID, qty decimal.Decimal) (*models.Order, error)
}

// TradeRepository defines the interface for trade data access
type TradeRepository interface {
	Create(ctx context.Context, trade *models.Trade) error
	ListByUser(ctx context.Context, userID uuid.UUID, symbol string, limit, offset int) ([]models.Trade, error)
}

// PortfolioRepository defines the interface for balance data access
type PortfolioRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PortfolioBalance, error)
	Get(ctx context.Context, userID uuid.UUID, asset string) (*models.PortfolioBalance, error)
	Upsert(ctx context.Context, balance *models.PortfolioBalance) error
}

// NotificationRepository defines the interface for notification data access
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	HasRecent(ctx context.Context, userID uuid.UUID, title string, since time.Time) (bool, error)
}
