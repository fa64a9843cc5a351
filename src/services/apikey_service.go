package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Validation failure reasons, returned verbatim to API clients
const (
	ReasonInvalidKey              = "Invalid API key"
	ReasonInactive                = "API key is inactive"
	ReasonExpired                 = "API key has expired"
	ReasonIPNotAllowed            = "IP address not allowed"
	ReasonInsufficientPermissions = "Insufficient permissions"
	ReasonInvalidSecret           = "Invalid API secret"
)

const (
	publicKeyPrefix = "ak_"
	secretKeyPrefix = "sk_"
	tokenBytes      = 32
	maxKeyNameLen   = 100
)

// KeyPolicy holds the tunables of the API key manager
type KeyPolicy struct {
	MaxActiveKeys     int
	DefaultExpiryDays int
	RotationAfter     time.Duration
	BcryptCost        int
}

// DefaultKeyPolicy returns the production defaults
func DefaultKeyPolicy() KeyPolicy {
	return KeyPolicy{
		MaxActiveKeys:     10,
		DefaultExpiryDays: 365,
		RotationAfter:     90 * 24 * time.Hour,
		BcryptCost:        bcrypt.DefaultCost,
	}
}

// KeyEvent describes an API key lifecycle change
type KeyEvent struct {
	Action    string
	UserID    uuid.UUID
	KeyID     uuid.UUID
	KeyName   string
	IPAddress string
}

// KeyEventNotifier receives lifecycle events after they are committed
type KeyEventNotifier interface {
	NotifyKeyEvent(ctx context.Context, event KeyEvent)
}

// GenerateRequest is the input of Generate
type GenerateRequest struct {
	UserID      uuid.UUID
	Name        string
	Permissions []models.Permission
	IPWhitelist []string
	// ExpiresInDays nil uses the policy default; 0 creates an already expired key
	ExpiresInDays *int
	// SourceIP is recorded in the audit trail
	SourceIP string
}

// IssuedKey is returned once on creation and rotation. SecretKey is never retrievable again.
type IssuedKey struct {
	KeyID     uuid.UUID           `json:"key_id"`
	PublicKey string              `json:"api_key"`
	SecretKey string              `json:"secret_key"`
	Name      string              `json:"name"`
	Perms     []models.Permission `json:"permissions"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// ValidationResult is the outcome of Validate
type ValidationResult struct {
	Valid       bool                `json:"valid"`
	KeyID       uuid.UUID           `json:"key_id,omitempty"`
	UserID      uuid.UUID           `json:"user_id,omitempty"`
	Permissions []models.Permission `json:"permissions,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// APIKeyManager issues, validates, rotates and revokes API credentials
type APIKeyManager struct {
	keys      repositories.APIKeyRepository
	audit     repositories.SecurityLogRepository
	policy    KeyPolicy
	now       func() time.Time
	notifiers []KeyEventNotifier
	logger    zerolog.Logger
}

// NewAPIKeyManager creates a key manager. A nil clock uses time.Now.
func NewAPIKeyManager(keys repositories.APIKeyRepository, audit repositories.SecurityLogRepository, policy KeyPolicy, clock func() time.Time) *APIKeyManager {
	if clock == nil {
		clock = time.Now
	}
	if policy.BcryptCost == 0 {
		policy.BcryptCost = bcrypt.DefaultCost
	}
	return &APIKeyManager{
		keys:   keys,
		audit:  audit,
		policy: policy,
		now:    clock,
		logger: logging.NewLogger("apikeys"),
	}
}

// AddNotifier registers a lifecycle event receiver
func (m *APIKeyManager) AddNotifier(n KeyEventNotifier) {
	m.notifiers = append(m.notifiers, n)
}

// Policy returns the active key policy
func (m *APIKeyManager) Policy() KeyPolicy {
	return m.policy
}

// Generate creates a new key pair for a user
func (m *APIKeyManager) Generate(ctx context.Context, req GenerateRequest) (*IssuedKey, error) {
	name, perms, whitelist, days, err := m.normalize(req)
	if err != nil {
		return nil, err
	}

	publicKey, err := randomToken(publicKeyPrefix)
	if err != nil {
		return nil, err
	}
	secret, err := randomToken(secretKeyPrefix)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), m.policy.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}

	now := m.now().UTC()
	key := &models.APIKey{
		ID:           uuid.New(),
		UserID:       req.UserID,
		Name:         name,
		PublicKey:    publicKey,
		SecretHash:   string(hash),
		SecretPrefix: secret[:len(secretKeyPrefix)+8],
		Permissions:  perms,
		IPWhitelist:  whitelist,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(days) * 24 * time.Hour),
	}

	if err := m.keys.Create(ctx, key, m.policy.MaxActiveKeys); err != nil {
		if errors.Is(err, repositories.ErrLimitReached) {
			return nil, ErrKeyLimitReached
		}
		return nil, fmt.Errorf("failed to store api key: %w", err)
	}

	m.record(ctx, &req.UserID, models.ActionAPIKeyCreated, true, req.SourceIP, map[string]interface{}{
		"key_id":      key.ID.String(),
		"name":        name,
		"permissions": models.PermissionStrings(perms),
	})
	m.emit(ctx, KeyEvent{Action: models.ActionAPIKeyCreated, UserID: req.UserID, KeyID: key.ID, KeyName: name, IPAddress: req.SourceIP})

	m.logger.Info().
		Str("user_id", req.UserID.String()).
		Str("key_id", key.ID.String()).
		Msg("API key created")

	return &IssuedKey{
		KeyID:     key.ID,
		PublicKey: publicKey,
		SecretKey: secret,
		Name:      name,
		Perms:     perms,
		ExpiresAt: key.ExpiresAt,
	}, nil
}

func (m *APIKeyManager) normalize(req GenerateRequest) (string, []models.Permission, []string, int, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxKeyNameLen {
		return "", nil, nil, 0, invalid("name", fmt.Sprintf("must be 1-%d characters", maxKeyNameLen))
	}

	if len(req.Permissions) == 0 {
		return "", nil, nil, 0, invalid("permissions", "at least one permission is required")
	}
	seen := make(map[models.Permission]struct{}, len(req.Permissions))
	var perms []models.Permission
	for _, p := range req.Permissions {
		if !models.ValidPermission(p) {
			return "", nil, nil, 0, invalid("permissions", fmt.Sprintf("unknown permission %q", p))
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}

	var whitelist []string
	for _, entry := range req.IPWhitelist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, err := parseWhitelistEntry(entry); err != nil {
			return "", nil, nil, 0, invalid("ip_whitelist", fmt.Sprintf("%q is not an IP address or CIDR range", entry))
		}
		whitelist = append(whitelist, entry)
	}

	days := m.policy.DefaultExpiryDays
	if req.ExpiresInDays != nil {
		days = *req.ExpiresInDays
	}
	if days < 0 {
		return "", nil, nil, 0, invalid("expires_in_days", "must not be negative")
	}

	return name, perms, whitelist, days, nil
}

// Validate checks, in order: the key exists, is active, is not expired, the source IP is
// whitelisted and the key holds every required permission. Every failure is audited.
// The returned error is only set when storage fails.
func (m *APIKeyManager) Validate(ctx context.Context, publicKey string, required []models.Permission, sourceIP string) (*ValidationResult, error) {
	return m.ValidateWithSecret(ctx, publicKey, "", required, sourceIP)
}

// ValidateWithSecret is Validate plus a secret check when secret is non-empty. A
// mismatched secret is audited like any other failure and does not bump last_used.
func (m *APIKeyManager) ValidateWithSecret(ctx context.Context, publicKey, secret string, required []models.Permission, sourceIP string) (*ValidationResult, error) {
	key, err := m.keys.GetByPublicKey(ctx, publicKey)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return m.reject(ctx, nil, publicKey, ReasonInvalidKey, sourceIP), nil
		}
		return nil, fmt.Errorf("failed to load api key: %w", err)
	}

	if !key.IsActive {
		return m.reject(ctx, key, publicKey, ReasonInactive, sourceIP), nil
	}
	if key.IsExpired(m.now()) {
		return m.reject(ctx, key, publicKey, ReasonExpired, sourceIP), nil
	}
	if len(key.IPWhitelist) > 0 && !ipAllowed(key.IPWhitelist, sourceIP) {
		return m.reject(ctx, key, publicKey, ReasonIPNotAllowed, sourceIP), nil
	}
	if !key.HasPermissions(required) {
		return m.reject(ctx, key, publicKey, ReasonInsufficientPermissions, sourceIP), nil
	}
	if secret != "" && bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)) != nil {
		return m.reject(ctx, key, publicKey, ReasonInvalidSecret, sourceIP), nil
	}

	if err := m.keys.TouchLastUsed(ctx, key.ID, m.now().UTC()); err != nil {
		m.logger.Warn().Err(err).Str("key_id", key.ID.String()).Msg("Failed to update last_used")
	}
	apiKeyValidations.WithLabelValues("valid").Inc()

	return &ValidationResult{
		Valid:       true,
		KeyID:       key.ID,
		UserID:      key.UserID,
		Permissions: key.Permissions,
	}, nil
}

func (m *APIKeyManager) reject(ctx context.Context, key *models.APIKey, publicKey, reason, sourceIP string) *ValidationResult {
	details := map[string]interface{}{
		"reason":     reason,
		"key_prefix": logging.Mask(publicKey, len(publicKeyPrefix)+8),
	}
	var userID *uuid.UUID
	if key != nil {
		details["key_id"] = key.ID.String()
		userID = &key.UserID
	}
	m.record(ctx, userID, models.ActionAPIKeyValidationFailed, false, sourceIP, details)
	apiKeyValidations.WithLabelValues(reasonLabel(reason)).Inc()

	return &ValidationResult{Valid: false, Error: reason}
}

// VerifySecret reports whether secret belongs to the key identified by publicKey
func (m *APIKeyManager) VerifySecret(ctx context.Context, publicKey, secret string) (bool, error) {
	key, err := m.keys.GetByPublicKey(ctx, publicKey)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load api key: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)) == nil, nil
}

// Rotate replaces the key material of an active key owned by userID. The old pair stops
// validating in the same statement that activates the new one.
func (m *APIKeyManager) Rotate(ctx context.Context, keyID, userID uuid.UUID, sourceIP string) (*IssuedKey, error) {
	current, err := m.keys.GetByID(ctx, keyID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to load api key: %w", err)
	}
	if !current.IsActive {
		return nil, ErrKeyRevoked
	}

	publicKey, err := randomToken(publicKeyPrefix)
	if err != nil {
		return nil, err
	}
	secret, err := randomToken(secretKeyPrefix)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), m.policy.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}

	err = m.keys.RotateCredentials(ctx, repositories.KeyRotation{
		ID:           keyID,
		UserID:       userID,
		OldPublicKey: current.PublicKey,
		NewPublicKey: publicKey,
		SecretHash:   string(hash),
		SecretPrefix: secret[:len(secretKeyPrefix)+8],
		RotatedAt:    m.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			// Distinguish a revoke or concurrent rotation from a vanished row
			if _, getErr := m.keys.GetByID(ctx, keyID, userID); errors.Is(getErr, repositories.ErrNotFound) {
				return nil, ErrKeyNotFound
			}
			return nil, ErrRotationConflict
		}
		return nil, fmt.Errorf("failed to rotate api key: %w", err)
	}

	m.record(ctx, &userID, models.ActionAPIKeyRotated, true, sourceIP, map[string]interface{}{
		"key_id": keyID.String(),
	})
	m.emit(ctx, KeyEvent{Action: models.ActionAPIKeyRotated, UserID: userID, KeyID: keyID, KeyName: current.Name, IPAddress: sourceIP})

	m.logger.Info().
		Str("user_id", userID.String()).
		Str("key_id", keyID.String()).
		Msg("API key rotated")

	return &IssuedKey{
		KeyID:     keyID,
		PublicKey: publicKey,
		SecretKey: secret,
		Name:      current.Name,
		Perms:     current.Permissions,
		ExpiresAt: current.ExpiresAt,
	}, nil
}

// Revoke deactivates a key. Revoking an already revoked key succeeds without side effects.
func (m *APIKeyManager) Revoke(ctx context.Context, keyID, userID uuid.UUID, sourceIP string) error {
	current, err := m.keys.GetByID(ctx, keyID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to load api key: %w", err)
	}
	if !current.IsActive {
		return nil
	}

	if err := m.keys.Deactivate(ctx, keyID, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to revoke api key: %w", err)
	}

	m.record(ctx, &userID, models.ActionAPIKeyRevoked, true, sourceIP, map[string]interface{}{
		"key_id": keyID.String(),
	})
	m.emit(ctx, KeyEvent{Action: models.ActionAPIKeyRevoked, UserID: userID, KeyID: keyID, KeyName: current.Name, IPAddress: sourceIP})

	m.logger.Info().
		Str("user_id", userID.String()).
		Str("key_id", keyID.String()).
		Msg("API key revoked")
	return nil
}

// List returns key metadata for a user. Secrets are never included.
func (m *APIKeyManager) List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	keys, err := m.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	if keys == nil {
		keys = []models.APIKey{}
	}
	return keys, nil
}

// GetExpiredKeys returns active keys past their expiry
func (m *APIKeyManager) GetExpiredKeys(ctx context.Context) ([]models.APIKey, error) {
	keys, err := m.keys.ListExpired(ctx, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired keys: %w", err)
	}
	return keys, nil
}

// GetKeysNeedingRotation returns active keys whose credentials are older than the rotation window
func (m *APIKeyManager) GetKeysNeedingRotation(ctx context.Context) ([]models.APIKey, error) {
	cutoff := m.now().UTC().Add(-m.policy.RotationAfter)
	keys, err := m.keys.ListRotationDue(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys due for rotation: %w", err)
	}
	return keys, nil
}

func (m *APIKeyManager) record(ctx context.Context, userID *uuid.UUID, action string, success bool, sourceIP string, details map[string]interface{}) {
	entry := &models.SecurityLogEntry{
		UserID:  userID,
		Action:  action,
		Details: details,
		Success: success,
	}
	if sourceIP != "" {
		ip := sourceIP
		entry.IPAddress = &ip
	}
	if err := m.audit.Append(ctx, entry); err != nil {
		m.logger.Error().Err(err).Str("action", action).Msg("Failed to write security log")
	}
	if success {
		apiKeyLifecycle.WithLabelValues(action).Inc()
	}
}

func (m *APIKeyManager) emit(ctx context.Context, event KeyEvent) {
	for _, n := range m.notifiers {
		n.NotifyKeyEvent(ctx, event)
	}
}

func randomToken(prefix string) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}

func parseWhitelistEntry(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func ipAllowed(whitelist []string, sourceIP string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(sourceIP))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, entry := range whitelist {
		p, err := parseWhitelistEntry(entry)
		if err != nil {
			continue
		}
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func reasonLabel(reason string) string {
	switch reason {
	case ReasonInvalidKey:
		return "invalid"
	case ReasonInactive:
		return "inactive"
	case ReasonExpired:
		return "expired"
	case ReasonIPNotAllowed:
		return "ip_denied"
	case ReasonInvalidSecret:
		return "bad_secret"
	default:
		return "forbidden"
	}
}
