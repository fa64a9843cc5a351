package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const apiKeyColumns = `id, user_id, name, api_key, secret_key, secret_prefix, permissions,
	ip_whitelist, is_active, last_used, rotated_at, created_at, expires_at`

// APIKeyRepository stores API keys in the api_keys table
type APIKeyRepository struct {
	db *database.Database
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *database.Database) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	var k models.APIKey
	var perms []string
	err := row.Scan(
		&k.ID, &k.UserID, &k.Name, &k.PublicKey, &k.SecretHash, &k.SecretPrefix, &perms,
		&k.IPWhitelist, &k.IsActive, &k.LastUsed, &k.RotatedAt, &k.CreatedAt, &k.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	k.Permissions = models.ParsePermissions(perms)
	return &k, nil
}

func (r *APIKeyRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.APIKey, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}
	return keys, nil
}

// Create inserts the key only while the owner holds fewer than maxActive active keys.
// The ceiling check and insert run as one statement.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey, maxActive int) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO api_keys (
			id, user_id, name, api_key, secret_key, secret_prefix, permissions,
			ip_whitelist, is_active, created_at, expires_at
		)
		SELECT $1::uuid, $2::uuid, $3::text, $4::text, $5::text, $6::text, $7::text[],
			$8::text[], true, $9::timestamptz, $10::timestamptz
		WHERE (SELECT COUNT(*) FROM api_keys WHERE user_id = $2::uuid AND is_active) < $11
	`, key.ID, key.UserID, key.Name, key.PublicKey, key.SecretHash, key.SecretPrefix,
		models.PermissionStrings(key.Permissions), key.IPWhitelist, key.CreatedAt, key.ExpiresAt, maxActive)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrLimitReached
	}

	key.IsActive = true
	return nil
}

// GetByPublicKey looks up a key by its public token
func (r *APIKeyRepository) GetByPublicKey(ctx context.Context, publicKey string) (*models.APIKey, error) {
	k, err := scanAPIKey(r.db.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE api_key = $1`, publicKey))
	if err != nil {
		return nil, translate(err)
	}
	return k, nil
}

// GetByID returns a key owned by userID
func (r *APIKeyRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.APIKey, error) {
	k, err := scanAPIKey(r.db.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, translate(err)
	}
	return k, nil
}

// ListByUser returns all keys for a user, newest first
func (r *APIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	return r.list(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// CountActiveByUser returns the number of active keys a user holds
func (r *APIKeyRepository) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND is_active`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count api keys: %w", err)
	}
	return count, nil
}

// TouchLastUsed records a successful validation
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last_used: %w", err)
	}
	return nil
}

// RotateCredentials swaps key material with a single conditional update, so two
// concurrent rotations of the same key cannot both succeed.
func (r *APIKeyRepository) RotateCredentials(ctx context.Context, rot repositories.KeyRotation) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE api_keys
		SET api_key = $4, secret_key = $5, secret_prefix = $6, rotated_at = $7, last_used = NULL
		WHERE id = $1 AND user_id = $2 AND api_key = $3 AND is_active
	`, rot.ID, rot.UserID, rot.OldPublicKey, rot.NewPublicKey, rot.SecretHash, rot.SecretPrefix, rot.RotatedAt)
	if err != nil {
		return fmt.Errorf("failed to rotate api key: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrConflict
	}
	return nil
}

// Deactivate marks a key inactive. Deactivating an inactive key succeeds.
func (r *APIKeyRepository) Deactivate(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET is_active = false WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// ListExpired returns active keys whose expiry has passed
func (r *APIKeyRepository) ListExpired(ctx context.Context, now time.Time) ([]models.APIKey, error) {
	return r.list(ctx, `SELECT `+apiKeyColumns+` FROM api_keys
		WHERE is_active AND expires_at <= $1 ORDER BY expires_at`, now)
}

// ListRotationDue returns active keys whose credentials are older than cutoff
func (r *APIKeyRepository) ListRotationDue(ctx context.Context, cutoff time.Time) ([]models.APIKey, error) {
	return r.list(ctx, `SELECT `+apiKeyColumns+` FROM api_keys
		WHERE is_active AND COALESCE(rotated_at, created_at) < $1
		ORDER BY COALESCE(rotated_at, created_at)`, cutoff)
}
