package postgres

import (
	"context"
	"fmt"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/google/uuid"
)

// AdminRepository stores operator accounts
type AdminRepository struct {
	db *database.Database
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(db *database.Database) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) Create(ctx context.Context, admin *models.AdminUser) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO admin_users (id, username, password_hash, created_at, is_active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING is_active
	`, admin.ID, admin.Username, admin.PasswordHash, admin.CreatedAt).Scan(&admin.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", translate(err))
	}
	return nil
}

func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	admin := &models.AdminUser{}
	err := r.db.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at, last_login, is_active
		FROM admin_users
		WHERE username = $1
	`, username).Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &admin.CreatedAt, &admin.LastLogin, &admin.IsActive)
	if err != nil {
		return nil, translate(err)
	}
	return admin, nil
}

func (r *AdminRepository) UpdateLastLogin(ctx context.Context, adminID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE admin_users SET last_login = NOW() WHERE id = $1`, adminID)
	return err
}

func (r *AdminRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM admin_users").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count admin users: %w", err)
	}
	return count, nil
}
