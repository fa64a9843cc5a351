package postgres

import (
	"context"
	"fmt"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/google/uuid"
)

// SecurityLogRepository appends to and reads the security_logs table
type SecurityLogRepository struct {
	db *database.Database
}

// NewSecurityLogRepository creates a new security log repository
func NewSecurityLogRepository(db *database.Database) *SecurityLogRepository {
	return &SecurityLogRepository{db: db}
}

// Append writes one audit entry
func (r *SecurityLogRepository) Append(ctx context.Context, entry *models.SecurityLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Details == nil {
		entry.Details = map[string]interface{}{}
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO security_logs (id, user_id, action, details, ip_address, success)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, entry.ID, entry.UserID, entry.Action, entry.Details, entry.IPAddress, entry.Success).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append security log: %w", err)
	}
	return nil
}

// ListByUser returns a page of a user's audit entries, newest first, with the total count
func (r *SecurityLogRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SecurityLogEntry, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM security_logs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count security logs: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, action, details, ip_address, success, created_at
		FROM security_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query security logs: %w", err)
	}
	defer rows.Close()

	var entries []models.SecurityLogEntry
	for rows.Next() {
		var e models.SecurityLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Details, &e.IPAddress, &e.Success, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan security log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating security logs: %w", err)
	}

	return entries, total, nil
}
