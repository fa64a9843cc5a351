package services

import (
	"context"
	"fmt"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
)

// SecurityLogPage is one page of a user's audit trail
type SecurityLogPage struct {
	Entries []models.SecurityLogEntry `json:"entries"`
	Total   int                       `json:"total"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
}

// SecurityLogService reads the audit trail. Writes happen in the services that own each action.
type SecurityLogService struct {
	repo repositories.SecurityLogRepository
}

// NewSecurityLogService creates a security log reader
func NewSecurityLogService(repo repositories.SecurityLogRepository) *SecurityLogService {
	return &SecurityLogService{repo: repo}
}

// List returns the newest entries first
func (s *SecurityLogService) List(ctx context.Context, userID uuid.UUID, limit, offset int) (*SecurityLogPage, error) {
	limit = clampLimit(limit, 50, 200)
	if offset < 0 {
		offset = 0
	}
	entries, total, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list security logs: %w", err)
	}
	if entries == nil {
		entries = []models.SecurityLogEntry{}
	}
	return &SecurityLogPage{Entries: entries, Total: total, Limit: limit, Offset: offset}, nil
}
