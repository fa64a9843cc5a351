package models

import (
	"time"

	"github.com/google/uuid"
)

// Security log actions
const (
	ActionAPIKeyCreated          = "api_key_created"
	ActionAPIKeyRotated          = "api_key_rotated"
	ActionAPIKeyRevoked          = "api_key_revoked"
	ActionAPIKeyValidationFailed = "api_key_validation_failed"
	ActionLoginSucceeded         = "login_succeeded"
	ActionLoginFailed            = "login_failed"
	ActionLogout                 = "logout"
	ActionRegistered             = "registered"
)

// SecurityLogEntry is an append-only audit record
type SecurityLogEntry struct {
	ID        uuid.UUID              `json:"id"`
	UserID    *uuid.UUID             `json:"user_id,omitempty"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details"`
	IPAddress *string                `json:"ip_address,omitempty"`
	Success   bool                   `json:"success"`
	CreatedAt time.Time              `json:"created_at"`
}
