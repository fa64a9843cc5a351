package models

import (
	"time"

	"github.com/google/uuid"
)

// Permission is a scope an API key may hold
type Permission string

const (
	PermissionRead     Permission = "read"
	PermissionTrade    Permission = "trade"
	PermissionWithdraw Permission = "withdraw"
	PermissionAdmin    Permission = "admin"
)

// ValidPermission reports whether p is one of the known scopes
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionRead, PermissionTrade, PermissionWithdraw, PermissionAdmin:
		return true
	}
	return false
}

// APIKey represents an API credential owned by a user.
// SecretHash holds the bcrypt hash of the secret; the plaintext is never stored.
type APIKey struct {
	ID           uuid.UUID    `json:"id"`
	UserID       uuid.UUID    `json:"user_id"`
	Name         string       `json:"name"`
	PublicKey    string       `json:"api_key"`
	SecretHash   string       `json:"-"`
	SecretPrefix string       `json:"secret_prefix"`
	Permissions  []Permission `json:"permissions"`
	IPWhitelist  []string     `json:"ip_whitelist,omitempty"`
	IsActive     bool         `json:"is_active"`
	LastUsed     *time.Time   `json:"last_used,omitempty"`
	RotatedAt    *time.Time   `json:"rotated_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// IsExpired returns true if the key expired at or before now
func (k *APIKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// HasPermissions returns true if the key holds every permission in required
func (k *APIKey) HasPermissions(required []Permission) bool {
	held := make(map[Permission]struct{}, len(k.Permissions))
	for _, p := range k.Permissions {
		held[p] = struct{}{}
	}
	for _, p := range required {
		if _, ok := held[p]; !ok {
			return false
		}
	}
	return true
}

// PermissionStrings converts permissions for storage in a text[] column
func PermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// ParsePermissions converts stored text[] values back into permissions
func ParsePermissions(values []string) []Permission {
	out := make([]Permission, len(values))
	for i, v := range values {
		out[i] = Permission(v)
	}
	return out
}
