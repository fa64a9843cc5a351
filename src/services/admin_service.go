package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const adminTokenIssuer = "cex-admin"

// AdminClaims represents JWT claims for admin users
type AdminClaims struct {
	AdminID  string `json:"admin_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AdminService handles admin accounts and their bearer tokens
type AdminService struct {
	repo      repositories.AdminRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    zerolog.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(repo repositories.AdminRepository, jwtSecret string) *AdminService {
	return &AdminService{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  24 * time.Hour,
		logger:    logging.NewLogger("admin"),
	}
}

// CreateAdminUser creates a new admin user with hashed password
func (as *AdminService) CreateAdminUser(ctx context.Context, username, password string) (*models.AdminUser, error) {
	if len(username) < 1 || len(username) > 255 {
		return nil, invalid("username", "must be between 1 and 255 characters")
	}
	if len(password) < minPasswordLen {
		return nil, invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.AdminUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
		IsActive:     true,
	}
	if err := as.repo.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}
	return admin, nil
}

// EnsureBootstrapAdmin creates the configured admin when no admin exists yet
func (as *AdminService) EnsureBootstrapAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	count, err := as.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to check admin users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := as.CreateAdminUser(ctx, username, password); err != nil {
		return err
	}
	as.logger.Info().Str("username", username).Msg("Bootstrap admin created")
	return nil
}

// AuthenticateAdmin verifies username and password
func (as *AdminService) AuthenticateAdmin(ctx context.Context, username, password string) (*models.AdminUser, error) {
	admin, err := as.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	if !admin.IsActive {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if err := as.repo.UpdateLastLogin(ctx, admin.ID); err != nil {
		as.logger.Warn().Err(err).Str("username", admin.Username).Msg("Failed to update last_login")
	}
	admin.LastLogin = &now
	return admin, nil
}

// IssueToken creates a signed JWT for the admin
func (as *AdminService) IssueToken(admin *models.AdminUser) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		AdminID:  admin.ID.String(),
		Username: admin.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(as.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    adminTokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(as.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and verifies an admin JWT
func (as *AdminService) VerifyToken(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return as.jwtSecret, nil
	}, jwt.WithIssuer(adminTokenIssuer))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// TokenTTL returns the lifetime of issued admin tokens
func (as *AdminService) TokenTTL() time.Duration {
	return as.tokenTTL
}
