package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cache"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// dummyHash is compared against when the user does not exist, so unknown emails
// take as long as wrong passwords
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("timing-equalizer"), bcrypt.DefaultCost)

// AuthService handles user registration and password login
type AuthService struct {
	users      repositories.UserRepository
	audit      repositories.SecurityLogRepository
	bcryptCost int
	cache      *cache.Manager
	logger     zerolog.Logger
}

// NewAuthService creates a new authentication service. A zero cost uses bcrypt.DefaultCost.
func NewAuthService(users repositories.UserRepository, audit repositories.SecurityLogRepository, bcryptCost int) *AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:      users,
		audit:      audit,
		bcryptCost: bcryptCost,
		logger:     logging.NewLogger("auth"),
	}
}

// Register creates a user account
func (s *AuthService) Register(ctx context.Context, email, username, password, sourceIP string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	if utf8.RuneCountInString(username) > 50 {
		return nil, invalid("username", "must be at most 50 characters")
	}
	if len(password) < minPasswordLen {
		return nil, invalid("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.record(ctx, &user.ID, models.ActionRegistered, true, sourceIP, nil)
	s.logger.Info().Str("user_id", user.ID.String()).Msg("User registered")
	return user, nil
}

// Login verifies an email/password pair
func (s *AuthService) Login(ctx context.Context, email, password, sourceIP string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.record(ctx, nil, models.ActionLoginFailed, false, sourceIP, map[string]interface{}{"reason": "unknown email"})
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.record(ctx, &user.ID, models.ActionLoginFailed, false, sourceIP, map[string]interface{}{"reason": "wrong password"})
		return nil, ErrInvalidCredentials
	}

	s.record(ctx, &user.ID, models.ActionLoginSucceeded, true, sourceIP, nil)
	return user, nil
}

// Logout records the end of a session
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, sourceIP string) {
	s.record(ctx, &userID, models.ActionLogout, true, sourceIP, nil)
}

// UseCache serves GetUser through the user cache category
func (s *AuthService) UseCache(c *cache.Manager) {
	s.cache = c
}

// GetUser returns a user by id without the password hash
func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.cache != nil {
		var cached models.User
		if s.cache.GetJSON(ctx, cache.CategoryUser, id.String(), &cached) {
			return &cached, nil
		}
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	out := *user
	out.PasswordHash = ""
	if s.cache != nil {
		s.cache.SetJSON(ctx, cache.CategoryUser, id.String(), &out, 0)
	}
	return &out, nil
}

func (s *AuthService) record(ctx context.Context, userID *uuid.UUID, action string, success bool, sourceIP string, details map[string]interface{}) {
	entry := &models.SecurityLogEntry{
		UserID:  userID,
		Action:  action,
		Details: details,
		Success: success,
	}
	if sourceIP != "" {
		entry.IPAddress = &sourceIP
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("Failed to write security log")
	}
}
