package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys set by the auth middlewares
const (
	UserIDKey      = "user_id"
	APIKeyIDKey    = "api_key_id"
	PermissionsKey = "api_key_permissions"
	AdminIDKey     = "admin_id"
	AdminNameKey   = "admin_username"
)

const (
	headerAPIKey    = "X-API-Key"
	headerAPISecret = "X-API-Secret"
	adminCookie     = "admin_token"
)

// KeyValidator is the part of the API key manager the middleware needs
type KeyValidator interface {
	ValidateWithSecret(ctx context.Context, publicKey, secret string, required []models.Permission, sourceIP string) (*services.ValidationResult, error)
}

// TokenVerifier checks admin bearer tokens
type TokenVerifier interface {
	VerifyToken(token string) (*services.AdminClaims, error)
}

// UserID returns the authenticated user, from either a session or an API key
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// RequireSession rejects requests without a loaded session
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := session.Current(c)
		if !ok {
			Abort(c, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
			return
		}
		c.Set(UserIDKey, sess.UserID)
		c.Next()
	}
}

// RequireAPIKey authenticates with X-API-Key or an Authorization Bearer token and
// checks that the key holds every permission in required. When X-API-Secret is sent
// it must match the key.
func RequireAPIKey(keys KeyValidator, required ...models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		publicKey := apiKeyFromRequest(c)
		if publicKey == "" {
			Abort(c, http.StatusUnauthorized, CodeUnauthorized, "API key required")
			return
		}

		secret := strings.TrimSpace(c.GetHeader(headerAPISecret))
		result, err := keys.ValidateWithSecret(c.Request.Context(), publicKey, secret, required, c.ClientIP())
		if err != nil {
			_ = c.Error(err)
			Abort(c, http.StatusInternalServerError, CodeInternal, "Failed to validate API key")
			return
		}
		if !result.Valid {
			status, code := http.StatusUnauthorized, CodeUnauthorized
			if result.Error == services.ReasonIPNotAllowed || result.Error == services.ReasonInsufficientPermissions {
				status, code = http.StatusForbidden, CodeForbidden
			}
			Abort(c, status, code, result.Error)
			return
		}

		c.Set(UserIDKey, result.UserID)
		c.Set(APIKeyIDKey, result.KeyID.String())
		c.Set(PermissionsKey, result.Permissions)
		c.Next()
	}
}

func apiKeyFromRequest(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(headerAPIKey)); key != "" {
		return key
	}
	return bearerToken(c)
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// AdminAuthMiddleware checks for a valid admin JWT in the admin_token cookie or Authorization header
func AdminAuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(adminCookie)
		if token == "" {
			token = bearerToken(c)
		}
		if token == "" {
			Abort(c, http.StatusUnauthorized, CodeUnauthorized, "Missing authentication token")
			return
		}

		claims, err := verifier.VerifyToken(token)
		if err != nil {
			Abort(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid token")
			return
		}

		c.Set(AdminIDKey, claims.AdminID)
		c.Set(AdminNameKey, claims.Username)
		c.Next()
	}
}

// RequireSessionOrAPIKey accepts a browser session, or else an API key holding required
func RequireSessionOrAPIKey(keys KeyValidator, required ...models.Permission) gin.HandlerFunc {
	apiKeyAuth := RequireAPIKey(keys, required...)
	return func(c *gin.Context) {
		if sess, ok := session.Current(c); ok {
			c.Set(UserIDKey, sess.UserID)
			c.Next()
			return
		}
		apiKeyAuth(c)
	}
}
