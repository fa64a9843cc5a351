package handlers

import (
	"net/http"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/session"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles registration and session login
type AuthHandler struct {
	authService      *services.AuthService
	sessions         *session.Manager
	analyticsService *services.AnalyticsService
}

// NewAuthHandler creates a new auth handler. analytics may be nil.
func NewAuthHandler(authService *services.AuthService, sessions *session.Manager, analytics *services.AnalyticsService) *AuthHandler {
	return &AuthHandler{
		authService:      authService,
		sessions:         sessions,
		analyticsService: analytics,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Username string `json:"username" binding:"omitempty,max=50"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// HandleRegister creates an account and starts a session
func (ah *AuthHandler) HandleRegister(c *gin.Context) {
	var req RegisterRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	user, err := ah.authService.Register(c.Request.Context(), req.Email, req.Username, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	if _, err := ah.sessions.Start(c.Request.Context(), c.Writer, user.ID, user.Email); err != nil {
		respondError(c, err)
		return
	}
	if ah.analyticsService != nil {
		ah.analyticsService.TrackRegistered(c.Request.Context(), user.ID, user.Email)
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// HandleLogin verifies credentials and starts a session
func (ah *AuthHandler) HandleLogin(c *gin.Context) {
	var req LoginRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	user, err := ah.authService.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	if _, err := ah.sessions.Start(c.Request.Context(), c.Writer, user.ID, user.Email); err != nil {
		respondError(c, err)
		return
	}
	if ah.analyticsService != nil {
		ah.analyticsService.TrackLogin(c.Request.Context(), user.ID)
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// HandleLogout destroys the current session
func (ah *AuthHandler) HandleLogout(c *gin.Context) {
	if sess, ok := session.Current(c); ok {
		ah.authService.Logout(c.Request.Context(), sess.UserID, c.ClientIP())
		ah.sessions.Destroy(c.Request.Context(), c.Writer, sess)
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// HandleMe returns the authenticated user
func (ah *AuthHandler) HandleMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := ah.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
