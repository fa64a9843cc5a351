package handlers

import (
	"net/http"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/gin-gonic/gin"
)

// AccountHandler serves the API-key account summary
type AccountHandler struct {
	auth      *services.AuthService
	portfolio *services.PortfolioService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(auth *services.AuthService, portfolio *services.PortfolioService) *AccountHandler {
	return &AccountHandler{auth: auth, portfolio: portfolio}
}

// HandleAccount returns the key owner, the key's scopes and current balances
func (h *AccountHandler) HandleAccount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.auth.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	balances, err := h.portfolio.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	perms, _ := c.Get(middleware.PermissionsKey)
	if perms == nil {
		perms = []models.Permission{}
	}
	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"api_key_id":  c.GetString(middleware.APIKeyIDKey),
		"permissions": perms,
		"balances":    balances,
	})
}
