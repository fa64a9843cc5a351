package handlers

import (
	"net/http"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/gin-gonic/gin"
)

// APIKeyHandler manages a user's API credentials
type APIKeyHandler struct {
	keys *services.APIKeyManager
}

// NewAPIKeyHandler creates a new API key handler
func NewAPIKeyHandler(keys *services.APIKeyManager) *APIKeyHandler {
	return &APIKeyHandler{keys: keys}
}

// CreateAPIKeyRequest is the body of POST /api/keys
type CreateAPIKeyRequest struct {
	Name          string              `json:"name" binding:"required,max=100"`
	Permissions   []models.Permission `json:"permissions" binding:"required,min=1,dive,oneof=read trade withdraw admin"`
	IPWhitelist   []string            `json:"ip_whitelist" binding:"omitempty,dive,ip|cidr"`
	ExpiresInDays *int                `json:"expires_in_days" binding:"omitempty,min=0,max=3650"`
}

// HandleList returns key metadata. Secrets are never included.
func (h *APIKeyHandler) HandleList(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	keys, err := h.keys.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"keys":       keys,
		"max_active": h.keys.Policy().MaxActiveKeys,
	})
}

// HandleCreate issues a key pair; the secret appears only in this response
func (h *APIKeyHandler) HandleCreate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateAPIKeyRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	issued, err := h.keys.Generate(c.Request.Context(), services.GenerateRequest{
		UserID:        userID,
		Name:          req.Name,
		Permissions:   req.Permissions,
		IPWhitelist:   req.IPWhitelist,
		ExpiresInDays: req.ExpiresInDays,
		SourceIP:      c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issued)
}

// HandleRotate replaces a key's credentials
func (h *APIKeyHandler) HandleRotate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	keyID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	issued, err := h.keys.Rotate(c.Request.Context(), keyID, userID, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issued)
}

// HandleRevoke deactivates a key
func (h *APIKeyHandler) HandleRevoke(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	keyID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.keys.Revoke(c.Request.Context(), keyID, userID, c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}
