package handlers

import (
	"net/http"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/gin-gonic/gin"
)

const adminCookieName = "admin_token"

// AdminHandler handles admin operations
type AdminHandler struct {
	adminService *services.AdminService
	keys         *services.APIKeyManager
	maintenance  *services.KeyMaintenanceService
	secureCookie bool
}

// NewAdminHandler creates a new admin handler. maintenance may be nil.
func NewAdminHandler(adminService *services.AdminService, keys *services.APIKeyManager, maintenance *services.KeyMaintenanceService, secureCookie bool) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		keys:         keys,
		maintenance:  maintenance,
		secureCookie: secureCookie,
	}
}

// AdminLoginRequest represents the request body for admin login
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLoginResponse represents the response for successful login
type AdminLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// HandleAdminLogin authenticates an admin and returns a JWT, also set as a cookie
func (ah *AdminHandler) HandleAdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if !middleware.BindJSON(c, &req) {
		return
	}

	admin, err := ah.adminService.AuthenticateAdmin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := ah.adminService.IssueToken(admin)
	if err != nil {
		respondError(c, err)
		return
	}

	ttl := ah.adminService.TokenTTL()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(adminCookieName, token, int(ttl.Seconds()), "/", "", ah.secureCookie, true)

	c.JSON(http.StatusOK, AdminLoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	})
}

// HandleAdminLogout clears the admin token cookie
func (ah *AdminHandler) HandleAdminLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(adminCookieName, "", -1, "/", "", ah.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// HandleAdminStatus returns the authenticated admin
func (ah *AdminHandler) HandleAdminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"admin_id":      c.GetString(middleware.AdminIDKey),
		"username":      c.GetString(middleware.AdminNameKey),
	})
}

// HandleExpiredKeys lists active keys past their expiry
func (ah *AdminHandler) HandleExpiredKeys(c *gin.Context) {
	keys, err := ah.keys.GetExpiredKeys(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}

// HandleRotationDue lists active keys older than the rotation period
func (ah *AdminHandler) HandleRotationDue(c *gin.Context) {
	keys, err := ah.keys.GetKeysNeedingRotation(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"keys":          keys,
		"count":         len(keys),
		"rotation_days": int(ah.keys.Policy().RotationAfter.Hours() / 24),
	})
}

// HandleRunMaintenance triggers one key maintenance pass
func (ah *AdminHandler) HandleRunMaintenance(c *gin.Context) {
	if ah.maintenance == nil {
		middleware.Abort(c, http.StatusNotFound, middleware.CodeNotFound, "Key maintenance is not configured")
		return
	}
	report, err := ah.maintenance.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
