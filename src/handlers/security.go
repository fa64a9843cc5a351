package handlers

import (
	"net/http"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/gin-gonic/gin"
)

// SecurityHandler exposes the caller's audit trail
type SecurityHandler struct {
	logs *services.SecurityLogService
}

// NewSecurityHandler creates a new security log handler
func NewSecurityHandler(logs *services.SecurityLogService) *SecurityHandler {
	return &SecurityHandler{logs: logs}
}

type pageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// HandleLogs returns a page of security log entries, newest first
func (h *SecurityHandler) HandleLogs(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var q pageQuery
	if !middleware.BindQuery(c, &q) {
		return
	}

	page, err := h.logs.List(c.Request.Context(), userID, q.Limit, q.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
