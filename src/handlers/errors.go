package handlers

import (
	"errors"
	"net/http"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError maps service errors onto the JSON error envelope
func respondError(c *gin.Context, err error) {
	var fe *services.FieldError
	switch {
	case errors.As(err, &fe):
		middleware.AbortWithFields(c, http.StatusBadRequest, "Request validation failed", map[string]string{fe.Field: fe.Message})
	case errors.Is(err, services.ErrInvalidInput):
		middleware.Abort(c, http.StatusBadRequest, middleware.CodeValidation, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		middleware.Abort(c, http.StatusUnauthorized, middleware.CodeUnauthorized, "Invalid email or password")
	case errors.Is(err, services.ErrKeyNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrNotificationNotFound),
		errors.Is(err, services.ErrUserNotFound):
		middleware.Abort(c, http.StatusNotFound, middleware.CodeNotFound, err.Error())
	case errors.Is(err, services.ErrKeyLimitReached),
		errors.Is(err, services.ErrKeyRevoked),
		errors.Is(err, services.ErrRotationConflict),
		errors.Is(err, services.ErrOrderClosed),
		errors.Is(err, services.ErrUserExists):
		middleware.Abort(c, http.StatusConflict, middleware.CodeConflict, err.Error())
	default:
		logger := middleware.RequestLogger(c)
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
		middleware.Abort(c, http.StatusInternalServerError, middleware.CodeInternal, "An unexpected error occurred")
	}
}

// currentUser returns the authenticated user id, writing a 401 when absent
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		middleware.Abort(c, http.StatusUnauthorized, middleware.CodeUnauthorized, "Authentication required")
	}
	return id, ok
}

// uuidParam parses a path parameter, writing a 400 when malformed
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		middleware.AbortWithFields(c, http.StatusBadRequest, "Request validation failed", map[string]string{name: "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}
