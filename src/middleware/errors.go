package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes used in the {"error", "message"} envelope
const (
	CodeValidation       = "validation_error"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeConflict         = "conflict"
	CodeRateLimited      = "rate_limit_exceeded"
	CodeInternal         = "internal_error"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Abort writes the error envelope and stops the handler chain
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}

// AbortWithFields writes a validation envelope carrying per-field messages
func AbortWithFields(c *gin.Context, status int, message string, fields map[string]string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: CodeValidation, Message: message, Fields: fields})
}

// NotFound answers unmatched routes with the error envelope
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		Abort(c, http.StatusNotFound, CodeNotFound, "Route not found")
	}
}

// MethodNotAllowed answers known paths hit with an unsupported method
func MethodNotAllowed() gin.HandlerFunc {
	return func(c *gin.Context) {
		Abort(c, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
	}
}
