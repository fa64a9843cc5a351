package middleware

import (
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "request_id"

const (
	requestIDHeader  = "X-Request-ID"
	requestLoggerKey = "request_logger"
	maxRequestIDLen  = 64
)

// RequestIDMiddleware tags each request with an id, reusing a well-formed incoming
// X-Request-ID, and attaches a logger carrying that id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()[:8]
		}

		c.Set(RequestIDKey, id)
		c.Set(requestLoggerKey, logging.ComponentLogger("http", id))
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestIDMiddleware, or ""
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// RequestLogger returns the request-scoped logger, or an http component logger
// when RequestIDMiddleware did not run
func RequestLogger(c *gin.Context) zerolog.Logger {
	if v, ok := c.Get(requestLoggerKey); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return l
		}
	}
	return logging.ComponentLogger("http", GetRequestID(c))
}

// validRequestID accepts short ids made of letters, digits, '-', '_' and '.'
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		b := id[i]
		if !(b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-' || b == '_' || b == '.') {
			return false
		}
	}
	return true
}
