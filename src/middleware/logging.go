package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// health endpoints hit by orchestrators and scrapers
var quietPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// LoggingMiddleware writes one access log line per request. Server errors log at
// error, client errors at warn, health checks at debug.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		logger := RequestLogger(c)
		event := logger.WithLevel(accessLevel(status, c.Request.URL.Path))

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		event = event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int("bytes", c.Writer.Size()).
			Str("client_ip", c.ClientIP())

		if userID, ok := UserID(c); ok {
			event = event.Str("user_id", userID.String())
		}
		if keyID := c.GetString(APIKeyIDKey); keyID != "" {
			event = event.Str("api_key_id", keyID)
		}
		if admin := c.GetString(AdminNameKey); admin != "" {
			event = event.Str("admin", admin)
		}
		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.String())
		}
		event.Msg(http.StatusText(status))
	}
}

func accessLevel(status int, path string) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	case quietPaths[path]:
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
