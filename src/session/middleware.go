package session

import (
	"github.com/gin-gonic/gin"
)

const contextKey = "session"

// Middleware loads the request's session, if any, into the gin context
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := m.Load(c.Request.Context(), c.Request)
		if err == nil {
			m.Touch(c.Request.Context(), c.Writer, sess)
			c.Set(contextKey, sess)
		}
		c.Next()
	}
}

// Current returns the session loaded by Middleware
func Current(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*Session)
	return sess, ok && sess != nil
}

// ApplyProxyTrust configures which proxies the router takes X-Forwarded-For from
func ApplyProxyTrust(r *gin.Engine, cfg Config) error {
	return r.SetTrustedProxies(cfg.Proxies())
}

// SecurityHeaders sets hardening headers; HSTS is only sent in production
func SecurityHeaders(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if cfg.Secure {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
