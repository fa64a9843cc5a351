package cdn

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// LocalPrefix is where static assets are served when no CDN is configured
const LocalPrefix = "/assets"

// Config describes where static assets live
type Config struct {
	BaseURL string
	Version string
}

// Enabled reports whether assets are served from a CDN
func (c Config) Enabled() bool {
	return c.BaseURL != ""
}

// AssetBase returns the URL prefix clients should load assets from
func (c Config) AssetBase() string {
	if c.Enabled() {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return LocalPrefix
}

// AssetURL builds a versioned URL for a static asset path
func (c Config) AssetURL(path string) string {
	u := c.AssetBase() + "/" + strings.TrimLeft(path, "/")
	if c.Version == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "v=" + url.QueryEscape(c.Version)
}

// CacheControl marks versioned static responses as immutable
func CacheControl() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("v") != "" {
			c.Header("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			c.Header("Cache-Control", "public, max-age=300")
		}
		c.Next()
	}
}
