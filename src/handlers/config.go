package handlers

import (
	"net/http"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cdn"
	"github.com/gin-gonic/gin"
)

// HandleClientConfig returns the public client configuration
func HandleClientConfig(assets cdn.Config, environment string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"environment": environment,
			"cdn": gin.H{
				"enabled":  assets.Enabled(),
				"base_url": assets.AssetBase(),
				"version":  assets.Version,
				"app_js":   assets.AssetURL("js/app.js"),
				"app_css":  assets.AssetURL("css/app.css"),
			},
		})
	}
}
