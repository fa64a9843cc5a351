package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cache"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// Version is reported by /info
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	db     *database.Database
	cache  *cache.Manager
	checks map[string]func(ctx context.Context) error
}

// NewHealthHandler creates a new health handler. cache may be nil.
func NewHealthHandler(db *database.Database, c *cache.Manager) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cache:  c,
		checks: make(map[string]func(ctx context.Context) error),
	}
}

// AddCheck registers an extra dependency check, e.g. the Redis tier
func (hh *HealthHandler) AddCheck(name string, check func(ctx context.Context) error) {
	hh.checks[name] = check
}

// HandleHealth returns health status with DB and dependency checks
func (hh *HealthHandler) HandleHealth(c *gin.Context) {
	start := time.Now()
	err := hh.db.Health(c.Request.Context())
	dbLatency := time.Since(start)

	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}

	deps := make(map[string]string, len(hh.checks))
	status := "ok"
	for name, check := range hh.checks {
		if err := check(c.Request.Context()); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{
		"status":       status,
		"database":     "connected",
		"db_latency":   dbLatency.String(),
		"uptime":       time.Since(startTime).String(),
		"dependencies": deps,
	}
	if hh.cache != nil {
		body["cache"] = hh.cache.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// HandleInfo returns service information
func (hh *HealthHandler) HandleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "cex-api",
		"version": Version,
		"status":  "running",
		"uptime":  time.Since(startTime).String(),
	})
}

// HandleReady returns readiness status (for load balancers)
func (hh *HealthHandler) HandleReady(c *gin.Context) {
	if err := hh.db.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}
