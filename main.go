package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cache"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cdn"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/config"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/handlers"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories/postgres"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// app holds everything the router needs
type app struct {
	cfg          *config.Config
	db           *database.Database
	cache        *cache.Manager
	redis        *cache.RedisStore
	sessions     *session.Manager
	auth         *services.AuthService
	admin        *services.AdminService
	keys         *services.APIKeyManager
	orders       *services.OrderService
	trades       *services.TradeService
	portfolio    *services.PortfolioService
	notify       *services.NotificationService
	securityLogs *services.SecurityLogService
	analytics    *services.AnalyticsService
	maintenance  *services.KeyMaintenanceService
	keyLimiter   *middleware.RateLimiter
	loginLimiter *middleware.RateLimiter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "cex-api",
	})

	log.Info().
		Int("port", cfg.Port).
		Str("environment", cfg.Environment).
		Str("log_level", cfg.LogLevel).
		Msg("starting server")

	// Database; New applies schema.sql
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.New(ctx, cfg.DatabaseURL, database.Options{
		QueryTimeout:       cfg.DBQueryTimeout,
		SlowQueryThreshold: cfg.DBSlowQueryThreshold,
	})
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	// Cache tiers
	cacheMgr, redisStore := setupCache(cfg)
	defer func() { _ = cacheMgr.Close() }()

	// Repositories
	users := postgres.NewUserRepository(db)
	audit := postgres.NewSecurityLogRepository(db)

	// Services
	a := &app{
		cfg:          cfg,
		db:           db,
		cache:        cacheMgr,
		redis:        redisStore,
		sessions:     session.NewManager(session.NewConfig(cfg), cfg.SessionSecret, cfg.SessionEncryptionKey, cacheMgr),
		auth:         services.NewAuthService(users, audit, bcrypt.DefaultCost),
		admin:        services.NewAdminService(postgres.NewAdminRepository(db), cfg.JWTSecret),
		notify:       services.NewNotificationService(postgres.NewNotificationRepository(db), nil),
		portfolio:    services.NewPortfolioService(postgres.NewPortfolioRepository(db), cacheMgr),
		securityLogs: services.NewSecurityLogService(audit),
	}
	a.auth.UseCache(cacheMgr)
	a.orders = services.NewOrderService(postgres.NewOrderRepository(db), a.notify)
	a.trades = services.NewTradeService(postgres.NewTradeRepository(db), a.orders)
	a.keys = services.NewAPIKeyManager(postgres.NewAPIKeyRepository(db), audit, services.KeyPolicy{
		MaxActiveKeys:     cfg.APIKeyMaxPerUser,
		DefaultExpiryDays: cfg.APIKeyDefaultExpiryDays,
		RotationAfter:     time.Duration(cfg.APIKeyRotationDays) * 24 * time.Hour,
		BcryptCost:        bcrypt.DefaultCost,
	}, nil)

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		if err := a.admin.EnsureBootstrapAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
			log.Error().Err(err).Msg("failed to create initial admin user")
		}
	}

	alerts, err := services.NewAlertService(services.AlertConfig{
		Domain:    cfg.MailgunDomain,
		APIKey:    cfg.MailgunAPIKey,
		FromEmail: cfg.MailgunFromEmail,
		FromName:  cfg.MailgunFromName,
		APIBase:   cfg.MailgunAPIBase,
	}, users)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize alert service")
	}
	defer alerts.Close()
	if alerts.Enabled() {
		log.Info().Str("domain", cfg.MailgunDomain).Msg("Mailgun security alerts enabled")
	} else {
		log.Warn().Msg("Mailgun credentials not configured - security alert emails disabled")
	}

	a.analytics, err = services.NewAnalyticsService(services.AnalyticsConfig{
		PostHogAPIKey: cfg.PostHogAPIKey,
		PostHogHost:   cfg.PostHogHost,
		Enabled:       cfg.PostHogEnabled,
		Environment:   cfg.Environment,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize analytics service")
	}
	defer a.analytics.Close()

	a.keys.AddNotifier(a.notify)
	a.keys.AddNotifier(alerts)
	a.keys.AddNotifier(a.analytics)

	// Background jobs
	a.maintenance = services.NewKeyMaintenanceService(a.keys, a.notify, alerts, cfg.EnableKeyMaintenance, cfg.KeyMaintenanceInterval)
	a.maintenance.Start(context.Background())

	a.keyLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.APIKeyRateLimitPerMinute,
	})
	a.loginLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: 10,
		Burst:             5,
	})

	router := gin.New()
	if err := session.ApplyProxyTrust(router, a.sessions.Config()); err != nil {
		log.Fatal().Err(err).Msg("invalid TRUSTED_PROXIES")
	}

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-API-Secret", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(session.SecurityHeaders(a.sessions.Config()))

	setupRoutes(router, a)
	router.HandleMethodNotAllowed = true
	router.NoRoute(middleware.NotFound())
	router.NoMethod(middleware.MethodNotAllowed())

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	a.maintenance.Stop()
	a.keyLimiter.Stop()
	a.loginLimiter.Stop()

	log.Info().Msg("server shut down successfully")
}

// setupCache builds the memory tier and, when configured, the Redis tier
func setupCache(cfg *config.Config) (*cache.Manager, *cache.RedisStore) {
	policies := cache.DefaultPolicies()
	if cfg.CachePolicyFile != "" {
		loaded, err := cache.LoadPolicies(cfg.CachePolicyFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.CachePolicyFile).Msg("failed to load cache policies")
		}
		policies = loaded
	}

	var external cache.Store
	var redisStore *cache.RedisStore
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing with in-process cache only")
		} else {
			external, redisStore = store, store
			log.Info().Msg("Redis cache tier connected")
		}
	}

	return cache.NewManager(cache.NewMemoryStore(time.Minute), external, policies), redisStore
}

func setupRoutes(router *gin.Engine, a *app) {
	healthHandler := handlers.NewHealthHandler(a.db, a.cache)
	if a.redis != nil {
		healthHandler.AddCheck("redis", a.redis.Ping)
	}
	authHandler := handlers.NewAuthHandler(a.auth, a.sessions, a.analytics)
	keyHandler := handlers.NewAPIKeyHandler(a.keys)
	orderHandler := handlers.NewOrderHandler(a.orders, a.analytics)
	tradeHandler := handlers.NewTradeHandler(a.trades)
	portfolioHandler := handlers.NewPortfolioHandler(a.portfolio)
	notificationHandler := handlers.NewNotificationHandler(a.notify)
	securityHandler := handlers.NewSecurityHandler(a.securityLogs)
	accountHandler := handlers.NewAccountHandler(a.auth, a.portfolio)
	adminHandler := handlers.NewAdminHandler(a.admin, a.keys, a.maintenance, a.cfg.IsProduction())

	// Health check endpoints
	router.GET("/health", healthHandler.HandleHealth)
	router.GET("/ready", healthHandler.HandleReady)
	router.GET("/info", healthHandler.HandleInfo)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Static assets, served locally when no CDN is configured
	assets := cdn.Config{BaseURL: a.cfg.CDNBaseURL, Version: a.cfg.AssetVersion}
	router.Group(cdn.LocalPrefix, cdn.CacheControl()).Static("/", "./static")

	// Session-authenticated API
	api := router.Group("/api", session.Middleware(a.sessions))
	api.GET("/config", handlers.HandleClientConfig(assets, a.cfg.Environment))

	auth := api.Group("/auth")
	{
		auth.POST("/register", a.loginLimiter.Middleware(middleware.ByIP), authHandler.HandleRegister)
		auth.POST("/login", a.loginLimiter.Middleware(middleware.ByIP), authHandler.HandleLogin)
		auth.POST("/logout", authHandler.HandleLogout)
		auth.GET("/me", middleware.RequireSession(), authHandler.HandleMe)
	}

	user := api.Group("", middleware.RequireSession())
	{
		user.GET("/orders", orderHandler.HandleList)
		user.POST("/orders", orderHandler.HandleCreate)
		user.GET("/orders/:id", orderHandler.HandleGet)
		user.PATCH("/orders/:id", orderHandler.HandleUpdate)

		user.GET("/trades", tradeHandler.HandleList)
		user.POST("/trades", tradeHandler.HandleCreate)

		user.GET("/portfolio", portfolioHandler.HandleGet)
		user.PATCH("/portfolio/:asset", portfolioHandler.HandleSetBalance)

		user.GET("/notifications", notificationHandler.HandleList)
		user.PATCH("/notifications/:id", notificationHandler.HandleMarkRead)
		user.POST("/notifications/read-all", notificationHandler.HandleMarkAllRead)

		user.GET("/security/logs", securityHandler.HandleLogs)
	}

	// Key management accepts a session or an admin-scoped API key
	keys := api.Group("/keys", middleware.RequireSessionOrAPIKey(a.keys, models.PermissionAdmin))
	{
		keys.GET("", keyHandler.HandleList)
		keys.POST("", keyHandler.HandleCreate)
		keys.POST("/:id/rotate", keyHandler.HandleRotate)
		keys.DELETE("/:id", keyHandler.HandleRevoke)
	}

	// API-key-authenticated API, rate limited per key
	perKey := a.keyLimiter.Middleware(middleware.ByAPIKey)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/account", middleware.RequireAPIKey(a.keys, models.PermissionRead), perKey, accountHandler.HandleAccount)
		v1.GET("/orders", middleware.RequireAPIKey(a.keys, models.PermissionRead), perKey, orderHandler.HandleList)
		v1.POST("/orders", middleware.RequireAPIKey(a.keys, models.PermissionTrade), perKey, orderHandler.HandleCreate)
	}

	// Admin endpoints
	router.POST("/admin/login", a.loginLimiter.Middleware(middleware.ByIP), adminHandler.HandleAdminLogin)
	admin := router.Group("/admin", middleware.AdminAuthMiddleware(a.admin))
	{
		admin.POST("/logout", adminHandler.HandleAdminLogout)
		admin.GET("/status", adminHandler.HandleAdminStatus)
		admin.GET("/keys/expired", adminHandler.HandleExpiredKeys)
		admin.GET("/keys/rotation-due", adminHandler.HandleRotationDue)
		admin.POST("/maintenance/run", adminHandler.HandleRunMaintenance)
	}
}
