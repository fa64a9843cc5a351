package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cache"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cdn"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/config"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories/mock"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	userID uuid.UUID
	keys   *services.APIKeyManager
}

// newTestServer wires every handler over in-memory repositories. Routes under /api
// authenticate as userID without a session cookie.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	users := mock.NewUserRepository()
	audit := mock.NewSecurityLogRepository()
	notifyRepo := mock.NewNotificationRepository()
	orderRepo := mock.NewOrderRepository()
	cacheMgr := cache.NewManager(cache.NewMemoryStore(0), nil, cache.DefaultPolicies())
	t.Cleanup(func() { _ = cacheMgr.Close() })

	authSvc := services.NewAuthService(users, audit, 4)
	user, err := authSvc.Register(context.Background(), "trader@example.com", "trader", "password123", "127.0.0.1")
	require.NoError(t, err)

	notifications := services.NewNotificationService(notifyRepo, nil)
	keys := services.NewAPIKeyManager(mock.NewAPIKeyRepository(), audit,
		services.KeyPolicy{MaxActiveKeys: 2, DefaultExpiryDays: 30, RotationAfter: 90 * 24 * time.Hour, BcryptCost: 4}, nil)
	keys.AddNotifier(notifications)
	orderSvc := services.NewOrderService(orderRepo, notifications)
	tradeSvc := services.NewTradeService(mock.NewTradeRepository(), orderSvc)
	portfolioSvc := services.NewPortfolioService(mock.NewPortfolioRepository(), cacheMgr)
	adminSvc := services.NewAdminService(mock.NewAdminRepository(), "test-jwt-secret")
	require.NoError(t, adminSvc.EnsureBootstrapAdmin(context.Background(), "root", "rootpassword"))

	keyHandler := NewAPIKeyHandler(keys)
	orderHandler := NewOrderHandler(orderSvc, nil)
	tradeHandler := NewTradeHandler(tradeSvc)
	portfolioHandler := NewPortfolioHandler(portfolioSvc)
	notificationHandler := NewNotificationHandler(notifications)
	securityHandler := NewSecurityHandler(services.NewSecurityLogService(audit))
	accountHandler := NewAccountHandler(authSvc, portfolioSvc)
	adminHandler := NewAdminHandler(adminSvc, keys, nil, false)

	router := gin.New()
	router.Use(middleware.Recovery())

	api := router.Group("/api", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, user.ID)
		c.Next()
	})
	api.GET("/keys", keyHandler.HandleList)
	api.POST("/keys", keyHandler.HandleCreate)
	api.POST("/keys/:id/rotate", keyHandler.HandleRotate)
	api.DELETE("/keys/:id", keyHandler.HandleRevoke)
	api.GET("/orders", orderHandler.HandleList)
	api.POST("/orders", orderHandler.HandleCreate)
	api.GET("/orders/:id", orderHandler.HandleGet)
	api.PATCH("/orders/:id", orderHandler.HandleUpdate)
	api.GET("/trades", tradeHandler.HandleList)
	api.POST("/trades", tradeHandler.HandleCreate)
	api.GET("/portfolio", portfolioHandler.HandleGet)
	api.PATCH("/portfolio/:asset", portfolioHandler.HandleSetBalance)
	api.GET("/notifications", notificationHandler.HandleList)
	api.PATCH("/notifications/:id", notificationHandler.HandleMarkRead)
	api.POST("/notifications/read-all", notificationHandler.HandleMarkAllRead)
	api.GET("/security/logs", securityHandler.HandleLogs)

	router.GET("/anonymous/orders", orderHandler.HandleList)

	v1 := router.Group("/api/v1")
	v1.GET("/account", middleware.RequireAPIKey(keys, models.PermissionRead), accountHandler.HandleAccount)
	v1.GET("/orders", middleware.RequireAPIKey(keys, models.PermissionRead), orderHandler.HandleList)
	v1.POST("/orders", middleware.RequireAPIKey(keys, models.PermissionTrade), orderHandler.HandleCreate)

	router.POST("/admin/login", adminHandler.HandleAdminLogin)
	adminGroup := router.Group("/admin", middleware.AdminAuthMiddleware(adminSvc))
	adminGroup.GET("/status", adminHandler.HandleAdminStatus)
	adminGroup.GET("/keys/expired", adminHandler.HandleExpiredKeys)
	adminGroup.GET("/keys/rotation-due", adminHandler.HandleRotationDue)
	adminGroup.POST("/maintenance/run", adminHandler.HandleRunMaintenance)

	router.GET("/api/config", HandleClientConfig(cdn.Config{BaseURL: "https://cdn.example.com/", Version: "abc"}, "test"))

	return &testServer{router: router, userID: user.ID, keys: keys}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = jsonBody(t, body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createKey(t *testing.T, name string, perms ...string) map[string]interface{} {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/keys", map[string]interface{}{"name": name, "permissions": perms})
	assertStatusCode(t, w, http.StatusCreated)
	return decodeBody(t, w)
}

func TestAPIKeys_CreateListRotateRevoke(t *testing.T) {
	s := newTestServer(t)

	created := s.createKey(t, "bot", "read", "trade")
	assert.NotEmpty(t, created["secret_key"])
	assert.NotEmpty(t, created["api_key"])
	keyID := created["key_id"].(string)

	w := s.do(t, http.MethodGet, "/api/keys", nil)
	assertStatusCode(t, w, http.StatusOK)
	assert.NotContains(t, w.Body.String(), created["secret_key"].(string))
	listed := decodeBody(t, w)
	assert.Len(t, listed["keys"], 1)
	assert.Equal(t, float64(2), listed["max_active"])

	w = s.do(t, http.MethodPost, "/api/keys/"+keyID+"/rotate", nil)
	assertStatusCode(t, w, http.StatusOK)
	rotated := decodeBody(t, w)
	assert.Equal(t, keyID, rotated["key_id"])
	assert.NotEqual(t, created["api_key"], rotated["api_key"])
	assert.NotEqual(t, created["secret_key"], rotated["secret_key"])

	w = s.do(t, http.MethodDelete, "/api/keys/"+keyID, nil)
	assertStatusCode(t, w, http.StatusOK)

	w = s.do(t, http.MethodPost, "/api/keys/"+keyID+"/rotate", nil)
	assertStatusCode(t, w, http.StatusConflict)
	assertJSONError(t, w, middleware.CodeConflict)
}

func TestAPIKeys_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"permissions": []string{"read"}}},
		{"unknown permission", map[string]interface{}{"name": "x", "permissions": []string{"root"}}},
		{"empty permissions", map[string]interface{}{"name": "x", "permissions": []string{}}},
		{"bad whitelist entry", map[string]interface{}{"name": "x", "permissions": []string{"read"}, "ip_whitelist": []string{"not-an-ip"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/keys", tt.body)
			assertStatusCode(t, w, http.StatusBadRequest)
			assertJSONError(t, w, middleware.CodeValidation)
		})
	}
}

func TestAPIKeys_LimitAndUnknownKey(t *testing.T) {
	s := newTestServer(t)
	s.createKey(t, "one", "read")
	s.createKey(t, "two", "read")

	w := s.do(t, http.MethodPost, "/api/keys", map[string]interface{}{"name": "three", "permissions": []string{"read"}})
	assertStatusCode(t, w, http.StatusConflict)

	w = s.do(t, http.MethodDelete, "/api/keys/"+uuid.NewString(), nil)
	assertStatusCode(t, w, http.StatusNotFound)

	w = s.do(t, http.MethodDelete, "/api/keys/not-a-uuid", nil)
	assertStatusCode(t, w, http.StatusBadRequest)
	fields := decodeBody(t, w)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "id")
}

func TestOrders_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders", map[string]interface{}{
		"symbol": "btc/usdt", "side": "buy", "type": "limit", "price": "42000.5", "quantity": "0.25",
	})
	assertStatusCode(t, w, http.StatusCreated)
	order := decodeBody(t, w)["order"].(map[string]interface{})
	assert.Equal(t, "BTC/USDT", order["symbol"])
	assert.Equal(t, "open", order["status"])
	orderID := order["id"].(string)

	w = s.do(t, http.MethodGet, "/api/orders/"+orderID, nil)
	assertStatusCode(t, w, http.StatusOK)

	w = s.do(t, http.MethodGet, "/api/orders?status=open&symbol=BTC/USDT", nil)
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])

	w = s.do(t, http.MethodPatch, "/api/orders/"+orderID, map[string]interface{}{"status": "cancelled"})
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, "cancelled", decodeBody(t, w)["order"].(map[string]interface{})["status"])

	w = s.do(t, http.MethodPatch, "/api/orders/"+orderID, map[string]interface{}{"status": "cancelled"})
	assertStatusCode(t, w, http.StatusConflict)

	w = s.do(t, http.MethodGet, "/api/notifications", nil)
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])
}

func TestOrders_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"market with price", map[string]interface{}{"symbol": "ETHUSDT", "side": "sell", "type": "market", "price": "10", "quantity": "1"}},
		{"limit without price", map[string]interface{}{"symbol": "ETHUSDT", "side": "sell", "type": "limit", "quantity": "1"}},
		{"zero quantity", map[string]interface{}{"symbol": "ETHUSDT", "side": "sell", "type": "market", "quantity": "0"}},
		{"unknown side", map[string]interface{}{"symbol": "ETHUSDT", "side": "hold", "type": "market", "quantity": "1"}},
		{"bad symbol", map[string]interface{}{"symbol": "$$", "side": "buy", "type": "market", "quantity": "1"}},
		{"missing quantity", map[string]interface{}{"symbol": "ETHUSDT", "side": "buy", "type": "market"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/orders", tt.body)
			assertStatusCode(t, w, http.StatusBadRequest)
			assertJSONError(t, w, middleware.CodeValidation)
		})
	}

	w := s.do(t, http.MethodGet, "/api/orders/"+uuid.NewString(), nil)
	assertStatusCode(t, w, http.StatusNotFound)

	w = s.do(t, http.MethodGet, "/api/orders?status=pending", nil)
	assertStatusCode(t, w, http.StatusBadRequest)
}

func TestOrders_RequireAuthentication(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/anonymous/orders", nil)
	assertStatusCode(t, w, http.StatusUnauthorized)
	assertJSONError(t, w, middleware.CodeUnauthorized)
}

func TestTrades_FillLinkedOrder(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders", map[string]interface{}{
		"symbol": "ETHUSDT", "side": "buy", "type": "limit", "price": "3000", "quantity": "2",
	})
	assertStatusCode(t, w, http.StatusCreated)
	orderID := decodeBody(t, w)["order"].(map[string]interface{})["id"].(string)

	w = s.do(t, http.MethodPost, "/api/trades", map[string]interface{}{
		"order_id": orderID, "symbol": "ETHUSDT", "side": "buy", "price": "3000", "quantity": "0.5", "fee": "0.1",
	})
	assertStatusCode(t, w, http.StatusCreated)

	w = s.do(t, http.MethodGet, "/api/orders/"+orderID, nil)
	order := decodeBody(t, w)["order"].(map[string]interface{})
	assert.Equal(t, "partially_filled", order["status"])
	assert.Equal(t, "0.5", order["filled_quantity"])

	w = s.do(t, http.MethodPost, "/api/trades", map[string]interface{}{
		"order_id": orderID, "symbol": "ETHUSDT", "side": "buy", "price": "3000", "quantity": "5",
	})
	assertStatusCode(t, w, http.StatusBadRequest)

	w = s.do(t, http.MethodGet, "/api/trades?symbol=ETHUSDT", nil)
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])
}

func TestPortfolio_SetAndGet(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/portfolio", nil)
	assertStatusCode(t, w, http.StatusOK)
	assert.Empty(t, decodeBody(t, w)["balances"])

	w = s.do(t, http.MethodPatch, "/api/portfolio/btc", map[string]interface{}{"balance": "1.5", "locked": "0.5"})
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, "BTC", decodeBody(t, w)["balance"].(map[string]interface{})["asset"])

	// the earlier empty read was cached; the write must invalidate it
	w = s.do(t, http.MethodGet, "/api/portfolio", nil)
	balances := decodeBody(t, w)["balances"].([]interface{})
	require.Len(t, balances, 1)
	assert.Equal(t, "1.5", balances[0].(map[string]interface{})["balance"])

	w = s.do(t, http.MethodPatch, "/api/portfolio/BTC", map[string]interface{}{"balance": "1", "locked": "2"})
	assertStatusCode(t, w, http.StatusBadRequest)
}

func TestNotifications_MarkRead(t *testing.T) {
	s := newTestServer(t)
	s.createKey(t, "alerts", "read")
	s.createKey(t, "alerts-2", "read")

	w := s.do(t, http.MethodGet, "/api/notifications?unread=true", nil)
	assertStatusCode(t, w, http.StatusOK)
	items := decodeBody(t, w)["notifications"].([]interface{})
	require.Len(t, items, 2)
	first := items[0].(map[string]interface{})["id"].(string)

	w = s.do(t, http.MethodPatch, "/api/notifications/"+first, nil)
	assertStatusCode(t, w, http.StatusOK)

	w = s.do(t, http.MethodGet, "/api/notifications?unread=true", nil)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])

	w = s.do(t, http.MethodPost, "/api/notifications/read-all", nil)
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, float64(1), decodeBody(t, w)["updated"])

	w = s.do(t, http.MethodPatch, "/api/notifications/"+uuid.NewString(), nil)
	assertStatusCode(t, w, http.StatusNotFound)
}

func TestSecurityLogs(t *testing.T) {
	s := newTestServer(t)
	s.createKey(t, "audited", "read")

	w := s.do(t, http.MethodGet, "/api/security/logs?limit=10", nil)
	assertStatusCode(t, w, http.StatusOK)
	page := decodeBody(t, w)
	// registration plus key creation
	assert.Equal(t, float64(2), page["total"])
	assert.Equal(t, float64(10), page["limit"])
	entries := page["entries"].([]interface{})
	assert.Equal(t, models.ActionAPIKeyCreated, entries[0].(map[string]interface{})["action"])
}

func TestV1_APIKeyAccess(t *testing.T) {
	s := newTestServer(t)
	reader := s.createKey(t, "reader", "read")
	trader := s.createKey(t, "trader", "read", "trade")

	w := s.do(t, http.MethodGet, "/api/v1/account", nil, "X-API-Key", reader["api_key"].(string))
	assertStatusCode(t, w, http.StatusOK)
	account := decodeBody(t, w)
	assert.Equal(t, []interface{}{"read"}, account["permissions"])
	assert.Equal(t, s.userID.String(), account["user"].(map[string]interface{})["id"])

	order := map[string]interface{}{"symbol": "SOLUSDT", "side": "buy", "type": "market", "quantity": "3"}
	w = s.do(t, http.MethodPost, "/api/v1/orders", order, "X-API-Key", reader["api_key"].(string))
	assertStatusCode(t, w, http.StatusForbidden)

	w = s.do(t, http.MethodPost, "/api/v1/orders", order, "Authorization", "Bearer "+trader["api_key"].(string))
	assertStatusCode(t, w, http.StatusCreated)

	w = s.do(t, http.MethodGet, "/api/v1/orders", nil, "X-API-Key", trader["api_key"].(string))
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])

	w = s.do(t, http.MethodGet, "/api/v1/orders", nil, "X-API-Key", "pk_unknown")
	assertStatusCode(t, w, http.StatusUnauthorized)
}

func TestAdmin_LoginAndKeyReports(t *testing.T) {
	s := newTestServer(t)
	zero := 0
	_, err := s.keys.Generate(context.Background(), services.GenerateRequest{
		UserID: s.userID, Name: "stale", Permissions: []models.Permission{models.PermissionRead}, ExpiresInDays: &zero,
	})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/admin/login", map[string]string{"username": "root", "password": "wrong-password"})
	assertStatusCode(t, w, http.StatusUnauthorized)

	w = s.do(t, http.MethodGet, "/admin/keys/expired", nil)
	assertStatusCode(t, w, http.StatusUnauthorized)

	w = s.do(t, http.MethodPost, "/admin/login", map[string]string{"username": "root", "password": "rootpassword"})
	assertStatusCode(t, w, http.StatusOK)
	token := decodeBody(t, w)["token"].(string)
	var cookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == adminCookieName {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	w = s.do(t, http.MethodGet, "/admin/keys/expired", nil, "Authorization", "Bearer "+token)
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])

	w = s.do(t, http.MethodGet, "/admin/keys/rotation-due", nil, "Authorization", "Bearer "+token)
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, float64(90), decodeBody(t, w)["rotation_days"])

	w = s.do(t, http.MethodGet, "/admin/status", nil, "Authorization", "Bearer "+token)
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, "root", decodeBody(t, w)["username"])

	w = s.do(t, http.MethodPost, "/admin/maintenance/run", nil, "Authorization", "Bearer "+token)
	assertStatusCode(t, w, http.StatusNotFound)
}

func TestClientConfig(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/config", nil)
	assertStatusCode(t, w, http.StatusOK)
	body := decodeBody(t, w)["cdn"].(map[string]interface{})
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, "https://cdn.example.com", body["base_url"])
	assert.Equal(t, "https://cdn.example.com/js/app.js?v=abc", body["app_js"])
}

func TestAuthHandler_RegisterLoginLogout(t *testing.T) {
	store := cache.NewManager(cache.NewMemoryStore(0), nil, cache.DefaultPolicies())
	defer store.Close()
	sessions := session.NewManager(session.NewConfig(&config.Config{Environment: config.EnvDevelopment, SessionTTL: time.Hour}),
		"0123456789abcdef0123456789abcdef", "", store)
	authSvc := services.NewAuthService(mock.NewUserRepository(), mock.NewSecurityLogRepository(), 4)
	h := NewAuthHandler(authSvc, sessions, nil)

	router := gin.New()
	router.Use(session.Middleware(sessions))
	router.POST("/register", h.HandleRegister)
	router.POST("/login", h.HandleLogin)
	router.POST("/logout", h.HandleLogout)
	router.GET("/me", middleware.RequireSession(), h.HandleMe)

	send := func(method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != nil {
			reader = jsonBody(t, body)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := send(http.MethodPost, "/register", map[string]string{"email": "new@example.com", "password": "short"}, nil)
	assertStatusCode(t, w, http.StatusBadRequest)
	assert.Contains(t, decodeBody(t, w)["fields"], "password")

	w = send(http.MethodPost, "/register", map[string]string{"email": "new@example.com", "password": "long-enough-pw"}, nil)
	assertStatusCode(t, w, http.StatusCreated)
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = send(http.MethodPost, "/register", map[string]string{"email": "new@example.com", "password": "long-enough-pw"}, nil)
	assertStatusCode(t, w, http.StatusConflict)

	w = send(http.MethodPost, "/login", map[string]string{"email": "new@example.com", "password": "wrong-password"}, nil)
	assertStatusCode(t, w, http.StatusUnauthorized)

	w = send(http.MethodPost, "/login", map[string]string{"email": "NEW@example.com", "password": "long-enough-pw"}, nil)
	assertStatusCode(t, w, http.StatusOK)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	w = send(http.MethodGet, "/me", nil, cookies)
	assertStatusCode(t, w, http.StatusOK)
	assert.Equal(t, "new@example.com", decodeBody(t, w)["user"].(map[string]interface{})["email"])

	w = send(http.MethodPost, "/logout", nil, cookies)
	assertStatusCode(t, w, http.StatusOK)

	w = send(http.MethodGet, "/me", nil, cookies)
	assertStatusCode(t, w, http.StatusUnauthorized)
}
