package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cache"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store := cache.NewManager(cache.NewMemoryStore(0), nil, cache.DefaultPolicies())
	t.Cleanup(func() { _ = store.Close() })
	cfg := NewConfig(&config.Config{Environment: config.EnvDevelopment, SessionTTL: time.Hour})
	return NewManager(cfg, "0123456789abcdef0123456789abcdef", "", store)
}

func TestNewConfig_Profiles(t *testing.T) {
	prod := NewConfig(&config.Config{Environment: config.EnvProduction, SessionTTL: 2 * time.Hour})
	assert.True(t, prod.Secure)
	assert.True(t, prod.HTTPOnly)
	assert.Equal(t, http.SameSiteStrictMode, prod.SameSite)
	assert.True(t, prod.TrustProxy)
	assert.NotEmpty(t, prod.TrustedProxies)
	assert.Equal(t, 2*time.Hour, prod.TTL)

	dev := NewConfig(&config.Config{Environment: config.EnvDevelopment})
	assert.False(t, dev.Secure)
	assert.Equal(t, http.SameSiteLaxMode, dev.SameSite)
	assert.False(t, dev.TrustProxy)
	assert.Equal(t, 24*time.Hour, dev.TTL)
}

func TestApplyProxyTrust(t *testing.T) {
	clientIP := func(cfg Config) string {
		router := gin.New()
		require.NoError(t, ApplyProxyTrust(router, cfg))
		router.GET("/ip", func(c *gin.Context) { c.String(http.StatusOK, c.ClientIP()) })

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ip", nil)
		req.RemoteAddr = "10.0.3.7:41000"
		req.Header.Set("X-Forwarded-For", "203.0.113.50")
		router.ServeHTTP(w, req)
		return w.Body.String()
	}

	prod := NewConfig(&config.Config{Environment: config.EnvProduction})
	assert.Equal(t, "203.0.113.50", clientIP(prod))

	dev := NewConfig(&config.Config{Environment: config.EnvDevelopment})
	assert.Nil(t, dev.Proxies())
	assert.Equal(t, "10.0.3.7", clientIP(dev))

	devBehindProxy := NewConfig(&config.Config{Environment: config.EnvDevelopment, TrustedProxies: []string{"10.0.3.0/24"}})
	assert.Equal(t, "203.0.113.50", clientIP(devBehindProxy))

	prodOtherProxy := NewConfig(&config.Config{Environment: config.EnvProduction, TrustedProxies: []string{"192.0.2.1"}})
	assert.Equal(t, "10.0.3.7", clientIP(prodOtherProxy))
}

func TestManager_StartLoadDestroy(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New()

	w := httptest.NewRecorder()
	sess, err := m.Start(ctx, w, userID, "trader@example.com")
	require.NoError(t, err)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotContains(t, cookies[0].Value, sess.ID, "cookie must not carry the raw session id")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	loaded, err := m.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, userID, loaded.UserID)

	m.Destroy(ctx, httptest.NewRecorder(), loaded)
	_, err = m.Load(ctx, req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_RejectsTamperedCookie(t *testing.T) {
	m := newTestManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "forged"})

	_, err := m.Load(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_ExpiredSessionIsRejected(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	start := time.Now()
	m.now = func() time.Time { return start }

	w := httptest.NewRecorder()
	_, err := m.Start(ctx, w, uuid.New(), "a@example.com")
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Hour) }
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(w.Result().Cookies()[0])
	_, err = m.Load(ctx, req)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_TouchExtendsRollingSession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	start := time.Now()
	m.now = func() time.Time { return start }

	sess, err := m.Start(ctx, httptest.NewRecorder(), uuid.New(), "a@example.com")
	require.NoError(t, err)

	// Early in the lifetime nothing changes
	w := httptest.NewRecorder()
	m.Touch(ctx, w, sess)
	assert.Empty(t, w.Result().Cookies())

	m.now = func() time.Time { return start.Add(40 * time.Minute) }
	w = httptest.NewRecorder()
	m.Touch(ctx, w, sess)
	assert.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, start.Add(100*time.Minute), sess.ExpiresAt)
}

func TestMiddleware_LoadsSession(t *testing.T) {
	m := newTestManager(t)
	w := httptest.NewRecorder()
	sess, err := m.Start(context.Background(), w, uuid.New(), "a@example.com")
	require.NoError(t, err)

	router := gin.New()
	router.Use(SecurityHeaders(m.Config()), Middleware(m))
	router.GET("/me", func(c *gin.Context) {
		cur, ok := Current(c)
		if !ok {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.String(http.StatusOK, cur.UserID.String())
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(w.Result().Cookies()[0])
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sess.UserID.String(), rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
