package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cache"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/config"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories/mock"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	result    *services.ValidationResult
	err       error
	gotPerms  []models.Permission
	gotKey    string
	gotSecret string
	gotSource string
}

func (f *fakeValidator) ValidateWithSecret(_ context.Context, publicKey, secret string, required []models.Permission, sourceIP string) (*services.ValidationResult, error) {
	f.gotKey, f.gotSecret, f.gotPerms, f.gotSource = publicKey, secret, required, sourceIP
	return f.result, f.err
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func apiKeyRouter(v KeyValidator, perms ...models.Permission) *gin.Engine {
	router := gin.New()
	router.GET("/v1", RequireAPIKey(v, perms...), func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id.String(), "key_id": c.GetString(APIKeyIDKey)})
	})
	return router
}

func TestRequireAPIKey(t *testing.T) {
	userID, keyID := uuid.New(), uuid.New()
	valid := &services.ValidationResult{Valid: true, UserID: userID, KeyID: keyID, Permissions: []models.Permission{models.PermissionRead}}

	tests := []struct {
		name       string
		validator  *fakeValidator
		headers    map[string]string
		wantStatus int
		wantMsg    string
	}{
		{"missing key", &fakeValidator{}, nil, http.StatusUnauthorized, "API key required"},
		{"header key", &fakeValidator{result: valid}, map[string]string{"X-API-Key": "ak_1"}, http.StatusOK, ""},
		{"bearer key", &fakeValidator{result: valid}, map[string]string{"Authorization": "Bearer ak_1"}, http.StatusOK, ""},
		{"expired", &fakeValidator{result: &services.ValidationResult{Error: services.ReasonExpired}}, map[string]string{"X-API-Key": "ak_1"}, http.StatusUnauthorized, services.ReasonExpired},
		{"inactive", &fakeValidator{result: &services.ValidationResult{Error: services.ReasonInactive}}, map[string]string{"X-API-Key": "ak_1"}, http.StatusUnauthorized, services.ReasonInactive},
		{"ip denied", &fakeValidator{result: &services.ValidationResult{Error: services.ReasonIPNotAllowed}}, map[string]string{"X-API-Key": "ak_1"}, http.StatusForbidden, services.ReasonIPNotAllowed},
		{"permissions", &fakeValidator{result: &services.ValidationResult{Error: services.ReasonInsufficientPermissions}}, map[string]string{"X-API-Key": "ak_1"}, http.StatusForbidden, services.ReasonInsufficientPermissions},
		{"wrong secret", &fakeValidator{result: &services.ValidationResult{Error: services.ReasonInvalidSecret}}, map[string]string{"X-API-Key": "ak_1", "X-API-Secret": "sk_bad"}, http.StatusUnauthorized, services.ReasonInvalidSecret},
		{"right secret", &fakeValidator{result: valid}, map[string]string{"X-API-Key": "ak_1", "X-API-Secret": "sk_ok"}, http.StatusOK, ""},
		{"storage error", &fakeValidator{err: errors.New("db down")}, map[string]string{"X-API-Key": "ak_1"}, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/v1", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			apiKeyRouter(tt.validator, models.PermissionRead).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), userID.String())
				assert.Contains(t, w.Body.String(), keyID.String())
				assert.Equal(t, "ak_1", tt.validator.gotKey)
				assert.Equal(t, []models.Permission{models.PermissionRead}, tt.validator.gotPerms)
				assert.Equal(t, tt.headers["X-API-Secret"], tt.validator.gotSecret)
				return
			}
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, decodeError(t, w).Message)
			}
		})
	}
}

func TestRequireAPIKey_WithKeyManager(t *testing.T) {
	mgr := services.NewAPIKeyManager(mock.NewAPIKeyRepository(), mock.NewSecurityLogRepository(), services.KeyPolicy{MaxActiveKeys: 5, DefaultExpiryDays: 30, BcryptCost: 4}, nil)
	issued, err := mgr.Generate(context.Background(), services.GenerateRequest{
		UserID:      uuid.New(),
		Name:        "reader",
		Permissions: []models.Permission{models.PermissionRead},
	})
	require.NoError(t, err)

	router := gin.New()
	router.POST("/v1/orders", RequireAPIKey(mgr, models.PermissionTrade), func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.Header.Set("X-API-Key", issued.PublicKey)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, services.ReasonInsufficientPermissions, decodeError(t, w).Message)
}

func TestRequireAPIKey_WrongSecretIsAudited(t *testing.T) {
	keys, audit := mock.NewAPIKeyRepository(), mock.NewSecurityLogRepository()
	mgr := services.NewAPIKeyManager(keys, audit, services.KeyPolicy{MaxActiveKeys: 5, DefaultExpiryDays: 30, BcryptCost: 4}, nil)
	issued, err := mgr.Generate(context.Background(), services.GenerateRequest{
		UserID:      uuid.New(),
		Name:        "reader",
		Permissions: []models.Permission{models.PermissionRead},
	})
	require.NoError(t, err)

	router := apiKeyRouter(mgr, models.PermissionRead)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1", nil)
	req.Header.Set("X-API-Key", issued.PublicKey)
	req.Header.Set("X-API-Secret", "sk_wrong")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, services.ReasonInvalidSecret, decodeError(t, w).Message)

	var failures []models.SecurityLogEntry
	for _, e := range audit.Entries() {
		if e.Action == models.ActionAPIKeyValidationFailed {
			failures = append(failures, e)
		}
	}
	require.Len(t, failures, 1)
	assert.Equal(t, services.ReasonInvalidSecret, failures[0].Details["reason"])
	assert.Equal(t, issued.KeyID.String(), failures[0].Details["key_id"])

	stored, ok := keys.Stored(issued.KeyID)
	require.True(t, ok)
	assert.Nil(t, stored.LastUsed)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1", nil)
	req.Header.Set("X-API-Key", issued.PublicKey)
	req.Header.Set("X-API-Secret", issued.SecretKey)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuthMiddleware(t *testing.T) {
	repo := mock.NewAdminRepository()
	admins := services.NewAdminService(repo, "0123456789abcdef0123456789abcdef")
	admin, err := admins.CreateAdminUser(context.Background(), "root", "supersecret")
	require.NoError(t, err)
	token, err := admins.IssueToken(admin)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/admin", AdminAuthMiddleware(admins), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(AdminNameKey))
	})

	serve := func(mutate func(*http.Request)) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		mutate(req)
		router.ServeHTTP(w, req)
		return w
	}

	w := serve(func(r *http.Request) {})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(func(r *http.Request) { r.Header.Set("Authorization", "Bearer invalid_token") })
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "root", w.Body.String())

	w = serve(func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "admin_token", Value: token}) })
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireSession(t *testing.T) {
	store := cache.NewManager(cache.NewMemoryStore(0), nil, cache.DefaultPolicies())
	cfg := session.NewConfig(&config.Config{Environment: config.EnvDevelopment, SessionTTL: time.Hour})
	sessions := session.NewManager(cfg, "0123456789abcdef0123456789abcdef", "", store)

	router := gin.New()
	router.Use(session.Middleware(sessions))
	router.GET("/me", RequireSession(), func(c *gin.Context) {
		id, ok := UserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.String())
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeUnauthorized, decodeError(t, w).Error)

	userID := uuid.New()
	login := httptest.NewRecorder()
	_, err := sessions.Start(context.Background(), login, userID, "me@example.com")
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, ck := range login.Result().Cookies() {
		req.AddCookie(ck)
	}
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, Burst: 2})
	defer limiter.Stop()

	router := gin.New()
	router.GET("/limited", limiter.Middleware(func(c *gin.Context) string { return c.GetHeader("X-Client") }), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	hit := func(client string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/limited", nil)
		req.Header.Set("X-Client", client)
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, hit("a").Code)
	assert.Equal(t, http.StatusOK, hit("a").Code)
	w := hit("a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, CodeRateLimited, decodeError(t, w).Error)

	assert.Equal(t, http.StatusOK, hit("b").Code, "buckets are per key")
	assert.Equal(t, 2, limiter.Len())

	limiter.cleanup(time.Now().Add(time.Hour))
	assert.Equal(t, 0, limiter.Len())
	limiter.Stop()
}

type bindTarget struct {
	Email string   `json:"email" binding:"required,email"`
	Name  string   `json:"name" binding:"required,max=5"`
	Hosts []string `json:"hosts" binding:"omitempty,dive,ip|cidr"`
}

func TestBindJSON_TranslatesValidationErrors(t *testing.T) {
	router := gin.New()
	router.POST("/bind", func(c *gin.Context) {
		var in bindTarget
		if !BindJSON(c, &in) {
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(`{"email":"nope","name":"toolong"}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, CodeValidation, body.Error)
	assert.Equal(t, "must be a valid email address", body.Fields["email"])
	assert.Equal(t, "must be at most 5", body.Fields["name"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(`{"email":"a@b.co","name":"ok","hosts":["10.0.0.0/8","office"]}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "must be an IP address or CIDR range", decodeError(t, w).Fields["hosts[1]"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(`{not json`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(`{"email":"a@b.co","name":"ok"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware(), Recovery())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeInternal, decodeError(t, w).Error)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.GET("/api/orders", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.NoRoute(NotFound())
	router.NoMethod(MethodNotAllowed())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, w).Error)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/orders", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, CodeMethodNotAllowed, decodeError(t, w).Error)
}
