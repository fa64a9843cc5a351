package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cache"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth_Success(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		w, c := createTestContext()
		c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

		mgr := cache.NewManager(cache.NewMemoryStore(0), nil, cache.DefaultPolicies())
		defer mgr.Close()
		handler := NewHealthHandler(database.NewFromPool(tdb.Pool, database.Options{}), mgr)

		handler.HandleHealth(c)

		assertStatusCode(t, w, http.StatusOK)
		response := decodeBody(t, w)
		assert.Equal(t, "ok", response["status"])
		assert.Equal(t, "connected", response["database"])
		assert.Contains(t, response, "db_latency")
		assert.Contains(t, response, "uptime")
		assert.Contains(t, response, "cache")
	})
}

func TestHandleHealth_DBError(t *testing.T) {
	w, c := createTestContext()
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	handler := NewHealthHandler(database.NewFromPool(nil, database.Options{}), nil)
	handler.HandleHealth(c)

	assertStatusCode(t, w, http.StatusServiceUnavailable)
	response := decodeBody(t, w)
	assert.Equal(t, "unhealthy", response["status"])
	assert.Equal(t, "disconnected", response["database"])
	assert.Contains(t, response, "error")
}

func TestHandleHealth_DegradedDependency(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		w, c := createTestContext()
		c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

		handler := NewHealthHandler(database.NewFromPool(tdb.Pool, database.Options{}), nil)
		handler.AddCheck("redis", func(ctx context.Context) error {
			return errors.New("connection refused")
		})
		handler.HandleHealth(c)

		assertStatusCode(t, w, http.StatusOK)
		response := decodeBody(t, w)
		assert.Equal(t, "degraded", response["status"])
		deps, ok := response["dependencies"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "connection refused", deps["redis"])
	})
}

func TestHandleInfo(t *testing.T) {
	w, c := createTestContext()
	c.Request = httptest.NewRequest(http.MethodGet, "/info", nil)

	handler := NewHealthHandler(database.NewFromPool(nil, database.Options{}), nil)
	handler.HandleInfo(c)

	assertStatusCode(t, w, http.StatusOK)
	response := decodeBody(t, w)
	assert.Equal(t, "cex-api", response["service"])
	assert.Equal(t, Version, response["version"])
	assert.Contains(t, response, "uptime")
}

func TestHandleReady(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		w, c := createTestContext()
		c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

		handler := NewHealthHandler(database.NewFromPool(tdb.Pool, database.Options{}), nil)
		handler.HandleReady(c)

		assertStatusCode(t, w, http.StatusOK)
		assert.Equal(t, true, decodeBody(t, w)["ready"])
	})
}

func TestHandleReady_DBError(t *testing.T) {
	w, c := createTestContext()
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

	handler := NewHealthHandler(database.NewFromPool(nil, database.Options{}), nil)
	handler.HandleReady(c)

	assertStatusCode(t, w, http.StatusServiceUnavailable)
	assert.Equal(t, false, decodeBody(t, w)["ready"])
}
