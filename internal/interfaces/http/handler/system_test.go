package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(h *SystemHandler) *httptest.ResponseRecorder {
	router := gin.New()
	router.GET("/health", h.Health)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	return w
}

func TestSystemHandler_Health_NoChecks(t *testing.T) {
	w := serveHealth(NewSystemHandler("1.2.3", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, w)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.NotContains(t, data, "checks")
}

func TestSystemHandler_Health_AllHealthy(t *testing.T) {
	h := NewSystemHandler("dev", map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	})

	w := serveHealth(h)

	assert.Equal(t, http.StatusOK, w.Code)
	checks, ok := dataMap(t, w)["checks"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", checks["database"])
}

func TestSystemHandler_Health_Degraded(t *testing.T) {
	h := NewSystemHandler("dev", map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return assert.AnError },
	})

	w := serveHealth(h)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	data := dataMap(t, w)
	assert.Equal(t, "degraded", data["status"])
	checks := data["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["database"])
	assert.Equal(t, "unavailable", checks["redis"])
}
