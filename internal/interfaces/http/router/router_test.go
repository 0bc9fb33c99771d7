package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crm/backend/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	group := NewDomainGroup("test", "/test").
		GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	NewRouter(engine, WithAPIVersion("v1")).Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("sync", "/sync")
		assert.Equal(t, "sync", g.Name())
		assert.Equal(t, "/sync", g.Prefix())
	})

	t.Run("registers each method", func(t *testing.T) {
		ok := func(c *gin.Context) { c.Status(http.StatusOK) }
		g := NewDomainGroup("items", "/items").
			GET("/", ok).
			POST("/", ok).
			DELETE("/:id", ok)

		engine := gin.New()
		g.RegisterRoutes(engine.Group("/api"))

		for _, tc := range []struct{ method, path string }{
			{http.MethodGet, "/api/items/"},
			{http.MethodPost, "/api/items/"},
			{http.MethodDelete, "/api/items/42"},
		} {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, http.StatusOK, w.Code, "%s %s", tc.method, tc.path)
		}
	})

	t.Run("middleware runs before handlers", func(t *testing.T) {
		var order []string
		g := NewDomainGroup("items", "/items").
			Use(func(c *gin.Context) { order = append(order, "mw") }).
			GET("", func(c *gin.Context) {
				order = append(order, "handler")
				c.Status(http.StatusOK)
			})

		engine := gin.New()
		g.RegisterRoutes(&engine.RouterGroup)

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"mw", "handler"}, order)
	})
}

func TestSyncRoutes(t *testing.T) {
	engine := gin.New()
	denied := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }
	h := handler.NewSyncHandler(nil, nil, nil, nil)

	NewRouter(engine).Register(SyncRoutes(h, denied)).Setup()

	registered := make(map[string]bool)
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/sync/sync-all",
		"POST /api/v1/sync/sync-now",
		"POST /api/v1/sync/cleanup-orphaned",
		"GET /api/v1/sync/scheduler/status",
		"POST /api/v1/sync/scheduler/sweep",
		"POST /api/v1/sync/entities/:type/:id/links",
		"DELETE /api/v1/sync/entities/:type/:id/links/:issue_key",
		"POST /api/v1/sync/entities/:type/:id/push",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}

	t.Run("middleware guards every route", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sync/sync-now", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRegisterPublic(t *testing.T) {
	engine := gin.New()
	RegisterPublic(engine, handler.NewWebhookHandler(nil), handler.NewSystemHandler("test", nil))

	paths := make(map[string]string)
	for _, route := range engine.Routes() {
		paths[route.Path] = route.Method
	}
	assert.Equal(t, http.MethodPost, paths[WebhookPath])
	require.Equal(t, http.MethodGet, paths[HealthPath])

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterDocs(t *testing.T) {
	engine := gin.New()
	hidden := func(c *gin.Context) { c.AbortWithStatus(http.StatusNotFound) }
	RegisterDocs(engine, hidden)

	routes := engine.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, http.MethodGet, routes[0].Method)
	assert.Equal(t, SwaggerPath, routes[0].Path)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
