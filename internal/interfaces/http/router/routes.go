package router

import (
	"github.com/crm/backend/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Public paths, mounted outside API versioning
const (
	WebhookPath = "/webhook"
	HealthPath  = "/health"
	SwaggerPath = "/swagger/*any"
)

// SyncRoutes builds the company-scoped sync API. The middleware must
// authenticate the caller and put its company on the context.
func SyncRoutes(h *handler.SyncHandler, middleware ...gin.HandlerFunc) *DomainGroup {
	return NewDomainGroup("sync", "/sync").
		Use(middleware...).
		POST("/sync-all", h.SyncAll).
		POST("/sync-now", h.SyncNow).
		POST("/cleanup-orphaned", h.CleanupOrphaned).
		GET("/scheduler/status", h.SchedulerStatus).
		POST("/scheduler/sweep", h.Sweep).
		POST("/entities/:type/:id/links", h.LinkIssue).
		DELETE("/entities/:type/:id/links/:issue_key", h.Unlink).
		POST("/entities/:type/:id/push", h.Push)
}

// RegisterPublic mounts the unauthenticated webhook and health routes
func RegisterPublic(engine *gin.Engine, webhook *handler.WebhookHandler, system *handler.SystemHandler) {
	engine.POST(WebhookPath, webhook.Receive)
	engine.GET(HealthPath, system.Health)
}

// RegisterDocs mounts the Swagger UI and document behind guard
func RegisterDocs(engine *gin.Engine, guard gin.HandlerFunc) {
	engine.GET(SwaggerPath, guard, ginSwagger.WrapHandler(swaggerFiles.Handler))
}
