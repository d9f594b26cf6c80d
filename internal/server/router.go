package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/docvault/docvault-backend/internal/handlers"
	"github.com/docvault/docvault-backend/internal/middleware"
	"github.com/docvault/docvault-backend/internal/platform/envutil"
)

type RouterConfig struct {
	AuthMiddleware    *middleware.AuthMiddleware
	DocumentsHandler  *handlers.DocumentsHandler
	RegulatoryHandler *handlers.RegulatoryHandler
	SearchHandler     *handlers.SearchHandler
	JobsHandler       *handlers.JobsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// otelgin must run before AttachTraceContext so the span's trace ID is
	// available as the request correlation fallback.
	router.Use(otelgin.Middleware("docvault"))
	router.Use(middleware.AttachTraceContext())

	origins := strings.Split(envutil.Str("CORS_ALLOW_ORIGINS", "http://localhost:3000"), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	{
		api.POST("/documents", cfg.DocumentsHandler.Create)
		api.GET("/documents", cfg.DocumentsHandler.List)
		api.GET("/documents/:id", cfg.DocumentsHandler.Get)
		api.POST("/documents/:id/cancel", cfg.DocumentsHandler.Cancel)
		api.DELETE("/documents/:id", cfg.DocumentsHandler.Delete)

		api.GET("/jobs/:id", cfg.JobsHandler.Get)

		api.POST("/search", cfg.SearchHandler.Search)

		api.GET("/regulatory-documents", cfg.RegulatoryHandler.List)
		api.GET("/regulatory-documents/:id", cfg.RegulatoryHandler.Get)

		admin := api.Group("/admin")
		admin.Use(cfg.AuthMiddleware.RequireAdmin())
		{
			admin.POST("/regulatory-documents", cfg.RegulatoryHandler.Ingest)
		}
	}

	return router
}
