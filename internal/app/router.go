package app

import (
	"github.com/gin-gonic/gin"

	"github.com/docvault/docvault-backend/internal/server"
)

func wireRouter(handlerset Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AuthMiddleware:    mw.Auth,
		DocumentsHandler:  handlerset.Documents,
		RegulatoryHandler: handlerset.Regulatory,
		SearchHandler:     handlerset.Search,
		JobsHandler:       handlerset.Jobs,
	})
}
