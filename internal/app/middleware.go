package app

import (
	"github.com/docvault/docvault-backend/internal/middleware"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *middleware.AuthMiddleware
}

func wireMiddleware(log *logger.Logger) (Middleware, error) {
	auth, err := middleware.NewAuthMiddleware(log)
	if err != nil {
		return Middleware{}, err
	}
	return Middleware{Auth: auth}, nil
}
