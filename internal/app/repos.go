package app

import (
	"gorm.io/gorm"

	"github.com/docvault/docvault-backend/internal/data/repos"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

func wireRepos(db *gorm.DB, log *logger.Logger, cfg Config) repos.Set {
	return repos.NewSet(db, log, cfg.EmbeddingDim)
}
