package db

import (
	types "github.com/docvault/docvault-backend/internal/domain"
)

func (s *PostgresService) AutoMigrateAll() error {
	if err := s.db.AutoMigrate(
		&types.EncryptionKey{},
		&types.Document{},
		&types.RegulatoryDocument{},
		&types.ProcessingJob{},
		&types.DocumentChunk{},
	); err != nil {
		return err
	}
	// FTS index backing the keyword-search fallback over registry titles/tags.
	if err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_title_tags_fts
		ON document USING gin (to_tsvector('english', coalesce(title,'') || ' ' || coalesce(tags,'')));
	`).Error; err != nil {
		return err
	}
	return s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_regulatory_document_title_tags_fts
		ON regulatory_document USING gin (to_tsvector('english', coalesce(title,'') || ' ' || coalesce(tags,'')));
	`).Error
}
