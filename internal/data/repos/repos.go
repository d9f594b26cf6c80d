package repos

import (
	"gorm.io/gorm"

	documentsrepo "github.com/docvault/docvault-backend/internal/data/repos/documents"
	jobsrepo "github.com/docvault/docvault-backend/internal/data/repos/jobs"
	vectorsrepo "github.com/docvault/docvault-backend/internal/data/repos/vectors"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

type (
	DocumentRepo           = documentsrepo.DocumentRepo
	RegulatoryDocumentRepo = documentsrepo.RegulatoryDocumentRepo
	ProcessingJobRepo      = jobsrepo.ProcessingJobRepo
	DocumentChunkRepo      = vectorsrepo.DocumentChunkRepo
	EncryptionKeyRepo      = vectorsrepo.EncryptionKeyRepo
)

var (
	NewDocumentRepo           = documentsrepo.NewDocumentRepo
	NewRegulatoryDocumentRepo = documentsrepo.NewRegulatoryDocumentRepo
	NewProcessingJobRepo      = jobsrepo.NewProcessingJobRepo
	NewDocumentChunkRepo      = vectorsrepo.NewDocumentChunkRepo
	NewEncryptionKeyRepo      = vectorsrepo.NewEncryptionKeyRepo
)

// Set bundles every repository behind one wiring point.
type Set struct {
	Documents           DocumentRepo
	RegulatoryDocuments RegulatoryDocumentRepo
	ProcessingJobs      ProcessingJobRepo
	DocumentChunks      DocumentChunkRepo
	EncryptionKeys      EncryptionKeyRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger, embeddingDim int) Set {
	return Set{
		Documents:           NewDocumentRepo(db, baseLog),
		RegulatoryDocuments: NewRegulatoryDocumentRepo(db, baseLog),
		ProcessingJobs:      NewProcessingJobRepo(db, baseLog),
		DocumentChunks:      NewDocumentChunkRepo(db, baseLog, embeddingDim),
		EncryptionKeys:      NewEncryptionKeyRepo(db, baseLog),
	}
}
