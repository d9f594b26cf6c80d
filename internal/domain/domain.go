package domain

import (
	"github.com/docvault/docvault-backend/internal/domain/documents"
	"github.com/docvault/docvault-backend/internal/domain/jobs"
	"github.com/docvault/docvault-backend/internal/domain/vectors"
)

type (
	Document           = documents.Document
	RegulatoryDocument = documents.RegulatoryDocument
	ProcessingJob      = jobs.ProcessingJob
	DocumentChunk      = vectors.DocumentChunk
	EncryptionKey      = vectors.EncryptionKey
)

const (
	DocStatusPending    = documents.StatusPending
	DocStatusUploading  = documents.StatusUploading
	DocStatusProcessing = documents.StatusProcessing
	DocStatusChunking   = documents.StatusChunking
	DocStatusEmbedding  = documents.StatusEmbedding
	DocStatusCompleted  = documents.StatusCompleted
	DocStatusFailed     = documents.StatusFailed
	DocStatusCancelled  = documents.StatusCancelled

	JobTypeParse    = jobs.JobTypeParse
	JobTypeChunk    = jobs.JobTypeChunk
	JobTypeEmbed    = jobs.JobTypeEmbed
	JobTypeComplete = jobs.JobTypeComplete
	JobTypeNotify   = jobs.JobTypeNotify

	JobStatusPending   = jobs.StatusPending
	JobStatusRunning   = jobs.StatusRunning
	JobStatusCompleted = jobs.StatusCompleted
	JobStatusFailed    = jobs.StatusFailed
	JobStatusCancelled = jobs.StatusCancelled
	JobStatusRetrying  = jobs.StatusRetrying

	SourceTypeUserDocument       = vectors.SourceTypeUserDocument
	SourceTypeRegulatoryDocument = vectors.SourceTypeRegulatoryDocument

	KeyStatusActive  = vectors.KeyStatusActive
	KeyStatusRotated = vectors.KeyStatusRotated
	KeyStatusRetired = vectors.KeyStatusRetired
)

var (
	Terminal       = documents.Terminal
	TerminalStatus = jobs.TerminalStatus
	KnownJobType   = jobs.KnownJobType
)
