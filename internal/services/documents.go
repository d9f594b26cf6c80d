package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docvault/docvault-backend/internal/data/repos"
	types "github.com/docvault/docvault-backend/internal/domain"
	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/gcs"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

type CreateDocumentInput struct {
	Title       string
	ContentType string
	Tags        string
	Content     io.Reader
}

type DocumentService interface {
	Create(dbc dbctx.Context, ownerUserID uuid.UUID, in CreateDocumentInput) (*types.Document, error)
	Get(dbc dbctx.Context, ownerUserID uuid.UUID, docID uuid.UUID) (*types.Document, error)
	List(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.Document, error)
	Cancel(dbc dbctx.Context, ownerUserID uuid.UUID, docID uuid.UUID) (*types.Document, error)
	Delete(dbc dbctx.Context, ownerUserID uuid.UUID, docID uuid.UUID) error
	GetJob(dbc dbctx.Context, ownerUserID uuid.UUID, jobID uuid.UUID) (*types.ProcessingJob, error)
}

type documentService struct {
	db           *gorm.DB
	log          *logger.Logger
	docs         repos.DocumentRepo
	jobs         repos.ProcessingJobRepo
	bucket       gcs.BucketService
	orchestrator PipelineOrchestrator
}

func NewDocumentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	docs repos.DocumentRepo,
	jobs repos.ProcessingJobRepo,
	bucket gcs.BucketService,
	orchestrator PipelineOrchestrator,
) DocumentService {
	return &documentService{
		db:           db,
		log:          baseLog.With("service", "DocumentService"),
		docs:         docs,
		jobs:         jobs,
		bucket:       bucket,
		orchestrator: orchestrator,
	}
}

// Create registers an upload and kicks off its pipeline. The content hash
// dedupes per owner: re-uploading identical bytes returns the existing row
// instead of spawning a second pipeline.
func (s *documentService) Create(dbc dbctx.Context, ownerUserID uuid.UUID, in CreateDocumentInput) (*types.Document, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing owner", apperrors.ErrUnauthorized)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title required", apperrors.ErrValidation)
	}
	if in.Content == nil {
		return nil, fmt.Errorf("%w: document content required", apperrors.ErrValidation)
	}

	raw, err := io.ReadAll(in.Content)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty document", apperrors.ErrValidation)
	}
	sum := sha256.Sum256(raw)
	contentHash := hex.EncodeToString(sum[:])

	existing, err := s.docs.GetByContentHash(dbc, ownerUserID, contentHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Debug("Duplicate upload deduped by content hash",
			"document_id", existing.ID, "owner_user_id", ownerUserID)
		return existing, nil
	}

	docID := uuid.New()
	storageKey := fmt.Sprintf("documents/%s/%s/raw", ownerUserID, docID)

	doc := &types.Document{
		ID:          docID,
		OwnerUserID: ownerUserID,
		Title:       title,
		StorageKey:  storageKey,
		ContentHash: contentHash,
		ContentType: in.ContentType,
		SizeBytes:   int64(len(raw)),
		Tags:        in.Tags,
		Status:      types.DocStatusUploading,
	}
	if _, err := s.docs.Create(dbc, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := s.bucket.Upload(dbc.Ctx, storageKey, in.ContentType, bytes.NewReader(raw)); err != nil {
		if uErr := s.docs.UpdateFields(dbc, docID, map[string]interface{}{
			"status":        types.DocStatusFailed,
			"error_message": "upload failed",
		}); uErr != nil {
			s.log.Error("Failed to mark document after upload error", "document_id", docID, "error", uErr)
		}
		return nil, fmt.Errorf("upload document blob: %w", err)
	}

	if _, err := s.orchestrator.StartPipeline(dbc.Ctx, docID, types.SourceTypeUserDocument, storageKey); err != nil {
		return nil, fmt.Errorf("start pipeline: %w", err)
	}
	return s.docs.GetByID(dbc, docID)
}

func (s *documentService) Get(dbc dbctx.Context, ownerUserID uuid.UUID, docID uuid.UUID) (*types.Document, error) {
	doc, err := s.docs.GetByID(dbc, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", apperrors.ErrNotFound, docID)
	}
	if doc.OwnerUserID != ownerUserID {
		return nil, fmt.Errorf("%w: document %s", apperrors.ErrNotFound, docID)
	}
	return doc, nil
}

func (s *documentService) List(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.Document, error) {
	return s.docs.ListByOwner(dbc, ownerUserID)
}

func (s *documentService) Cancel(dbc dbctx.Context, ownerUserID uuid.UUID, docID uuid.UUID) (*types.Document, error) {
	doc, err := s.Get(dbc, ownerUserID, docID)
	if err != nil {
		return nil, err
	}
	if types.Terminal(doc.Status) {
		return nil, fmt.Errorf("%w: document %s is already %s", apperrors.ErrPreconditionFailed, docID, doc.Status)
	}
	if err := s.orchestrator.CancelPipeline(dbc.Ctx, docID); err != nil {
		return nil, err
	}
	return s.docs.GetByID(dbc, docID)
}

func (s *documentService) Delete(dbc dbctx.Context, ownerUserID uuid.UUID, docID uuid.UUID) error {
	doc, err := s.Get(dbc, ownerUserID, docID)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(dbc, docID); err != nil {
		return err
	}
	prefix := fmt.Sprintf("documents/%s/%s/", ownerUserID, docID)
	if err := s.bucket.DeletePrefix(dbc.Ctx, prefix); err != nil {
		s.log.Warn("Blob cleanup failed after document delete",
			"document_id", docID, "storage_key", doc.StorageKey, "error", err)
	}
	return nil
}

// GetJob is owner-scoped through the job's document.
func (s *documentService) GetJob(dbc dbctx.Context, ownerUserID uuid.UUID, jobID uuid.UUID) (*types.ProcessingJob, error) {
	job, err := s.jobs.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", apperrors.ErrNotFound, jobID)
	}
	if job.SourceType == types.SourceTypeUserDocument {
		if _, err := s.Get(dbc, ownerUserID, job.DocumentID); err != nil {
			return nil, fmt.Errorf("%w: job %s", apperrors.ErrNotFound, jobID)
		}
	}
	return job, nil
}
