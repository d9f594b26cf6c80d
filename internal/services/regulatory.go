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

type IngestRegulatoryInput struct {
	Title        string
	Jurisdiction string
	Citation     string
	Tags         string
	ContentType  string
	Content      io.Reader
}

// RegulatoryDocumentService manages the shared corpus. Rows have no owner;
// ingest sits behind the admin claim at the HTTP layer.
type RegulatoryDocumentService interface {
	Ingest(dbc dbctx.Context, in IngestRegulatoryInput) (*types.RegulatoryDocument, error)
	Get(dbc dbctx.Context, docID uuid.UUID) (*types.RegulatoryDocument, error)
	List(dbc dbctx.Context, jurisdiction string) ([]*types.RegulatoryDocument, error)
	Delete(dbc dbctx.Context, docID uuid.UUID) error
}

type regulatoryDocumentService struct {
	db           *gorm.DB
	log          *logger.Logger
	regDocs      repos.RegulatoryDocumentRepo
	bucket       gcs.BucketService
	orchestrator PipelineOrchestrator
}

func NewRegulatoryDocumentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	regDocs repos.RegulatoryDocumentRepo,
	bucket gcs.BucketService,
	orchestrator PipelineOrchestrator,
) RegulatoryDocumentService {
	return &regulatoryDocumentService{
		db:           db,
		log:          baseLog.With("service", "RegulatoryDocumentService"),
		regDocs:      regDocs,
		bucket:       bucket,
		orchestrator: orchestrator,
	}
}

func (s *regulatoryDocumentService) Ingest(dbc dbctx.Context, in IngestRegulatoryInput) (*types.RegulatoryDocument, error) {
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

	existing, err := s.regDocs.GetByContentHash(dbc, contentHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Debug("Regulatory ingest deduped by content hash", "document_id", existing.ID)
		return existing, nil
	}

	docID := uuid.New()
	storageKey := fmt.Sprintf("regulatory/%s/raw", docID)

	doc := &types.RegulatoryDocument{
		ID:           docID,
		Title:        title,
		Jurisdiction: strings.TrimSpace(in.Jurisdiction),
		Citation:     strings.TrimSpace(in.Citation),
		Tags:         in.Tags,
		StorageKey:   storageKey,
		ContentHash:  contentHash,
		ContentType:  in.ContentType,
		SizeBytes:    int64(len(raw)),
		Status:       types.DocStatusUploading,
	}
	if _, err := s.regDocs.Create(dbc, doc); err != nil {
		return nil, fmt.Errorf("create regulatory document: %w", err)
	}

	if err := s.bucket.Upload(dbc.Ctx, storageKey, in.ContentType, bytes.NewReader(raw)); err != nil {
		if uErr := s.regDocs.UpdateFields(dbc, docID, map[string]interface{}{
			"status":        types.DocStatusFailed,
			"error_message": "upload failed",
		}); uErr != nil {
			s.log.Error("Failed to mark regulatory document after upload error", "document_id", docID, "error", uErr)
		}
		return nil, fmt.Errorf("upload regulatory blob: %w", err)
	}

	if _, err := s.orchestrator.StartPipeline(dbc.Ctx, docID, types.SourceTypeRegulatoryDocument, storageKey); err != nil {
		return nil, fmt.Errorf("start pipeline: %w", err)
	}
	return s.regDocs.GetByID(dbc, docID)
}

func (s *regulatoryDocumentService) Get(dbc dbctx.Context, docID uuid.UUID) (*types.RegulatoryDocument, error) {
	doc, err := s.regDocs.GetByID(dbc, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: regulatory document %s", apperrors.ErrNotFound, docID)
	}
	return doc, nil
}

func (s *regulatoryDocumentService) List(dbc dbctx.Context, jurisdiction string) ([]*types.RegulatoryDocument, error) {
	return s.regDocs.List(dbc, jurisdiction)
}

func (s *regulatoryDocumentService) Delete(dbc dbctx.Context, docID uuid.UUID) error {
	if _, err := s.Get(dbc, docID); err != nil {
		return err
	}
	if err := s.regDocs.Delete(dbc, docID); err != nil {
		return err
	}
	prefix := fmt.Sprintf("regulatory/%s/", docID)
	if err := s.bucket.DeletePrefix(dbc.Ctx, prefix); err != nil {
		s.log.Warn("Blob cleanup failed after regulatory delete", "document_id", docID, "error", err)
	}
	return nil
}
