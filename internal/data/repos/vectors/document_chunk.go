package vectors

import (
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/docvault/docvault-backend/internal/domain"
	domvec "github.com/docvault/docvault-backend/internal/domain/vectors"
	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

type DocumentChunkRepo interface {
	Insert(dbc dbctx.Context, chunk *types.DocumentChunk) (*types.DocumentChunk, error)
	DeactivateForDocument(dbc dbctx.Context, sourceType string, owningDocID uuid.UUID) (int64, error)
	GetActiveByDocument(dbc dbctx.Context, sourceType string, owningDocID uuid.UUID) ([]*types.DocumentChunk, error)
	ActiveCandidates(dbc dbctx.Context, sourceType string, ownerUserID *uuid.UUID, limit int) ([]*types.DocumentChunk, error)
	KeywordCandidates(dbc dbctx.Context, query string, sourceType string, ownerUserID *uuid.UUID, limit int) ([]*types.DocumentChunk, error)
}

type documentChunkRepo struct {
	db           *gorm.DB
	log          *logger.Logger
	embeddingDim int
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger, embeddingDim int) DocumentChunkRepo {
	return &documentChunkRepo{
		db:           db,
		log:          baseLog.With("repo", "DocumentChunkRepo"),
		embeddingDim: embeddingDim,
	}
}

// Insert writes one chunk row after enforcing every write-time invariant:
// embedding dimension, source-type/reference pairing, owner presence,
// all-or-none encryption triple, and (document, chunk_index) uniqueness
// among active rows. The uniqueness check runs under a per-document
// transaction-scoped advisory lock so concurrent embed workers for the same
// document serialize instead of racing a check-then-insert.
func (r *documentChunkRepo) Insert(dbc dbctx.Context, chunk *types.DocumentChunk) (*types.DocumentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if chunk == nil {
		return nil, fmt.Errorf("%w: nil chunk", apperrors.ErrValidation)
	}
	if chunk.ChunkIndex < 0 {
		return nil, fmt.Errorf("%w: chunk_index must be >= 0", apperrors.ErrValidation)
	}

	vec, err := domvec.DecodeEmbedding(chunk.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding is not a float array: %v", apperrors.ErrValidation, err)
	}
	if len(vec) != r.embeddingDim {
		return nil, fmt.Errorf("%w: embedding dimension %d, want %d", apperrors.ErrValidation, len(vec), r.embeddingDim)
	}

	switch chunk.SourceType {
	case types.SourceTypeUserDocument:
		if chunk.DocumentID == nil || *chunk.DocumentID == uuid.Nil || chunk.RegulatoryDocumentID != nil {
			return nil, fmt.Errorf("%w: user_document chunk must reference document_id only", apperrors.ErrConstraintViolation)
		}
		if chunk.OwnerUserID == nil || *chunk.OwnerUserID == uuid.Nil {
			return nil, fmt.Errorf("%w: user_document chunk requires owner_user_id", apperrors.ErrConstraintViolation)
		}
	case types.SourceTypeRegulatoryDocument:
		if chunk.RegulatoryDocumentID == nil || *chunk.RegulatoryDocumentID == uuid.Nil || chunk.DocumentID != nil {
			return nil, fmt.Errorf("%w: regulatory_document chunk must reference regulatory_document_id only", apperrors.ErrConstraintViolation)
		}
		if chunk.OwnerUserID != nil {
			return nil, fmt.Errorf("%w: regulatory_document chunk must not carry owner_user_id", apperrors.ErrConstraintViolation)
		}
	default:
		return nil, fmt.Errorf("%w: unknown source_type %q", apperrors.ErrValidation, chunk.SourceType)
	}

	hasText := len(chunk.EncryptedText) > 0
	hasMeta := len(chunk.EncryptedMetadata) > 0
	hasKey := chunk.EncryptionKeyID != nil && *chunk.EncryptionKeyID != uuid.Nil
	if hasText != hasKey || hasMeta != hasKey {
		return nil, fmt.Errorf("%w: encryption triple must be all-null or all-non-null", apperrors.ErrConstraintViolation)
	}

	owningDoc := chunk.OwningDocumentID()
	err = transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := advisoryXactLock(txx, "chunk_insert", owningDoc); err != nil {
			return err
		}
		var count int64
		q := txx.Model(&types.DocumentChunk{}).
			Where("source_type = ? AND chunk_index = ? AND is_active = ?", chunk.SourceType, chunk.ChunkIndex, true)
		if chunk.SourceType == types.SourceTypeUserDocument {
			q = q.Where("document_id = ?", owningDoc)
		} else {
			q = q.Where("regulatory_document_id = ?", owningDoc)
		}
		if err := q.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: active chunk_index %d already exists for document %s",
				apperrors.ErrConstraintViolation, chunk.ChunkIndex, owningDoc)
		}
		chunk.IsActive = true
		return txx.Create(chunk).Error
	})
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// DeactivateForDocument soft-deletes every active chunk of a document,
// clearing the way for an idempotent re-embed.
func (r *documentChunkRepo) DeactivateForDocument(dbc dbctx.Context, sourceType string, owningDocID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if owningDocID == uuid.Nil {
		return 0, nil
	}
	q := transaction.WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("source_type = ? AND is_active = ?", sourceType, true)
	switch sourceType {
	case types.SourceTypeUserDocument:
		q = q.Where("document_id = ?", owningDocID)
	case types.SourceTypeRegulatoryDocument:
		q = q.Where("regulatory_document_id = ?", owningDocID)
	default:
		return 0, fmt.Errorf("%w: unknown source_type %q", apperrors.ErrValidation, sourceType)
	}
	res := q.Update("is_active", false)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *documentChunkRepo) GetActiveByDocument(dbc dbctx.Context, sourceType string, owningDocID uuid.UUID) ([]*types.DocumentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DocumentChunk
	if owningDocID == uuid.Nil {
		return out, nil
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("source_type = ? AND is_active = ?", sourceType, true)
	switch sourceType {
	case types.SourceTypeUserDocument:
		q = q.Where("document_id = ?", owningDocID)
	case types.SourceTypeRegulatoryDocument:
		q = q.Where("regulatory_document_id = ?", owningDocID)
	default:
		return nil, fmt.Errorf("%w: unknown source_type %q", apperrors.ErrValidation, sourceType)
	}
	if err := q.Order("chunk_index ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveCandidates fetches the dense-retrieval candidate set. Owner scoping
// for user_document chunks happens here in SQL, not in a calling layer:
// rows belonging to another owner are never returned.
func (r *documentChunkRepo) ActiveCandidates(dbc dbctx.Context, sourceType string, ownerUserID *uuid.UUID, limit int) ([]*types.DocumentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 1200
	}
	q := transaction.WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("is_active = ?", true).
		Where("embedding IS NOT NULL AND embedding <> '[]'::jsonb")
	q = scopeBySource(q, sourceType, ownerUserID)
	var out []*types.DocumentChunk
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// KeywordCandidates is the no-embedding fallback: Postgres FTS over the
// owning registries' titles and tags, returning those documents' active
// chunks in rank order.
func (r *documentChunkRepo) KeywordCandidates(dbc dbctx.Context, query string, sourceType string, ownerUserID *uuid.UUID, limit int) ([]*types.DocumentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if query == "" {
		return []*types.DocumentChunk{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var out []*types.DocumentChunk
	run := func(sql string, args ...interface{}) error {
		var rows []*types.DocumentChunk
		if err := transaction.WithContext(dbc.Ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
			return err
		}
		out = append(out, rows...)
		return nil
	}

	if sourceType == "" || sourceType == types.SourceTypeUserDocument {
		owner := uuid.Nil
		if ownerUserID != nil {
			owner = *ownerUserID
		}
		if owner != uuid.Nil {
			if err := run(`
				SELECT document_chunk.*
				FROM document_chunk
				JOIN document ON document_chunk.document_id = document.id
				WHERE document_chunk.is_active = true
				  AND document_chunk.source_type = 'user_document'
				  AND document_chunk.owner_user_id = ?
				  AND document.deleted_at IS NULL
				  AND to_tsvector('english', coalesce(document.title,'') || ' ' || coalesce(document.tags,''))
				      @@ plainto_tsquery('english', ?)
				ORDER BY ts_rank(
				    to_tsvector('english', coalesce(document.title,'') || ' ' || coalesce(document.tags,'')),
				    plainto_tsquery('english', ?)) DESC,
				  document_chunk.created_at DESC
				LIMIT ?`, owner, query, query, limit); err != nil {
				return nil, err
			}
		}
	}
	if sourceType == "" || sourceType == types.SourceTypeRegulatoryDocument {
		if err := run(`
			SELECT document_chunk.*
			FROM document_chunk
			JOIN regulatory_document ON document_chunk.regulatory_document_id = regulatory_document.id
			WHERE document_chunk.is_active = true
			  AND document_chunk.source_type = 'regulatory_document'
			  AND regulatory_document.deleted_at IS NULL
			  AND to_tsvector('english', coalesce(regulatory_document.title,'') || ' ' || coalesce(regulatory_document.tags,''))
			      @@ plainto_tsquery('english', ?)
			ORDER BY ts_rank(
			    to_tsvector('english', coalesce(regulatory_document.title,'') || ' ' || coalesce(regulatory_document.tags,'')),
			    plainto_tsquery('english', ?)) DESC,
			  document_chunk.created_at DESC
			LIMIT ?`, query, query, limit); err != nil {
			return nil, err
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func scopeBySource(q *gorm.DB, sourceType string, ownerUserID *uuid.UUID) *gorm.DB {
	owner := uuid.Nil
	if ownerUserID != nil {
		owner = *ownerUserID
	}
	switch sourceType {
	case types.SourceTypeUserDocument:
		return q.Where("source_type = ? AND owner_user_id = ?", types.SourceTypeUserDocument, owner)
	case types.SourceTypeRegulatoryDocument:
		return q.Where("source_type = ?", types.SourceTypeRegulatoryDocument)
	default:
		// Both corpora: regulatory chunks are shared, user chunks only the caller's own.
		return q.Where("source_type = ? OR (source_type = ? AND owner_user_id = ?)",
			types.SourceTypeRegulatoryDocument, types.SourceTypeUserDocument, owner)
	}
}

func advisoryXactLock(tx *gorm.DB, namespace string, id uuid.UUID) error {
	if tx == nil {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", advisoryKey64(namespace, id)).Error
}

func advisoryKey64(namespace string, id uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(id[:])
	return int64(h.Sum64())
}
