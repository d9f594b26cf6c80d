package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

type RegulatoryDocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.RegulatoryDocument) (*types.RegulatoryDocument, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RegulatoryDocument, error)
	GetByContentHash(dbc dbctx.Context, contentHash string) (*types.RegulatoryDocument, error)
	List(dbc dbctx.Context, jurisdiction string) ([]*types.RegulatoryDocument, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	AdvanceProgress(dbc dbctx.Context, id uuid.UUID, pct int) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type regulatoryDocumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRegulatoryDocumentRepo(db *gorm.DB, baseLog *logger.Logger) RegulatoryDocumentRepo {
	return &regulatoryDocumentRepo{
		db:  db,
		log: baseLog.With("repo", "RegulatoryDocumentRepo"),
	}
}

func (r *regulatoryDocumentRepo) Create(dbc dbctx.Context, doc *types.RegulatoryDocument) (*types.RegulatoryDocument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if doc == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *regulatoryDocumentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RegulatoryDocument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var doc types.RegulatoryDocument
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&doc).Error
	if err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *regulatoryDocumentRepo) GetByContentHash(dbc dbctx.Context, contentHash string) (*types.RegulatoryDocument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if contentHash == "" {
		return nil, nil
	}
	var doc types.RegulatoryDocument
	err := transaction.WithContext(dbc.Ctx).
		Where("content_hash = ?", contentHash).
		Limit(1).
		Find(&doc).Error
	if err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *regulatoryDocumentRepo) List(dbc dbctx.Context, jurisdiction string) ([]*types.RegulatoryDocument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.RegulatoryDocument{})
	if jurisdiction != "" {
		q = q.Where("jurisdiction = ?", jurisdiction)
	}
	var out []*types.RegulatoryDocument
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *regulatoryDocumentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.RegulatoryDocument{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *regulatoryDocumentRepo) AdvanceProgress(dbc dbctx.Context, id uuid.UUID, pct int) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.RegulatoryDocument{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress_percentage": gorm.Expr("GREATEST(progress_percentage, ?)", pct),
			"updated_at":          time.Now(),
		}).Error
}

func (r *regulatoryDocumentRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.
			Where("regulatory_document_id = ?", id).
			Delete(&types.DocumentChunk{}).Error; err != nil {
			return err
		}
		return txx.Where("id = ?", id).Delete(&types.RegulatoryDocument{}).Error
	})
}
