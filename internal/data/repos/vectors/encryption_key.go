package vectors

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

type EncryptionKeyRepo interface {
	Create(dbc dbctx.Context, key *types.EncryptionKey) (*types.EncryptionKey, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.EncryptionKey, error)
	CurrentActive(dbc dbctx.Context) (*types.EncryptionKey, error)
	MaxVersion(dbc dbctx.Context) (int, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, fromStatus, toStatus string) (bool, error)
}

type encryptionKeyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEncryptionKeyRepo(db *gorm.DB, baseLog *logger.Logger) EncryptionKeyRepo {
	return &encryptionKeyRepo{
		db:  db,
		log: baseLog.With("repo", "EncryptionKeyRepo"),
	}
}

func (r *encryptionKeyRepo) Create(dbc dbctx.Context, key *types.EncryptionKey) (*types.EncryptionKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if key == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(key).Error; err != nil {
		return nil, err
	}
	return key, nil
}

func (r *encryptionKeyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.EncryptionKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var key types.EncryptionKey
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == uuid.Nil {
		return nil, nil
	}
	return &key, nil
}

func (r *encryptionKeyRepo) CurrentActive(dbc dbctx.Context) (*types.EncryptionKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var key types.EncryptionKey
	err := transaction.WithContext(dbc.Ctx).
		Where("status = ?", types.KeyStatusActive).
		Order("version DESC").
		First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *encryptionKeyRepo) MaxVersion(dbc dbctx.Context) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var max *int
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.EncryptionKey{}).
		Select("MAX(version)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// UpdateStatus performs a guarded status transition, locking the row first
// so concurrent rotations serialize.
func (r *encryptionKeyRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, fromStatus, toStatus string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":     toStatus,
		"updated_at": now,
	}
	switch toStatus {
	case types.KeyStatusRotated:
		updates["rotated_at"] = now
	case types.KeyStatusRetired:
		updates["retired_at"] = now
	}
	var changed bool
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var key types.EncryptionKey
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ?", id, fromStatus).
			First(&key).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		if uErr := txx.Model(&types.EncryptionKey{}).Where("id = ?", id).Updates(updates).Error; uErr != nil {
			return uErr
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}
