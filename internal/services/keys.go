package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docvault/docvault-backend/internal/data/repos"
	types "github.com/docvault/docvault-backend/internal/domain"
	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/cryptobox"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

// EncryptionKeyService owns the key registry lifecycle. Rotation retires
// nothing: old versions stay resolvable so historical chunk rows keep
// decrypting until they are re-encrypted or dropped.
type EncryptionKeyService interface {
	CurrentActiveKey(dbc dbctx.Context) (*types.EncryptionKey, error)
	EnsureActiveKey(dbc dbctx.Context) (*types.EncryptionKey, error)
	Rotate(dbc dbctx.Context) (*types.EncryptionKey, error)
	Retire(dbc dbctx.Context, keyID uuid.UUID) error
	Keyring() *cryptobox.Keyring
}

type encryptionKeyService struct {
	db      *gorm.DB
	log     *logger.Logger
	repo    repos.EncryptionKeyRepo
	keyring *cryptobox.Keyring
}

func NewEncryptionKeyService(db *gorm.DB, baseLog *logger.Logger, repo repos.EncryptionKeyRepo, keyring *cryptobox.Keyring) EncryptionKeyService {
	return &encryptionKeyService{
		db:      db,
		log:     baseLog.With("service", "EncryptionKeyService"),
		repo:    repo,
		keyring: keyring,
	}
}

func (s *encryptionKeyService) Keyring() *cryptobox.Keyring { return s.keyring }

func (s *encryptionKeyService) CurrentActiveKey(dbc dbctx.Context) (*types.EncryptionKey, error) {
	key, err := s.repo.CurrentActive(dbc)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("%w: no active encryption key", apperrors.ErrPreconditionFailed)
	}
	if !s.keyring.HasVersion(key.Version) {
		return nil, fmt.Errorf("%w: key v%d registered but no material in environment", apperrors.ErrPreconditionFailed, key.Version)
	}
	return key, nil
}

// EnsureActiveKey bootstraps the registry on first run: if no active key
// exists, version max+1 is registered, provided its material is loadable.
func (s *encryptionKeyService) EnsureActiveKey(dbc dbctx.Context) (*types.EncryptionKey, error) {
	existing, err := s.repo.CurrentActive(dbc)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.registerNextVersion(dbc)
}

// Rotate marks the current active key rotated and registers the next
// version as active, in one transaction.
func (s *encryptionKeyService) Rotate(dbc dbctx.Context) (*types.EncryptionKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	var fresh *types.EncryptionKey
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		txc := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		current, cErr := s.repo.CurrentActive(txc)
		if cErr != nil {
			return cErr
		}
		if current != nil {
			ok, uErr := s.repo.UpdateStatus(txc, current.ID, types.KeyStatusActive, types.KeyStatusRotated)
			if uErr != nil {
				return uErr
			}
			if !ok {
				return fmt.Errorf("%w: key %s no longer active", apperrors.ErrPreconditionFailed, current.ID)
			}
		}
		k, rErr := s.registerNextVersion(txc)
		if rErr != nil {
			return rErr
		}
		fresh = k
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Encryption key rotated", "new_version", fresh.Version)
	return fresh, nil
}

func (s *encryptionKeyService) Retire(dbc dbctx.Context, keyID uuid.UUID) error {
	ok, err := s.repo.UpdateStatus(dbc, keyID, types.KeyStatusRotated, types.KeyStatusRetired)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: key %s is not rotated", apperrors.ErrPreconditionFailed, keyID)
	}
	return nil
}

func (s *encryptionKeyService) registerNextVersion(dbc dbctx.Context) (*types.EncryptionKey, error) {
	max, err := s.repo.MaxVersion(dbc)
	if err != nil {
		return nil, err
	}
	version := max + 1
	if !s.keyring.HasVersion(version) {
		return nil, fmt.Errorf("%w: no material for key v%d, set CHUNK_KEY_V%d", apperrors.ErrPreconditionFailed, version, version)
	}
	key := &types.EncryptionKey{
		ID:          uuid.New(),
		Version:     version,
		Status:      types.KeyStatusActive,
		ActivatedAt: time.Now(),
	}
	return s.repo.Create(dbc, key)
}
