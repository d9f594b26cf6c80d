package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/docvault/docvault-backend/internal/domain"
	domvec "github.com/docvault/docvault-backend/internal/domain/vectors"
)

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID) *types.Document {
	tb.Helper()
	id := uuid.New()
	d := &types.Document{
		ID:          id,
		OwnerUserID: ownerUserID,
		Title:       "test document",
		StorageKey:  fmt.Sprintf("documents/%s/%s/raw", ownerUserID, id),
		ContentHash: uuid.NewString(),
		Status:      types.DocStatusPending,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedRegulatoryDocument(tb testing.TB, ctx context.Context, tx *gorm.DB) *types.RegulatoryDocument {
	tb.Helper()
	id := uuid.New()
	d := &types.RegulatoryDocument{
		ID:           id,
		Title:        "test regulation",
		Jurisdiction: "US",
		StorageKey:   fmt.Sprintf("regulatory/%s/raw", id),
		ContentHash:  uuid.NewString(),
		Status:       types.DocStatusPending,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed regulatory document: %v", err)
	}
	return d
}

func SeedJob(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID, jobType, status string) *types.ProcessingJob {
	tb.Helper()
	now := time.Now().UTC()
	j := &types.ProcessingJob{
		ID:          uuid.New(),
		DocumentID:  documentID,
		SourceType:  types.SourceTypeUserDocument,
		JobType:     jobType,
		Status:      status,
		MaxRetries:  3,
		ScheduledAt: now,
		Payload:     datatypes.JSON([]byte(`{}`)),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job: %v", err)
	}
	return j
}

func SeedEncryptionKey(tb testing.TB, ctx context.Context, tx *gorm.DB, version int, status string) *types.EncryptionKey {
	tb.Helper()
	k := &types.EncryptionKey{
		ID:          uuid.New(),
		Version:     version,
		Status:      status,
		ActivatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(k).Error; err != nil {
		tb.Fatalf("seed encryption key: %v", err)
	}
	return k
}

// MakeEmbedding builds a deterministic vector of the given dimension.
func MakeEmbedding(tb testing.TB, dim int, seed float32) datatypes.JSON {
	tb.Helper()
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = seed + float32(i)*0.001
	}
	raw, err := domvec.EncodeEmbedding(vec)
	if err != nil {
		tb.Fatalf("encode embedding: %v", err)
	}
	return raw
}
