package documents

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/docvault/docvault-backend/internal/data/repos/testutil"
	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
)

func TestAdvanceProgressIsMonotonic(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, uuid.New())

	if err := repo.AdvanceProgress(dbc, doc.ID, 50); err != nil {
		t.Fatalf("advance to 50: %v", err)
	}
	// A late, smaller advance must not move the column backwards.
	if err := repo.AdvanceProgress(dbc, doc.ID, 25); err != nil {
		t.Fatalf("advance to 25: %v", err)
	}
	got, err := repo.GetByID(dbc, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ProgressPercentage != 50 {
		t.Fatalf("progress = %d, want 50", got.ProgressPercentage)
	}

	if err := repo.AdvanceProgress(dbc, doc.ID, 150); err != nil {
		t.Fatalf("advance past 100: %v", err)
	}
	got, _ = repo.GetByID(dbc, doc.ID)
	if got.ProgressPercentage != 100 {
		t.Fatalf("progress = %d, want clamp at 100", got.ProgressPercentage)
	}
}

func TestGetByContentHashScopesOwner(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	owner := uuid.New()
	doc := testutil.SeedDocument(t, ctx, tx, owner)

	got, err := repo.GetByContentHash(dbc, owner, doc.ContentHash)
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if got == nil || got.ID != doc.ID {
		t.Fatalf("expected the seeded document back")
	}

	other, err := repo.GetByContentHash(dbc, uuid.New(), doc.ContentHash)
	if err != nil {
		t.Fatalf("get by hash other owner: %v", err)
	}
	if other != nil {
		t.Fatalf("another owner must not see the document by hash")
	}
}

func TestDocumentStatusGuard(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, uuid.New())
	if err := repo.UpdateFields(dbc, doc.ID, map[string]interface{}{"status": types.DocStatusFailed}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	ok, err := repo.UpdateFieldsWhereStatus(dbc, doc.ID,
		[]string{types.DocStatusPending, types.DocStatusProcessing},
		map[string]interface{}{"status": types.DocStatusCompleted})
	if err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	if ok {
		t.Fatalf("terminal document must not transition to completed")
	}
}

func TestDeleteCascadesChunks(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	owner := uuid.New()
	doc := testutil.SeedDocument(t, ctx, tx, owner)

	docID := doc.ID
	chunk := &types.DocumentChunk{
		ID:          uuid.New(),
		ChunkIndex:  0,
		SourceType:  types.SourceTypeUserDocument,
		DocumentID:  &docID,
		OwnerUserID: &owner,
		Embedding:   testutil.MakeEmbedding(t, 8, 0.1),
		IsActive:    true,
	}
	if err := tx.WithContext(ctx).Create(chunk).Error; err != nil {
		t.Fatalf("seed chunk: %v", err)
	}

	if err := repo.Delete(dbc, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var count int64
	if err := tx.Model(&types.DocumentChunk{}).Where("document_id = ?", doc.ID).Count(&count).Error; err != nil {
		t.Fatalf("count chunks: %v", err)
	}
	if count != 0 {
		t.Fatalf("chunks remain after document delete")
	}
}
