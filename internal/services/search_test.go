package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/docvault/docvault-backend/internal/data/repos/testutil"
	vectorsrepo "github.com/docvault/docvault-backend/internal/data/repos/vectors"
	types "github.com/docvault/docvault-backend/internal/domain"
	domvec "github.com/docvault/docvault-backend/internal/domain/vectors"
	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
)

const searchTestDim = 8

func TestCosine(t *testing.T) {
	a := []float32{1, 0, 0, 0}
	b := []float32{0, 1, 0, 0}

	if got := cosine(a, a); math.Abs(got-1) > 1e-9 {
		t.Fatalf("cosine(a, a) = %v, want 1", got)
	}
	if got := cosine(a, b); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: got %v, want 0", got)
	}
	neg := []float32{-1, 0, 0, 0}
	if got := cosine(a, neg); math.Abs(got+1) > 1e-9 {
		t.Fatalf("opposed vectors: got %v, want -1", got)
	}

	// Degenerate inputs score zero rather than NaN.
	if got := cosine(a, []float32{0, 0, 0, 0}); got != 0 {
		t.Fatalf("zero vector: got %v", got)
	}
	if got := cosine(a, []float32{1, 0}); got != 0 {
		t.Fatalf("length mismatch: got %v", got)
	}
	if got := cosine(nil, nil); got != 0 {
		t.Fatalf("nil vectors: got %v", got)
	}

	// Scaling either side leaves the score alone.
	scaled := []float32{5, 0, 0, 0}
	if got := cosine(a, scaled); math.Abs(got-1) > 1e-9 {
		t.Fatalf("scaled vector: got %v, want 1", got)
	}
}

func seedSearchChunk(t *testing.T, dbc dbctx.Context, repo vectorsrepo.DocumentChunkRepo, docID, owner uuid.UUID, index int, vec []float32) {
	t.Helper()
	raw, err := domvec.EncodeEmbedding(vec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	docRef := docID
	ownerRef := owner
	chunk := &types.DocumentChunk{
		ChunkIndex:  index,
		SourceType:  types.SourceTypeUserDocument,
		DocumentID:  &docRef,
		OwnerUserID: &ownerRef,
		Embedding:   raw,
	}
	if _, err := repo.Insert(dbc, chunk); err != nil {
		t.Fatalf("insert chunk %d: %v", index, err)
	}
}

func unitVec(hot int) []float32 {
	v := make([]float32, searchTestDim)
	v[hot] = 1
	return v
}

func TestSearchRankingAndThreshold(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	chunks := vectorsrepo.NewDocumentChunkRepo(db, testutil.Logger(t), searchTestDim)
	svc := NewSearchService(db, testutil.Logger(t), chunks, searchTestDim, 0)

	owner := uuid.New()
	doc := testutil.SeedDocument(t, ctx, tx, owner)

	exact := unitVec(0)
	// cos(near, e0) = 1/sqrt(2): above 0.5, below the 0.8 default.
	near := []float32{1, 1, 0, 0, 0, 0, 0, 0}
	orthogonal := unitVec(1)
	seedSearchChunk(t, dbc, chunks, doc.ID, owner, 0, exact)
	seedSearchChunk(t, dbc, chunks, doc.ID, owner, 1, near)
	seedSearchChunk(t, dbc, chunks, doc.ID, owner, 2, orthogonal)

	threshold := 0.5
	hits, err := svc.Search(dbc, owner, SearchQuery{
		Embedding:  unitVec(0),
		SourceType: types.SourceTypeUserDocument,
		Threshold:  &threshold,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 above threshold", len(hits))
	}
	if hits[0].Chunk.ChunkIndex != 0 || hits[1].Chunk.ChunkIndex != 1 {
		t.Fatalf("hits out of order: %d then %d", hits[0].Chunk.ChunkIndex, hits[1].Chunk.ChunkIndex)
	}
	if hits[0].Similarity < hits[1].Similarity {
		t.Fatalf("similarities not descending")
	}
	if math.Abs(hits[0].Similarity-1) > 1e-6 {
		t.Fatalf("exact match similarity = %v, want 1", hits[0].Similarity)
	}

	// K trims the tail after ranking.
	hits, err = svc.Search(dbc, owner, SearchQuery{
		Embedding:  unitVec(0),
		SourceType: types.SourceTypeUserDocument,
		Threshold:  &threshold,
		K:          1,
	})
	if err != nil {
		t.Fatalf("search k=1: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ChunkIndex != 0 {
		t.Fatalf("k=1 should keep only the best hit")
	}

	// The default threshold of 0.8 drops the near match too.
	hits, err = svc.Search(dbc, owner, SearchQuery{
		Embedding:  unitVec(0),
		SourceType: types.SourceTypeUserDocument,
	})
	if err != nil {
		t.Fatalf("search default threshold: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.ChunkIndex != 0 {
		t.Fatalf("default threshold should keep only the exact match")
	}
}

func TestSearchValidation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	chunks := vectorsrepo.NewDocumentChunkRepo(db, testutil.Logger(t), searchTestDim)
	svc := NewSearchService(db, testutil.Logger(t), chunks, searchTestDim, 0)
	owner := uuid.New()

	if _, err := svc.Search(dbc, owner, SearchQuery{Embedding: []float32{1, 2}}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("dimension mismatch: err = %v, want ErrValidation", err)
	}
	if _, err := svc.Search(dbc, uuid.Nil, SearchQuery{
		Embedding:  unitVec(0),
		SourceType: types.SourceTypeUserDocument,
	}); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("ownerless user_document search: err = %v, want ErrUnauthorized", err)
	}
	bad := 1.5
	if _, err := svc.Search(dbc, owner, SearchQuery{Embedding: unitVec(0), Threshold: &bad}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("out-of-range threshold: err = %v, want ErrValidation", err)
	}
	if _, err := svc.Search(dbc, owner, SearchQuery{}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("empty query: err = %v, want ErrValidation", err)
	}
	if _, err := svc.Search(dbc, owner, SearchQuery{Embedding: unitVec(0), SourceType: "webhook"}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("unknown source_type: err = %v, want ErrValidation", err)
	}
}
