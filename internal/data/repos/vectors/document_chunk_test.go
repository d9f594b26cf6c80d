package vectors

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/docvault/docvault-backend/internal/data/repos/testutil"
	types "github.com/docvault/docvault-backend/internal/domain"
	domvec "github.com/docvault/docvault-backend/internal/domain/vectors"
	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
)

const testDim = 8

func newChunkRepo(t *testing.T) DocumentChunkRepo {
	t.Helper()
	return NewDocumentChunkRepo(testutil.DB(t), testutil.Logger(t), testDim)
}

func userChunk(t *testing.T, docID, owner uuid.UUID, index int) *types.DocumentChunk {
	t.Helper()
	return &types.DocumentChunk{
		ChunkIndex:  index,
		SourceType:  types.SourceTypeUserDocument,
		DocumentID:  &docID,
		OwnerUserID: &owner,
		Embedding:   testutil.MakeEmbedding(t, testDim, 0.5),
	}
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := newChunkRepo(t)

	owner := uuid.New()
	doc := testutil.SeedDocument(t, ctx, tx, owner)

	chunk := userChunk(t, doc.ID, owner, 0)
	chunk.Embedding = testutil.MakeEmbedding(t, testDim+1, 0.5)

	_, err := repo.Insert(dbc, chunk)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for dimension mismatch", err)
	}
}

func TestInsertEnforcesSourcePairing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := newChunkRepo(t)

	owner := uuid.New()
	doc := testutil.SeedDocument(t, ctx, tx, owner)
	reg := testutil.SeedRegulatoryDocument(t, ctx, tx)

	// user_document chunk pointing at both registries.
	bad := userChunk(t, doc.ID, owner, 0)
	regID := reg.ID
	bad.RegulatoryDocumentID = &regID
	if _, err := repo.Insert(dbc, bad); !errors.Is(err, apperrors.ErrConstraintViolation) {
		t.Fatalf("double reference: err = %v, want ErrConstraintViolation", err)
	}

	// user_document chunk without an owner.
	noOwner := userChunk(t, doc.ID, owner, 0)
	noOwner.OwnerUserID = nil
	if _, err := repo.Insert(dbc, noOwner); !errors.Is(err, apperrors.ErrConstraintViolation) {
		t.Fatalf("missing owner: err = %v, want ErrConstraintViolation", err)
	}

	// regulatory chunk carrying an owner.
	ownerID := owner
	regBad := &types.DocumentChunk{
		ChunkIndex:           0,
		SourceType:           types.SourceTypeRegulatoryDocument,
		RegulatoryDocumentID: &regID,
		OwnerUserID:          &ownerID,
		Embedding:            testutil.MakeEmbedding(t, testDim, 0.5),
	}
	if _, err := repo.Insert(dbc, regBad); !errors.Is(err, apperrors.ErrConstraintViolation) {
		t.Fatalf("regulatory with owner: err = %v, want ErrConstraintViolation", err)
	}
}

func TestInsertEnforcesEncryptionTriple(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := newChunkRepo(t)

	owner := uuid.New()
	doc := testutil.SeedDocument(t, ctx, tx, owner)
	key := testutil.SeedEncryptionKey(t, ctx, tx, 1, types.KeyStatusActive)

	// Text without key id: partial triple.
	partial := userChunk(t, doc.ID, owner, 0)
	partial.EncryptedText = []byte("sealed")
	if _, err := repo.Insert(dbc, partial); !errors.Is(err, apperrors.ErrConstraintViolation) {
		t.Fatalf("partial triple: err = %v, want ErrConstraintViolation", err)
	}

	// Full triple is accepted.
	keyID := key.ID
	full := userChunk(t, doc.ID, owner, 0)
	full.EncryptedText = []byte("sealed")
	full.EncryptedMetadata = []byte("sealed-meta")
	full.EncryptionKeyID = &keyID
	if _, err := repo.Insert(dbc, full); err != nil {
		t.Fatalf("full triple rejected: %v", err)
	}

	// All-null triple is also accepted.
	plain := userChunk(t, doc.ID, owner, 1)
	if _, err := repo.Insert(dbc, plain); err != nil {
		t.Fatalf("all-null triple rejected: %v", err)
	}
}

func TestInsertUniqueActiveIndexAndReactivation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := newChunkRepo(t)

	owner := uuid.New()
	doc := testutil.SeedDocument(t, ctx, tx, owner)

	if _, err := repo.Insert(dbc, userChunk(t, doc.ID, owner, 0)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// Same (document, index) while active: rejected.
	if _, err := repo.Insert(dbc, userChunk(t, doc.ID, owner, 0)); !errors.Is(err, apperrors.ErrConstraintViolation) {
		t.Fatalf("duplicate active index: err = %v, want ErrConstraintViolation", err)
	}

	// Deactivate, then the same index inserts cleanly.
	n, err := repo.DeactivateForDocument(dbc, types.SourceTypeUserDocument, doc.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if n != 1 {
		t.Fatalf("deactivated %d rows, want 1", n)
	}
	if _, err := repo.Insert(dbc, userChunk(t, doc.ID, owner, 0)); err != nil {
		t.Fatalf("re-insert after deactivate: %v", err)
	}

	active, err := repo.GetActiveByDocument(dbc, types.SourceTypeUserDocument, doc.ID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active chunks = %d, want 1", len(active))
	}
}

func TestEmbeddingRoundTripIsBitExact(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := newChunkRepo(t)

	owner := uuid.New()
	doc := testutil.SeedDocument(t, ctx, tx, owner)

	vec := []float32{0.1, -0.25, 3.14159, 1e-7, -1e7, 0.333333343, 0, 42}
	raw, err := domvec.EncodeEmbedding(vec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	chunk := userChunk(t, doc.ID, owner, 0)
	chunk.Embedding = raw
	if _, err := repo.Insert(dbc, chunk); err != nil {
		t.Fatalf("insert: %v", err)
	}

	active, err := repo.GetActiveByDocument(dbc, types.SourceTypeUserDocument, doc.ID)
	if err != nil || len(active) != 1 {
		t.Fatalf("get active: %v (%d rows)", err, len(active))
	}
	got, err := domvec.DecodeEmbedding(active[0].Embedding)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(vec, got) {
		t.Fatalf("embedding round trip not bit-exact:\n in  %v\n out %v", vec, got)
	}
}

func TestActiveCandidatesOwnerScoping(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := newChunkRepo(t)

	alice := uuid.New()
	bob := uuid.New()
	aliceDoc := testutil.SeedDocument(t, ctx, tx, alice)
	bobDoc := testutil.SeedDocument(t, ctx, tx, bob)
	reg := testutil.SeedRegulatoryDocument(t, ctx, tx)

	if _, err := repo.Insert(dbc, userChunk(t, aliceDoc.ID, alice, 0)); err != nil {
		t.Fatalf("insert alice chunk: %v", err)
	}
	if _, err := repo.Insert(dbc, userChunk(t, bobDoc.ID, bob, 0)); err != nil {
		t.Fatalf("insert bob chunk: %v", err)
	}
	regID := reg.ID
	regChunk := &types.DocumentChunk{
		ChunkIndex:           0,
		SourceType:           types.SourceTypeRegulatoryDocument,
		RegulatoryDocumentID: &regID,
		Embedding:            testutil.MakeEmbedding(t, testDim, 0.9),
	}
	if _, err := repo.Insert(dbc, regChunk); err != nil {
		t.Fatalf("insert regulatory chunk: %v", err)
	}

	// Alice searching her own corpus: only her chunk.
	got, err := repo.ActiveCandidates(dbc, types.SourceTypeUserDocument, &alice, 0)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 1 || got[0].OwnerUserID == nil || *got[0].OwnerUserID != alice {
		t.Fatalf("user_document scope leaked rows: %d", len(got))
	}

	// Both corpora: alice's chunk plus the shared regulatory chunk, never bob's.
	got, err = repo.ActiveCandidates(dbc, "", &alice, 0)
	if err != nil {
		t.Fatalf("candidates both: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("both-corpora candidates = %d, want 2", len(got))
	}
	for _, c := range got {
		if c.OwnerUserID != nil && *c.OwnerUserID == bob {
			t.Fatalf("bob's chunk leaked into alice's candidates")
		}
	}
}
