package pipeline

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/docvault/docvault-backend/internal/data/repos"
	types "github.com/docvault/docvault-backend/internal/domain"
	domvec "github.com/docvault/docvault-backend/internal/domain/vectors"
	"github.com/docvault/docvault-backend/internal/jobs/runtime"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/gcs"
	"github.com/docvault/docvault-backend/internal/platform/logger"
	"github.com/docvault/docvault-backend/internal/services"
)

const embedBatchSize = 64

// EmbedChunks turns the chunk artifact into encrypted vector rows. Prior
// active chunks are deactivated first so a re-run lands a fresh, complete
// generation instead of colliding with stale indexes.
type EmbedChunks struct {
	log      *logger.Logger
	bucket   gcs.BucketService
	embedder services.Embedder
	keys     services.EncryptionKeyService
	chunks   repos.DocumentChunkRepo
	docs     repos.DocumentRepo
	regDocs  repos.RegulatoryDocumentRepo
}

func NewEmbedChunks(
	baseLog *logger.Logger,
	bucket gcs.BucketService,
	embedder services.Embedder,
	keys services.EncryptionKeyService,
	chunks repos.DocumentChunkRepo,
	docs repos.DocumentRepo,
	regDocs repos.RegulatoryDocumentRepo,
) *EmbedChunks {
	return &EmbedChunks{
		log:      baseLog.With("pipeline", "EmbedChunks"),
		bucket:   bucket,
		embedder: embedder,
		keys:     keys,
		chunks:   chunks,
		docs:     docs,
		regDocs:  regDocs,
	}
}

func (p *EmbedChunks) Type() string { return types.JobTypeEmbed }

func (p *EmbedChunks) Run(jc *runtime.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	chunksKey, ok := jc.PayloadString("chunks_key")
	if !ok {
		return jc.Fail(fmt.Errorf("payload missing chunks_key"), nil)
	}

	rc, err := p.bucket.Download(jc.Ctx, chunksKey)
	if err != nil {
		return jc.Fail(fmt.Errorf("download chunk artifact: %w", err), nil)
	}
	raw, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return jc.Fail(fmt.Errorf("read chunk artifact: %w", err), nil)
	}
	var artifacts []chunkArtifact
	if err := json.Unmarshal(raw, &artifacts); err != nil {
		return jc.Fail(fmt.Errorf("decode chunk artifact: %w", err), nil)
	}
	if len(artifacts) == 0 {
		return jc.Fail(fmt.Errorf("chunk artifact is empty"), nil)
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}

	var owner *uuid.UUID
	if jc.Job.SourceType == types.SourceTypeUserDocument {
		doc, dErr := p.docs.GetByID(dbc, jc.Job.DocumentID)
		if dErr != nil {
			return jc.Fail(fmt.Errorf("load document: %w", dErr), nil)
		}
		if doc == nil {
			return jc.Fail(fmt.Errorf("document %s not found", jc.Job.DocumentID), nil)
		}
		ownerID := doc.OwnerUserID
		owner = &ownerID
	}

	key, err := p.keys.CurrentActiveKey(dbc)
	if err != nil {
		return jc.Fail(fmt.Errorf("resolve active encryption key: %w", err), nil)
	}
	keyring := p.keys.Keyring()

	if _, err := p.chunks.DeactivateForDocument(dbc, jc.Job.SourceType, jc.Job.DocumentID); err != nil {
		return jc.Fail(fmt.Errorf("deactivate prior chunks: %w", err), nil)
	}

	written := 0
	for start := 0; start < len(artifacts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(artifacts) {
			end = len(artifacts)
		}
		batch := artifacts[start:end]

		texts := make([]string, len(batch))
		for i, a := range batch {
			texts[i] = a.Text
		}
		vecs, eErr := p.embedder.EmbedTexts(jc.Ctx, texts)
		if eErr != nil {
			return jc.Fail(fmt.Errorf("embed batch at %d: %w", start, eErr), map[string]any{
				"batch_start": start,
				"batch_size":  len(batch),
			})
		}

		for i, a := range batch {
			embedding, encErr := domvec.EncodeEmbedding(vecs[i])
			if encErr != nil {
				return jc.Fail(fmt.Errorf("encode embedding %d: %w", a.Index, encErr), nil)
			}

			sealedText, sErr := keyring.Seal(key.Version, []byte(a.Text))
			if sErr != nil {
				return jc.Fail(fmt.Errorf("seal chunk %d text: %w", a.Index, sErr), nil)
			}
			meta, _ := json.Marshal(map[string]any{
				"chunk_index": a.Index,
				"source_type": jc.Job.SourceType,
			})
			sealedMeta, sErr := keyring.Seal(key.Version, meta)
			if sErr != nil {
				return jc.Fail(fmt.Errorf("seal chunk %d metadata: %w", a.Index, sErr), nil)
			}

			keyID := key.ID
			chunk := &types.DocumentChunk{
				ChunkIndex:        a.Index,
				SourceType:        jc.Job.SourceType,
				OwnerUserID:       owner,
				Embedding:         embedding,
				EncryptedText:     sealedText,
				EncryptedMetadata: sealedMeta,
				EncryptionKeyID:   &keyID,
				IsActive:          true,
			}
			if jc.Job.SourceType == types.SourceTypeRegulatoryDocument {
				docID := jc.Job.DocumentID
				chunk.RegulatoryDocumentID = &docID
			} else {
				docID := jc.Job.DocumentID
				chunk.DocumentID = &docID
			}
			if _, iErr := p.chunks.Insert(dbc, chunk); iErr != nil {
				return jc.Fail(fmt.Errorf("insert chunk %d: %w", a.Index, iErr), nil)
			}
			written++
		}

		if err := p.recordProgress(dbc, jc, written, len(artifacts)); err != nil {
			p.log.Warn("Failed to record chunk progress", "document_id", jc.Job.DocumentID, "error", err)
		}
		jc.Progress(written * 100 / len(artifacts))
	}

	return jc.Succeed(map[string]any{
		"chunks_written": written,
		"key_version":    key.Version,
	})
}

func (p *EmbedChunks) recordProgress(dbc dbctx.Context, jc *runtime.Context, processed, total int) error {
	updates := map[string]interface{}{
		"processed_chunks": processed,
		"total_chunks":     total,
	}
	if jc.Job.SourceType == types.SourceTypeRegulatoryDocument {
		return p.regDocs.UpdateFields(dbc, jc.Job.DocumentID, updates)
	}
	return p.docs.UpdateFields(dbc, jc.Job.DocumentID, updates)
}
