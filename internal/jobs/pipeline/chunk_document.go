package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docvault/docvault-backend/internal/data/repos"
	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/jobs/runtime"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/envutil"
	"github.com/docvault/docvault-backend/internal/platform/gcs"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

// chunkArtifact is the intermediate JSON written between the chunk and
// embed stages.
type chunkArtifact struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ChunkDocument splits parsed text into overlapping windows and records the
// chunk count on the owning registry row.
type ChunkDocument struct {
	log     *logger.Logger
	bucket  gcs.BucketService
	docs    repos.DocumentRepo
	regDocs repos.RegulatoryDocumentRepo
}

func NewChunkDocument(baseLog *logger.Logger, bucket gcs.BucketService, docs repos.DocumentRepo, regDocs repos.RegulatoryDocumentRepo) *ChunkDocument {
	return &ChunkDocument{
		log:     baseLog.With("pipeline", "ChunkDocument"),
		bucket:  bucket,
		docs:    docs,
		regDocs: regDocs,
	}
}

func (p *ChunkDocument) Type() string { return types.JobTypeChunk }

func (p *ChunkDocument) Run(jc *runtime.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	parsedKey, ok := jc.PayloadString("parsed_text_key")
	if !ok {
		return jc.Fail(fmt.Errorf("payload missing parsed_text_key"), nil)
	}

	rc, err := p.bucket.Download(jc.Ctx, parsedKey)
	if err != nil {
		return jc.Fail(fmt.Errorf("download parsed text: %w", err), nil)
	}
	raw, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return jc.Fail(fmt.Errorf("read parsed text: %w", err), nil)
	}

	size := envutil.Int("CHUNK_SIZE", defaultChunkSize)
	overlap := envutil.Int("CHUNK_OVERLAP", defaultChunkOverlap)
	pieces := splitText(string(raw), size, overlap)
	if len(pieces) == 0 {
		return jc.Fail(fmt.Errorf("parsed text produced no chunks"), nil)
	}
	jc.Progress(50)

	chunks := make([]chunkArtifact, 0, len(pieces))
	for i, text := range pieces {
		chunks = append(chunks, chunkArtifact{Index: i, Text: text})
	}
	artifact, err := json.Marshal(chunks)
	if err != nil {
		return jc.Fail(fmt.Errorf("encode chunk artifact: %w", err), nil)
	}

	chunksKey := strings.TrimSuffix(parsedKey, "/parsed.txt") + "/chunks.json"
	if err := p.bucket.Upload(jc.Ctx, chunksKey, "application/json", bytes.NewReader(artifact)); err != nil {
		return jc.Fail(fmt.Errorf("store chunk artifact: %w", err), nil)
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	updates := map[string]interface{}{"total_chunks": len(chunks)}
	if jc.Job.SourceType == types.SourceTypeRegulatoryDocument {
		err = p.regDocs.UpdateFields(dbc, jc.Job.DocumentID, updates)
	} else {
		err = p.docs.UpdateFields(dbc, jc.Job.DocumentID, updates)
	}
	if err != nil {
		return jc.Fail(fmt.Errorf("record chunk count: %w", err), nil)
	}

	return jc.Succeed(map[string]any{
		"chunks_key":   chunksKey,
		"total_chunks": len(chunks),
	})
}
