package pipeline

import (
	"fmt"

	"github.com/docvault/docvault-backend/internal/data/repos"
	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/jobs/runtime"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

// CompleteDocument verifies the chunk generation and settles the registry
// row into its terminal completed state.
type CompleteDocument struct {
	log     *logger.Logger
	chunks  repos.DocumentChunkRepo
	docs    repos.DocumentRepo
	regDocs repos.RegulatoryDocumentRepo
}

func NewCompleteDocument(baseLog *logger.Logger, chunks repos.DocumentChunkRepo, docs repos.DocumentRepo, regDocs repos.RegulatoryDocumentRepo) *CompleteDocument {
	return &CompleteDocument{
		log:     baseLog.With("pipeline", "CompleteDocument"),
		chunks:  chunks,
		docs:    docs,
		regDocs: regDocs,
	}
}

func (p *CompleteDocument) Type() string { return types.JobTypeComplete }

func (p *CompleteDocument) Run(jc *runtime.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	active, err := p.chunks.GetActiveByDocument(dbc, jc.Job.SourceType, jc.Job.DocumentID)
	if err != nil {
		return jc.Fail(fmt.Errorf("load active chunks: %w", err), nil)
	}
	if len(active) == 0 {
		return jc.Fail(fmt.Errorf("no active chunks for document %s", jc.Job.DocumentID), nil)
	}

	updates := map[string]interface{}{
		"status":              types.DocStatusCompleted,
		"progress_percentage": 100,
		"processed_chunks":    len(active),
		"total_chunks":        len(active),
	}
	if jc.Job.SourceType == types.SourceTypeRegulatoryDocument {
		err = p.regDocs.UpdateFields(dbc, jc.Job.DocumentID, updates)
	} else {
		var ok bool
		ok, err = p.docs.UpdateFieldsWhereStatus(dbc, jc.Job.DocumentID, []string{
			types.DocStatusProcessing,
			types.DocStatusChunking,
			types.DocStatusEmbedding,
		}, updates)
		if err == nil && !ok {
			return jc.Fail(fmt.Errorf("document %s is not in a completable state", jc.Job.DocumentID), nil)
		}
	}
	if err != nil {
		return jc.Fail(fmt.Errorf("mark document completed: %w", err), nil)
	}

	return jc.Succeed(map[string]any{
		"total_chunks": len(active),
	})
}
