package pipeline

import (
	"fmt"

	"github.com/docvault/docvault-backend/internal/data/repos"
	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/jobs/runtime"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/logger"
	"github.com/docvault/docvault-backend/internal/services"
)

// NotifyDocument is the pipeline tail: it announces the completed document
// on the event bus. Publishing is best-effort but the stage still records
// its own completion through the queue.
type NotifyDocument struct {
	log      *logger.Logger
	docs     repos.DocumentRepo
	regDocs  repos.RegulatoryDocumentRepo
	notifier services.JobNotifier
}

func NewNotifyDocument(baseLog *logger.Logger, docs repos.DocumentRepo, regDocs repos.RegulatoryDocumentRepo, notifier services.JobNotifier) *NotifyDocument {
	return &NotifyDocument{
		log:      baseLog.With("pipeline", "NotifyDocument"),
		docs:     docs,
		regDocs:  regDocs,
		notifier: notifier,
	}
}

func (p *NotifyDocument) Type() string { return types.JobTypeNotify }

func (p *NotifyDocument) Run(jc *runtime.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	var totalChunks int
	if jc.Job.SourceType == types.SourceTypeRegulatoryDocument {
		doc, err := p.regDocs.GetByID(dbc, jc.Job.DocumentID)
		if err != nil {
			return jc.Fail(fmt.Errorf("load regulatory document: %w", err), nil)
		}
		if doc == nil {
			return jc.Fail(fmt.Errorf("regulatory document %s not found", jc.Job.DocumentID), nil)
		}
		totalChunks = doc.TotalChunks
	} else {
		doc, err := p.docs.GetByID(dbc, jc.Job.DocumentID)
		if err != nil {
			return jc.Fail(fmt.Errorf("load document: %w", err), nil)
		}
		if doc == nil {
			return jc.Fail(fmt.Errorf("document %s not found", jc.Job.DocumentID), nil)
		}
		totalChunks = doc.TotalChunks
	}

	p.notifier.DocumentCompleted(jc.Ctx, jc.Job.DocumentID, jc.Job.SourceType, totalChunks)

	return jc.Succeed(map[string]any{
		"notified": true,
	})
}
