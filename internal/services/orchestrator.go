package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/docvault/docvault-backend/internal/data/repos"
	types "github.com/docvault/docvault-backend/internal/domain"
	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

// nextStage maps each pipeline stage to its successor. The notify stage is
// the end of the chain.
var nextStage = map[string]string{
	types.JobTypeParse:    types.JobTypeChunk,
	types.JobTypeChunk:    types.JobTypeEmbed,
	types.JobTypeEmbed:    types.JobTypeComplete,
	types.JobTypeComplete: types.JobTypeNotify,
}

// stageProgress is the document progress floor reached when a stage
// completes. AdvanceProgress keeps the column monotonic regardless.
var stageProgress = map[string]int{
	types.JobTypeParse:    25,
	types.JobTypeChunk:    50,
	types.JobTypeEmbed:    75,
	types.JobTypeComplete: 95,
	types.JobTypeNotify:   100,
}

// stageDocStatus is the document status while a stage's successor runs.
var stageDocStatus = map[string]string{
	types.JobTypeParse: types.DocStatusChunking,
	types.JobTypeChunk: types.DocStatusEmbedding,
	types.JobTypeEmbed: types.DocStatusProcessing,
}

type PipelineOrchestrator interface {
	StartPipeline(ctx context.Context, docID uuid.UUID, sourceType, storageKey string) (*types.ProcessingJob, error)
	EnqueueStage(ctx context.Context, docID uuid.UUID, sourceType, jobType string, payload map[string]any) (*types.ProcessingJob, error)
	CompleteStage(ctx context.Context, jobID uuid.UUID, result map[string]any) error
	FailStage(ctx context.Context, jobID uuid.UUID, stageErr error, details map[string]any) error
	CancelPipeline(ctx context.Context, docID uuid.UUID) error
	FlagStuck(ctx context.Context, runningLongerThan time.Duration) ([]*types.ProcessingJob, error)
}

type pipelineOrchestrator struct {
	db       *gorm.DB
	log      *logger.Logger
	queue    JobQueueService
	docs     repos.DocumentRepo
	regDocs  repos.RegulatoryDocumentRepo
	jobRepo  repos.ProcessingJobRepo
	notifier JobNotifier
	enqueue  singleflight.Group
}

func NewPipelineOrchestrator(
	db *gorm.DB,
	baseLog *logger.Logger,
	queue JobQueueService,
	docs repos.DocumentRepo,
	regDocs repos.RegulatoryDocumentRepo,
	jobRepo repos.ProcessingJobRepo,
	notifier JobNotifier,
) PipelineOrchestrator {
	return &pipelineOrchestrator{
		db:       db,
		log:      baseLog.With("service", "PipelineOrchestrator"),
		queue:    queue,
		docs:     docs,
		regDocs:  regDocs,
		jobRepo:  jobRepo,
		notifier: notifier,
	}
}

func (o *pipelineOrchestrator) StartPipeline(ctx context.Context, docID uuid.UUID, sourceType, storageKey string) (*types.ProcessingJob, error) {
	job, err := o.EnqueueStage(ctx, docID, sourceType, types.JobTypeParse, map[string]any{
		"storage_key": storageKey,
	})
	if err != nil {
		return nil, err
	}
	if err := o.updateOwningDocument(dbctx.Context{Ctx: ctx}, docID, sourceType, map[string]interface{}{
		"status": types.DocStatusProcessing,
	}); err != nil {
		return nil, err
	}
	return job, nil
}

// EnqueueStage enforces at most one active job per (document, stage).
// Concurrent callers for the same key collapse onto one flight, and the
// flight itself re-checks the active count before inserting, so duplicate
// submissions return the already-queued job instead of a second row.
func (o *pipelineOrchestrator) EnqueueStage(ctx context.Context, docID uuid.UUID, sourceType, jobType string, payload map[string]any) (*types.ProcessingJob, error) {
	key := docID.String() + ":" + jobType
	v, err, _ := o.enqueue.Do(key, func() (any, error) {
		dbc := dbctx.Context{Ctx: ctx}
		n, cErr := o.jobRepo.CountActive(dbc, docID, jobType)
		if cErr != nil {
			return nil, cErr
		}
		if n > 0 {
			existing, lErr := o.jobRepo.ListByDocument(dbc, docID)
			if lErr != nil {
				return nil, lErr
			}
			for _, j := range existing {
				if j.JobType == jobType && !types.TerminalStatus(j.Status) {
					o.log.Debug("Stage already queued, skipping enqueue",
						"document_id", docID, "job_type", jobType, "job_id", j.ID)
					return j, nil
				}
			}
			return nil, fmt.Errorf("%w: active %s job for document %s not found", apperrors.ErrPreconditionFailed, jobType, docID)
		}
		job, qErr := o.queue.Enqueue(dbc, EnqueueInput{
			DocumentID: docID,
			SourceType: sourceType,
			JobType:    jobType,
			Payload:    payload,
		})
		if qErr != nil {
			return nil, qErr
		}
		o.notifier.JobCreated(ctx, job)
		return job, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.ProcessingJob), nil
}

// CompleteStage finishes a job and advances the owning document in one
// transaction: job transition, document status/progress, and the next
// stage's enqueue all commit or roll back together.
func (o *pipelineOrchestrator) CompleteStage(ctx context.Context, jobID uuid.UUID, result map[string]any) error {
	var (
		doneJob *types.ProcessingJob
		next    *types.ProcessingJob
	)
	err := o.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		job, cErr := o.queue.Complete(dbc, jobID, result)
		if cErr != nil {
			return cErr
		}
		doneJob = job

		if pct, ok := stageProgress[job.JobType]; ok {
			if err := o.advanceOwningDocument(dbc, job.DocumentID, job.SourceType, pct); err != nil {
				return err
			}
		}
		if status, ok := stageDocStatus[job.JobType]; ok {
			if err := o.updateOwningDocument(dbc, job.DocumentID, job.SourceType, map[string]interface{}{
				"status": status,
			}); err != nil {
				return err
			}
		}

		succ, ok := nextStage[job.JobType]
		if !ok {
			return nil
		}
		payload := successorPayload(succ, result)
		nj, qErr := o.queue.Enqueue(dbc, EnqueueInput{
			DocumentID: job.DocumentID,
			SourceType: job.SourceType,
			JobType:    succ,
			Payload:    payload,
		})
		if qErr != nil {
			return qErr
		}
		next = nj
		return nil
	})
	if err != nil {
		return err
	}
	o.notifier.JobDone(ctx, doneJob)
	if next != nil {
		o.notifier.JobCreated(ctx, next)
	}
	return nil
}

// successorPayload threads stage artifacts forward: parse emits the parsed
// text key, chunk emits the chunk artifact key, the tail stages carry none.
func successorPayload(succ string, result map[string]any) map[string]any {
	payload := map[string]any{}
	switch succ {
	case types.JobTypeChunk:
		if v, ok := result["parsed_text_key"]; ok {
			payload["parsed_text_key"] = v
		}
	case types.JobTypeEmbed:
		if v, ok := result["chunks_key"]; ok {
			payload["chunks_key"] = v
		}
	}
	return payload
}

// FailStage routes a stage error through the retry policy. Transient
// failures leave the document untouched; a permanent failure marks the
// document failed with the stage name in the same transaction.
func (o *pipelineOrchestrator) FailStage(ctx context.Context, jobID uuid.UUID, stageErr error, details map[string]any) error {
	var failed *types.ProcessingJob
	err := o.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		job, fErr := o.queue.Fail(dbc, jobID, stageErr.Error(), details)
		if fErr != nil {
			return fErr
		}
		failed = job
		if job.Status != types.JobStatusFailed {
			return nil
		}
		return o.updateOwningDocument(dbc, job.DocumentID, job.SourceType, map[string]interface{}{
			"status":        types.DocStatusFailed,
			"error_message": stageErr.Error(),
			"failed_stage":  job.JobType,
		})
	})
	if err != nil {
		return err
	}
	if failed.Status == types.JobStatusFailed {
		o.notifier.JobFailed(ctx, failed)
	}
	return nil
}

// CancelPipeline cancels every still-cancellable job for a document and
// marks the document cancelled. Running jobs are left to finish; their
// completions will not resurrect a cancelled document's pipeline because
// the document status guard rejects the advance.
func (o *pipelineOrchestrator) CancelPipeline(ctx context.Context, docID uuid.UUID) error {
	return o.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		jobs, err := o.jobRepo.ListByDocument(dbc, docID)
		if err != nil {
			return err
		}
		var sourceType string
		for _, j := range jobs {
			sourceType = j.SourceType
			if j.Status != types.JobStatusPending && j.Status != types.JobStatusRetrying {
				continue
			}
			if _, cErr := o.queue.Cancel(dbc, j.ID); cErr != nil {
				return cErr
			}
		}
		if sourceType == "" {
			sourceType = types.SourceTypeUserDocument
		}
		return o.updateOwningDocument(dbc, docID, sourceType, map[string]interface{}{
			"status": types.DocStatusCancelled,
		})
	})
}

func (o *pipelineOrchestrator) FlagStuck(ctx context.Context, runningLongerThan time.Duration) ([]*types.ProcessingJob, error) {
	jobs, err := o.queue.ListStuck(dbctx.Context{Ctx: ctx}, runningLongerThan)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		o.log.Warn("Job running past threshold",
			"job_id", j.ID,
			"document_id", j.DocumentID,
			"job_type", j.JobType,
			"started_at", j.StartedAt,
		)
	}
	return jobs, nil
}

func (o *pipelineOrchestrator) updateOwningDocument(dbc dbctx.Context, docID uuid.UUID, sourceType string, updates map[string]interface{}) error {
	if sourceType == types.SourceTypeRegulatoryDocument {
		return o.regDocs.UpdateFields(dbc, docID, updates)
	}
	// Status writes on user documents never overwrite a terminal state.
	if _, hasStatus := updates["status"]; hasStatus {
		ok, err := o.docs.UpdateFieldsWhereStatus(dbc, docID, []string{
			types.DocStatusPending,
			types.DocStatusUploading,
			types.DocStatusProcessing,
			types.DocStatusChunking,
			types.DocStatusEmbedding,
		}, updates)
		if err != nil {
			return err
		}
		if !ok {
			o.log.Debug("Document status advance skipped, row is terminal", "document_id", docID)
		}
		return nil
	}
	return o.docs.UpdateFields(dbc, docID, updates)
}

func (o *pipelineOrchestrator) advanceOwningDocument(dbc dbctx.Context, docID uuid.UUID, sourceType string, pct int) error {
	if sourceType == types.SourceTypeRegulatoryDocument {
		return o.regDocs.AdvanceProgress(dbc, docID, pct)
	}
	return o.docs.AdvanceProgress(dbc, docID, pct)
}
