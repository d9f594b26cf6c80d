package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/docvault/docvault-backend/internal/data/repos"
	types "github.com/docvault/docvault-backend/internal/domain"
	domjobs "github.com/docvault/docvault-backend/internal/domain/jobs"
	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

// BackoffPolicy computes the retry delay after the n-th failure.
// delay(n) = min(Base * 2^n, Cap): non-decreasing in n and bounded by Cap.
type BackoffPolicy struct {
	Base time.Duration
	Cap  time.Duration
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Base: 1 * time.Minute, Cap: 1 * time.Hour}
}

func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := p.Base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

type EnqueueInput struct {
	DocumentID uuid.UUID
	SourceType string
	JobType    string
	Payload    map[string]any
	Priority   int
	MaxRetries int
	Delay      time.Duration
}

type JobQueueService interface {
	Enqueue(dbc dbctx.Context, in EnqueueInput) (*types.ProcessingJob, error)
	ClaimNext(ctx context.Context, limit int, jobTypes []string) ([]*types.ProcessingJob, error)
	MarkRunning(dbc dbctx.Context, jobID uuid.UUID) error
	Complete(dbc dbctx.Context, jobID uuid.UUID, result map[string]any) (*types.ProcessingJob, error)
	Fail(dbc dbctx.Context, jobID uuid.UUID, errMsg string, details map[string]any) (*types.ProcessingJob, error)
	Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.ProcessingJob, error)
	Cleanup(dbc dbctx.Context, retention time.Duration) (int64, error)
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.ProcessingJob, error)
	ListStuck(dbc dbctx.Context, runningLongerThan time.Duration) ([]*types.ProcessingJob, error)
	Backoff() BackoffPolicy
}

type jobQueueService struct {
	db      *gorm.DB
	log     *logger.Logger
	repo    repos.ProcessingJobRepo
	backoff BackoffPolicy
	lease   time.Duration
}

func NewJobQueueService(db *gorm.DB, baseLog *logger.Logger, repo repos.ProcessingJobRepo, backoff BackoffPolicy, lease time.Duration) JobQueueService {
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	return &jobQueueService{
		db:      db,
		log:     baseLog.With("service", "JobQueueService"),
		repo:    repo,
		backoff: backoff,
		lease:   lease,
	}
}

func (s *jobQueueService) Backoff() BackoffPolicy { return s.backoff }

// requiredPayloadKeys declares the structural shape each stage input must
// carry. Enqueue rejects anything else before any row is written.
var requiredPayloadKeys = map[string][]string{
	types.JobTypeParse:    {"storage_key"},
	types.JobTypeChunk:    {"parsed_text_key"},
	types.JobTypeEmbed:    {"chunks_key"},
	types.JobTypeComplete: {},
	types.JobTypeNotify:   {},
}

func validatePayload(jobType string, payload map[string]any) error {
	keys, ok := requiredPayloadKeys[jobType]
	if !ok {
		return fmt.Errorf("%w: unknown job_type %q", apperrors.ErrValidation, jobType)
	}
	for _, k := range keys {
		v, present := payload[k]
		if !present {
			return fmt.Errorf("%w: payload for %s missing %q", apperrors.ErrValidation, jobType, k)
		}
		if s, isStr := v.(string); !isStr || strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: payload field %q must be a non-empty string", apperrors.ErrValidation, k)
		}
	}
	return nil
}

func (s *jobQueueService) Enqueue(dbc dbctx.Context, in EnqueueInput) (*types.ProcessingJob, error) {
	if in.DocumentID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing document_id", apperrors.ErrValidation)
	}
	switch in.SourceType {
	case types.SourceTypeUserDocument, types.SourceTypeRegulatoryDocument:
	default:
		return nil, fmt.Errorf("%w: unknown source_type %q", apperrors.ErrValidation, in.SourceType)
	}
	if in.Priority < 0 || in.Priority > 10 {
		return nil, fmt.Errorf("%w: priority must be in [0,10]", apperrors.ErrValidation)
	}
	if in.Payload == nil {
		in.Payload = map[string]any{}
	}
	if err := validatePayload(in.JobType, in.Payload); err != nil {
		return nil, err
	}
	maxRetries := in.MaxRetries
	if maxRetries <= 0 {
		maxRetries = domjobs.DefaultMaxRetries
	}

	payloadJSON, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload not serializable: %v", apperrors.ErrValidation, err)
	}

	now := time.Now()
	job := &types.ProcessingJob{
		ID:          uuid.New(),
		DocumentID:  in.DocumentID,
		SourceType:  in.SourceType,
		JobType:     in.JobType,
		Status:      types.JobStatusPending,
		Priority:    in.Priority,
		RetryCount:  0,
		MaxRetries:  maxRetries,
		ScheduledAt: now.Add(in.Delay),
		Payload:     datatypes.JSON(payloadJSON),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(dbc, []*types.ProcessingJob{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Debug("Job enqueued",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"job_type", job.JobType,
		"priority", job.Priority,
	)
	return job, nil
}

// ClaimNext claims up to limit ready jobs; a non-empty jobTypes restricts
// the claim to the stages this worker can run.
func (s *jobQueueService) ClaimNext(ctx context.Context, limit int, jobTypes []string) ([]*types.ProcessingJob, error) {
	return s.repo.ClaimNext(dbctx.Context{Ctx: ctx}, limit, s.lease, jobTypes)
}

func (s *jobQueueService) MarkRunning(dbc dbctx.Context, jobID uuid.UUID) error {
	now := time.Now()
	ok, err := s.repo.UpdateFieldsWhereStatus(dbc, jobID,
		[]string{types.JobStatusPending, types.JobStatusRetrying},
		map[string]interface{}{
			"status":     types.JobStatusRunning,
			"started_at": now,
			"updated_at": now,
		})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s is not pending/retrying", apperrors.ErrPreconditionFailed, jobID)
	}
	return nil
}

func (s *jobQueueService) Complete(dbc dbctx.Context, jobID uuid.UUID, result map[string]any) (*types.ProcessingJob, error) {
	var res datatypes.JSON
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("%w: result not serializable: %v", apperrors.ErrValidation, err)
		}
		res = datatypes.JSON(b)
	} else {
		res = datatypes.JSON([]byte(`{}`))
	}
	now := time.Now()
	ok, err := s.repo.UpdateFieldsWhereStatus(dbc, jobID,
		[]string{types.JobStatusRunning},
		map[string]interface{}{
			"status":       types.JobStatusCompleted,
			"completed_at": now,
			"result":       res,
			"locked_at":    nil,
			"updated_at":   now,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s is not running", apperrors.ErrPreconditionFailed, jobID)
	}
	return s.repo.GetByID(dbc, jobID)
}

// Fail applies the retry policy: below the retry bound the job re-enters the
// queue as retrying with a backed-off scheduled_at; at the bound it becomes
// permanently failed. Runs under a row lock so retry_count increments are
// not lost between concurrent reporters.
func (s *jobQueueService) Fail(dbc dbctx.Context, jobID uuid.UUID, errMsg string, details map[string]any) (*types.ProcessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	var out *types.ProcessingJob
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		txc := dbc.WithTx(txx)
		job, err := s.repo.GetByIDForUpdate(txc, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("%w: job %s not found", apperrors.ErrPreconditionFailed, jobID)
		}
		if job.Status != types.JobStatusRunning {
			return fmt.Errorf("%w: job %s is not running", apperrors.ErrPreconditionFailed, jobID)
		}

		var detailsJSON datatypes.JSON
		if details != nil {
			if b, mErr := json.Marshal(details); mErr == nil {
				detailsJSON = datatypes.JSON(b)
			}
		}

		now := time.Now()
		updates := map[string]interface{}{
			"error_message": errMsg,
			"locked_at":     nil,
			"updated_at":    now,
		}
		if detailsJSON != nil {
			updates["error_details"] = detailsJSON
		}

		// Every failure is counted; the max_retries-th failure is permanent.
		newCount := job.RetryCount + 1
		updates["retry_count"] = newCount
		job.RetryCount = newCount
		if newCount < job.MaxRetries {
			delay := s.backoff.Delay(newCount)
			updates["status"] = types.JobStatusRetrying
			updates["scheduled_at"] = now.Add(delay)
			job.Status = types.JobStatusRetrying
			job.ScheduledAt = now.Add(delay)
		} else {
			updates["status"] = types.JobStatusFailed
			job.Status = types.JobStatusFailed
		}
		job.ErrorMessage = errMsg

		if uErr := s.repo.UpdateFields(txc, jobID, updates); uErr != nil {
			return uErr
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Status == types.JobStatusFailed {
		s.log.Warn("Job failed permanently",
			"job_id", out.ID,
			"document_id", out.DocumentID,
			"job_type", out.JobType,
			"retry_count", out.RetryCount,
			"error", errMsg,
		)
	} else {
		s.log.Debug("Job scheduled for retry",
			"job_id", out.ID,
			"job_type", out.JobType,
			"retry_count", out.RetryCount,
			"scheduled_at", out.ScheduledAt,
		)
	}
	return out, nil
}

func (s *jobQueueService) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.ProcessingJob, error) {
	now := time.Now()
	ok, err := s.repo.UpdateFieldsWhereStatus(dbc, jobID,
		[]string{types.JobStatusPending, types.JobStatusRetrying},
		map[string]interface{}{
			"status":     types.JobStatusCancelled,
			"locked_at":  nil,
			"updated_at": now,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s is not pending/retrying", apperrors.ErrPreconditionFailed, jobID)
	}
	return s.repo.GetByID(dbc, jobID)
}

// Cleanup purges terminal rows past the retention window. Advisory only.
func (s *jobQueueService) Cleanup(dbc dbctx.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	n, err := s.repo.DeleteTerminalOlderThan(dbc, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("Queue cleanup purged terminal jobs", "purged", n, "cutoff", cutoff)
	}
	return n, nil
}

func (s *jobQueueService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.ProcessingJob, error) {
	return s.repo.GetByID(dbc, jobID)
}

// ListStuck surfaces jobs running past the threshold. This is a monitoring
// signal, not a transition: an operator or reaper decides what to do.
func (s *jobQueueService) ListStuck(dbc dbctx.Context, runningLongerThan time.Duration) ([]*types.ProcessingJob, error) {
	return s.repo.ListRunningSince(dbc, time.Now().Add(-runningLongerThan))
}
