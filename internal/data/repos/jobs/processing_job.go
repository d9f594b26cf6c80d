package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

type ProcessingJobRepo interface {
	Create(dbc dbctx.Context, jobs []*types.ProcessingJob) ([]*types.ProcessingJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingJob, error)
	GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingJob, error)
	ClaimNext(dbc dbctx.Context, limit int, lease time.Duration, jobTypes []string) ([]*types.ProcessingJob, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsWhereStatus(dbc dbctx.Context, id uuid.UUID, allowedStatuses []string, updates map[string]interface{}) (bool, error)
	CountActive(dbc dbctx.Context, documentID uuid.UUID, jobType string) (int64, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.ProcessingJob, error)
	ListRunningSince(dbc dbctx.Context, startedBefore time.Time) ([]*types.ProcessingJob, error)
	DeleteTerminalOlderThan(dbc dbctx.Context, cutoff time.Time) (int64, error)
}

type processingJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessingJobRepo(db *gorm.DB, baseLog *logger.Logger) ProcessingJobRepo {
	return &processingJobRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingJobRepo"),
	}
}

func (r *processingJobRepo) Create(dbc dbctx.Context, jobs []*types.ProcessingJob) ([]*types.ProcessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.ProcessingJob{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *processingJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.ProcessingJob
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *processingJobRepo) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.ProcessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.ProcessingJob
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimNext hands out ready jobs under a claim-with-skip-locked discipline.
// Ready means pending/retrying, scheduled_at elapsed, and no live claim
// lease. A non-empty jobTypes narrows the claim to workers that can run
// those stages. Claimed rows get locked_at stamped inside the same
// transaction so concurrent claimants skip them both on the row lock (while
// the transaction is open) and on the lease (after it commits).
func (r *processingJobRepo) ClaimNext(dbc dbctx.Context, limit int, lease time.Duration, jobTypes []string) ([]*types.ProcessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		return []*types.ProcessingJob{}, nil
	}
	now := time.Now()
	leaseCutoff := now.Add(-lease)
	var claimed []*types.ProcessingJob
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var jobs []*types.ProcessingJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ?", []string{types.JobStatusPending, types.JobStatusRetrying}).
			Where("scheduled_at <= ?", now).
			Where("locked_at IS NULL OR locked_at < ?", leaseCutoff).
			Order("priority DESC, created_at ASC").
			Limit(limit)
		if len(jobTypes) > 0 {
			q = q.Where("job_type IN ?", jobTypes)
		}
		if qErr := q.Find(&jobs).Error; qErr != nil {
			return qErr
		}
		if len(jobs) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(jobs))
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}
		uErr := txx.Model(&types.ProcessingJob{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"locked_at":  now,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		for _, j := range jobs {
			lockedAt := now
			j.LockedAt = &lockedAt
			j.UpdatedAt = now
		}
		claimed = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		claimed = []*types.ProcessingJob{}
	}
	return claimed, nil
}

func (r *processingJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.ProcessingJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateFieldsWhereStatus is the guarded-transition primitive: the update
// lands only if the row is currently in one of allowedStatuses. Returns
// false when the guard rejected it, which callers surface as a
// precondition failure.
func (r *processingJobRepo) UpdateFieldsWhereStatus(dbc dbctx.Context, id uuid.UUID, allowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(allowedStatuses) == 0 {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.ProcessingJob{}).
		Where("id = ? AND status IN ?", id, allowedStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountActive counts non-terminal jobs for a (document, stage) pair. Active
// means pending, running, or retrying; terminal rows never block re-enqueue.
func (r *processingJobRepo) CountActive(dbc dbctx.Context, documentID uuid.UUID, jobType string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if documentID == uuid.Nil || jobType == "" {
		return 0, nil
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.ProcessingJob{}).
		Where("document_id = ? AND job_type = ? AND status IN ?",
			documentID, jobType,
			[]string{types.JobStatusPending, types.JobStatusRunning, types.JobStatusRetrying},
		).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *processingJobRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.ProcessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ProcessingJob
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *processingJobRepo) ListRunningSince(dbc dbctx.Context, startedBefore time.Time) ([]*types.ProcessingJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ProcessingJob
	if err := transaction.WithContext(dbc.Ctx).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?", types.JobStatusRunning, startedBefore).
		Order("started_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *processingJobRepo) DeleteTerminalOlderThan(dbc dbctx.Context, cutoff time.Time) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{types.JobStatusCompleted, types.JobStatusFailed}, cutoff).
		Delete(&types.ProcessingJob{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
