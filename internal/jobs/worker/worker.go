package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/jobs/runtime"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
	"github.com/docvault/docvault-backend/internal/platform/envutil"
	"github.com/docvault/docvault-backend/internal/platform/logger"
	"github.com/docvault/docvault-backend/internal/services"
)

// Worker polls the queue and dispatches claimed jobs to registered stage
// handlers. Each goroutine claims one job per tick; MarkRunning happens
// before dispatch so a claimed-but-crashed job surfaces as running until
// its lease expires.
type Worker struct {
	db           *gorm.DB
	log          *logger.Logger
	queue        services.JobQueueService
	orchestrator services.PipelineOrchestrator
	registry     *runtime.Registry
	notify       services.JobNotifier
	jobTypes     []string
}

func NewWorker(
	db *gorm.DB,
	baseLog *logger.Logger,
	queue services.JobQueueService,
	orchestrator services.PipelineOrchestrator,
	registry *runtime.Registry,
	notify services.JobNotifier,
) *Worker {
	return &Worker{
		db:           db,
		log:          baseLog.With("component", "JobWorker"),
		queue:        queue,
		orchestrator: orchestrator,
		registry:     registry,
		notify:       notify,
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	// WORKER_JOB_TYPES narrows this process to a subset of stages; empty
	// means claim everything.
	for _, t := range strings.Split(envutil.Str("WORKER_JOB_TYPES", ""), ",") {
		if t = strings.TrimSpace(t); t != "" {
			w.jobTypes = append(w.jobTypes, t)
		}
	}
	w.log.Info("Starting job worker pool", "concurrency", concurrency, "job_types", w.jobTypes)

	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			jobs, err := w.queue.ClaimNext(ctx, 1, w.jobTypes)
			if err != nil {
				w.log.Warn("ClaimNext failed", "worker_id", workerID, "error", err)
				continue
			}
			if len(jobs) == 0 {
				continue
			}
			w.execute(ctx, workerID, jobs[0])
		}
	}
}

func (w *Worker) execute(ctx context.Context, workerID int, job *types.ProcessingJob) {
	if err := w.queue.MarkRunning(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
		// Lost the transition race; someone else owns this job now.
		w.log.Debug("MarkRunning rejected", "worker_id", workerID, "job_id", job.ID, "error", err)
		return
	}
	job.Status = types.JobStatusRunning

	jc := runtime.NewContext(ctx, w.db, job, w.orchestrator, w.notify)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type",
			"worker_id", workerID,
			"job_type", job.JobType,
			"job_id", job.ID,
		)
		_ = jc.Fail(fmt.Errorf("no handler registered for job_type=%s", job.JobType), nil)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic",
				"worker_id", workerID,
				"job_id", job.ID,
				"job_type", job.JobType,
				"panic", r,
			)
			_ = jc.Fail(fmt.Errorf("handler panic: %v", r), nil)
		}
	}()

	if runErr := h.Run(jc); runErr != nil {
		// Handlers normally call jc.Fail themselves; this is the safety net.
		if fErr := jc.Fail(runErr, nil); fErr != nil {
			w.log.Debug("Fail after handler error rejected",
				"worker_id", workerID, "job_id", job.ID, "error", fErr)
		}
	}
}
