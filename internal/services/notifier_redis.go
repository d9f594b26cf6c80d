package services

import (
	"context"

	"github.com/google/uuid"

	redisclient "github.com/docvault/docvault-backend/internal/clients/redis"
	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/platform/logger"
)

type redisNotifier struct {
	log *logger.Logger
	bus redisclient.EventBus
}

// NewRedisNotifier publishes lifecycle events on the Redis pipeline channel.
func NewRedisNotifier(baseLog *logger.Logger, bus redisclient.EventBus) JobNotifier {
	return &redisNotifier{
		log: baseLog.With("service", "RedisNotifier"),
		bus: bus,
	}
}

func (n *redisNotifier) publish(ctx context.Context, ev redisclient.Event) {
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.log.Warn("Event publish failed", "kind", ev.Kind, "error", err)
	}
}

func (n *redisNotifier) jobEvent(kind string, job *types.ProcessingJob) redisclient.Event {
	return redisclient.Event{
		Kind:       kind,
		DocumentID: job.DocumentID.String(),
		SourceType: job.SourceType,
		JobID:      job.ID.String(),
		JobType:    job.JobType,
		Status:     job.Status,
	}
}

func (n *redisNotifier) JobCreated(ctx context.Context, job *types.ProcessingJob) {
	n.publish(ctx, n.jobEvent("job.created", job))
}

func (n *redisNotifier) JobProgress(ctx context.Context, job *types.ProcessingJob, pct int) {
	ev := n.jobEvent("job.progress", job)
	ev.Data = map[string]any{"progress": pct}
	n.publish(ctx, ev)
}

func (n *redisNotifier) JobDone(ctx context.Context, job *types.ProcessingJob) {
	n.publish(ctx, n.jobEvent("job.done", job))
}

func (n *redisNotifier) JobFailed(ctx context.Context, job *types.ProcessingJob) {
	ev := n.jobEvent("job.failed", job)
	if job.ErrorMessage != "" {
		ev.Data = map[string]any{"error": job.ErrorMessage}
	}
	n.publish(ctx, ev)
}

func (n *redisNotifier) DocumentCompleted(ctx context.Context, docID uuid.UUID, sourceType string, totalChunks int) {
	n.publish(ctx, redisclient.Event{
		Kind:       "document.completed",
		DocumentID: docID.String(),
		SourceType: sourceType,
		Data:       map[string]any{"total_chunks": totalChunks},
	})
}
