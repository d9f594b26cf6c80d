package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/docvault/docvault-backend/internal/domain"
)

// JobNotifier publishes pipeline lifecycle events for downstream consumers.
// Implementations must be fire-and-forget: a failed publish never fails the
// transition that produced it.
type JobNotifier interface {
	JobCreated(ctx context.Context, job *types.ProcessingJob)
	JobProgress(ctx context.Context, job *types.ProcessingJob, pct int)
	JobDone(ctx context.Context, job *types.ProcessingJob)
	JobFailed(ctx context.Context, job *types.ProcessingJob)
	DocumentCompleted(ctx context.Context, docID uuid.UUID, sourceType string, totalChunks int)
}

type noopNotifier struct{}

// NewNoopNotifier is the fallback when no event bus is configured.
func NewNoopNotifier() JobNotifier { return noopNotifier{} }

func (noopNotifier) JobCreated(context.Context, *types.ProcessingJob)          {}
func (noopNotifier) JobProgress(context.Context, *types.ProcessingJob, int)    {}
func (noopNotifier) JobDone(context.Context, *types.ProcessingJob)             {}
func (noopNotifier) JobFailed(context.Context, *types.ProcessingJob)           {}
func (noopNotifier) DocumentCompleted(context.Context, uuid.UUID, string, int) {}
