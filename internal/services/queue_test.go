package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	jobsrepo "github.com/docvault/docvault-backend/internal/data/repos/jobs"
	"github.com/docvault/docvault-backend/internal/data/repos/testutil"
	types "github.com/docvault/docvault-backend/internal/domain"
	apperrors "github.com/docvault/docvault-backend/internal/pkg/errors"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
)

func TestBackoffPolicy(t *testing.T) {
	p := DefaultBackoffPolicy()

	if got := p.Delay(0); got != 1*time.Minute {
		t.Fatalf("Delay(0) = %v, want 1m", got)
	}
	if got := p.Delay(1); got != 2*time.Minute {
		t.Fatalf("Delay(1) = %v, want 2m", got)
	}
	if got := p.Delay(3); got != 8*time.Minute {
		t.Fatalf("Delay(3) = %v, want 8m", got)
	}
	// Non-decreasing and capped.
	prev := time.Duration(0)
	for n := 0; n < 40; n++ {
		d := p.Delay(n)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", n, d, prev)
		}
		if d > 1*time.Hour {
			t.Fatalf("Delay(%d) = %v exceeds the cap", n, d)
		}
		prev = d
	}
	if p.Delay(30) != 1*time.Hour {
		t.Fatalf("large retry counts must saturate at the cap")
	}
}

func newQueueForTest(t *testing.T) (JobQueueService, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := jobsrepo.NewProcessingJobRepo(db, testutil.Logger(t))
	queue := NewJobQueueService(db, testutil.Logger(t), repo, DefaultBackoffPolicy(), 5*time.Minute)
	return queue, dbctx.Context{Ctx: context.Background(), Tx: tx}
}

func TestEnqueueValidatesPayload(t *testing.T) {
	queue, dbc := newQueueForTest(t)
	docID := uuid.New()

	cases := []struct {
		name string
		in   EnqueueInput
	}{
		{"missing storage_key", EnqueueInput{
			DocumentID: docID, SourceType: types.SourceTypeUserDocument,
			JobType: types.JobTypeParse, Payload: map[string]any{},
		}},
		{"empty storage_key", EnqueueInput{
			DocumentID: docID, SourceType: types.SourceTypeUserDocument,
			JobType: types.JobTypeParse, Payload: map[string]any{"storage_key": "  "},
		}},
		{"unknown job type", EnqueueInput{
			DocumentID: docID, SourceType: types.SourceTypeUserDocument,
			JobType: "transmogrify", Payload: map[string]any{},
		}},
		{"unknown source type", EnqueueInput{
			DocumentID: docID, SourceType: "webhook",
			JobType: types.JobTypeParse, Payload: map[string]any{"storage_key": "k"},
		}},
		{"priority out of range", EnqueueInput{
			DocumentID: docID, SourceType: types.SourceTypeUserDocument,
			JobType: types.JobTypeParse, Payload: map[string]any{"storage_key": "k"},
			Priority: 11,
		}},
	}
	for _, tc := range cases {
		if _, err := queue.Enqueue(dbc, tc.in); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("%s: err = %v, want ErrValidation", tc.name, err)
		}
	}
}

func TestJobLifecycleRetryThenPermanentFailure(t *testing.T) {
	queue, dbc := newQueueForTest(t)
	ctx := context.Background()

	doc := testutil.SeedDocument(t, ctx, dbc.Tx, uuid.New())

	job, err := queue.Enqueue(dbc, EnqueueInput{
		DocumentID: doc.ID,
		SourceType: types.SourceTypeUserDocument,
		JobType:    types.JobTypeParse,
		Payload:    map[string]any{"storage_key": doc.StorageKey},
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != types.JobStatusPending {
		t.Fatalf("new job status = %s, want pending", job.Status)
	}

	// Complete before running violates the state machine.
	if _, err := queue.Complete(dbc, job.ID, nil); !errors.Is(err, apperrors.ErrPreconditionFailed) {
		t.Fatalf("complete pending: err = %v, want ErrPreconditionFailed", err)
	}

	if err := queue.MarkRunning(dbc, job.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	// Double MarkRunning loses the guard.
	if err := queue.MarkRunning(dbc, job.ID); !errors.Is(err, apperrors.ErrPreconditionFailed) {
		t.Fatalf("second mark running: err = %v, want ErrPreconditionFailed", err)
	}

	// Failures 1 and 2 re-enter the queue with the count ticking up.
	failed, err := queue.Fail(dbc, job.ID, "parse exploded", map[string]any{"attempt": 1})
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != types.JobStatusRetrying {
		t.Fatalf("status = %s, want retrying", failed.Status)
	}
	if failed.RetryCount != 1 {
		t.Fatalf("retry_count = %d, want 1", failed.RetryCount)
	}
	if !failed.ScheduledAt.After(time.Now()) {
		t.Fatalf("retrying job must be scheduled in the future")
	}

	if err := queue.MarkRunning(dbc, job.ID); err != nil {
		t.Fatalf("mark running from retrying: %v", err)
	}
	failed, err = queue.Fail(dbc, job.ID, "parse exploded again", nil)
	if err != nil {
		t.Fatalf("second fail: %v", err)
	}
	if failed.Status != types.JobStatusRetrying || failed.RetryCount != 2 {
		t.Fatalf("after 2 of 3 failures: status = %s retry_count = %d, want retrying/2",
			failed.Status, failed.RetryCount)
	}

	// The third failure spends the whole budget: permanently failed, with
	// every failure counted.
	if err := queue.MarkRunning(dbc, job.ID); err != nil {
		t.Fatalf("mark running before final fail: %v", err)
	}
	failed, err = queue.Fail(dbc, job.ID, "parse exploded for good", nil)
	if err != nil {
		t.Fatalf("third fail: %v", err)
	}
	if failed.Status != types.JobStatusFailed {
		t.Fatalf("status = %s, want failed after max_retries failures", failed.Status)
	}
	if failed.RetryCount != 3 {
		t.Fatalf("retry_count = %d, want 3", failed.RetryCount)
	}

	// Terminal rows reject further transitions.
	if _, err := queue.Cancel(dbc, job.ID); !errors.Is(err, apperrors.ErrPreconditionFailed) {
		t.Fatalf("cancel failed job: err = %v, want ErrPreconditionFailed", err)
	}
}

func TestCompleteAndCancel(t *testing.T) {
	queue, dbc := newQueueForTest(t)
	ctx := context.Background()

	doc := testutil.SeedDocument(t, ctx, dbc.Tx, uuid.New())

	job, err := queue.Enqueue(dbc, EnqueueInput{
		DocumentID: doc.ID,
		SourceType: types.SourceTypeUserDocument,
		JobType:    types.JobTypeChunk,
		Payload:    map[string]any{"parsed_text_key": "k"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := queue.MarkRunning(dbc, job.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	done, err := queue.Complete(dbc, job.ID, map[string]any{"chunks_key": "c"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != types.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if done.CompletedAt == nil {
		t.Fatalf("completed_at not stamped")
	}
	if done.LockedAt != nil {
		t.Fatalf("lease must clear on completion")
	}

	// Cancel only works from pending/retrying.
	other, err := queue.Enqueue(dbc, EnqueueInput{
		DocumentID: doc.ID,
		SourceType: types.SourceTypeUserDocument,
		JobType:    types.JobTypeEmbed,
		Payload:    map[string]any{"chunks_key": "c"},
	})
	if err != nil {
		t.Fatalf("enqueue other: %v", err)
	}
	cancelled, err := queue.Cancel(dbc, other.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != types.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
}
