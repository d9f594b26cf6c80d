package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	docsrepo "github.com/docvault/docvault-backend/internal/data/repos/documents"
	jobsrepo "github.com/docvault/docvault-backend/internal/data/repos/jobs"
	"github.com/docvault/docvault-backend/internal/data/repos/testutil"
	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
)

func TestStageChain(t *testing.T) {
	want := []string{
		types.JobTypeParse,
		types.JobTypeChunk,
		types.JobTypeEmbed,
		types.JobTypeComplete,
		types.JobTypeNotify,
	}

	stage := types.JobTypeParse
	got := []string{stage}
	for i := 0; i < 10; i++ {
		succ, ok := nextStage[stage]
		if !ok {
			break
		}
		got = append(got, succ)
		stage = succ
	}
	if len(got) != len(want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if _, ok := nextStage[types.JobTypeNotify]; ok {
		t.Fatalf("notify must terminate the chain")
	}
}

func TestStageProgressClimbsToCompletion(t *testing.T) {
	prev := 0
	for stage := types.JobTypeParse; stage != ""; stage = nextStage[stage] {
		pct, ok := stageProgress[stage]
		if !ok {
			t.Fatalf("stage %s has no progress floor", stage)
		}
		if pct <= prev {
			t.Fatalf("stage %s progress %d does not advance past %d", stage, pct, prev)
		}
		prev = pct
	}
	if stageProgress[types.JobTypeNotify] != 100 {
		t.Fatalf("notify must land the document at 100")
	}
}

func TestSuccessorPayloadThreadsArtifacts(t *testing.T) {
	p := successorPayload(types.JobTypeChunk, map[string]any{
		"parsed_text_key": "documents/a/b/parsed.txt",
		"text_length":     42,
	})
	if p["parsed_text_key"] != "documents/a/b/parsed.txt" {
		t.Fatalf("chunk payload missing parsed_text_key: %v", p)
	}
	if _, ok := p["text_length"]; ok {
		t.Fatalf("unrelated result fields must not leak forward")
	}

	p = successorPayload(types.JobTypeEmbed, map[string]any{
		"chunks_key":   "documents/a/b/chunks.json",
		"total_chunks": 7,
	})
	if p["chunks_key"] != "documents/a/b/chunks.json" {
		t.Fatalf("embed payload missing chunks_key: %v", p)
	}

	for _, succ := range []string{types.JobTypeComplete, types.JobTypeNotify} {
		if p := successorPayload(succ, map[string]any{"chunks_written": 7}); len(p) != 0 {
			t.Fatalf("%s payload should be empty, got %v", succ, p)
		}
	}
}

func TestEnqueueStageIsIdempotentPerStage(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)

	jobRepo := jobsrepo.NewProcessingJobRepo(db, log)
	queue := NewJobQueueService(db, log, jobRepo, DefaultBackoffPolicy(), 5*time.Minute)
	orch := NewPipelineOrchestrator(db, log, queue,
		docsrepo.NewDocumentRepo(db, log),
		docsrepo.NewRegulatoryDocumentRepo(db, log),
		jobRepo, NewNoopNotifier())

	// EnqueueStage runs on its own connection, so the rows must be
	// committed; the test cleans up after itself.
	doc := testutil.SeedDocument(t, ctx, db, uuid.New())
	t.Cleanup(func() {
		db.Where("document_id = ?", doc.ID).Delete(&types.ProcessingJob{})
		db.Unscoped().Where("id = ?", doc.ID).Delete(&types.Document{})
	})

	payload := map[string]any{"storage_key": doc.StorageKey}

	const callers = 2
	jobs := make(chan *types.ProcessingJob, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := orch.EnqueueStage(ctx, doc.ID, types.SourceTypeUserDocument, types.JobTypeParse, payload)
			if err != nil {
				t.Errorf("enqueue: %v", err)
				return
			}
			jobs <- job
		}()
	}
	wg.Wait()
	close(jobs)

	ids := map[uuid.UUID]bool{}
	for j := range jobs {
		ids[j.ID] = true
	}
	if len(ids) != 1 {
		t.Fatalf("concurrent enqueues produced %d distinct jobs, want 1", len(ids))
	}

	// A later duplicate while the job is still active returns it, too.
	again, err := orch.EnqueueStage(ctx, doc.ID, types.SourceTypeUserDocument, types.JobTypeParse, payload)
	if err != nil {
		t.Fatalf("repeat enqueue: %v", err)
	}
	if !ids[again.ID] {
		t.Fatalf("repeat enqueue created a second job")
	}

	n, err := jobRepo.CountActive(dbctx.Context{Ctx: ctx}, doc.ID, types.JobTypeParse)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("active parse jobs = %d, want exactly 1", n)
	}
}
