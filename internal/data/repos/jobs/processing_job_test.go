package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docvault/docvault-backend/internal/data/repos/testutil"
	types "github.com/docvault/docvault-backend/internal/domain"
	"github.com/docvault/docvault-backend/internal/platform/dbctx"
)

func TestClaimNextOrderAndLease(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProcessingJobRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, uuid.New())

	low := testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeParse, types.JobStatusPending)
	high := testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeChunk, types.JobStatusPending)
	if err := tx.Model(high).Update("priority", 5).Error; err != nil {
		t.Fatalf("set priority: %v", err)
	}
	// Not ready yet: scheduled in the future.
	future := testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeEmbed, types.JobStatusPending)
	if err := tx.Model(future).Update("scheduled_at", time.Now().Add(1*time.Hour)).Error; err != nil {
		t.Fatalf("set scheduled_at: %v", err)
	}
	// Terminal: never claimable.
	testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeNotify, types.JobStatusCompleted)

	claimed, err := repo.ClaimNext(dbc, 10, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d jobs, want 2", len(claimed))
	}
	if claimed[0].ID != high.ID {
		t.Fatalf("first claim should be the high-priority job")
	}
	if claimed[1].ID != low.ID {
		t.Fatalf("second claim should be the low-priority job")
	}
	for _, j := range claimed {
		if j.LockedAt == nil {
			t.Fatalf("claimed job %s has no lease stamp", j.ID)
		}
	}

	// Leases are live: a second claimant sees nothing.
	again, err := repo.ClaimNext(dbc, 10, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second claim handed out %d jobs, want 0", len(again))
	}

	// An expired lease makes the job claimable again.
	if err := tx.Model(&types.ProcessingJob{}).
		Where("id = ?", low.ID).
		Update("locked_at", time.Now().Add(-10*time.Minute)).Error; err != nil {
		t.Fatalf("expire lease: %v", err)
	}
	reclaimed, err := repo.ClaimNext(dbc, 10, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != low.ID {
		t.Fatalf("expected to reclaim the lease-expired job")
	}
}

func TestUpdateFieldsWhereStatusGuards(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProcessingJobRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, uuid.New())
	job := testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeParse, types.JobStatusPending)

	ok, err := repo.UpdateFieldsWhereStatus(dbc, job.ID,
		[]string{types.JobStatusPending, types.JobStatusRetrying},
		map[string]interface{}{"status": types.JobStatusRunning})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !ok {
		t.Fatalf("pending -> running should pass the guard")
	}

	// Same transition again must be rejected: the row is running now.
	ok, err = repo.UpdateFieldsWhereStatus(dbc, job.ID,
		[]string{types.JobStatusPending, types.JobStatusRetrying},
		map[string]interface{}{"status": types.JobStatusRunning})
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if ok {
		t.Fatalf("running row must not pass a pending/retrying guard")
	}
}

func TestCountActive(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProcessingJobRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, uuid.New())
	testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeParse, types.JobStatusPending)
	testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeParse, types.JobStatusCompleted)
	testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeParse, types.JobStatusFailed)
	testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeChunk, types.JobStatusRunning)

	n, err := repo.CountActive(dbc, doc.ID, types.JobTypeParse)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("active parse jobs = %d, want 1 (terminal rows never count)", n)
	}
	n, err = repo.CountActive(dbc, doc.ID, types.JobTypeChunk)
	if err != nil {
		t.Fatalf("count chunk: %v", err)
	}
	if n != 1 {
		t.Fatalf("active chunk jobs = %d, want 1", n)
	}
}

func TestDeleteTerminalOlderThan(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProcessingJobRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, uuid.New())
	old := testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeParse, types.JobStatusCompleted)
	if err := tx.Model(old).Update("updated_at", time.Now().Add(-48*time.Hour)).Error; err != nil {
		t.Fatalf("age job: %v", err)
	}
	fresh := testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeChunk, types.JobStatusCompleted)
	pending := testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeEmbed, types.JobStatusPending)

	n, err := repo.DeleteTerminalOlderThan(dbc, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d rows, want 1", n)
	}
	for _, id := range []uuid.UUID{fresh.ID, pending.ID} {
		got, err := repo.GetByID(dbc, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got == nil {
			t.Fatalf("job %s should survive cleanup", id)
		}
	}
}

func TestClaimNextFiltersJobTypes(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewProcessingJobRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, tx, uuid.New())
	testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeParse, types.JobStatusPending)
	embed := testutil.SeedJob(t, ctx, tx, doc.ID, types.JobTypeEmbed, types.JobStatusPending)

	claimed, err := repo.ClaimNext(dbc, 10, 5*time.Minute, []string{types.JobTypeEmbed})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != embed.ID {
		t.Fatalf("capability filter claimed %d jobs, want only the embed job", len(claimed))
	}

	// The skipped parse job is still there for an unrestricted claimant.
	rest, err := repo.ClaimNext(dbc, 10, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("unrestricted claim: %v", err)
	}
	if len(rest) != 1 || rest[0].JobType != types.JobTypeParse {
		t.Fatalf("filtered claim must not lease out other job types")
	}
}

func TestClaimNextSingleWinnerAcrossConnections(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewProcessingJobRepo(db, testutil.Logger(t))

	// SKIP LOCKED contention only shows up between independent transactions,
	// so this test commits its rows and cleans them up itself.
	doc := testutil.SeedDocument(t, ctx, db, uuid.New())
	job := testutil.SeedJob(t, ctx, db, doc.ID, types.JobTypeParse, types.JobStatusPending)
	t.Cleanup(func() {
		db.Where("document_id = ?", doc.ID).Delete(&types.ProcessingJob{})
		db.Unscoped().Where("id = ?", doc.ID).Delete(&types.Document{})
	})

	const claimants = 2
	results := make(chan []*types.ProcessingJob, claimants)
	var wg sync.WaitGroup
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := repo.ClaimNext(dbctx.Context{Ctx: ctx}, 10, 5*time.Minute, nil)
			if err != nil {
				t.Errorf("claim: %v", err)
			}
			results <- got
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for got := range results {
		for _, j := range got {
			if j.ID == job.ID {
				wins++
			}
		}
	}
	if wins != 1 {
		t.Fatalf("job claimed %d times across connections, want exactly 1", wins)
	}
}
