package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shuttle/internal/queue"
	"shuttle/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx, queue.TypeComposite, []string{"https://example.com/file.mkv"}, "malayalam", queue.Destination{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", job.Status)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.Type != queue.TypeComposite {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
	if len(fetched.Input) != 1 || fetched.Input[0] != "https://example.com/file.mkv" {
		t.Fatalf("input not round-tripped: %#v", fetched.Input)
	}
	if fetched.TargetLanguage != "malayalam" {
		t.Fatalf("unexpected target language %q", fetched.TargetLanguage)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job, err := store.Get(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for missing job, got %#v", job)
	}
}

func TestClaimNextPendingIsOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first, err := store.Create(ctx, queue.TypeDownload, []string{"a"}, "", queue.Destination{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Create(ctx, queue.TypeDownload, []string{"b"}, "", queue.Destination{}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	claimed, err := store.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("ClaimNextPending failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest job %s, got %#v", first.ID, claimed)
	}
	if claimed.Status != queue.StatusRunning {
		t.Fatalf("claimed job should be running, got %s", claimed.Status)
	}
	if claimed.StartedAt == nil {
		t.Fatal("claimed job should have a start time")
	}
}

func TestClaimNextPendingEmptyQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	claimed, err := store.ClaimNextPending(context.Background())
	if err != nil {
		t.Fatalf("ClaimNextPending failed: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nil on empty queue, got %#v", claimed)
	}
}

func TestUpdateRefusesTerminalOverwrite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx, queue.TypeDownload, []string{"a"}, "", queue.Destination{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	job.SetCompleted()
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update to completed failed: %v", err)
	}

	job.SetFailed("should not stick")
	err = store.Update(ctx, job)
	if !errors.Is(err, queue.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != queue.StatusCompleted {
		t.Fatalf("terminal status overwritten: %s", fetched.Status)
	}
}

func TestUpdateProgressNeverDecreases(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx, queue.TypeDownload, []string{"a"}, "", queue.Destination{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.ClaimNextPending(ctx); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if err := store.UpdateProgress(ctx, job.ID, queue.PhaseDownloading, 40); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, queue.PhaseDownloading, 20); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Progress != 40 {
		t.Fatalf("progress regressed: %v", fetched.Progress)
	}
}

func TestCancelPendingIsImmediate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx, queue.TypeDownload, []string{"a"}, "", queue.Destination{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	status, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", status)
	}
}

func TestCancelRunningSetsFlag(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx, queue.TypeDownload, []string{"a"}, "", queue.Destination{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.ClaimNextPending(ctx); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	status, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if status != queue.StatusRunning {
		t.Fatalf("running job should stay running until observed, got %s", status)
	}

	flagged, err := store.CancelRequested(ctx, job.ID)
	if err != nil {
		t.Fatalf("CancelRequested failed: %v", err)
	}
	if !flagged {
		t.Fatal("expected cancel flag to be set")
	}
}

func TestCancelTerminalReturnsError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx, queue.TypeDownload, []string{"a"}, "", queue.Destination{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}

	status, err := store.Cancel(ctx, job.ID)
	if !errors.Is(err, queue.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
	if status != queue.StatusCancelled {
		t.Fatalf("expected resulting status cancelled, got %s", status)
	}
}

func TestRemoveOnlyTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx, queue.TypeDownload, []string{"a"}, "", queue.Destination{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Remove(ctx, job.ID); !errors.Is(err, queue.ErrNotTerminal) {
		t.Fatalf("expected ErrNotTerminal for pending job, got %v", err)
	}
	if err := store.Remove(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := store.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if err := store.Remove(ctx, job.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	removed, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if removed != nil {
		t.Fatalf("job still present after removal: %#v", removed)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, queue.TypeOrganize, []string{"x"}, "", queue.Destination{}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	claimed, err := store.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	pending, err := store.List(ctx, []queue.Status{queue.StatusPending}, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending jobs, got %d", len(pending))
	}
	for _, job := range pending {
		if job.ID == claimed.ID {
			t.Fatal("claimed job listed as pending")
		}
	}

	all, err := store.List(ctx, nil, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("limit not applied: got %d jobs", len(all))
	}
}

func TestReclaimStaleResetsRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx, queue.TypeDownload, []string{"a"}, "", queue.Destination{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.ClaimNextPending(ctx); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// A cutoff in the future makes the fresh heartbeat look stale.
	reclaimed, err := store.ReclaimStale(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", reclaimed)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != queue.StatusPending {
		t.Fatalf("expected reclaimed job to be pending, got %s", fetched.Status)
	}
}

func TestPurgeTerminalBefore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.Create(ctx, queue.TypeDownload, []string{"a"}, "", queue.Destination{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	purged, err := store.PurgeTerminalBefore(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeTerminalBefore failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged job, got %d", purged)
	}
}
