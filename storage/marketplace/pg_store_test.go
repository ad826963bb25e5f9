package marketplace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
)

// newPGTestStore connects to the database named by MTURK_TEST_PG_DSN and
// resets the marketplace tables. Skipped when the variable is unset.
func newPGTestStore(t *testing.T, totalSubmissions int64) *PGStore {
	t.Helper()
	dsn := os.Getenv("MTURK_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("MTURK_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPGStore(ctx, dsn, totalSubmissions)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	if _, err := s.pool.Exec(ctx, `
TRUNCATE mturk_submissions, mturk_options, mturk_payouts, mturk_tasks, mturk_workers, mturk_requesters
RESTART IDENTITY CASCADE
`); err != nil {
		t.Fatalf("reset tables: %v", err)
	}
	return s
}

func TestPGReplayedSubmissionIsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newPGTestStore(t, 10)

	req, err := s.UpsertRequester(ctx, "requester-wallet")
	if err != nil {
		t.Fatalf("upsert requester: %v", err)
	}
	task, err := s.CreateTask(ctx, req.ID, "pick one", 1_000_000, "payref-1", []string{"https://img/1.png", "https://img/2.png"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	worker, err := s.UpsertWorker(ctx, "worker-wallet")
	if err != nil {
		t.Fatalf("upsert worker: %v", err)
	}

	if _, err := s.RecordSubmission(ctx, worker.ID, task.ID, task.Options[0].ID); err != nil {
		t.Fatalf("record submission: %v", err)
	}

	t.Run("same option", func(t *testing.T) {
		_, err := s.RecordSubmission(ctx, worker.ID, task.ID, task.Options[0].ID)
		if !errors.Is(err, ErrDuplicateSubmission) {
			t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
		}
	})

	t.Run("different option", func(t *testing.T) {
		_, err := s.RecordSubmission(ctx, worker.ID, task.ID, task.Options[1].ID)
		if !errors.Is(err, ErrDuplicateSubmission) {
			t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
		}
	})

	t.Run("no double credit", func(t *testing.T) {
		bal, err := s.GetBalance(ctx, worker.ID)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if bal.PendingLamports != 100_000 {
			t.Fatalf("expected pending 100000, got %d", bal.PendingLamports)
		}
	})
}

func TestPGQuotaNeverOvershoots(t *testing.T) {
	ctx := context.Background()
	const quota = 3
	s := newPGTestStore(t, quota)

	req, err := s.UpsertRequester(ctx, "requester-wallet")
	if err != nil {
		t.Fatalf("upsert requester: %v", err)
	}
	task, err := s.CreateTask(ctx, req.ID, "pick one", 900, "payref-1", []string{"https://img/1.png", "https://img/2.png"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	const workers = 8
	ids := make([]int64, workers)
	for i := range ids {
		w, err := s.UpsertWorker(ctx, fmt.Sprintf("worker-%d", i))
		if err != nil {
			t.Fatalf("upsert worker %d: %v", i, err)
		}
		ids[i] = w.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for _, id := range ids {
		wg.Add(1)
		go func(workerID int64) {
			defer wg.Done()
			_, err := s.RecordSubmission(ctx, workerID, task.ID, task.Options[0].ID)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInvalidTask):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != quota {
		t.Fatalf("exactly %d submissions may be recorded, got %d", quota, ok)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !got.Done {
		t.Fatal("task should be done after quota is reached")
	}

	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM mturk_submissions WHERE task_id=$1`, task.ID).Scan(&count); err != nil {
		t.Fatalf("count submissions: %v", err)
	}
	if count != quota {
		t.Fatalf("total credits must not exceed the task amount: %d submissions recorded", count)
	}
}
