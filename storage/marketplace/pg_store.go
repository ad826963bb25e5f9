package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"microturk-backend/core/marketplace"
)

// PGStore persists marketplace state in Postgres. All ledger mutations run
// inside a transaction that locks the affected worker row, so concurrent
// submissions and payout requests for the same worker serialize.
type PGStore struct {
	pool             *pgxpool.Pool
	totalSubmissions int64 // configured divisor for per-submission credit
}

// NewPGStore connects and initializes the schema.
func NewPGStore(ctx context.Context, dsn string, totalSubmissions int64) (*PGStore, error) {
	if totalSubmissions <= 0 {
		return nil, fmt.Errorf("total submissions divisor must be positive, got %d", totalSubmissions)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PGStore{pool: pool, totalSubmissions: totalSubmissions}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS mturk_requesters (
  id BIGSERIAL PRIMARY KEY,
  address TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS mturk_workers (
  id BIGSERIAL PRIMARY KEY,
  address TEXT NOT NULL UNIQUE,
  pending_amount BIGINT NOT NULL DEFAULT 0 CHECK (pending_amount >= 0),
  locked_amount BIGINT NOT NULL DEFAULT 0 CHECK (locked_amount >= 0)
);
CREATE TABLE IF NOT EXISTS mturk_tasks (
  id BIGSERIAL PRIMARY KEY,
  requester_id BIGINT NOT NULL REFERENCES mturk_requesters(id),
  title TEXT NOT NULL,
  amount BIGINT NOT NULL CHECK (amount >= 0),
  payment_ref TEXT,
  done BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS mturk_options (
  id BIGSERIAL PRIMARY KEY,
  task_id BIGINT NOT NULL REFERENCES mturk_tasks(id),
  image_url TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS mturk_submissions (
  id BIGSERIAL PRIMARY KEY,
  task_id BIGINT NOT NULL REFERENCES mturk_tasks(id),
  worker_id BIGINT NOT NULL REFERENCES mturk_workers(id),
  option_id BIGINT NOT NULL REFERENCES mturk_options(id),
  amount BIGINT NOT NULL CHECK (amount >= 0),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (task_id, worker_id)
);
CREATE TABLE IF NOT EXISTS mturk_payouts (
  id BIGSERIAL PRIMARY KEY,
  worker_id BIGINT NOT NULL REFERENCES mturk_workers(id),
  amount BIGINT NOT NULL CHECK (amount > 0),
  status TEXT NOT NULL,
  signature TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_mturk_tasks_open ON mturk_tasks(id) WHERE done = false;
CREATE INDEX IF NOT EXISTS idx_mturk_submissions_worker ON mturk_submissions(worker_id);
CREATE INDEX IF NOT EXISTS idx_mturk_payouts_status ON mturk_payouts(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_mturk_payouts_active
  ON mturk_payouts(worker_id) WHERE status IN ('reserved','submitted');
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close shuts down the pool.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertWorker returns the worker for an address, creating it on first sign-in.
func (s *PGStore) UpsertWorker(ctx context.Context, address string) (marketplace.Worker, error) {
	var w marketplace.Worker
	err := s.pool.QueryRow(ctx, `
INSERT INTO mturk_workers (address) VALUES ($1)
ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
RETURNING id, address, pending_amount, locked_amount
`, address).Scan(&w.ID, &w.Address, &w.PendingLamports, &w.LockedLamports)
	if err != nil {
		return marketplace.Worker{}, fmt.Errorf("upsert worker: %w", err)
	}
	return w, nil
}

// UpsertRequester returns the requester for an address, creating it on first sign-in.
func (s *PGStore) UpsertRequester(ctx context.Context, address string) (marketplace.Requester, error) {
	var r marketplace.Requester
	err := s.pool.QueryRow(ctx, `
INSERT INTO mturk_requesters (address) VALUES ($1)
ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
RETURNING id, address
`, address).Scan(&r.ID, &r.Address)
	if err != nil {
		return marketplace.Requester{}, fmt.Errorf("upsert requester: %w", err)
	}
	return r, nil
}

// GetWorker returns a worker by id.
func (s *PGStore) GetWorker(ctx context.Context, workerID int64) (marketplace.Worker, error) {
	var w marketplace.Worker
	err := s.pool.QueryRow(ctx, `
SELECT id, address, pending_amount, locked_amount FROM mturk_workers WHERE id=$1
`, workerID).Scan(&w.ID, &w.Address, &w.PendingLamports, &w.LockedLamports)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Worker{}, ErrWorkerNotFound
	}
	if err != nil {
		return marketplace.Worker{}, err
	}
	return w, nil
}

// GetRequester returns a requester by id.
func (s *PGStore) GetRequester(ctx context.Context, requesterID int64) (marketplace.Requester, error) {
	var r marketplace.Requester
	err := s.pool.QueryRow(ctx, `
SELECT id, address FROM mturk_requesters WHERE id=$1
`, requesterID).Scan(&r.ID, &r.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Requester{}, ErrRequesterNotFound
	}
	if err != nil {
		return marketplace.Requester{}, err
	}
	return r, nil
}

// CreateTask inserts a task and its options in one transaction.
func (s *PGStore) CreateTask(ctx context.Context, requesterID int64, title string, amountLamports int64, paymentRef string, imageURLs []string) (marketplace.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return marketplace.Task{}, err
	}
	defer tx.Rollback(ctx)

	var t marketplace.Task
	err = tx.QueryRow(ctx, `
INSERT INTO mturk_tasks (requester_id, title, amount, payment_ref)
VALUES ($1,$2,$3,$4)
RETURNING id, requester_id, title, amount, COALESCE(payment_ref,''), done, created_at
`, requesterID, title, amountLamports, paymentRef).
		Scan(&t.ID, &t.RequesterID, &t.Title, &t.AmountLamports, &t.PaymentRef, &t.Done, &t.CreatedAt)
	if err != nil {
		return marketplace.Task{}, fmt.Errorf("insert task: %w", err)
	}

	for _, url := range imageURLs {
		var opt marketplace.Option
		err = tx.QueryRow(ctx, `
INSERT INTO mturk_options (task_id, image_url) VALUES ($1,$2)
RETURNING id, task_id, image_url
`, t.ID, url).Scan(&opt.ID, &opt.TaskID, &opt.ImageURL)
		if err != nil {
			return marketplace.Task{}, fmt.Errorf("insert option: %w", err)
		}
		t.Options = append(t.Options, opt)
	}

	if err := tx.Commit(ctx); err != nil {
		return marketplace.Task{}, err
	}
	return t, nil
}

// GetTask returns a task with its options.
func (s *PGStore) GetTask(ctx context.Context, taskID int64) (marketplace.Task, error) {
	var t marketplace.Task
	err := s.pool.QueryRow(ctx, `
SELECT id, requester_id, title, amount, COALESCE(payment_ref,''), done, created_at
FROM mturk_tasks WHERE id=$1
`, taskID).Scan(&t.ID, &t.RequesterID, &t.Title, &t.AmountLamports, &t.PaymentRef, &t.Done, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return marketplace.Task{}, err
	}
	opts, err := s.loadOptions(ctx, s.pool, t.ID)
	if err != nil {
		return marketplace.Task{}, err
	}
	t.Options = opts
	return t, nil
}

// TaskStats tallies submissions per option for a task the requester owns.
func (s *PGStore) TaskStats(ctx context.Context, requesterID, taskID int64) ([]marketplace.OptionStat, error) {
	var owner int64
	err := s.pool.QueryRow(ctx, `SELECT requester_id FROM mturk_tasks WHERE id=$1`, taskID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if owner != requesterID {
		return nil, ErrTaskNotFound
	}

	rows, err := s.pool.Query(ctx, `
SELECT o.id, o.task_id, o.image_url, COUNT(s.id)
FROM mturk_options o
LEFT JOIN mturk_submissions s ON s.option_id = o.id
WHERE o.task_id = $1
GROUP BY o.id, o.task_id, o.image_url
ORDER BY o.id
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []marketplace.OptionStat
	for rows.Next() {
		var st marketplace.OptionStat
		if err := rows.Scan(&st.Option.ID, &st.Option.TaskID, &st.Option.ImageURL, &st.Count); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// querier lets task reads run either on the pool or inside a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NextTask returns the earliest open task the worker has not submitted to,
// or nil when none remain. Pure read; ties break on ascending task id.
func (s *PGStore) NextTask(ctx context.Context, workerID int64) (*marketplace.Task, error) {
	return s.nextTask(ctx, s.pool, workerID)
}

func (s *PGStore) nextTask(ctx context.Context, q querier, workerID int64) (*marketplace.Task, error) {
	var t marketplace.Task
	err := q.QueryRow(ctx, `
SELECT t.id, t.requester_id, t.title, t.amount, COALESCE(t.payment_ref,''), t.done, t.created_at
FROM mturk_tasks t
WHERE t.done = false
  AND NOT EXISTS (
    SELECT 1 FROM mturk_submissions s WHERE s.task_id = t.id AND s.worker_id = $1
  )
ORDER BY t.id ASC
LIMIT 1
`, workerID).Scan(&t.ID, &t.RequesterID, &t.Title, &t.AmountLamports, &t.PaymentRef, &t.Done, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	opts, err := s.loadOptions(ctx, q, t.ID)
	if err != nil {
		return nil, err
	}
	t.Options = opts
	return &t, nil
}

func (s *PGStore) loadOptions(ctx context.Context, q querier, taskID int64) ([]marketplace.Option, error) {
	rows, err := q.Query(ctx, `
SELECT id, task_id, image_url FROM mturk_options WHERE task_id=$1 ORDER BY id
`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opts []marketplace.Option
	for rows.Next() {
		var o marketplace.Option
		if err := rows.Scan(&o.ID, &o.TaskID, &o.ImageURL); err != nil {
			return nil, err
		}
		opts = append(opts, o)
	}
	return opts, rows.Err()
}

// RecordSubmission validates eligibility, inserts the submission, and credits
// the worker's pending balance as one transaction. The unique index on
// (task_id, worker_id) rejects a concurrent duplicate; the loser sees
// ErrDuplicateSubmission with no partial credit.
func (s *PGStore) RecordSubmission(ctx context.Context, workerID, taskID, optionID int64) (SubmissionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SubmissionResult{}, err
	}
	defer tx.Rollback(ctx)

	// Lock the worker row first: it is the single point of mutual exclusion
	// for the ledger.
	var w marketplace.Worker
	err = tx.QueryRow(ctx, `
SELECT id, address, pending_amount, locked_amount FROM mturk_workers WHERE id=$1 FOR UPDATE
`, workerID).Scan(&w.ID, &w.Address, &w.PendingLamports, &w.LockedLamports)
	if errors.Is(err, pgx.ErrNoRows) {
		return SubmissionResult{}, ErrWorkerNotFound
	}
	if err != nil {
		return SubmissionResult{}, err
	}

	// Lock the task row too, so the quota count and done flip below serialize
	// across workers submitting to the same task.
	var taskDone bool
	err = tx.QueryRow(ctx, `
SELECT done FROM mturk_tasks WHERE id=$1 FOR UPDATE
`, taskID).Scan(&taskDone)
	if errors.Is(err, pgx.ErrNoRows) {
		return SubmissionResult{}, ErrInvalidTask
	}
	if err != nil {
		return SubmissionResult{}, err
	}

	// The submitted task must still be the worker's assigned next task.
	// Re-validating inside the transaction blocks replays and out-of-order
	// submissions.
	assigned, err := s.nextTask(ctx, tx, workerID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if taskDone || assigned == nil || assigned.ID != taskID {
		// A replay of an already-recorded submission lands here, because the
		// existing row excludes the task from the worker's next-task query.
		var exists bool
		err := tx.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM mturk_submissions WHERE task_id=$1 AND worker_id=$2)
`, taskID, workerID).Scan(&exists)
		if err != nil {
			return SubmissionResult{}, err
		}
		if exists {
			return SubmissionResult{}, ErrDuplicateSubmission
		}
		return SubmissionResult{}, ErrInvalidTask
	}

	var optTaskID int64
	err = tx.QueryRow(ctx, `SELECT task_id FROM mturk_options WHERE id=$1`, optionID).Scan(&optTaskID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && optTaskID != taskID) {
		return SubmissionResult{}, ErrInvalidOption
	}
	if err != nil {
		return SubmissionResult{}, err
	}

	// Credit is computed from the task's stored amount at submit time, so a
	// later divisor change never rewrites history.
	amount := assigned.AmountLamports / s.totalSubmissions

	var sub marketplace.Submission
	err = tx.QueryRow(ctx, `
INSERT INTO mturk_submissions (task_id, worker_id, option_id, amount)
VALUES ($1,$2,$3,$4)
RETURNING id, task_id, worker_id, option_id, amount, created_at
`, taskID, workerID, optionID, amount).
		Scan(&sub.ID, &sub.TaskID, &sub.WorkerID, &sub.OptionID, &sub.AmountLamports, &sub.CreatedAt)
	if isUniqueViolation(err) {
		return SubmissionResult{}, ErrDuplicateSubmission
	}
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("insert submission: %w", err)
	}

	var bal marketplace.Balance
	err = tx.QueryRow(ctx, `
UPDATE mturk_workers SET pending_amount = pending_amount + $2 WHERE id=$1
RETURNING pending_amount, locked_amount
`, workerID, amount).Scan(&bal.PendingLamports, &bal.LockedLamports)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("credit worker: %w", err)
	}

	// Flip done once the quota is reached so the task stops being assigned.
	var submitted int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM mturk_submissions WHERE task_id=$1`, taskID).Scan(&submitted); err != nil {
		return SubmissionResult{}, err
	}
	if submitted >= s.totalSubmissions {
		if _, err := tx.Exec(ctx, `UPDATE mturk_tasks SET done=true WHERE id=$1`, taskID); err != nil {
			return SubmissionResult{}, err
		}
	}

	next, err := s.nextTask(ctx, tx, workerID)
	if err != nil {
		return SubmissionResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SubmissionResult{}, err
	}
	return SubmissionResult{Submission: sub, Balance: bal, NextTask: next}, nil
}

// GetBalance returns the worker's pending and locked amounts.
func (s *PGStore) GetBalance(ctx context.Context, workerID int64) (marketplace.Balance, error) {
	w, err := s.GetWorker(ctx, workerID)
	if err != nil {
		return marketplace.Balance{}, err
	}
	return marketplace.Balance{PendingLamports: w.PendingLamports, LockedLamports: w.LockedLamports}, nil
}

// ReservePayout atomically moves the whole pending balance to locked and
// creates a reserved payout row. A concurrent second request for the same
// worker either observes pending = 0 or trips the partial unique index on
// non-terminal payouts, so at most one reservation wins.
func (s *PGStore) ReservePayout(ctx context.Context, workerID int64) (marketplace.Payout, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return marketplace.Payout{}, err
	}
	defer tx.Rollback(ctx)

	var pending int64
	err = tx.QueryRow(ctx, `
SELECT pending_amount FROM mturk_workers WHERE id=$1 FOR UPDATE
`, workerID).Scan(&pending)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Payout{}, ErrWorkerNotFound
	}
	if err != nil {
		return marketplace.Payout{}, err
	}

	var inflight int64
	err = tx.QueryRow(ctx, `
SELECT COUNT(*) FROM mturk_payouts WHERE worker_id=$1 AND status IN ('reserved','submitted')
`, workerID).Scan(&inflight)
	if err != nil {
		return marketplace.Payout{}, err
	}
	if inflight > 0 {
		return marketplace.Payout{}, ErrPayoutInProgress
	}
	if pending == 0 {
		return marketplace.Payout{}, ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, `
UPDATE mturk_workers SET pending_amount = 0, locked_amount = locked_amount + $2 WHERE id=$1
`, workerID, pending); err != nil {
		return marketplace.Payout{}, fmt.Errorf("reserve balance: %w", err)
	}

	var p marketplace.Payout
	err = tx.QueryRow(ctx, `
INSERT INTO mturk_payouts (worker_id, amount, status)
VALUES ($1,$2,'reserved')
RETURNING id, worker_id, amount, status, signature, created_at, updated_at
`, workerID, pending).Scan(&p.ID, &p.WorkerID, &p.AmountLamports, &p.Status, &p.Signature, &p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return marketplace.Payout{}, ErrPayoutInProgress
	}
	if err != nil {
		return marketplace.Payout{}, fmt.Errorf("insert payout: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return marketplace.Payout{}, err
	}
	return p, nil
}

// MarkPayoutSubmitted records the gateway reference and moves reserved -> submitted.
func (s *PGStore) MarkPayoutSubmitted(ctx context.Context, payoutID int64, signature string) (marketplace.Payout, error) {
	var p marketplace.Payout
	err := s.pool.QueryRow(ctx, `
UPDATE mturk_payouts SET status='submitted', signature=$2, updated_at=now()
WHERE id=$1 AND status='reserved'
RETURNING id, worker_id, amount, status, signature, created_at, updated_at
`, payoutID, signature).Scan(&p.ID, &p.WorkerID, &p.AmountLamports, &p.Status, &p.Signature, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Payout{}, s.payoutTransitionErr(ctx, payoutID)
	}
	if err != nil {
		return marketplace.Payout{}, err
	}
	return p, nil
}

// SettlePayout finalizes a submitted payout: the locked amount permanently
// leaves the ledger. Never refunds.
func (s *PGStore) SettlePayout(ctx context.Context, payoutID int64) (marketplace.Payout, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return marketplace.Payout{}, err
	}
	defer tx.Rollback(ctx)

	var p marketplace.Payout
	err = tx.QueryRow(ctx, `
UPDATE mturk_payouts SET status='settled', updated_at=now()
WHERE id=$1 AND status='submitted'
RETURNING id, worker_id, amount, status, signature, created_at, updated_at
`, payoutID).Scan(&p.ID, &p.WorkerID, &p.AmountLamports, &p.Status, &p.Signature, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Payout{}, s.payoutTransitionErr(ctx, payoutID)
	}
	if err != nil {
		return marketplace.Payout{}, err
	}

	if _, err := tx.Exec(ctx, `
UPDATE mturk_workers SET locked_amount = locked_amount - $2 WHERE id=$1
`, p.WorkerID, p.AmountLamports); err != nil {
		return marketplace.Payout{}, fmt.Errorf("release locked balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return marketplace.Payout{}, err
	}
	return p, nil
}

// FailPayout refunds a reserved or submitted payout: the amount moves from
// locked back to pending in the same transaction as the status change.
func (s *PGStore) FailPayout(ctx context.Context, payoutID int64) (marketplace.Payout, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return marketplace.Payout{}, err
	}
	defer tx.Rollback(ctx)

	var p marketplace.Payout
	err = tx.QueryRow(ctx, `
UPDATE mturk_payouts SET status='failed', updated_at=now()
WHERE id=$1 AND status IN ('reserved','submitted')
RETURNING id, worker_id, amount, status, signature, created_at, updated_at
`, payoutID).Scan(&p.ID, &p.WorkerID, &p.AmountLamports, &p.Status, &p.Signature, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Payout{}, s.payoutTransitionErr(ctx, payoutID)
	}
	if err != nil {
		return marketplace.Payout{}, err
	}

	if _, err := tx.Exec(ctx, `
UPDATE mturk_workers
SET locked_amount = locked_amount - $2, pending_amount = pending_amount + $2
WHERE id=$1
`, p.WorkerID, p.AmountLamports); err != nil {
		return marketplace.Payout{}, fmt.Errorf("refund balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return marketplace.Payout{}, err
	}
	return p, nil
}

// ListPayoutsByStatus returns payouts in a given state, oldest first.
func (s *PGStore) ListPayoutsByStatus(ctx context.Context, status marketplace.PayoutStatus) ([]marketplace.Payout, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, worker_id, amount, status, signature, created_at, updated_at
FROM mturk_payouts WHERE status=$1 ORDER BY id
`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []marketplace.Payout
	for rows.Next() {
		var p marketplace.Payout
		if err := rows.Scan(&p.ID, &p.WorkerID, &p.AmountLamports, &p.Status, &p.Signature, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPayout returns a payout by id.
func (s *PGStore) GetPayout(ctx context.Context, payoutID int64) (marketplace.Payout, error) {
	var p marketplace.Payout
	err := s.pool.QueryRow(ctx, `
SELECT id, worker_id, amount, status, signature, created_at, updated_at
FROM mturk_payouts WHERE id=$1
`, payoutID).Scan(&p.ID, &p.WorkerID, &p.AmountLamports, &p.Status, &p.Signature, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.Payout{}, ErrPayoutNotFound
	}
	if err != nil {
		return marketplace.Payout{}, err
	}
	return p, nil
}

// payoutTransitionErr distinguishes a missing payout from one already in a
// terminal state after a guarded UPDATE matched no rows.
func (s *PGStore) payoutTransitionErr(ctx context.Context, payoutID int64) error {
	if _, err := s.GetPayout(ctx, payoutID); err != nil {
		return err
	}
	return ErrPayoutTerminal
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
