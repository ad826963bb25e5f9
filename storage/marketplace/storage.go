package marketplace

import (
	"context"

	"microturk-backend/core/marketplace"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrTaskNotFound        = Err("task not found")
	ErrWorkerNotFound      = Err("worker not found")
	ErrRequesterNotFound   = Err("requester not found")
	ErrPayoutNotFound      = Err("payout not found")
	ErrInvalidTask         = Err("task is not the worker's next task")
	ErrInvalidOption       = Err("option does not belong to task")
	ErrDuplicateSubmission = Err("submission already recorded for this task and worker")
	ErrInsufficientBalance = Err("pending balance is zero")
	ErrPayoutInProgress    = Err("a payout is already in flight for this worker")
	ErrPayoutTerminal      = Err("payout already reached a terminal state")
)

// SubmissionResult is what RecordSubmission hands back: the recorded
// submission, the worker's fresh balance, and the worker's new next task
// (nil when none remain) so callers avoid an extra round trip.
type SubmissionResult struct {
	Submission marketplace.Submission
	Balance    marketplace.Balance
	NextTask   *marketplace.Task
}

// Store abstracts marketplace persistence. Every mutating method runs as
// one atomic unit; concurrent calls for the same worker serialize on the
// worker row.
type Store interface {
	// Accounts.
	UpsertWorker(ctx context.Context, address string) (marketplace.Worker, error)
	UpsertRequester(ctx context.Context, address string) (marketplace.Requester, error)
	GetWorker(ctx context.Context, workerID int64) (marketplace.Worker, error)
	GetRequester(ctx context.Context, requesterID int64) (marketplace.Requester, error)

	// Tasks.
	CreateTask(ctx context.Context, requesterID int64, title string, amountLamports int64, paymentRef string, imageURLs []string) (marketplace.Task, error)
	GetTask(ctx context.Context, taskID int64) (marketplace.Task, error)
	TaskStats(ctx context.Context, requesterID, taskID int64) ([]marketplace.OptionStat, error)

	// Task assignment and the earnings ledger.
	NextTask(ctx context.Context, workerID int64) (*marketplace.Task, error)
	RecordSubmission(ctx context.Context, workerID, taskID, optionID int64) (SubmissionResult, error)
	GetBalance(ctx context.Context, workerID int64) (marketplace.Balance, error)

	// Payout state machine. ReservePayout is the linearization point that
	// prevents double-spend; the rest transition a single payout row.
	ReservePayout(ctx context.Context, workerID int64) (marketplace.Payout, error)
	MarkPayoutSubmitted(ctx context.Context, payoutID int64, signature string) (marketplace.Payout, error)
	SettlePayout(ctx context.Context, payoutID int64) (marketplace.Payout, error)
	FailPayout(ctx context.Context, payoutID int64) (marketplace.Payout, error)
	ListPayoutsByStatus(ctx context.Context, status marketplace.PayoutStatus) ([]marketplace.Payout, error)
	GetPayout(ctx context.Context, payoutID int64) (marketplace.Payout, error)

	Close()
}
