package marketplace

import "time"

// Task is a funded unit of labeling work with multiple selectable options.
// Immutable after creation except the Done flag, which flips once the
// submission quota is reached.
type Task struct {
	ID             int64     `json:"id"`
	RequesterID    int64     `json:"requester_id"`
	Title          string    `json:"title"`
	AmountLamports int64     `json:"amount"` // total reward, smallest currency unit
	PaymentRef     string    `json:"payment_ref,omitempty"`
	Done           bool      `json:"done"`
	Options        []Option  `json:"options,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Option is one selectable answer for a task. Created with the task, never changed.
type Option struct {
	ID       int64  `json:"id"`
	TaskID   int64  `json:"task_id"`
	ImageURL string `json:"image_url"`
}

// Submission records a worker's choice of one option for a task.
// Write-once; at most one per (task, worker) pair.
type Submission struct {
	ID             int64     `json:"id"`
	TaskID         int64     `json:"task_id"`
	WorkerID       int64     `json:"worker_id"`
	OptionID       int64     `json:"option_id"`
	AmountLamports int64     `json:"amount"` // credit computed at submit time
	CreatedAt      time.Time `json:"created_at"`
}

// Worker owns its balance fields exclusively. Pending only grows via
// submissions and only shrinks via a payout reservation; locked holds
// reserved or historically paid amounts.
type Worker struct {
	ID              int64  `json:"id"`
	Address         string `json:"address"`
	PendingLamports int64  `json:"pending_amount"`
	LockedLamports  int64  `json:"locked_amount"`
}

// Requester funds tasks.
type Requester struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
}

// Balance is the worker-facing view of the ledger.
type Balance struct {
	PendingLamports int64 `json:"pending_amount"`
	LockedLamports  int64 `json:"locked_amount"`
}

// PayoutStatus is the payout state machine. Settled and Failed are terminal.
type PayoutStatus string

const (
	PayoutReserved  PayoutStatus = "reserved"
	PayoutSubmitted PayoutStatus = "submitted"
	PayoutSettled   PayoutStatus = "settled"
	PayoutFailed    PayoutStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutSettled || s == PayoutFailed
}

// Payout tracks one attempt to move reserved earnings on-chain. Rows are
// never deleted or reused, only transitioned, giving an auditable history.
type Payout struct {
	ID             int64        `json:"id"`
	WorkerID       int64        `json:"worker_id"`
	AmountLamports int64        `json:"amount"`
	Status         PayoutStatus `json:"status"`
	Signature      string       `json:"signature,omitempty"` // empty until submitted
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// OptionStat is a per-option submission tally for the requester view.
type OptionStat struct {
	Option Option `json:"option"`
	Count  int    `json:"count"`
}
