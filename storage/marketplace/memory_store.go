package marketplace

import (
	"context"
	"sort"
	"sync"
	"time"

	"microturk-backend/core/marketplace"
)

// MemoryStore holds marketplace data in memory behind a single mutex, which
// gives every Store method the same atomicity the Postgres transactions do.
// Used for tests and dev mode.
type MemoryStore struct {
	mu               sync.Mutex
	totalSubmissions int64

	workers    map[int64]marketplace.Worker
	requesters map[int64]marketplace.Requester
	tasks      map[int64]marketplace.Task
	options    map[int64]marketplace.Option
	subs       map[int64]marketplace.Submission
	payouts    map[int64]marketplace.Payout

	// submission uniqueness guard, keyed by (task, worker)
	subIndex map[[2]int64]int64

	nextWorkerID    int64
	nextRequesterID int64
	nextTaskID      int64
	nextOptionID    int64
	nextSubID       int64
	nextPayoutID    int64
}

// NewMemoryStore builds an empty store with the given credit divisor.
func NewMemoryStore(totalSubmissions int64) *MemoryStore {
	return &MemoryStore{
		totalSubmissions: totalSubmissions,
		workers:          make(map[int64]marketplace.Worker),
		requesters:       make(map[int64]marketplace.Requester),
		tasks:            make(map[int64]marketplace.Task),
		options:          make(map[int64]marketplace.Option),
		subs:             make(map[int64]marketplace.Submission),
		payouts:          make(map[int64]marketplace.Payout),
		subIndex:         make(map[[2]int64]int64),
	}
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() {}

// UpsertWorker returns the worker for an address, creating it on first sign-in.
func (s *MemoryStore) UpsertWorker(ctx context.Context, address string) (marketplace.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		if w.Address == address {
			return w, nil
		}
	}
	s.nextWorkerID++
	w := marketplace.Worker{ID: s.nextWorkerID, Address: address}
	s.workers[w.ID] = w
	return w, nil
}

// UpsertRequester returns the requester for an address, creating it on first sign-in.
func (s *MemoryStore) UpsertRequester(ctx context.Context, address string) (marketplace.Requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requesters {
		if r.Address == address {
			return r, nil
		}
	}
	s.nextRequesterID++
	r := marketplace.Requester{ID: s.nextRequesterID, Address: address}
	s.requesters[r.ID] = r
	return r, nil
}

// GetWorker returns a worker by id.
func (s *MemoryStore) GetWorker(ctx context.Context, workerID int64) (marketplace.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok {
		return marketplace.Worker{}, ErrWorkerNotFound
	}
	return w, nil
}

// GetRequester returns a requester by id.
func (s *MemoryStore) GetRequester(ctx context.Context, requesterID int64) (marketplace.Requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requesters[requesterID]
	if !ok {
		return marketplace.Requester{}, ErrRequesterNotFound
	}
	return r, nil
}

// CreateTask inserts a task and its options.
func (s *MemoryStore) CreateTask(ctx context.Context, requesterID int64, title string, amountLamports int64, paymentRef string, imageURLs []string) (marketplace.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requesters[requesterID]; !ok {
		return marketplace.Task{}, ErrRequesterNotFound
	}
	s.nextTaskID++
	t := marketplace.Task{
		ID:             s.nextTaskID,
		RequesterID:    requesterID,
		Title:          title,
		AmountLamports: amountLamports,
		PaymentRef:     paymentRef,
		CreatedAt:      time.Now(),
	}
	for _, url := range imageURLs {
		s.nextOptionID++
		opt := marketplace.Option{ID: s.nextOptionID, TaskID: t.ID, ImageURL: url}
		s.options[opt.ID] = opt
		t.Options = append(t.Options, opt)
	}
	s.tasks[t.ID] = t
	return t, nil
}

// GetTask returns a task with its options.
func (s *MemoryStore) GetTask(ctx context.Context, taskID int64) (marketplace.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return marketplace.Task{}, ErrTaskNotFound
	}
	return t, nil
}

// TaskStats tallies submissions per option for a task the requester owns.
func (s *MemoryStore) TaskStats(ctx context.Context, requesterID, taskID int64) ([]marketplace.OptionStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.RequesterID != requesterID {
		return nil, ErrTaskNotFound
	}
	counts := make(map[int64]int)
	for _, sub := range s.subs {
		if sub.TaskID == taskID {
			counts[sub.OptionID]++
		}
	}
	var out []marketplace.OptionStat
	for _, o := range t.Options {
		out = append(out, marketplace.OptionStat{Option: o, Count: counts[o.ID]})
	}
	return out, nil
}

// NextTask returns the earliest open task without a submission from the worker.
func (s *MemoryStore) NextTask(ctx context.Context, workerID int64) (*marketplace.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextTaskLocked(workerID), nil
}

func (s *MemoryStore) nextTaskLocked(workerID int64) *marketplace.Task {
	ids := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		t := s.tasks[id]
		if t.Done {
			continue
		}
		if _, done := s.subIndex[[2]int64{t.ID, workerID}]; done {
			continue
		}
		out := t
		return &out
	}
	return nil
}

// RecordSubmission validates eligibility, inserts the submission, and credits
// pending balance, all under the store lock.
func (s *MemoryStore) RecordSubmission(ctx context.Context, workerID, taskID, optionID int64) (SubmissionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return SubmissionResult{}, ErrWorkerNotFound
	}

	assigned := s.nextTaskLocked(workerID)
	if assigned == nil || assigned.ID != taskID {
		if _, dup := s.subIndex[[2]int64{taskID, workerID}]; dup {
			return SubmissionResult{}, ErrDuplicateSubmission
		}
		return SubmissionResult{}, ErrInvalidTask
	}

	opt, ok := s.options[optionID]
	if !ok || opt.TaskID != taskID {
		return SubmissionResult{}, ErrInvalidOption
	}

	if _, dup := s.subIndex[[2]int64{taskID, workerID}]; dup {
		return SubmissionResult{}, ErrDuplicateSubmission
	}

	amount := assigned.AmountLamports / s.totalSubmissions
	s.nextSubID++
	sub := marketplace.Submission{
		ID:             s.nextSubID,
		TaskID:         taskID,
		WorkerID:       workerID,
		OptionID:       optionID,
		AmountLamports: amount,
		CreatedAt:      time.Now(),
	}
	s.subs[sub.ID] = sub
	s.subIndex[[2]int64{taskID, workerID}] = sub.ID

	w.PendingLamports += amount
	s.workers[workerID] = w

	var submitted int64
	for _, existing := range s.subs {
		if existing.TaskID == taskID {
			submitted++
		}
	}
	if submitted >= s.totalSubmissions {
		t := s.tasks[taskID]
		t.Done = true
		s.tasks[taskID] = t
	}

	return SubmissionResult{
		Submission: sub,
		Balance:    marketplace.Balance{PendingLamports: w.PendingLamports, LockedLamports: w.LockedLamports},
		NextTask:   s.nextTaskLocked(workerID),
	}, nil
}

// GetBalance returns the worker's pending and locked amounts.
func (s *MemoryStore) GetBalance(ctx context.Context, workerID int64) (marketplace.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok {
		return marketplace.Balance{}, ErrWorkerNotFound
	}
	return marketplace.Balance{PendingLamports: w.PendingLamports, LockedLamports: w.LockedLamports}, nil
}

// ReservePayout moves the whole pending balance to locked and creates a
// reserved payout, rejecting when another payout is still in flight.
func (s *MemoryStore) ReservePayout(ctx context.Context, workerID int64) (marketplace.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[workerID]
	if !ok {
		return marketplace.Payout{}, ErrWorkerNotFound
	}
	for _, p := range s.payouts {
		if p.WorkerID == workerID && !p.Status.Terminal() {
			return marketplace.Payout{}, ErrPayoutInProgress
		}
	}
	if w.PendingLamports == 0 {
		return marketplace.Payout{}, ErrInsufficientBalance
	}

	amount := w.PendingLamports
	w.PendingLamports = 0
	w.LockedLamports += amount
	s.workers[workerID] = w

	s.nextPayoutID++
	now := time.Now()
	p := marketplace.Payout{
		ID:             s.nextPayoutID,
		WorkerID:       workerID,
		AmountLamports: amount,
		Status:         marketplace.PayoutReserved,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.payouts[p.ID] = p
	return p, nil
}

// MarkPayoutSubmitted records the gateway reference and moves reserved -> submitted.
func (s *MemoryStore) MarkPayoutSubmitted(ctx context.Context, payoutID int64, signature string) (marketplace.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[payoutID]
	if !ok {
		return marketplace.Payout{}, ErrPayoutNotFound
	}
	if p.Status != marketplace.PayoutReserved {
		return marketplace.Payout{}, ErrPayoutTerminal
	}
	p.Status = marketplace.PayoutSubmitted
	p.Signature = signature
	p.UpdatedAt = time.Now()
	s.payouts[payoutID] = p
	return p, nil
}

// SettlePayout finalizes a submitted payout; locked funds leave the ledger.
func (s *MemoryStore) SettlePayout(ctx context.Context, payoutID int64) (marketplace.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[payoutID]
	if !ok {
		return marketplace.Payout{}, ErrPayoutNotFound
	}
	if p.Status != marketplace.PayoutSubmitted {
		return marketplace.Payout{}, ErrPayoutTerminal
	}
	w := s.workers[p.WorkerID]
	w.LockedLamports -= p.AmountLamports
	s.workers[p.WorkerID] = w

	p.Status = marketplace.PayoutSettled
	p.UpdatedAt = time.Now()
	s.payouts[payoutID] = p
	return p, nil
}

// FailPayout refunds a reserved or submitted payout back to pending.
func (s *MemoryStore) FailPayout(ctx context.Context, payoutID int64) (marketplace.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[payoutID]
	if !ok {
		return marketplace.Payout{}, ErrPayoutNotFound
	}
	if p.Status.Terminal() {
		return marketplace.Payout{}, ErrPayoutTerminal
	}
	w := s.workers[p.WorkerID]
	w.LockedLamports -= p.AmountLamports
	w.PendingLamports += p.AmountLamports
	s.workers[p.WorkerID] = w

	p.Status = marketplace.PayoutFailed
	p.UpdatedAt = time.Now()
	s.payouts[payoutID] = p
	return p, nil
}

// ListPayoutsByStatus returns payouts in a given state, oldest first.
func (s *MemoryStore) ListPayoutsByStatus(ctx context.Context, status marketplace.PayoutStatus) ([]marketplace.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []marketplace.Payout
	for _, p := range s.payouts {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetPayout returns a payout by id.
func (s *MemoryStore) GetPayout(ctx context.Context, payoutID int64) (marketplace.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[payoutID]
	if !ok {
		return marketplace.Payout{}, ErrPayoutNotFound
	}
	return p, nil
}
