package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"microturk-backend/chain"
	"microturk-backend/core/marketplace"
	mstore "microturk-backend/storage/marketplace"
)

func newFundedWorker(t *testing.T, s *mstore.MemoryStore) marketplace.Worker {
	t.Helper()
	ctx := context.Background()
	worker, err := s.UpsertWorker(ctx, "worker-wallet")
	if err != nil {
		t.Fatalf("upsert worker: %v", err)
	}
	req, err := s.UpsertRequester(ctx, "requester-wallet")
	if err != nil {
		t.Fatalf("upsert requester: %v", err)
	}
	task, err := s.CreateTask(ctx, req.ID, "funding task", 5_000, "payref-1", []string{"https://img/1.png", "https://img/2.png"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := s.RecordSubmission(ctx, worker.ID, task.ID, task.Options[0].ID); err != nil {
		t.Fatalf("record submission: %v", err)
	}
	return worker
}

func TestRequestPayoutSubmits(t *testing.T) {
	ctx := context.Background()
	s := mstore.NewMemoryStore(10)
	worker := newFundedWorker(t, s) // pending = 500
	gw := chain.NewMockGateway()
	gw.FixedReference = "sig123"
	svc := NewPayoutService(s, gw, "platform-wallet", 10*time.Minute)

	p, err := svc.RequestPayout(ctx, worker.ID)
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if p.Status != marketplace.PayoutSubmitted {
		t.Fatalf("expected submitted, got %s", p.Status)
	}
	if p.Signature != "sig123" {
		t.Fatalf("expected gateway reference recorded, got %q", p.Signature)
	}
	if p.AmountLamports != 500 {
		t.Fatalf("expected full pending balance, got %d", p.AmountLamports)
	}
	if gw.SubmitCount() != 1 {
		t.Fatalf("expected one transfer, got %d", gw.SubmitCount())
	}

	bal, _ := s.GetBalance(ctx, worker.ID)
	if bal.PendingLamports != 0 || bal.LockedLamports != 500 {
		t.Fatalf("funds must be locked while in flight, got %+v", bal)
	}
}

func TestRequestPayoutGatewayRejection(t *testing.T) {
	ctx := context.Background()
	s := mstore.NewMemoryStore(10)
	worker := newFundedWorker(t, s)
	gw := chain.NewMockGateway()
	gw.RejectSubmit = true
	svc := NewPayoutService(s, gw, "platform-wallet", 10*time.Minute)

	_, err := svc.RequestPayout(ctx, worker.ID)
	if !errors.Is(err, chain.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}

	bal, _ := s.GetBalance(ctx, worker.ID)
	if bal.PendingLamports != 500 || bal.LockedLamports != 0 {
		t.Fatalf("rejection must refund immediately, got %+v", bal)
	}

	// Funds are spendable again on a later attempt.
	gw.RejectSubmit = false
	if _, err := svc.RequestPayout(ctx, worker.ID); err != nil {
		t.Fatalf("retry after rejection: %v", err)
	}
}

func TestRequestPayoutZeroBalance(t *testing.T) {
	ctx := context.Background()
	s := mstore.NewMemoryStore(10)
	worker, _ := s.UpsertWorker(ctx, "broke-worker")
	gw := chain.NewMockGateway()
	svc := NewPayoutService(s, gw, "platform-wallet", 10*time.Minute)

	_, err := svc.RequestPayout(ctx, worker.ID)
	if !errors.Is(err, mstore.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if gw.SubmitCount() != 0 {
		t.Fatalf("no transfer should be attempted, got %d", gw.SubmitCount())
	}
}

func TestReconcileSettles(t *testing.T) {
	ctx := context.Background()
	s := mstore.NewMemoryStore(10)
	worker := newFundedWorker(t, s)
	gw := chain.NewMockGateway()
	gw.FixedReference = "sig123"
	gw.SetOutcome("sig123", chain.OutcomeSettled)
	svc := NewPayoutService(s, gw, "platform-wallet", 10*time.Minute)

	p, err := svc.RequestPayout(ctx, worker.ID)
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if err := svc.ReconcileOnce(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, _ := s.GetPayout(ctx, p.ID)
	if got.Status != marketplace.PayoutSettled {
		t.Fatalf("expected settled, got %s", got.Status)
	}
	bal, _ := s.GetBalance(ctx, worker.ID)
	if bal.PendingLamports != 0 || bal.LockedLamports != 0 {
		t.Fatalf("settled payout must clear locked funds, got %+v", bal)
	}
}

func TestReconcileRefundsFailedTransfer(t *testing.T) {
	ctx := context.Background()
	s := mstore.NewMemoryStore(10)
	worker := newFundedWorker(t, s)
	gw := chain.NewMockGateway()
	gw.FixedReference = "sig123"
	gw.SetOutcome("sig123", chain.OutcomeFailed)
	svc := NewPayoutService(s, gw, "platform-wallet", 10*time.Minute)

	p, err := svc.RequestPayout(ctx, worker.ID)
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if err := svc.ReconcileOnce(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, _ := s.GetPayout(ctx, p.ID)
	if got.Status != marketplace.PayoutFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	bal, _ := s.GetBalance(ctx, worker.ID)
	if bal.PendingLamports != 500 || bal.LockedLamports != 0 {
		t.Fatalf("failed payout must refund pending, got %+v", bal)
	}
}

func TestReconcileHoldsPendingOutcome(t *testing.T) {
	ctx := context.Background()
	s := mstore.NewMemoryStore(10)
	worker := newFundedWorker(t, s)
	gw := chain.NewMockGateway()
	gw.FixedReference = "sig123"
	gw.SetOutcome("sig123", chain.OutcomePending)
	svc := NewPayoutService(s, gw, "platform-wallet", 10*time.Minute)

	p, err := svc.RequestPayout(ctx, worker.ID)
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := svc.ReconcileOnce(ctx); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
	}

	got, _ := s.GetPayout(ctx, p.ID)
	if got.Status != marketplace.PayoutSubmitted {
		t.Fatalf("pending outcome must hold the payout, got %s", got.Status)
	}
	if gw.SubmitCount() != 1 {
		t.Fatalf("a submitted transfer must never be re-submitted, got %d", gw.SubmitCount())
	}
}

func TestReconcileTimesOutUnconfirmed(t *testing.T) {
	ctx := context.Background()
	s := mstore.NewMemoryStore(10)
	worker := newFundedWorker(t, s)
	gw := chain.NewMockGateway()
	gw.FixedReference = "sig123"
	gw.SetOutcome("sig123", chain.OutcomePending)
	svc := NewPayoutService(s, gw, "platform-wallet", time.Millisecond)

	p, err := svc.RequestPayout(ctx, worker.ID)
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := svc.ReconcileOnce(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, _ := s.GetPayout(ctx, p.ID)
	if got.Status != marketplace.PayoutFailed {
		t.Fatalf("unconfirmed payout past deadline must fail, got %s", got.Status)
	}
	bal, _ := s.GetBalance(ctx, worker.ID)
	if bal.PendingLamports != 500 {
		t.Fatalf("timeout must refund pending, got %+v", bal)
	}
}
