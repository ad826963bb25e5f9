package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"microturk-backend/chain"
	"microturk-backend/core/marketplace"
	"microturk-backend/metric"
	mstore "microturk-backend/storage/marketplace"
)

// PayoutService drives the payout state machine: it reserves pending
// balance, hands the transfer to the chain gateway, and reconciles
// submitted payouts until they settle or fail. The gateway is never called
// while the reservation transaction is open.
type PayoutService struct {
	store           mstore.Store
	gateway         chain.Gateway
	platformWallet  string
	confirmDeadline time.Duration
}

// NewPayoutService builds a PayoutService. confirmDeadline bounds how long a
// submitted payout may stay unconfirmed before it is failed and refunded.
func NewPayoutService(store mstore.Store, gateway chain.Gateway, platformWallet string, confirmDeadline time.Duration) *PayoutService {
	return &PayoutService{
		store:           store,
		gateway:         gateway,
		platformWallet:  platformWallet,
		confirmDeadline: confirmDeadline,
	}
}

// RequestPayout reserves the worker's pending balance, submits the transfer,
// and records the gateway reference. On gateway rejection the reservation is
// refunded in the same call and the rejection is surfaced to the caller.
func (s *PayoutService) RequestPayout(ctx context.Context, workerID int64) (marketplace.Payout, error) {
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return marketplace.Payout{}, err
	}

	reserved, err := s.store.ReservePayout(ctx, workerID)
	if err != nil {
		return marketplace.Payout{}, err
	}
	metric.PayoutsReserved.Inc()

	// The worker row lock is released; only this payout row is in play now.
	ref, err := s.gateway.SubmitTransfer(ctx, s.platformWallet, worker.Address, reserved.AmountLamports)
	if err != nil {
		failed, ferr := s.store.FailPayout(ctx, reserved.ID)
		if ferr != nil {
			// Storage refused the refund; the reservation stays visible for
			// operator reconciliation rather than silently dropping funds.
			log.Printf("payout %d: refund after gateway rejection failed: %v", reserved.ID, ferr)
			return marketplace.Payout{}, fmt.Errorf("gateway rejected and refund failed: %w", ferr)
		}
		metric.PayoutsFailed.Inc()
		return failed, fmt.Errorf("transfer not accepted: %w", err)
	}

	submitted, err := s.store.MarkPayoutSubmitted(ctx, reserved.ID, ref)
	if err != nil {
		return marketplace.Payout{}, err
	}
	return submitted, nil
}

// ReconcileOnce queries the gateway for every submitted payout and applies
// definitive outcomes. Ambiguous answers leave the payout untouched; a payout
// unconfirmed past the deadline is failed and refunded. No transfer is ever
// re-submitted here.
func (s *PayoutService) ReconcileOnce(ctx context.Context) error {
	payouts, err := s.store.ListPayoutsByStatus(ctx, marketplace.PayoutSubmitted)
	if err != nil {
		return err
	}
	for _, p := range payouts {
		outcome, err := s.gateway.QueryOutcome(ctx, p.Signature)
		if err != nil {
			// Outcome unknown: do not guess, keep it submitted.
			log.Printf("payout %d: outcome query failed, holding for reconciliation: %v", p.ID, err)
			continue
		}
		switch outcome {
		case chain.OutcomeSettled:
			if _, err := s.store.SettlePayout(ctx, p.ID); err != nil && !errors.Is(err, mstore.ErrPayoutTerminal) {
				log.Printf("payout %d: settle failed: %v", p.ID, err)
				continue
			}
			metric.PayoutsSettled.Inc()
			metric.LamportsSettled.Add(float64(p.AmountLamports))
		case chain.OutcomeFailed:
			if _, err := s.store.FailPayout(ctx, p.ID); err != nil && !errors.Is(err, mstore.ErrPayoutTerminal) {
				log.Printf("payout %d: refund failed: %v", p.ID, err)
				continue
			}
			metric.PayoutsFailed.Inc()
		case chain.OutcomePending:
			if time.Since(p.UpdatedAt) > s.confirmDeadline {
				if _, err := s.store.FailPayout(ctx, p.ID); err != nil && !errors.Is(err, mstore.ErrPayoutTerminal) {
					log.Printf("payout %d: timeout refund failed: %v", p.ID, err)
					continue
				}
				log.Printf("payout %d: confirmation deadline passed, refunded", p.ID)
				metric.PayoutsFailed.Inc()
			}
		}
	}
	return nil
}

// StartReconciler runs ReconcileOnce on a schedule until ctx is cancelled.
func (s *PayoutService) StartReconciler(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := s.ReconcileOnce(ctx); err != nil {
					log.Printf("payout reconciliation error: %v", err)
				}
			}
		}
	}()
}
