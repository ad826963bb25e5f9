package chain

import (
	"context"
	"fmt"
	"sync"
)

// MockGateway is a scriptable in-process Gateway for tests and dev mode.
// By default every transfer is accepted and settles immediately.
type MockGateway struct {
	mu sync.Mutex

	// RejectSubmit makes SubmitTransfer fail with ErrRejected.
	RejectSubmit bool
	// SubmitErr, when set, is returned from SubmitTransfer as-is.
	SubmitErr error
	// FixedReference overrides the generated reference.
	FixedReference string
	// Outcomes maps reference -> scripted outcome; unlisted references settle.
	Outcomes map[string]Outcome
	// Payments holds verifiable funding payments keyed by reference.
	Payments map[string]Payment

	submitted int
}

// NewMockGateway builds a gateway that accepts and settles everything.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Outcomes: make(map[string]Outcome),
		Payments: make(map[string]Payment),
	}
}

// SubmitCount reports how many transfers were accepted. Tests use it to
// assert that a payout under reconciliation never submits twice.
func (g *MockGateway) SubmitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitted
}

func (g *MockGateway) SubmitTransfer(ctx context.Context, fromAddress, toAddress string, amountLamports int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SubmitErr != nil {
		return "", g.SubmitErr
	}
	if g.RejectSubmit {
		return "", ErrRejected
	}
	g.submitted++
	ref := g.FixedReference
	if ref == "" {
		ref = fmt.Sprintf("mocksig-%d", g.submitted)
	}
	return ref, nil
}

func (g *MockGateway) QueryOutcome(ctx context.Context, reference string) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.Outcomes[reference]; ok {
		return o, nil
	}
	return OutcomeSettled, nil
}

func (g *MockGateway) VerifyPayment(ctx context.Context, reference, payer, payee string, amountLamports int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.Payments[reference]
	if !ok {
		return fmt.Errorf("%w: transaction %s not found", ErrPaymentInvalid, reference)
	}
	if p.PayeeAddress != payee || p.PayerAddress != payer || p.AmountLamports != amountLamports {
		return ErrPaymentInvalid
	}
	return nil
}

// SetOutcome scripts the fate of a reference.
func (g *MockGateway) SetOutcome(reference string, o Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Outcomes[reference] = o
}

// AddPayment registers a verifiable funding payment.
func (g *MockGateway) AddPayment(p Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Payments[p.Reference] = p
}
