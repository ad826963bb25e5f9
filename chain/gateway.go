package chain

import "context"

// Outcome is the definitive (or not yet definitive) fate of a submitted transfer.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSettled Outcome = "settled"
	OutcomeFailed  Outcome = "failed"
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	// ErrRejected means the gateway definitively did not accept the transfer.
	ErrRejected = Err("gateway rejected the transfer")
	// ErrPaymentInvalid means a funding payment did not match the expected
	// payer, recipient, or amount.
	ErrPaymentInvalid = Err("payment verification failed")
)

// Payment is an observed on-chain transfer used to verify task funding.
type Payment struct {
	Reference      string `json:"reference"`
	PayerAddress   string `json:"payer"`
	PayeeAddress   string `json:"payee"`
	AmountLamports int64  `json:"amount"`
}

// Gateway submits transfers to the chain and reports their fate. It is
// best-effort: SubmitTransfer may fail outright, and QueryOutcome may keep
// answering Pending while the network makes up its mind.
type Gateway interface {
	// SubmitTransfer asks the chain to move amount from the platform wallet
	// to the destination address. Returns an opaque reference on acceptance;
	// ErrRejected (possibly wrapped) when the transfer was not accepted.
	SubmitTransfer(ctx context.Context, fromAddress, toAddress string, amountLamports int64) (string, error)

	// QueryOutcome reports the current fate of a previously accepted transfer.
	QueryOutcome(ctx context.Context, reference string) (Outcome, error)

	// VerifyPayment checks that the referenced on-chain payment was sent by
	// payer to payee for exactly amount.
	VerifyPayment(ctx context.Context, reference, payer, payee string, amountLamports int64) error
}
