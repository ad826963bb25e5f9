package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NodeClient talks to a chain node sidecar over HTTP. The sidecar owns the
// platform keypair and exposes transfer submission, outcome lookup, and
// transaction inspection.
type NodeClient struct {
	nodeURL    string
	httpClient *http.Client
}

// NewNodeClient creates a client for the given sidecar base URL.
func NewNodeClient(nodeURL string) *NodeClient {
	if nodeURL == "" {
		nodeURL = "http://localhost:8899"
	}
	return &NodeClient{
		nodeURL: nodeURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type transferRequest struct {
	From           string `json:"from"`
	To             string `json:"to"`
	AmountLamports int64  `json:"amount"`
}

type transferResponse struct {
	Accepted  bool   `json:"accepted"`
	Reference string `json:"reference"`
	Error     string `json:"error,omitempty"`
}

// SubmitTransfer posts the transfer to the sidecar. Any non-acceptance is
// surfaced as ErrRejected so the caller can refund immediately.
func (c *NodeClient) SubmitTransfer(ctx context.Context, fromAddress, toAddress string, amountLamports int64) (string, error) {
	body, err := json.Marshal(transferRequest{From: fromAddress, To: toAddress, AmountLamports: amountLamports})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL+"/v1/transfer", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var tr transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode transfer response: %w", err)
	}
	if !tr.Accepted || tr.Reference == "" {
		if tr.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrRejected, tr.Error)
		}
		return "", ErrRejected
	}
	return tr.Reference, nil
}

type outcomeResponse struct {
	Status string `json:"status"` // pending | settled | failed
}

// QueryOutcome asks the sidecar for the fate of a submitted transfer.
func (c *NodeClient) QueryOutcome(ctx context.Context, reference string) (Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nodeURL+"/v1/transfer/"+reference, nil)
	if err != nil {
		return OutcomePending, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return OutcomePending, fmt.Errorf("query outcome: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return OutcomePending, fmt.Errorf("query outcome: status %d: %s", resp.StatusCode, string(body))
	}

	var or outcomeResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return OutcomePending, fmt.Errorf("decode outcome: %w", err)
	}
	switch Outcome(or.Status) {
	case OutcomeSettled:
		return OutcomeSettled, nil
	case OutcomeFailed:
		return OutcomeFailed, nil
	default:
		return OutcomePending, nil
	}
}

// VerifyPayment fetches the referenced transaction and checks payer, payee,
// and the exact amount.
func (c *NodeClient) VerifyPayment(ctx context.Context, reference, payer, payee string, amountLamports int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nodeURL+"/v1/tx/"+reference, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: transaction %s not found", ErrPaymentInvalid, reference)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch payment: status %d", resp.StatusCode)
	}

	var p Payment
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return fmt.Errorf("decode payment: %w", err)
	}
	if p.PayeeAddress != payee {
		return fmt.Errorf("%w: sent to wrong address", ErrPaymentInvalid)
	}
	if p.PayerAddress != payer {
		return fmt.Errorf("%w: paid from wrong address", ErrPaymentInvalid)
	}
	if p.AmountLamports != amountLamports {
		return fmt.Errorf("%w: expected %d lamports, got %d", ErrPaymentInvalid, amountLamports, p.AmountLamports)
	}
	return nil
}
