package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newSidecar(t *testing.T, handler http.HandlerFunc) *NodeClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewNodeClient(ts.URL)
}

func TestSubmitTransfer(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		client := newSidecar(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/transfer" || r.Method != http.MethodPost {
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			var req transferRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req.AmountLamports != 500 {
				t.Errorf("expected amount 500, got %d", req.AmountLamports)
			}
			json.NewEncoder(w).Encode(transferResponse{Accepted: true, Reference: "sig-abc"})
		})

		ref, err := client.SubmitTransfer(context.Background(), "from", "to", 500)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if ref != "sig-abc" {
			t.Fatalf("expected sig-abc, got %s", ref)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		client := newSidecar(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(transferResponse{Accepted: false, Error: "insufficient funds"})
		})

		_, err := client.SubmitTransfer(context.Background(), "from", "to", 500)
		if !errors.Is(err, ErrRejected) {
			t.Fatalf("expected ErrRejected, got %v", err)
		}
	})

	t.Run("http error", func(t *testing.T) {
		client := newSidecar(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := client.SubmitTransfer(context.Background(), "from", "to", 500)
		if !errors.Is(err, ErrRejected) {
			t.Fatalf("expected ErrRejected, got %v", err)
		}
	})
}

func TestQueryOutcome(t *testing.T) {
	cases := []struct {
		status string
		want   Outcome
	}{
		{"settled", OutcomeSettled},
		{"failed", OutcomeFailed},
		{"pending", OutcomePending},
		{"something-else", OutcomePending},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			client := newSidecar(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(outcomeResponse{Status: tc.status})
			})
			got, err := client.QueryOutcome(context.Background(), "sig-abc")
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}

	t.Run("sidecar unavailable keeps pending", func(t *testing.T) {
		client := newSidecar(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		got, err := client.QueryOutcome(context.Background(), "sig-abc")
		if err == nil {
			t.Fatal("expected error")
		}
		if got != OutcomePending {
			t.Fatalf("errors must not report a definitive outcome, got %s", got)
		}
	})
}

func TestVerifyPayment(t *testing.T) {
	payment := Payment{
		Reference:      "fund-1",
		PayerAddress:   "requester-wallet",
		PayeeAddress:   "platform-wallet",
		AmountLamports: 1_000_000,
	}
	client := newSidecar(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/tx/fund-1" {
			json.NewEncoder(w).Encode(payment)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	ctx := context.Background()
	if err := client.VerifyPayment(ctx, "fund-1", "requester-wallet", "platform-wallet", 1_000_000); err != nil {
		t.Fatalf("valid payment rejected: %v", err)
	}

	cases := []struct {
		name   string
		ref    string
		payer  string
		payee  string
		amount int64
	}{
		{"unknown reference", "nope", "requester-wallet", "platform-wallet", 1_000_000},
		{"wrong payer", "fund-1", "someone-else", "platform-wallet", 1_000_000},
		{"wrong payee", "fund-1", "requester-wallet", "attacker-wallet", 1_000_000},
		{"wrong amount", "fund-1", "requester-wallet", "platform-wallet", 999_999},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := client.VerifyPayment(ctx, tc.ref, tc.payer, tc.payee, tc.amount)
			if !errors.Is(err, ErrPaymentInvalid) {
				t.Fatalf("expected ErrPaymentInvalid, got %v", err)
			}
		})
	}
}
