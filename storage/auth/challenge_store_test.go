package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
)

type testKeypair struct {
	wallet string
	priv   ed25519.PrivateKey
}

func newKeypair(t *testing.T) testKeypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return testKeypair{wallet: base58.Encode(pub), priv: priv}
}

func (k testKeypair) sign(message string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(k.priv, []byte(message)))
}

func TestChallengeSignIn(t *testing.T) {
	store := NewChallengeStore(time.Minute, "Sign in to MicroTurk", NewEd25519Verifier())
	kp := newKeypair(t)

	ch, err := store.Issue(kp.wallet)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if ch.Message == "" || ch.Nonce == "" {
		t.Fatalf("challenge missing message or nonce: %+v", ch)
	}

	if !store.Verify(kp.wallet, kp.sign(ch.Message)) {
		t.Fatal("valid signature rejected")
	}

	t.Run("challenge is consumed", func(t *testing.T) {
		if store.Verify(kp.wallet, kp.sign(ch.Message)) {
			t.Fatal("consumed challenge must not verify again")
		}
	})
}

func TestChallengeRejections(t *testing.T) {
	store := NewChallengeStore(time.Minute, "Sign in to MicroTurk", NewEd25519Verifier())
	kp := newKeypair(t)

	t.Run("no outstanding challenge", func(t *testing.T) {
		if store.Verify(kp.wallet, kp.sign("anything")) {
			t.Fatal("verification without a challenge must fail")
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		ch, err := store.Issue(kp.wallet)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		other := newKeypair(t)
		if store.Verify(kp.wallet, other.sign(ch.Message)) {
			t.Fatal("signature from a different key must fail")
		}
	})

	t.Run("wrong message", func(t *testing.T) {
		if _, err := store.Issue(kp.wallet); err != nil {
			t.Fatalf("issue: %v", err)
		}
		if store.Verify(kp.wallet, kp.sign("some other message")) {
			t.Fatal("signature over the wrong message must fail")
		}
	})

	t.Run("garbage signature", func(t *testing.T) {
		if _, err := store.Issue(kp.wallet); err != nil {
			t.Fatalf("issue: %v", err)
		}
		if store.Verify(kp.wallet, "not-base64!!") {
			t.Fatal("malformed signature must fail")
		}
	})
}

func TestChallengeExpiry(t *testing.T) {
	store := NewChallengeStore(-time.Second, "Sign in to MicroTurk", NewEd25519Verifier())
	kp := newKeypair(t)

	ch, err := store.Issue(kp.wallet)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if store.Verify(kp.wallet, kp.sign(ch.Message)) {
		t.Fatal("expired challenge must not verify")
	}
}

func TestChallengeAttemptLimit(t *testing.T) {
	store := NewChallengeStore(time.Minute, "Sign in to MicroTurk", NewEd25519Verifier())
	kp := newKeypair(t)

	ch, err := store.Issue(kp.wallet)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	other := newKeypair(t)
	for i := 0; i < 6; i++ {
		store.Verify(kp.wallet, other.sign(ch.Message))
	}
	if store.Verify(kp.wallet, kp.sign(ch.Message)) {
		t.Fatal("challenge must be dropped after too many attempts")
	}
}

func TestChallengeSweepOnIssue(t *testing.T) {
	store := NewChallengeStore(-time.Second, "Sign in to MicroTurk", NewEd25519Verifier())

	for i := 0; i < 5; i++ {
		if _, err := store.Issue(newKeypair(t).wallet); err != nil {
			t.Fatalf("issue: %v", err)
		}
	}

	if _, err := store.Issue(newKeypair(t).wallet); err != nil {
		t.Fatalf("issue: %v", err)
	}
	store.mu.Lock()
	n := len(store.challenges)
	store.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected expired challenges swept on issue, %d remain", n)
	}
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(time.Hour)

	sess, err := store.Issue(ctx, "worker", 42, "wallet-addr")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("token must be set")
	}

	got, ok := store.Get(ctx, sess.Token)
	if !ok {
		t.Fatal("issued session not found")
	}
	if got.Role != "worker" || got.AccountID != 42 || got.Wallet != "wallet-addr" {
		t.Fatalf("unexpected session: %+v", got)
	}

	t.Run("unknown token", func(t *testing.T) {
		if _, ok := store.Get(ctx, "nope"); ok {
			t.Fatal("unknown token must miss")
		}
	})

	t.Run("tokens are unique", func(t *testing.T) {
		second, err := store.Issue(ctx, "worker", 43, "other-wallet")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if second.Token == sess.Token {
			t.Fatal("two sessions share a token")
		}
	})
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(-time.Second)

	sess, err := store.Issue(ctx, "worker", 42, "wallet-addr")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, ok := store.Get(ctx, sess.Token); ok {
		t.Fatal("expired session must miss")
	}

	t.Run("expired sessions swept on issue", func(t *testing.T) {
		if _, err := store.Issue(ctx, "worker", 43, "other-wallet"); err != nil {
			t.Fatalf("issue: %v", err)
		}
		store.mu.Lock()
		n := len(store.sessions)
		store.mu.Unlock()
		if n != 1 {
			t.Fatalf("expected stale sessions swept on issue, %d remain", n)
		}
	})
}
