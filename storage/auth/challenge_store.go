package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Challenge represents a pending wallet verification.
type Challenge struct {
	Nonce       string    `json:"nonce"`
	Wallet      string    `json:"wallet_address"`
	Message     string    `json:"message"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
}

// ChallengeStore keeps in-memory sign-in challenges. Verification consumes
// the challenge, so a captured signature cannot be replayed.
type ChallengeStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	signPrefix string
	verifier   SignatureVerifier
	challenges map[string]Challenge // keyed by wallet
}

// NewChallengeStore builds a challenge store. signPrefix is the human-readable
// part of the message the wallet signs (e.g. "Sign into microturk as a worker").
func NewChallengeStore(ttl time.Duration, signPrefix string, verifier SignatureVerifier) *ChallengeStore {
	return &ChallengeStore{
		ttl:        ttl,
		signPrefix: signPrefix,
		verifier:   verifier,
		challenges: make(map[string]Challenge),
	}
}

// Issue creates or refreshes a challenge for a wallet, sweeping out expired
// challenges so abandoned sign-ins do not accumulate.
func (s *ChallengeStore) Issue(wallet string) (Challenge, error) {
	nonce, err := randomNonce()
	if err != nil {
		return Challenge{}, err
	}
	now := time.Now()
	ch := Challenge{
		Nonce:       nonce,
		Wallet:      wallet,
		Message:     s.signPrefix + ": " + nonce,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		MaxAttempts: 5,
	}
	s.mu.Lock()
	for w, existing := range s.challenges {
		if now.After(existing.ExpiresAt) {
			delete(s.challenges, w)
		}
	}
	s.challenges[wallet] = ch
	s.mu.Unlock()
	return ch, nil
}

// Verify checks the wallet's signature against the outstanding challenge
// message and consumes the challenge on success.
func (s *ChallengeStore) Verify(wallet, signature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[wallet]
	if !ok {
		return false
	}
	if time.Now().After(ch.ExpiresAt) {
		delete(s.challenges, wallet)
		return false
	}
	ch.Attempts++
	s.challenges[wallet] = ch
	if ch.Attempts > ch.MaxAttempts {
		delete(s.challenges, wallet)
		return false
	}
	if s.verifier.Verify(wallet, signature, []byte(ch.Message)) {
		delete(s.challenges, wallet)
		return true
	}
	return false
}

func randomNonce() (string, error) {
	b := make([]byte, 16) // 128-bit nonce
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
