package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Session is an issued bearer token bound to a signed-in account. The token
// is opaque; the ledger trusts the numeric account id it resolves to.
type Session struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"` // "worker" or "requester"
	AccountID int64     `json:"account_id"`
	Wallet    string    `json:"wallet,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionValidator defines the minimal interface required by auth middleware.
type SessionValidator interface {
	Get(ctx context.Context, token string) (Session, bool)
}

// SessionIssuer allows creating new sessions.
type SessionIssuer interface {
	Issue(ctx context.Context, role string, accountID int64, wallet string) (Session, error)
}

// SessionStorage is the full session backend contract.
type SessionStorage interface {
	SessionValidator
	SessionIssuer
	Close()
}

// SessionStore provides in-memory session validation/issuance. Expired
// sessions are dropped on lookup and swept opportunistically on issuance.
type SessionStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]Session
}

// NewSessionStore constructs an empty store whose sessions live for ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{ttl: ttl, sessions: make(map[string]Session)}
}

// Get returns the stored session for a token, if present and unexpired.
func (s *SessionStore) Get(ctx context.Context, token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, false
	}
	if time.Now().After(sess.ExpiresAt) {
		delete(s.sessions, token)
		return Session{}, false
	}
	return sess, true
}

// Issue creates and stores a new session.
func (s *SessionStore) Issue(ctx context.Context, role string, accountID int64, wallet string) (Session, error) {
	token, err := generateToken()
	if err != nil {
		return Session{}, err
	}
	now := time.Now()
	sess := Session{
		Token:     token,
		Role:      role,
		AccountID: accountID,
		Wallet:    wallet,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Lock()
	for t, existing := range s.sessions {
		if now.After(existing.ExpiresAt) {
			delete(s.sessions, t)
		}
	}
	s.sessions[token] = sess
	s.mu.Unlock()
	return sess, nil
}

// Close is a no-op for the in-memory store.
func (s *SessionStore) Close() {}

func generateToken() (string, error) {
	b := make([]byte, 32) // 256-bit token
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
