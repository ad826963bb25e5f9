package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSessionStore persists sessions in Postgres so restarts keep signed-in
// workers signed in.
type PGSessionStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPGSessionStore connects and initializes schema.
func NewPGSessionStore(ctx context.Context, dsn string, ttl time.Duration) (*PGSessionStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PGSessionStore{pool: pool, ttl: ttl}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGSessionStore) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS mturk_sessions (
  token TEXT PRIMARY KEY,
  role TEXT NOT NULL,
  account_id BIGINT NOT NULL,
  wallet_address TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mturk_sessions_expiry ON mturk_sessions(expires_at);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Get implements SessionValidator. Expired sessions never resolve.
func (s *PGSessionStore) Get(ctx context.Context, token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	var sess Session
	err := s.pool.QueryRow(ctx, `
SELECT token, role, account_id, COALESCE(wallet_address,''), created_at, expires_at
FROM mturk_sessions WHERE token=$1 AND expires_at > now()
`, token).Scan(&sess.Token, &sess.Role, &sess.AccountID, &sess.Wallet, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return Session{}, false
	}
	return sess, true
}

// Issue implements SessionIssuer, sweeping expired rows as it goes.
func (s *PGSessionStore) Issue(ctx context.Context, role string, accountID int64, wallet string) (Session, error) {
	token, err := generateToken()
	if err != nil {
		return Session{}, err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM mturk_sessions WHERE expires_at <= now()`); err != nil {
		return Session{}, fmt.Errorf("sweep sessions: %w", err)
	}
	var sess Session
	err = s.pool.QueryRow(ctx, `
INSERT INTO mturk_sessions (token, role, account_id, wallet_address, expires_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING token, role, account_id, COALESCE(wallet_address,''), created_at, expires_at
`, token, role, accountID, wallet, time.Now().Add(s.ttl)).Scan(&sess.Token, &sess.Role, &sess.AccountID, &sess.Wallet, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Close shuts down the pool.
func (s *PGSessionStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
