package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/briefops/identity-api/internal/logging"
	"github.com/briefops/identity-api/internal/user"
)

// ErrSessionRevoked is returned when a token verifies but its server-side
// session record is gone, either by explicit logout or the expiry sweep.
var ErrSessionRevoked = errors.New("session revoked")

// SessionManager is the session issuer and gate. It pairs a token service
// (proves integrity and expiry) with a session store (proves the session has
// not been revoked).
type SessionManager struct {
	tokens TokenService
	store  SessionStore
	logger *logging.Logger
	ttl    time.Duration
}

func NewSessionManager(tokens TokenService, store SessionStore, logger *logging.Logger, ttl time.Duration) *SessionManager {
	return &SessionManager{
		tokens: tokens,
		store:  store,
		logger: logger,
		ttl:    ttl,
	}
}

// TTL returns the configured session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue converts a resolved identity into an authenticated session. The
// display claims are captured at issuance time and travel inside the token;
// they are not re-read from the credential store on later requests.
func (m *SessionManager) Issue(ctx context.Context, u *user.User) (string, error) {
	now := time.Now()
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.store.Put(ctx, session); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}

	token, err := m.tokens.CreateToken(Claims{
		SessionID: session.ID,
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}, m.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to create session token: %w", err)
	}

	return token, nil
}

// Authenticate resolves a presented token into identity claims. Every failure
// (malformed token, past expiry, revoked session, even a store fault) maps to
// an error the gate answers with 401; nothing propagates as an unhandled
// fault past this point.
func (m *SessionManager) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := m.tokens.VerifyToken(token)
	if err != nil {
		return nil, err
	}

	session, err := m.store.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionRevoked
		}
		m.logger.Error("session store lookup failed", "error", err.Error())
		return nil, ErrSessionRevoked
	}

	if session.Expired(time.Now()) {
		return nil, ErrExpiredToken
	}

	return claims, nil
}

// Revoke destroys the session behind a token so future Authenticate calls on
// the same token fail. Idempotent: an invalid or already-revoked token is
// not an error.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	claims, err := m.tokens.VerifyToken(token)
	if err != nil {
		return nil
	}

	if err := m.store.Delete(ctx, claims.SessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}
