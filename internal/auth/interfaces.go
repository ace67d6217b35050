package auth

import (
	"context"
	"time"

	"github.com/briefops/identity-api/internal/user"
)

// UserStore is the credential store contract the service depends on.
// Implemented by *user.Repository.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	Insert(ctx context.Context, u *user.User) (*user.User, error)
	Update(ctx context.Context, id string, upd user.Update) (*user.User, error)
}

// TokenService defines the interface for session token creation and
// validation. Implemented by PasetoService (PASETO v4.local).
type TokenService interface {
	CreateToken(claims Claims, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*Claims, error)
}

// SessionStore persists the server-side half of a session: the record that
// must exist for a token to authenticate and that revocation deletes.
// Implementations: MemorySessionStore (map with expiry sweep) and
// RedisSessionStore (TTL-backed).
type SessionStore interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
