package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore persists sessions in Redis. Expiry is enforced by key
// TTL, so no sweep is needed; an expired session simply stops existing.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// sessionKey generates the Redis key for a session
func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Put stores a session as a hash with a TTL matching its expiry.
func (r *RedisSessionStore) Put(ctx context.Context, s *Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session expiration time is in the past")
	}

	key := sessionKey(s.ID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":    s.UserID,
		"created_at": s.CreatedAt.Unix(),
		"expires_at": s.ExpiresAt.Unix(),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// Get retrieves a session by id
func (r *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrSessionNotFound
	}

	var createdAtUnix, expiresAtUnix int64
	fmt.Sscanf(data["created_at"], "%d", &createdAtUnix)
	fmt.Sscanf(data["expires_at"], "%d", &expiresAtUnix)

	return &Session{
		ID:        id,
		UserID:    data["user_id"],
		CreatedAt: time.Unix(createdAtUnix, 0),
		ExpiresAt: time.Unix(expiresAtUnix, 0),
	}, nil
}

// Delete removes a session by id
func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if deleted == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Close is a no-op: the Redis client's lifecycle belongs to the caller that
// constructed it.
func (r *RedisSessionStore) Close() error {
	return nil
}
