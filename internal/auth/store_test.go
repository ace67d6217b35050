package auth

import (
	"context"
	"sync"
	"time"

	"github.com/briefops/identity-api/internal/user"
)

// memUserStore is an in-memory UserStore used by the service tests. It
// mirrors the repository contract, including the email uniqueness guard.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*user.User)}
}

func (m *memUserStore) GetByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email != "" && u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUserStore) Insert(_ context.Context, u *user.User) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.Email != "" {
		for _, existing := range m.users {
			if existing.Email == u.Email {
				return nil, user.ErrEmailTaken
			}
		}
	}

	now := time.Now()
	copied := *u
	copied.CreatedAt = now
	copied.UpdatedAt = now
	m.users[copied.ID] = &copied

	result := copied
	return &result, nil
}

func (m *memUserStore) Update(_ context.Context, id string, upd user.Update) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}

	if upd.Email != nil && *upd.Email != "" {
		for otherID, other := range m.users {
			if otherID != id && other.Email == *upd.Email {
				return nil, user.ErrEmailTaken
			}
		}
		u.Email = *upd.Email
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.ProfileImageURL != nil {
		u.ProfileImageURL = *upd.ProfileImageURL
	}
	if upd.EmailVerified != nil {
		u.EmailVerified = *upd.EmailVerified
	}
	u.UpdatedAt = time.Now()

	copied := *u
	return &copied, nil
}
