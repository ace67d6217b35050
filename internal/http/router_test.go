package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefops/identity-api/internal/auth"
	"github.com/briefops/identity-api/internal/config"
	"github.com/briefops/identity-api/internal/logging"
	"github.com/briefops/identity-api/internal/user"
)

// fakeUserStore backs the router tests with an in-memory credential store
// honoring the email uniqueness invariant.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*user.User)}
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email != "" && u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserStore) Insert(_ context.Context, u *user.User) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.Email != "" {
		for _, existing := range f.users {
			if existing.Email == u.Email {
				return nil, user.ErrEmailTaken
			}
		}
	}
	now := time.Now()
	copied := *u
	copied.CreatedAt = now
	copied.UpdatedAt = now
	f.users[copied.ID] = &copied
	result := copied
	return &result, nil
}

func (f *fakeUserStore) Update(_ context.Context, id string, upd user.Update) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	if upd.Email != nil && *upd.Email != "" {
		for otherID, other := range f.users {
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

func (f *fakeUserStore) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

func newTestServer(t *testing.T) (*httptest.Server, *http.Client, *fakeUserStore) {
	t.Helper()

	logger := logging.NewLogger(true)
	store := newFakeUserStore()

	tokens, err := auth.NewPasetoService([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	sessionStore := auth.NewMemorySessionStore(time.Hour)
	t.Cleanup(func() { sessionStore.Close() })

	sessions := auth.NewSessionManager(tokens, sessionStore, logger, time.Hour)
	service := auth.NewService(store, logger)
	handler := auth.NewHandler(service, sessions, logger, false)
	middleware := auth.NewMiddleware(sessions)

	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.Server.TrustedOrigins = nil

	srv := httptest.NewServer(NewRouter(cfg, handler, middleware, logger))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	return srv, client, store
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// requireNoPasswordHash walks a decoded response and fails if any object
// carries a password hash field.
func requireNoPasswordHash(t *testing.T, decoded map[string]any) {
	t.Helper()
	raw, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password")
}

func TestRegisterLoginScenario(t *testing.T) {
	srv, client, _ := newTestServer(t)

	// Register alice.
	resp, body := doJSON(t, client, http.MethodPost, srv.URL+"/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	requireNoPasswordHash(t, body)

	// Login with the same credentials.
	resp, body = doJSON(t, client, http.MethodPost, srv.URL+"/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	requireNoPasswordHash(t, body)

	// Wrong password is a 401.
	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrongpass",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Registering the same email again is a 409.
	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Register bob from a separate client so alice keeps her session.
	other := &http.Client{}
	resp, _ = doJSON(t, other, http.MethodPost, srv.URL+"/auth/register", map[string]string{
		"email":    "bob@example.com",
		"password": "secret2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Patching alice's email to bob's is a 409.
	resp, _ = doJSON(t, client, http.MethodPatch, srv.URL+"/users/me", map[string]string{
		"email": "bob@example.com",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCurrentUser(t *testing.T) {
	srv, client, store := newTestServer(t)

	// Unauthenticated request is a 401, not a fault.
	resp, _ := doJSON(t, &http.Client{}, http.MethodGet, srv.URL+"/users/me", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/auth/register", map[string]string{
		"email":      "alice@example.com",
		"password":   "secret1",
		"first_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, client, http.MethodGet, srv.URL+"/users/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	requireNoPasswordHash(t, body)

	u, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", u["email"])
	assert.Equal(t, "Alice", u["first_name"])

	// If the subject vanishes from the store, the session yields a 404.
	store.remove(u["id"].(string))
	resp, _ = doJSON(t, client, http.MethodGet, srv.URL+"/users/me", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateCurrentUser(t *testing.T) {
	srv, client, _ := newTestServer(t)

	resp, _ := doJSON(t, client, http.MethodPost, srv.URL+"/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, client, http.MethodPatch, srv.URL+"/users/me", map[string]string{
		"first_name": "Alice",
		"last_name":  "Smith",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	requireNoPasswordHash(t, body)

	u := body["user"].(map[string]any)
	assert.Equal(t, "Alice", u["first_name"])
	assert.Equal(t, "Smith", u["last_name"])

	// Empty update set is a 400.
	resp, _ = doJSON(t, client, http.MethodPatch, srv.URL+"/users/me", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Invalid email is a 400.
	resp, _ = doJSON(t, client, http.MethodPatch, srv.URL+"/users/me", map[string]string{
		"email": "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	srv, client, _ := newTestServer(t)

	// Logout without a session is still a 200.
	resp, _ := doJSON(t, client, http.MethodPost, srv.URL+"/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, client, http.MethodGet, srv.URL+"/users/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The revoked session no longer authenticates.
	resp, _ = doJSON(t, client, http.MethodGet, srv.URL+"/users/me", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logging out twice is fine.
	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFederatedSignIn(t *testing.T) {
	srv, client, _ := newTestServer(t)

	// First sign-in creates the record and issues a session.
	resp, body := doJSON(t, client, http.MethodPost, srv.URL+"/auth/federated", map[string]any{
		"subject_id": "oidc|42",
		"email":      "grace@example.com",
		"first_name": "Grace",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	requireNoPasswordHash(t, body)

	u := body["user"].(map[string]any)
	assert.Equal(t, "oidc|42", u["id"])

	// The session gates protected routes like any local one.
	resp, _ = doJSON(t, client, http.MethodGet, srv.URL+"/users/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A locally edited name survives the next sparse assertion.
	resp, _ = doJSON(t, client, http.MethodPatch, srv.URL+"/users/me", map[string]string{
		"first_name": "G.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, client, http.MethodPost, srv.URL+"/auth/federated", map[string]any{
		"subject_id": "oidc|42",
		"first_name": "Grace",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	u = body["user"].(map[string]any)
	assert.Equal(t, "G.", u["first_name"])

	// Missing subject id is a 400.
	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/auth/federated", map[string]any{
		"email": "grace@example.com",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A fresh subject colliding with an existing email is a 409.
	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, client, http.MethodPost, srv.URL+"/auth/federated", map[string]any{
		"subject_id": "oidc|fresh",
		"email":      "alice@example.com",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, client, _ := newTestServer(t)

	resp, body := doJSON(t, client, http.MethodGet, srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", fmt.Sprintf("%v", body["status"]))
}
