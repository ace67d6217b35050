package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefops/identity-api/internal/logging"
	"github.com/briefops/identity-api/internal/user"
)

func newTestService() (*Service, *memUserStore) {
	store := newMemUserStore()
	return NewService(store, logging.NewLogger(true)), store
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a verified local account", func(t *testing.T) {
		svc, _ := newTestService()

		created, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice", "Smith")
		require.NoError(t, err)

		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "alice@example.com", created.Email)
		assert.Equal(t, "Alice", created.FirstName)
		assert.Equal(t, "Smith", created.LastName)
		assert.True(t, created.EmailVerified)
		assert.True(t, created.HasPassword())
		assert.NotEqual(t, "secret1", created.PasswordHash)
		assert.True(t, strings.HasPrefix(created.PasswordHash, "$argon2id$"))
	})

	t.Run("normalizes email before storing", func(t *testing.T) {
		svc, _ := newTestService()

		created, err := svc.Register(ctx, "  Alice@Example.COM ", "secret1", "", "")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", created.Email)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc, _ := newTestService()

		_, err := svc.Register(ctx, "", "secret1", "", "")
		assert.ErrorIs(t, err, ErrEmailRequired)

		_, err = svc.Register(ctx, "not-an-email", "secret1", "", "")
		assert.ErrorIs(t, err, ErrInvalidEmailFormat)

		_, err = svc.Register(ctx, "alice@example.com", "", "", "")
		assert.ErrorIs(t, err, ErrPasswordRequired)

		_, err = svc.Register(ctx, "alice@example.com", "short", "", "")
		assert.ErrorIs(t, err, ErrPasswordTooShort)
	})

	t.Run("rejects duplicate email regardless of case", func(t *testing.T) {
		svc, _ := newTestService()

		_, err := svc.Register(ctx, "alice@example.com", "secret1", "", "")
		require.NoError(t, err)

		_, err = svc.Register(ctx, "ALICE@example.com", "other66", "", "")
		assert.ErrorIs(t, err, user.ErrEmailTaken)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds with correct credentials", func(t *testing.T) {
		svc, _ := newTestService()
		created, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice", "")
		require.NoError(t, err)

		got, err := svc.Login(ctx, "Alice@Example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("fails uniformly on wrong password, unknown email, and passwordless account", func(t *testing.T) {
		svc, store := newTestService()
		_, err := svc.Register(ctx, "alice@example.com", "secret1", "", "")
		require.NoError(t, err)

		_, err = svc.Login(ctx, "alice@example.com", "wrongpass")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = svc.Login(ctx, "nobody@example.com", "secret1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		// Federated-only account: no password hash stored.
		_, err = store.Insert(ctx, &user.User{ID: "oidc|123", Email: "fed@example.com"})
		require.NoError(t, err)

		_, err = svc.Login(ctx, "fed@example.com", "secret1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = svc.Login(ctx, "fed@example.com", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("secret1")
	require.NoError(t, err)

	assert.True(t, verifyPassword(hash, "secret1"))
	assert.False(t, verifyPassword(hash, "secret2"))
	assert.False(t, verifyPassword(hash, ""))
	assert.False(t, verifyPassword("not-a-hash", "secret1"))

	// Two hashes of the same password differ because of the random salt.
	other, err := hashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestUpsertFederated(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a record under the subject id on first sign-in", func(t *testing.T) {
		svc, _ := newTestService()

		created, err := svc.UpsertFederated(ctx, FederatedClaims{
			SubjectID:       "oidc|42",
			Email:           "Grace@Example.com",
			FirstName:       "Grace",
			LastName:        "Hopper",
			ProfileImageURL: "https://img.example.com/grace.png",
			EmailVerified:   true,
		})
		require.NoError(t, err)

		assert.Equal(t, "oidc|42", created.ID)
		assert.Equal(t, "grace@example.com", created.Email)
		assert.Equal(t, "Grace", created.FirstName)
		assert.True(t, created.EmailVerified)
		assert.False(t, created.HasPassword())
	})

	t.Run("does not clobber locally entered names", func(t *testing.T) {
		svc, store := newTestService()
		_, err := store.Insert(ctx, &user.User{ID: "oidc|42", FirstName: "Ada", LastName: "Lovelace"})
		require.NoError(t, err)

		merged, err := svc.UpsertFederated(ctx, FederatedClaims{
			SubjectID: "oidc|42",
			FirstName: "",
			LastName:  "Byron",
		})
		require.NoError(t, err)

		assert.Equal(t, "Ada", merged.FirstName)
		assert.Equal(t, "Lovelace", merged.LastName, "non-empty name must survive a sparse assertion")
	})

	t.Run("fills empty names from the assertion", func(t *testing.T) {
		svc, store := newTestService()
		_, err := store.Insert(ctx, &user.User{ID: "oidc|42"})
		require.NoError(t, err)

		merged, err := svc.UpsertFederated(ctx, FederatedClaims{
			SubjectID: "oidc|42",
			FirstName: "Grace",
		})
		require.NoError(t, err)
		assert.Equal(t, "Grace", merged.FirstName)
	})

	t.Run("profile image always wins", func(t *testing.T) {
		svc, store := newTestService()
		_, err := store.Insert(ctx, &user.User{ID: "oidc|42", ProfileImageURL: "https://img.example.com/old.png"})
		require.NoError(t, err)

		merged, err := svc.UpsertFederated(ctx, FederatedClaims{
			SubjectID:       "oidc|42",
			ProfileImageURL: "https://img.example.com/new.png",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://img.example.com/new.png", merged.ProfileImageURL)
	})

	t.Run("stamps updated_at even when nothing else changes", func(t *testing.T) {
		svc, store := newTestService()
		inserted, err := store.Insert(ctx, &user.User{ID: "oidc|42", FirstName: "Ada"})
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)

		merged, err := svc.UpsertFederated(ctx, FederatedClaims{SubjectID: "oidc|42"})
		require.NoError(t, err)
		assert.True(t, merged.UpdatedAt.After(inserted.UpdatedAt))
	})

	t.Run("rejects a fresh subject whose email belongs to another account", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.Register(ctx, "alice@example.com", "secret1", "", "")
		require.NoError(t, err)

		_, err = svc.UpsertFederated(ctx, FederatedClaims{
			SubjectID: "oidc|fresh",
			Email:     "alice@example.com",
		})
		assert.ErrorIs(t, err, user.ErrEmailTaken)
	})

	t.Run("requires a subject id", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.UpsertFederated(ctx, FederatedClaims{Email: "alice@example.com"})
		assert.ErrorIs(t, err, ErrSubjectRequired)
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()

	strPtr := func(s string) *string { return &s }

	t.Run("applies changed fields and trims input", func(t *testing.T) {
		svc, _ := newTestService()
		created, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice", "")
		require.NoError(t, err)

		updated, err := svc.UpdateProfile(ctx, created.ID, ProfileUpdate{
			Email:     strPtr("  Alice@NewDomain.com "),
			FirstName: strPtr("  Alicia "),
		})
		require.NoError(t, err)

		assert.Equal(t, "alice@newdomain.com", updated.Email)
		assert.Equal(t, "Alicia", updated.FirstName)
	})

	t.Run("signals nothing to update on an empty or no-op patch", func(t *testing.T) {
		svc, _ := newTestService()
		created, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice", "")
		require.NoError(t, err)

		_, err = svc.UpdateProfile(ctx, created.ID, ProfileUpdate{})
		assert.ErrorIs(t, err, ErrNothingToUpdate)

		// Same values as stored: still an empty diff.
		_, err = svc.UpdateProfile(ctx, created.ID, ProfileUpdate{
			Email:     strPtr("alice@example.com"),
			FirstName: strPtr("Alice"),
		})
		assert.ErrorIs(t, err, ErrNothingToUpdate)
	})

	t.Run("rejects an invalid email", func(t *testing.T) {
		svc, _ := newTestService()
		created, err := svc.Register(ctx, "alice@example.com", "secret1", "", "")
		require.NoError(t, err)

		_, err = svc.UpdateProfile(ctx, created.ID, ProfileUpdate{Email: strPtr("no-at-sign")})
		assert.ErrorIs(t, err, ErrInvalidEmailFormat)
	})

	t.Run("surfaces an email collision as a conflict", func(t *testing.T) {
		svc, _ := newTestService()
		alice, err := svc.Register(ctx, "alice@example.com", "secret1", "", "")
		require.NoError(t, err)
		_, err = svc.Register(ctx, "bob@example.com", "secret2", "", "")
		require.NoError(t, err)

		_, err = svc.UpdateProfile(ctx, alice.ID, ProfileUpdate{Email: strPtr("bob@example.com")})
		assert.ErrorIs(t, err, user.ErrEmailTaken)
	})

	t.Run("returns not found for a vanished subject", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.UpdateProfile(ctx, "ghost", ProfileUpdate{FirstName: strPtr("X")})
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}
