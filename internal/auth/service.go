package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/briefops/identity-api/internal/logging"
	"github.com/briefops/identity-api/internal/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
	ErrSubjectRequired    = errors.New("subject id is required")
	ErrNothingToUpdate    = errors.New("nothing to update")
)

const minPasswordLength = 6

// Argon2id parameters - tuned for security vs performance balance
// Time: 3, Memory: 64MB, Threads: 4, KeyLen: 32 bytes
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// Service reconciles the two identity paths, federated assertions and local
// email/password credentials, into one user record per person, and verifies
// local credentials on login.
type Service struct {
	users  UserStore
	logger *logging.Logger
}

func NewService(users UserStore, logger *logging.Logger) *Service {
	return &Service{
		users:  users,
		logger: logger,
	}
}

// UpsertFederated reconciles an inbound federated assertion with the stored
// record for its subject.
//
// If the subject already has a record, the merge is non-destructive: first
// and last name are filled only when currently empty, the profile image is
// taken whenever present (it has no user-entered value to protect), and
// email verification can only be switched on. If the subject is new, a fresh
// record is inserted under the subject id. An insert that collides with an
// existing user's email is rejected with user.ErrEmailTaken rather than
// merged into the email-owning account.
func (s *Service) UpsertFederated(ctx context.Context, claims FederatedClaims) (*user.User, error) {
	if claims.SubjectID == "" {
		return nil, ErrSubjectRequired
	}

	existing, err := s.users.GetByID(ctx, claims.SubjectID)
	if err == nil {
		upd := user.Update{}
		if existing.FirstName == "" && claims.FirstName != "" {
			upd.FirstName = &claims.FirstName
		}
		if existing.LastName == "" && claims.LastName != "" {
			upd.LastName = &claims.LastName
		}
		if claims.ProfileImageURL != "" {
			upd.ProfileImageURL = &claims.ProfileImageURL
		}
		if claims.EmailVerified && !existing.EmailVerified {
			upd.EmailVerified = &claims.EmailVerified
		}

		// Apply even when only updated_at changes: every sign-in touches
		// the record.
		updated, err := s.users.Update(ctx, existing.ID, upd)
		if err != nil {
			return nil, fmt.Errorf("failed to merge federated identity: %w", err)
		}
		return updated, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up subject: %w", err)
	}

	newUser := &user.User{
		ID:              claims.SubjectID,
		Email:           user.NormalizeEmail(claims.Email),
		FirstName:       strings.TrimSpace(claims.FirstName),
		LastName:        strings.TrimSpace(claims.LastName),
		ProfileImageURL: claims.ProfileImageURL,
		EmailVerified:   claims.EmailVerified,
	}

	created, err := s.users.Insert(ctx, newUser)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			// The subject is new but its email already belongs to another
			// account. Reject rather than silently merging identities.
			s.logger.Warn("federated sign-in rejected: email owned by another account",
				"subject_id", claims.SubjectID,
			)
			return nil, user.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create federated user: %w", err)
	}

	return created, nil
}

// Register creates a new local account with an email/password credential.
// Self-registered emails are treated as verified by policy.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmailFormat
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	// Advisory pre-check. The store's uniqueness constraint is the
	// authoritative guard against a concurrent duplicate registration.
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, user.ErrEmailTaken
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing email: %w", err)
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser := &user.User{
		ID:            uuid.NewString(),
		Email:         email,
		PasswordHash:  passwordHash,
		FirstName:     strings.TrimSpace(firstName),
		LastName:      strings.TrimSpace(lastName),
		EmailVerified: true,
	}

	created, err := s.users.Insert(ctx, newUser)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, user.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return created, nil
}

// Login verifies an email/password pair. A missing account, an account with
// no local password (federated-only), and a wrong password all collapse into
// ErrInvalidCredentials so callers cannot probe for account existence.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !existing.HasPassword() {
		return nil, ErrInvalidCredentials
	}
	if !verifyPassword(existing.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return existing, nil
}

// ProfileUpdate carries the user-editable fields of a profile patch.
// Nil fields were not supplied.
type ProfileUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// UpdateProfile applies user-initiated edits to the account. It diffs the
// request against the current record and returns ErrNothingToUpdate without
// writing when nothing changed.
func (s *Service) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (*user.User, error) {
	current, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	upd := user.Update{}
	if p.Email != nil {
		email := user.NormalizeEmail(*p.Email)
		if email == "" {
			return nil, ErrEmailRequired
		}
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, ErrInvalidEmailFormat
		}
		if email != current.Email {
			upd.Email = &email
		}
	}
	if p.FirstName != nil {
		first := strings.TrimSpace(*p.FirstName)
		if first != current.FirstName {
			upd.FirstName = &first
		}
	}
	if p.LastName != nil {
		last := strings.TrimSpace(*p.LastName)
		if last != current.LastName {
			upd.LastName = &last
		}
	}

	if upd.IsEmpty() {
		return nil, ErrNothingToUpdate
	}

	updated, err := s.users.Update(ctx, id, upd)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, user.ErrEmailTaken
		}
		if errors.Is(err, user.ErrNotFound) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return updated, nil
}

// GetUser fetches the current record for an authenticated subject.
func (s *Service) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.users.GetByID(ctx, id)
}

// hashPassword creates an argon2id hash of the password
func hashPassword(password string) (string, error) {
	// Generate random salt
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	// Hash password with argon2id
	hash := argon2.IDKey(
		[]byte(password),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLen,
	)

	// Encode as: $argon2id$v=19$m=65536,t=3,p=4$salt$hash
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		encodedSalt,
		encodedHash,
	), nil
}

// verifyPassword checks if a password matches the stored hash
func verifyPassword(encodedHash, password string) bool {
	// Parse the encoded hash
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	// Parse parameters
	var version int
	var memory, time uint32
	var threads uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads)
	if err != nil {
		return false
	}
	_, err = fmt.Sscanf(parts[2], "v=%d", &version)
	if err != nil {
		return false
	}

	// Decode salt and hash
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	// Hash the input password with the same parameters
	inputHash := argon2.IDKey(
		[]byte(password),
		salt,
		time,
		memory,
		threads,
		uint32(len(decodedHash)),
	)

	// Compare hashes using constant-time comparison
	return subtle.ConstantTimeCompare(decodedHash, inputHash) == 1
}
