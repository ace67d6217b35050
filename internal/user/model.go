package user

import (
	"strings"
	"time"
)

// User is the unit of identity. One record exists per person regardless of
// whether they signed in through the federated provider, registered locally
// with a password, or both.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email,omitempty"`
	PasswordHash    string    `json:"-"` // Never expose password hash in JSON
	FirstName       string    `json:"first_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	EmailVerified   bool      `json:"email_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a local
// password. Federated-only accounts have no hash.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Public is the safe projection of a User: every representation that leaves
// the identity subsystem goes through it, so the password hash can never
// escape through a forgotten field.
type Public struct {
	ID              string    `json:"id"`
	Email           string    `json:"email,omitempty"`
	FirstName       string    `json:"first_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	EmailVerified   bool      `json:"email_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Public returns the safe projection of the user.
func (u *User) Public() Public {
	return Public{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		ProfileImageURL: u.ProfileImageURL,
		EmailVerified:   u.EmailVerified,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// Update describes a partial mutation. Nil fields are left untouched;
// the repository always stamps updated_at even when every field is nil.
type Update struct {
	Email           *string
	FirstName       *string
	LastName        *string
	ProfileImageURL *string
	EmailVerified   *bool
}

// IsEmpty reports whether the update carries no field changes.
func (u Update) IsEmpty() bool {
	return u.Email == nil && u.FirstName == nil && u.LastName == nil &&
		u.ProfileImageURL == nil && u.EmailVerified == nil
}

// NormalizeEmail lower-cases and trims an email address. Every email must be
// normalized before it reaches the repository so the uniqueness constraint
// compares like with like.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
