package auth

import "time"

// FederatedClaims is the trusted payload handed over by the upstream
// identity-provider exchange. Signature and freshness validation happen
// upstream; by the time a payload reaches the reconciler it is taken at
// face value.
type FederatedClaims struct {
	SubjectID       string `json:"subject_id"`
	Email           string `json:"email,omitempty"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
	EmailVerified   bool   `json:"email_verified,omitempty"`
}

// Claims is the canonical resolved identity attached to an authenticated
// request. Both identity paths (federated sign-in and local login) collapse
// to this shape at session issuance, so downstream code never branches on
// which path produced the session.
type Claims struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Session is the server-side record behind an issued token. The token alone
// proves expiry and integrity; the record's presence proves the session has
// not been revoked.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
