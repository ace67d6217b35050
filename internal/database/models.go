package database

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the bun model backing the users table.
//
// The id is an opaque string rather than a UUID column: accounts created
// through the federated path keep the provider subject id as their primary
// key, while locally registered accounts get a generated UUID. Email is
// nullable so federated accounts without an email claim can coexist; the
// partial unique index on email only applies to non-null values.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID              string    `bun:"id,pk"`
	Email           string    `bun:"email,nullzero"`
	PasswordHash    string    `bun:"password_hash,nullzero"`
	FirstName       string    `bun:"first_name,nullzero"`
	LastName        string    `bun:"last_name,nullzero"`
	ProfileImageURL string    `bun:"profile_image_url,nullzero"`
	EmailVerified   bool      `bun:"email_verified,notnull,default:false"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
