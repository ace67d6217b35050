package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/briefops/identity-api/internal/database"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already in use")
)

// Repository is the credential store: the single place user records are read
// and written. It does not hash passwords or normalize emails; callers must
// have already done both.
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a user by its opaque id
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by exact match on the normalized email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", email).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// Insert creates a new user record. The email uniqueness constraint is the
// authoritative guard: a violation surfaces as ErrEmailTaken even when the
// caller's pre-check passed.
func (r *Repository) Insert(ctx context.Context, u *User) (*User, error) {
	now := time.Now()
	dbUser := &database.User{
		ID:              u.ID,
		Email:           u.Email,
		PasswordHash:    u.PasswordHash,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		ProfileImageURL: u.ProfileImageURL,
		EmailVerified:   u.EmailVerified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// Update applies a partial mutation and always stamps updated_at. Returns
// the updated record, ErrNotFound if the id resolves to nothing, or
// ErrEmailTaken on an email uniqueness violation.
func (r *Repository) Update(ctx context.Context, id string, upd Update) (*User, error) {
	dbUser := new(database.User)
	q := r.db.NewUpdate().
		Model(dbUser).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id)

	if upd.Email != nil {
		q = q.Set("email = ?", *upd.Email)
	}
	if upd.FirstName != nil {
		q = q.Set("first_name = ?", *upd.FirstName)
	}
	if upd.LastName != nil {
		q = q.Set("last_name = ?", *upd.LastName)
	}
	if upd.ProfileImageURL != nil {
		q = q.Set("profile_image_url = ?", *upd.ProfileImageURL)
	}
	if upd.EmailVerified != nil {
		q = q.Set("email_verified = ?", *upd.EmailVerified)
	}

	res, err := q.Returning("*").Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	return mapDBUserToModel(dbUser), nil
}

// isUniqueViolation matches the Postgres unique constraint error surfaced
// through lib/pq.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}

// mapDBUserToModel converts the database model to the domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:              dbu.ID,
		Email:           dbu.Email,
		PasswordHash:    dbu.PasswordHash,
		FirstName:       dbu.FirstName,
		LastName:        dbu.LastName,
		ProfileImageURL: dbu.ProfileImageURL,
		EmailVerified:   dbu.EmailVerified,
		CreatedAt:       dbu.CreatedAt,
		UpdatedAt:       dbu.UpdatedAt,
	}
}
