// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/auth"
)

const userColumns = `id, name, email, email_verified_at, password_hash, avatar_url, created_at, updated_at, failed_attempts, locked_until`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

var _ auth.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.EmailVerifiedAt,
		user.PasswordHash,
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
		user.FailedAttempts,
		user.LockedUntil,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "users_email_lower_key" {
			return oops.With("email", user.Email).Wrap(auth.ErrEmailAlreadyInUse)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(email) = $1
	`, strings.ToLower(strings.TrimSpace(email)))

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// UpdateEmail sets a new email and clears the verification timestamp.
func (r *UserRepository) UpdateEmail(ctx context.Context, id ulid.ULID, email string) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE users
		SET email = $2, email_verified_at = NULL, updated_at = $3
		WHERE id = $1
	`, id.String(), strings.ToLower(strings.TrimSpace(email)), time.Now())
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "users_email_lower_key" {
			return oops.With("user_id", id.String()).Wrap(auth.ErrEmailAlreadyInUse)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update email").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword updates the password hash and clears any sign-in lockout.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE users
		SET password_hash = $2, failed_attempts = 0, locked_until = NULL, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordLoginFailure increments the failed sign-in counter and sets
// locked_until once it reaches threshold.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, error) {
	var failures int
	err := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE users
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END
		WHERE id = $1
		RETURNING failed_attempts
	`, id.String(), threshold, lockUntil).Scan(&failures)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("USER_UPDATE_FAILED").
			With("operation", "record login failure").
			With("user_id", id.String()).
			Wrap(err)
	}
	return failures, nil
}

// ClearLoginFailures resets the failed sign-in counter and lockout.
func (r *UserRepository) ClearLoginFailures(ctx context.Context, id ulid.ULID) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE users
		SET failed_attempts = 0, locked_until = NULL
		WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "clear login failures").
			With("user_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		user  auth.User
	)
	if err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.EmailVerifiedAt,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.FailedAttempts,
		&user.LockedUntil,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}

	id, err := parseULID(idStr, "user_id")
	if err != nil {
		return nil, err
	}
	user.ID = id
	return &user, nil
}
