// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Name validation constraints.
const (
	MaxNameLength  = 64
	MaxEmailLength = 254
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// User represents an account in the identity store.
type User struct {
	ID              ulid.ULID
	Name            string
	Email           string
	EmailVerifiedAt *time.Time
	PasswordHash    *string // nil for passwordless accounts
	AvatarURL       string
	FailedAttempts  int
	LockedUntil     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewUser creates a validated User. The email is normalized; passwordHash
// and emailVerifiedAt are optional.
func NewUser(name, email string, passwordHash *string, emailVerifiedAt *time.Time) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, oops.Code("USER_INVALID_NAME").Errorf("name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return nil, oops.Code("USER_INVALID_NAME").
			With("max", MaxNameLength).
			Errorf("name must be at most %d characters", MaxNameLength)
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash != nil && *passwordHash == "" {
		return nil, oops.Code("USER_INVALID_PASSWORD_HASH").Errorf("password hash cannot be empty when provided")
	}

	now := time.Now()
	return &User{
		ID:              ulid.Make(),
		Name:            name,
		Email:           normalized,
		EmailVerifiedAt: emailVerifiedAt,
		PasswordHash:    passwordHash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// HasPassword reports whether the user can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// EmailVerified reports whether the current email address has been verified.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		c.EmailVerifiedAt = &t
	}
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		c.PasswordHash = &h
	}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

// NormalizeEmail validates an email address and returns its canonical
// lower-cased form. Email uniqueness is case-insensitive.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return "", oops.Code("USER_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if err := validate.Var(email, "email"); err != nil {
		return "", oops.Code("USER_INVALID_EMAIL").
			With("email", email).
			Errorf("invalid email address")
	}
	return email, nil
}

// SameEmail compares two addresses case-insensitively.
func SameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user.
	// Returns ErrEmailAlreadyInUse if another user has the same email.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdateEmail sets a new email and clears the verification timestamp.
	// Returns ErrEmailAlreadyInUse if another user has the same email.
	UpdateEmail(ctx context.Context, id ulid.ULID, email string) error

	// UpdatePassword sets the password hash for a user and clears any
	// sign-in lockout.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// RecordLoginFailure atomically increments the failed sign-in counter.
	// When the new count reaches threshold, locked_until is set to lockUntil.
	// Returns the new count.
	RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, error)

	// ClearLoginFailures resets the failed sign-in counter and lockout.
	ClearLoginFailures(ctx context.Context, id ulid.ULID) error
}
