// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/auth"
)

// UserRepository implements auth.UserRepository on a Store.
type UserRepository struct {
	s *Store
}

var _ auth.UserRepository = (*UserRepository)(nil)

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create stores a new user. An address claimed by another open transaction
// counts as taken.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors pass through unchanged
	}
	s, tx := r.s, txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users.get(tx, user.ID); exists || !s.users.writable(tx, user.ID) {
		return oops.Code("USER_CREATE_FAILED").
			With("user_id", user.ID.String()).
			Errorf("user already exists")
	}
	key := emailKey(user.Email)
	if _, taken := s.emails.get(tx, key); taken || !s.emails.writable(tx, key) {
		return auth.ErrEmailAlreadyInUse
	}

	s.users.put(tx, user.ID, user.Clone())
	s.emails.put(tx, key, user.ID)
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context errors pass through unchanged
	}
	s, tx := r.s, txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users.get(tx, id)
	if !ok {
		return nil, oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return user.Clone(), nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context errors pass through unchanged
	}
	s, tx := r.s, txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails.get(tx, emailKey(email))
	if !ok {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	user, ok := s.users.get(tx, id)
	if !ok {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	return user.Clone(), nil
}

// UpdateEmail sets a new email and clears the verification timestamp.
func (r *UserRepository) UpdateEmail(ctx context.Context, id ulid.ULID, email string) error {
	return r.update(ctx, id, func(s *Store, tx *memTx, user *auth.User) error {
		oldKey, newKey := emailKey(user.Email), emailKey(email)
		if owner, taken := s.emails.get(tx, newKey); (taken && owner != id) || !s.emails.writable(tx, newKey) {
			return auth.ErrEmailAlreadyInUse
		}
		s.emails.remove(tx, oldKey)
		s.emails.put(tx, newKey, id)
		user.Email = newKey
		user.EmailVerifiedAt = nil
		return nil
	})
}

// UpdatePassword sets the password hash and clears any sign-in lockout.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.update(ctx, id, func(_ *Store, _ *memTx, user *auth.User) error {
		hash := passwordHash
		user.PasswordHash = &hash
		user.FailedAttempts = 0
		user.LockedUntil = nil
		return nil
	})
}

// RecordLoginFailure increments the failed sign-in counter and locks the
// account once it reaches threshold.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, error) {
	var failures int
	err := r.update(ctx, id, func(_ *Store, _ *memTx, user *auth.User) error {
		user.FailedAttempts++
		if user.FailedAttempts >= threshold {
			until := lockUntil
			user.LockedUntil = &until
		}
		failures = user.FailedAttempts
		return nil
	})
	return failures, err
}

// ClearLoginFailures resets the failed sign-in counter and lockout.
func (r *UserRepository) ClearLoginFailures(ctx context.Context, id ulid.ULID) error {
	return r.update(ctx, id, func(_ *Store, _ *memTx, user *auth.User) error {
		user.FailedAttempts = 0
		user.LockedUntil = nil
		return nil
	})
}

// update applies fn to a copy of the user under the user's lock and stores
// the copy if fn succeeds.
func (r *UserRepository) update(ctx context.Context, id ulid.ULID, fn func(s *Store, tx *memTx, user *auth.User) error) error {
	s, tx := r.s, txFrom(ctx)
	unlock, err := s.lockUser(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users.get(tx, id)
	if !ok {
		return oops.With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	user := current.Clone()
	if err := fn(s, tx, user); err != nil {
		return err
	}
	user.UpdatedAt = time.Now()
	s.users.put(tx, id, user)
	return nil
}
