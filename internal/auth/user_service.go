// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// UserService creates and reads users.
type UserService struct {
	users UserRepository
}

// NewUserService creates a new UserService.
func NewUserService(users UserRepository) (*UserService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	return &UserService{users: users}, nil
}

// CreateUser registers a user. passwordHash must already be hashed; nil
// creates a passwordless account. A nil emailVerifiedAt leaves the email
// unverified.
func (s *UserService) CreateUser(ctx context.Context, name, email string, passwordHash *string, emailVerifiedAt *time.Time) (*User, error) {
	user, err := NewUser(name, email, passwordHash, emailVerifiedAt)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailAlreadyInUse) {
			return nil, oops.Code(CodeEmailAlreadyInUse).
				With("email", user.Email).
				Wrap(err)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "persist user").
			Wrap(err)
	}
	return user, nil
}

// GetUser returns a user by ID.
func (s *UserService) GetUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").
				With("user_id", id.String()).
				Wrap(err)
		}
		return nil, oops.Code("USER_LOOKUP_FAILED").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}
