// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// dummyPasswordHash is verified when no account matches, keeping the
// response time of unknown and passwordless accounts in line with real ones.
// It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Authenticator signs users in with email and password.
type Authenticator struct {
	users    UserRepository
	sessions *SessionManager
	hasher   PasswordHasher
	now      Clock
	logger   *slog.Logger
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(users UserRepository, sessions *SessionManager, hasher PasswordHasher, opts ...Option) (*Authenticator, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	o := buildOptions(opts)
	return &Authenticator{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		now:      o.now,
		logger:   o.logger,
	}, nil
}

// SignIn verifies the credentials and creates a session.
// Returns the user, the session, and the plaintext session token.
//
// Each wrong password counts against the account; after LockoutThreshold
// consecutive failures it is locked for LockoutDuration and even the
// correct password is refused with ErrAccountLocked.
func (a *Authenticator) SignIn(ctx context.Context, email, password string, meta SessionMeta) (*User, *Session, string, error) {
	var (
		user       *User
		targetHash = dummyPasswordHash
	)

	normalized, normErr := NormalizeEmail(email)
	if normErr == nil {
		found, err := a.users.GetByEmail(ctx, normalized)
		switch {
		case err == nil:
			user = found
			if found.HasPassword() {
				targetHash = *found.PasswordHash
			}
		case !errors.Is(err, ErrNotFound):
			return nil, nil, "", oops.Code("AUTH_SIGN_IN_FAILED").
				With("operation", "get user by email").
				Wrap(err)
		}
	}

	// Always verify, even against the dummy hash.
	valid, verifyErr := a.hasher.Verify(password, targetHash)
	if user == nil || !user.HasPassword() {
		return nil, nil, "", invalidCredentials()
	}
	if verifyErr != nil {
		return nil, nil, "", oops.Code("AUTH_SIGN_IN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}
	now := a.now()
	lockout := CheckLockout(user, now)
	if !valid {
		a.recordFailure(ctx, user, lockout, now)
		return nil, nil, "", invalidCredentials()
	}

	// Lockout is checked after verification so both paths cost the same.
	if lockout.Locked {
		return nil, nil, "", oops.Code(CodeAccountLocked).
			With("user_id", user.ID.String()).
			With("retry_after", lockout.Remaining.Round(time.Second).String()).
			Wrap(ErrAccountLocked)
	}
	if user.FailedAttempts > 0 || user.LockedUntil != nil {
		if err := a.users.ClearLoginFailures(ctx, user.ID); err != nil {
			a.logger.WarnContext(ctx, "clearing sign-in failures failed (best-effort)",
				"operation", "clear_login_failures",
				"user_id", user.ID.String(),
				"error", err)
		}
	}

	if a.hasher.NeedsUpgrade(targetHash) {
		if newHash, err := a.hasher.Hash(password); err == nil {
			if err := a.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
				a.logger.WarnContext(ctx, "password hash upgrade failed (best-effort)",
					"operation", "upgrade_password_hash",
					"user_id", user.ID.String(),
					"error", err)
			}
		}
	}

	session, token, err := a.sessions.CreateUserSession(ctx, user.ID, meta)
	if err != nil {
		return nil, nil, "", err
	}
	return user, session, token, nil
}

func (a *Authenticator) recordFailure(ctx context.Context, user *User, lockout LockoutState, now time.Time) {
	if lockout.Expired {
		if err := a.users.ClearLoginFailures(ctx, user.ID); err != nil {
			a.logger.WarnContext(ctx, "clearing expired lockout failed (best-effort)",
				"operation", "clear_login_failures",
				"user_id", user.ID.String(),
				"error", err)
		}
	}
	failures, err := a.users.RecordLoginFailure(ctx, user.ID, LockoutThreshold, now.Add(LockoutDuration))
	if err != nil {
		a.logger.WarnContext(ctx, "recording sign-in failure failed (best-effort)",
			"operation", "record_login_failure",
			"user_id", user.ID.String(),
			"error", err)
		return
	}
	if failures == LockoutThreshold {
		a.logger.WarnContext(ctx, "account locked after repeated sign-in failures",
			"user_id", user.ID.String(),
			"failures", failures,
			"locked_for", LockoutDuration)
	}
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
}
