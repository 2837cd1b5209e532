// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/observability"
)

// Password constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// CredentialWorkflow orchestrates the token-gated email and password
// change flows.
//
// Email change runs in three steps: a ChangeEmail token is sent to the
// current address, its holder asks for a VerifyNewEmail token to be sent to
// the target address, and consuming that token commits the new email.
// Password changes consume a SetPassword or ChangePassword token.
type CredentialWorkflow struct {
	users    UserRepository
	tokens   *TokenStore
	sessions *SessionManager
	tx       Transactor
	hasher   PasswordHasher
	notifier Notifier
	logger   *slog.Logger
}

// NewCredentialWorkflow creates a new CredentialWorkflow.
func NewCredentialWorkflow(
	users UserRepository,
	tokens *TokenStore,
	sessions *SessionManager,
	tx Transactor,
	hasher PasswordHasher,
	notifier Notifier,
	opts ...Option,
) (*CredentialWorkflow, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token store is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	o := buildOptions(opts)
	return &CredentialWorkflow{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		tx:       tx,
		hasher:   hasher,
		notifier: notifier,
		logger:   o.logger,
	}, nil
}

// SendChangeEmail starts an email change by sending a ChangeEmail link to
// the caller's current address. The requested address is recorded on the
// token; it is confirmed in SendVerifyChangeEmail.
func (w *CredentialWorkflow) SendChangeEmail(ctx context.Context, caller *Identity, email, callbackURL string) (bool, error) {
	user, err := w.currentUser(ctx, caller)
	if err != nil {
		return false, err
	}
	base, err := parseCallbackURL(callbackURL)
	if err != nil {
		return false, err
	}
	var requested string
	if email != "" {
		if requested, err = NormalizeEmail(email); err != nil {
			return false, err
		}
	}

	if err := w.admit(ctx, MessageChangeEmail, user.Email); err != nil {
		return false, err
	}
	token, _, err := w.tokens.Issue(ctx, user.ID, ChangeEmailPayload{
		CurrentEmail:   user.Email,
		RequestedEmail: requested,
	}, ChangeEmailTokenExpiry)
	if err != nil {
		return false, err
	}

	if err := w.deliver(ctx, Message{
		To:          user.Email,
		Name:        user.Name,
		Kind:        MessageChangeEmail,
		CallbackURL: callbackLink(base, token),
	}); err != nil {
		return false, err
	}
	return true, nil
}

// SendVerifyChangeEmail validates a ChangeEmail token without consuming it
// and sends a VerifyNewEmail link to the target address.
func (w *CredentialWorkflow) SendVerifyChangeEmail(ctx context.Context, caller *Identity, token, email, callbackURL string) (bool, error) {
	user, err := w.currentUser(ctx, caller)
	if err != nil {
		return false, err
	}
	base, err := parseCallbackURL(callbackURL)
	if err != nil {
		return false, err
	}
	target, err := NormalizeEmail(email)
	if err != nil {
		return false, err
	}

	rec, err := w.tokens.Peek(ctx, token, PurposeChangeEmail)
	if err != nil {
		return false, err
	}
	if rec.UserID != user.ID {
		return false, oops.Code(CodeTokenNotFound).
			With("reason", "subject mismatch").
			Wrap(ErrTokenNotFound)
	}

	if err := w.ensureEmailAvailable(ctx, user, target); err != nil {
		return false, err
	}

	if err := w.admit(ctx, MessageVerifyNewEmail, target); err != nil {
		return false, err
	}
	verifyToken, _, err := w.tokens.Issue(ctx, user.ID, VerifyNewEmailPayload{NewEmail: target}, VerifyNewEmailTokenExpiry)
	if err != nil {
		return false, err
	}

	if err := w.deliver(ctx, Message{
		To:          target,
		Name:        user.Name,
		Kind:        MessageVerifyNewEmail,
		CallbackURL: callbackLink(base, verifyToken),
	}); err != nil {
		return false, err
	}
	return true, nil
}

// ChangeEmail consumes a VerifyNewEmail token and commits the new address,
// clearing its verification timestamp. The token is consumed only if its
// pending address equals email; otherwise nothing changes.
func (w *CredentialWorkflow) ChangeEmail(ctx context.Context, caller *Identity, token, email string) (*User, error) {
	user, err := w.currentUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	target, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	var updated *User
	err = w.tx.InTransaction(ctx, func(ctx context.Context) error {
		rec, err := w.tokens.Consume(ctx, token, PurposeVerifyNewEmail)
		if err != nil {
			return err
		}
		if rec.UserID != user.ID {
			return oops.Code(CodeTokenNotFound).
				With("reason", "subject mismatch").
				Wrap(ErrTokenNotFound)
		}
		payload, ok := rec.Payload.(VerifyNewEmailPayload)
		if !ok || !SameEmail(payload.NewEmail, target) {
			return oops.Code(CodePayloadMismatch).
				With("token_id", rec.ID.String()).
				Wrap(ErrPayloadMismatch)
		}

		if err := w.users.UpdateEmail(ctx, user.ID, target); err != nil {
			if errors.Is(err, ErrEmailAlreadyInUse) {
				return oops.Code(CodeEmailAlreadyInUse).
					With("email", target).
					Wrap(err)
			}
			return err
		}
		if err := w.tokens.Invalidate(ctx, user.ID, PurposeChangeEmail); err != nil {
			return err
		}

		updated, err = w.users.GetByID(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, commitError("change email", err)
	}

	w.sessions.InvalidateIdentity(ctx, user.ID)
	w.logger.InfoContext(ctx, "email changed", "user_id", user.ID.String())
	return updated, nil
}

// SendSetPasswordEmail sends a SetPassword link to the caller's current
// address. The email argument is advisory; links only go to the address on
// file.
func (w *CredentialWorkflow) SendSetPasswordEmail(ctx context.Context, caller *Identity, email, callbackURL string) (bool, error) {
	user, err := w.currentUser(ctx, caller)
	if err != nil {
		return false, err
	}
	base, err := parseCallbackURL(callbackURL)
	if err != nil {
		return false, err
	}
	if email != "" && !SameEmail(email, user.Email) {
		w.logger.DebugContext(ctx, "set password requested for a different address, using address on file",
			"user_id", user.ID.String())
	}

	if err := w.admit(ctx, MessageSetPassword, user.Email); err != nil {
		return false, err
	}
	token, _, err := w.tokens.Issue(ctx, user.ID, SetPasswordPayload{Email: user.Email}, SetPasswordTokenExpiry)
	if err != nil {
		return false, err
	}

	if err := w.deliver(ctx, Message{
		To:          user.Email,
		Name:        user.Name,
		Kind:        MessageSetPassword,
		CallbackURL: callbackLink(base, token),
	}); err != nil {
		return false, err
	}
	return true, nil
}

// SendResetPasswordEmail sends a ChangePassword link to the account owning
// email, if any. It reports success for unknown addresses so callers cannot
// tell which accounts exist. Delivery failures are logged and reported as
// success for the same reason.
func (w *CredentialWorkflow) SendResetPasswordEmail(ctx context.Context, email, callbackURL string) (bool, error) {
	base, err := parseCallbackURL(callbackURL)
	if err != nil {
		return false, err
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return false, err
	}

	user, err := w.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			w.logger.DebugContext(ctx, "password reset requested for unknown email")
			return true, nil
		}
		return false, oops.Code("PASSWORD_RESET_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	if err := w.admit(ctx, MessageResetPassword, user.Email); err != nil {
		w.logger.WarnContext(ctx, "password reset not sent",
			"user_id", user.ID.String(),
			"error", err)
		return true, nil
	}
	token, _, err := w.tokens.Issue(ctx, user.ID, ChangePasswordPayload{Email: user.Email}, ChangePasswordTokenExpiry)
	if err != nil {
		return false, err
	}

	// deliver logs failures; the caller sees the same answer either way.
	_ = w.deliver(ctx, Message{ //nolint:errcheck // logged by deliver
		To:          user.Email,
		Name:        user.Name,
		Kind:        MessageResetPassword,
		CallbackURL: callbackLink(base, token),
	})
	return true, nil
}

// ChangePassword consumes a SetPassword or ChangePassword token and stores
// the hash of newPassword. caller may be nil for the forgot-password path,
// in which case the token is the sole authorization. On success every other
// session of the user is revoked.
func (w *CredentialWorkflow) ChangePassword(ctx context.Context, caller *Identity, token, newPassword string) (*User, error) {
	// Surface token problems before password policy so a stale link is
	// reported as such.
	rec, err := w.tokens.Peek(ctx, token, PurposeSetPassword, PurposeChangePassword)
	if err != nil {
		return nil, err
	}
	if caller != nil && caller.User != nil && rec.UserID != caller.User.ID {
		return nil, oops.Code(CodeTokenNotFound).
			With("reason", "subject mismatch").
			Wrap(ErrTokenNotFound)
	}
	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	hash, err := w.hasher.Hash(newPassword)
	if err != nil {
		return nil, oops.Code("PASSWORD_HASH_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	var updated *User
	err = w.tx.InTransaction(ctx, func(ctx context.Context) error {
		consumed, err := w.tokens.Consume(ctx, token, PurposeSetPassword, PurposeChangePassword)
		if err != nil {
			return err
		}
		if consumed.UserID != rec.UserID {
			return oops.Code(CodeTokenNotFound).
				With("reason", "subject mismatch").
				Wrap(ErrTokenNotFound)
		}
		if err := w.users.UpdatePassword(ctx, consumed.UserID, hash); err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code(CodeTokenNotFound).
					With("reason", "subject deleted").
					Wrap(ErrTokenNotFound)
			}
			return err
		}
		updated, err = w.users.GetByID(ctx, consumed.UserID)
		return err
	})
	if err != nil {
		return nil, commitError("change password", err)
	}

	var keep *ulid.ULID
	if caller != nil && caller.Session != nil && caller.Session.UserID == updated.ID {
		keep = &caller.Session.ID
	}
	if _, err := w.sessions.RevokeUserSessions(ctx, updated.ID, keep); err != nil {
		w.logger.WarnContext(ctx, "session revocation after password change failed (best-effort)",
			"operation", "revoke_user_sessions",
			"user_id", updated.ID.String(),
			"error", err)
	}
	w.sessions.InvalidateIdentity(ctx, updated.ID)
	w.logger.InfoContext(ctx, "password changed", "user_id", updated.ID.String())
	return updated, nil
}

// ValidatePassword enforces the password length policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("PASSWORD_TOO_SHORT").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return oops.Code("PASSWORD_TOO_LONG").
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// currentUser returns the caller's user record as currently stored. The
// identity may come from a cached snapshot, so the email on file is re-read.
func (w *CredentialWorkflow) currentUser(ctx context.Context, caller *Identity) (*User, error) {
	if caller == nil || caller.User == nil {
		return nil, unauthenticated("no caller")
	}
	user, err := w.users.GetByID(ctx, caller.User.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthenticated("user not found")
		}
		return nil, oops.Code("USER_LOOKUP_FAILED").
			With("user_id", caller.User.ID.String()).
			Wrap(err)
	}
	return user, nil
}

func (w *CredentialWorkflow) ensureEmailAvailable(ctx context.Context, user *User, target string) error {
	if SameEmail(user.Email, target) {
		return oops.Code(CodeSameEmail).Wrap(ErrSameEmail)
	}
	owner, err := w.users.GetByEmail(ctx, target)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return oops.Code("USER_LOOKUP_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	case owner.ID != user.ID:
		return oops.Code(CodeEmailAlreadyInUse).
			With("email", target).
			Wrap(ErrEmailAlreadyInUse)
	default:
		return nil
	}
}

// admit asks a gating notifier whether a message to the recipient would be
// accepted, so that no token is issued for a message that would be refused.
func (w *CredentialWorkflow) admit(ctx context.Context, kind MessageKind, to string) error {
	gate, ok := w.notifier.(DeliveryGate)
	if !ok {
		return nil
	}
	if err := gate.Admit(ctx, to); err != nil {
		observability.RecordDelivery(kind.String(), "throttled")
		return oops.Code(CodeDeliveryThrottled).
			With("kind", kind.String()).
			With("cause", err.Error()).
			Wrap(ErrDeliveryThrottled)
	}
	return nil
}

// deliver sends msg and reports failures as DeliveryFailed. A token issued
// before a failed delivery stays valid until a resend replaces it.
func (w *CredentialWorkflow) deliver(ctx context.Context, msg Message) error {
	start := time.Now()
	err := w.notifier.Send(ctx, msg)
	if err != nil {
		observability.RecordDelivery(msg.Kind.String(), "failed")
		w.logger.ErrorContext(ctx, "notification delivery failed",
			"kind", msg.Kind.String(),
			"duration", time.Since(start),
			"error", err)
		return oops.Code(CodeDeliveryFailed).
			With("kind", msg.Kind.String()).
			With("cause", err.Error()).
			Wrap(ErrDeliveryFailed)
	}
	observability.RecordDelivery(msg.Kind.String(), "sent")
	return nil
}

// commitError passes domain rejections through unchanged and reports any
// other failure of a token-consuming transaction as CommitFailed. The cause
// is kept as context only so that COMMIT_FAILED stays the error code.
func commitError(operation string, err error) error {
	if isTokenError(err) ||
		errors.Is(err, ErrPayloadMismatch) ||
		errors.Is(err, ErrEmailAlreadyInUse) ||
		errors.Is(err, ErrUnauthenticated) {
		return err
	}
	return oops.Code(CodeCommitFailed).
		With("operation", operation).
		With("cause", err.Error()).
		Wrap(ErrCommitFailed)
}
