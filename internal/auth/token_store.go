// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/observability"
)

// maxTokenAttempts bounds regeneration after a token hash collision.
const maxTokenAttempts = 3

// TokenStore issues and consumes single-use verification tokens.
type TokenStore struct {
	tokens TokenRepository
	tx     Transactor
	now    Clock
	logger *slog.Logger
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(tokens TokenRepository, tx Transactor, opts ...Option) (*TokenStore, error) {
	if tokens == nil {
		return nil, oops.Errorf("token repository is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	o := buildOptions(opts)
	return &TokenStore{
		tokens: tokens,
		tx:     tx,
		now:    o.now,
		logger: o.logger,
	}, nil
}

// Issue creates a token for the payload's purpose. Every unconsumed token of
// the same purpose and user is invalidated in the same transaction, so at
// most one token per (user, purpose) is ever usable.
// Returns the plaintext token and the stored record.
func (s *TokenStore) Issue(ctx context.Context, userID ulid.ULID, payload TokenPayload, ttl time.Duration) (string, *VerificationToken, error) {
	if payload == nil || !payload.Purpose().Valid() {
		return "", nil, oops.Code("TOKEN_PURPOSE_INVALID").Errorf("payload must carry a known purpose")
	}
	if ttl <= 0 {
		return "", nil, oops.Code("TOKEN_INVALID_TTL").With("ttl", ttl).Errorf("ttl must be positive")
	}
	purpose := payload.Purpose()

	var (
		plaintext string
		record    *VerificationToken
	)
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		now := s.now()
		invalidated, err := s.tokens.InvalidateActive(ctx, userID, purpose, now)
		if err != nil {
			return oops.Code("TOKEN_ISSUE_FAILED").
				With("operation", "invalidate active tokens").
				With("purpose", purpose.String()).
				Wrap(err)
		}
		if invalidated > 0 {
			s.logger.DebugContext(ctx, "invalidated previous tokens",
				"user_id", userID.String(),
				"purpose", purpose.String(),
				"count", invalidated)
		}

		for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
			token, hash, err := GenerateVerificationToken()
			if err != nil {
				return oops.Code("TOKEN_ISSUE_FAILED").With("operation", "generate token").Wrap(err)
			}
			rec, err := NewVerificationToken(userID, hash, payload, now, now.Add(ttl))
			if err != nil {
				return oops.Code("TOKEN_ISSUE_FAILED").With("operation", "new token").Wrap(err)
			}
			err = s.tokens.Create(ctx, rec)
			if errors.Is(err, ErrDuplicateToken) {
				continue
			}
			if err != nil {
				return oops.Code("TOKEN_ISSUE_FAILED").
					With("operation", "persist token").
					With("purpose", purpose.String()).
					Wrap(err)
			}
			plaintext, record = token, rec
			return nil
		}
		return oops.Code("TOKEN_ISSUE_FAILED").
			With("attempts", maxTokenAttempts).
			Errorf("could not generate a unique token")
	})
	if err != nil {
		return "", nil, err
	}

	observability.RecordTokenIssued(purpose.String())
	return plaintext, record, nil
}

// Consume atomically marks a token consumed and returns its record,
// including the typed payload. A token is consumed at most once even under
// concurrent callers. When called inside a transaction the consumption rolls
// back with it.
func (s *TokenStore) Consume(ctx context.Context, token string, purposes ...Purpose) (*VerificationToken, error) {
	label := purposeLabel(purposes)
	if len(purposes) == 0 {
		return nil, oops.Code("TOKEN_PURPOSE_INVALID").Errorf("at least one purpose is required")
	}
	if token == "" {
		observability.RecordTokenConsumed(label, CodeTokenNotFound)
		return nil, oops.Code(CodeTokenNotFound).Wrap(ErrTokenNotFound)
	}

	var record *VerificationToken
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		rec, err := s.tokens.Consume(ctx, HashVerificationToken(token), purposes, s.now())
		if err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		observability.RecordTokenConsumed(label, resultCode(err))
		if isTokenError(err) {
			return nil, err
		}
		return nil, oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "consume token").
			With("purposes", label).
			Wrap(err)
	}

	observability.RecordTokenConsumed(label, "ok")
	return record, nil
}

// Peek validates a token without consuming it.
func (s *TokenStore) Peek(ctx context.Context, token string, purposes ...Purpose) (*VerificationToken, error) {
	if token == "" {
		return nil, CheckUsable(nil, purposes, s.now())
	}
	rec, err := s.tokens.GetByTokenHash(ctx, HashVerificationToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, CheckUsable(nil, purposes, s.now())
		}
		return nil, oops.Code("TOKEN_LOOKUP_FAILED").
			With("operation", "get token by hash").
			Wrap(err)
	}
	if err := CheckUsable(rec, purposes, s.now()); err != nil {
		return nil, err
	}
	return rec, nil
}

// Invalidate marks every unconsumed token of a purpose for a user as used.
func (s *TokenStore) Invalidate(ctx context.Context, userID ulid.ULID, purpose Purpose) error {
	if _, err := s.tokens.InvalidateActive(ctx, userID, purpose, s.now()); err != nil {
		return oops.Code("TOKEN_INVALIDATE_FAILED").
			With("purpose", purpose.String()).
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// Sweep removes expired tokens. Expired tokens are rejected at consume time
// regardless of whether a sweep has run.
func (s *TokenStore) Sweep(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, oops.Code("TOKEN_SWEEP_FAILED").Wrap(err)
	}
	return n, nil
}

func purposeLabel(purposes []Purpose) string {
	parts := make([]string, len(purposes))
	for i, p := range purposes {
		parts[i] = p.String()
	}
	return strings.Join(parts, "|")
}

func isTokenError(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenAlreadyUsed) ||
		errors.Is(err, ErrPurposeMismatch)
}

// resultCode returns the oops code of err, or "error" if it carries none.
func resultCode(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok && code != "" {
			return code
		}
	}
	return "error"
}
