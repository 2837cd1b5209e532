// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/auth"
)

// TokenRepository implements auth.TokenRepository on a Store.
type TokenRepository struct {
	s *Store
}

var _ auth.TokenRepository = (*TokenRepository)(nil)

func copyToken(token *auth.VerificationToken) *auth.VerificationToken {
	c := *token
	if token.ConsumedAt != nil {
		t := *token.ConsumedAt
		c.ConsumedAt = &t
	}
	return &c
}

// Create stores a new token. At most one unconsumed token may exist per
// (user, purpose).
func (r *TokenRepository) Create(ctx context.Context, token *auth.VerificationToken) error {
	s, tx := r.s, txFrom(ctx)
	unlock, err := s.lockUser(ctx, token.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens.get(tx, token.TokenHash); exists || !s.tokens.writable(tx, token.TokenHash) {
		return auth.ErrDuplicateToken
	}
	if !token.IsConsumed() {
		for _, other := range s.tokens.visible(tx) {
			if other.UserID == token.UserID && other.Purpose == token.Purpose && !other.IsConsumed() {
				return oops.Code("TOKEN_ACTIVE_CONFLICT").
					With("purpose", token.Purpose.String()).
					Errorf("an unconsumed token already exists for this purpose")
			}
		}
	}

	s.tokens.put(tx, token.TokenHash, copyToken(token))
	return nil
}

// GetByTokenHash retrieves a token by its hash.
func (r *TokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.VerificationToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context errors pass through unchanged
	}
	s, tx := r.s, txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens.get(tx, tokenHash)
	if !ok {
		return nil, oops.Wrap(auth.ErrNotFound)
	}
	return copyToken(token), nil
}

// InvalidateActive marks every unconsumed token of the purpose and user as
// consumed at the given time.
func (r *TokenRepository) InvalidateActive(ctx context.Context, userID ulid.ULID, purpose auth.Purpose, at time.Time) (int64, error) {
	s, tx := r.s, txFrom(ctx)
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, token := range s.tokens.visible(tx) {
		if token.UserID != userID || token.Purpose != purpose || token.IsConsumed() {
			continue
		}
		invalidated := copyToken(token)
		consumedAt := at
		invalidated.ConsumedAt = &consumedAt
		s.tokens.put(tx, hash, invalidated)
		n++
	}
	return n, nil
}

// Consume marks the token consumed if it is usable for one of purposes.
// The check and the update happen with the subject's user lock held, so a
// token being consumed by another transaction is classified only after
// that transaction ends.
func (r *TokenRepository) Consume(ctx context.Context, tokenHash string, purposes []auth.Purpose, at time.Time) (*auth.VerificationToken, error) {
	s, tx := r.s, txFrom(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context errors pass through unchanged
	}

	s.mu.Lock()
	token, ok := s.tokens.get(tx, tokenHash)
	s.mu.Unlock()
	if !ok {
		return nil, auth.CheckUsable(nil, purposes, at)
	}

	unlock, err := s.lockUser(ctx, token.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok = s.tokens.get(tx, tokenHash)
	if !ok {
		return nil, auth.CheckUsable(nil, purposes, at)
	}
	if err := auth.CheckUsable(token, purposes, at); err != nil {
		return nil, err
	}

	consumed := copyToken(token)
	consumedAt := at
	consumed.ConsumedAt = &consumedAt
	s.tokens.put(tx, tokenHash, consumed)
	return copyToken(consumed), nil
}

// DeleteExpired removes tokens that expired before the given time. Tokens
// with uncommitted changes in another transaction are left alone.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err //nolint:wrapcheck // context errors pass through unchanged
	}
	s, tx := r.s, txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, token := range s.tokens.visible(tx) {
		if token.ExpiresAt.Before(before) && s.tokens.writable(tx, hash) {
			s.tokens.remove(tx, hash)
			n++
		}
	}
	return n, nil
}
