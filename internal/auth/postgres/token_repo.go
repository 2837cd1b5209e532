// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/auth"
)

const tokenColumns = `id, user_id, purpose, token_hash, payload, created_at, expires_at, consumed_at`

// TokenRepository implements auth.TokenRepository using PostgreSQL.
//
// At most one unconsumed token exists per (user, purpose); the
// verification_tokens_one_active partial index enforces it and
// InvalidateActive serializes issuers with a transaction-scoped advisory lock.
type TokenRepository struct {
	db DB
}

var _ auth.TokenRepository = (*TokenRepository)(nil)

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create stores a new token.
func (r *TokenRepository) Create(ctx context.Context, token *auth.VerificationToken) error {
	payload, err := auth.EncodePayload(token.Payload)
	if err != nil {
		return err
	}

	tag, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO verification_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (token_hash) DO NOTHING
	`,
		token.ID.String(),
		token.UserID.String(),
		token.Purpose.String(),
		token.TokenHash,
		payload,
		token.CreatedAt,
		token.ExpiresAt,
		token.ConsumedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "verification_tokens_one_active" {
			return oops.Code("TOKEN_ACTIVE_CONFLICT").
				With("purpose", token.Purpose.String()).
				Wrap(err)
		}
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert verification token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("user_id", token.UserID.String()).Wrap(auth.ErrDuplicateToken)
	}
	return nil
}

// GetByTokenHash retrieves a token by its hash.
func (r *TokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.VerificationToken, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM verification_tokens
		WHERE token_hash = $1
	`, tokenHash)

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").
			With("operation", "get verification token by hash").
			Wrap(err)
	}
	return token, nil
}

// InvalidateActive marks every unconsumed token of the purpose and user as
// consumed. Concurrent callers for the same (user, purpose) queue on an
// advisory lock held until their transaction ends.
func (r *TokenRepository) InvalidateActive(ctx context.Context, userID ulid.ULID, purpose auth.Purpose, at time.Time) (int64, error) {
	db := conn(ctx, r.db)

	if _, err := db.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1 || ':' || $2, 0))`,
		userID.String(), purpose.String(),
	); err != nil {
		return 0, oops.Code("TOKEN_INVALIDATE_FAILED").
			With("operation", "acquire token issue lock").
			With("user_id", userID.String()).
			Wrap(err)
	}

	tag, err := db.Exec(ctx, `
		UPDATE verification_tokens
		SET consumed_at = $3
		WHERE user_id = $1 AND purpose = $2 AND consumed_at IS NULL
	`, userID.String(), purpose.String(), at)
	if err != nil {
		return 0, oops.Code("TOKEN_INVALIDATE_FAILED").
			With("operation", "invalidate active tokens").
			With("user_id", userID.String()).
			With("purpose", purpose.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// Consume marks the token consumed in a single conditional update. When no
// row qualifies, the stored token is re-read and classified.
func (r *TokenRepository) Consume(ctx context.Context, tokenHash string, purposes []auth.Purpose, at time.Time) (*auth.VerificationToken, error) {
	accepted := make([]string, len(purposes))
	for i, p := range purposes {
		accepted[i] = p.String()
	}

	row := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE verification_tokens
		SET consumed_at = $2
		WHERE token_hash = $1
		  AND consumed_at IS NULL
		  AND expires_at >= $2
		  AND purpose = ANY($3)
		RETURNING `+tokenColumns+`
	`, tokenHash, at, accepted)

	token, err := scanToken(row)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_CONSUME_FAILED").
			With("operation", "consume verification token").
			Wrap(err)
	}

	current, err := r.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, auth.CheckUsable(nil, purposes, at)
		}
		return nil, err
	}
	if err := auth.CheckUsable(current, purposes, at); err != nil {
		return nil, err
	}
	return nil, oops.Code("TOKEN_CONSUME_CONFLICT").
		With("token_id", current.ID.String()).
		Errorf("token changed state during consumption")
}

// DeleteExpired removes tokens that expired before the given time.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		DELETE FROM verification_tokens WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, oops.Code("TOKEN_CLEANUP_FAILED").
			With("operation", "delete expired verification tokens").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanToken(row pgx.Row) (*auth.VerificationToken, error) {
	var (
		idStr, userIDStr, purpose string
		payload                   []byte
		token                     auth.VerificationToken
	)
	if err := row.Scan(
		&idStr,
		&userIDStr,
		&purpose,
		&token.TokenHash,
		&payload,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.ConsumedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}

	id, err := parseULID(idStr, "token_id")
	if err != nil {
		return nil, err
	}
	userID, err := parseULID(userIDStr, "user_id")
	if err != nil {
		return nil, err
	}
	token.ID = id
	token.UserID = userID
	token.Purpose = auth.Purpose(purpose)
	token.Payload, err = auth.DecodePayload(token.Purpose, payload)
	if err != nil {
		return nil, err
	}
	return &token, nil
}
