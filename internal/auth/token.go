// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// VerificationTokenBytes is the amount of entropy in a verification token.
const VerificationTokenBytes = 32 // 32 bytes = 64 hex chars

// Default token lifetimes per purpose.
const (
	ChangeEmailTokenExpiry    = 30 * time.Minute
	VerifyNewEmailTokenExpiry = 30 * time.Minute
	SetPasswordTokenExpiry    = time.Hour
	ChangePasswordTokenExpiry = time.Hour
)

// Purpose is the kind of state transition a verification token authorizes.
type Purpose string

// Token purposes.
const (
	PurposeChangeEmail    Purpose = "change_email"
	PurposeVerifyNewEmail Purpose = "verify_new_email"
	PurposeSetPassword    Purpose = "set_password"
	PurposeChangePassword Purpose = "change_password"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeChangeEmail, PurposeVerifyNewEmail, PurposeSetPassword, PurposeChangePassword:
		return true
	default:
		return false
	}
}

func (p Purpose) String() string { return string(p) }

// TokenPayload is the purpose-specific data carried by a verification token.
// Each purpose has exactly one payload type.
type TokenPayload interface {
	Purpose() Purpose
}

// ChangeEmailPayload is carried by a ChangeEmail token, which is delivered
// to the user's current address.
type ChangeEmailPayload struct {
	CurrentEmail   string `json:"current_email"`
	RequestedEmail string `json:"requested_email,omitempty"`
}

// Purpose implements TokenPayload.
func (ChangeEmailPayload) Purpose() Purpose { return PurposeChangeEmail }

// VerifyNewEmailPayload is carried by a VerifyNewEmail token and names the
// pending target address.
type VerifyNewEmailPayload struct {
	NewEmail string `json:"new_email"`
}

// Purpose implements TokenPayload.
func (VerifyNewEmailPayload) Purpose() Purpose { return PurposeVerifyNewEmail }

// SetPasswordPayload is carried by a SetPassword token.
type SetPasswordPayload struct {
	Email string `json:"email"`
}

// Purpose implements TokenPayload.
func (SetPasswordPayload) Purpose() Purpose { return PurposeSetPassword }

// ChangePasswordPayload is carried by a ChangePassword (forgot password) token.
type ChangePasswordPayload struct {
	Email string `json:"email"`
}

// Purpose implements TokenPayload.
func (ChangePasswordPayload) Purpose() Purpose { return PurposeChangePassword }

// EncodePayload serializes a payload for storage.
func EncodePayload(p TokenPayload) ([]byte, error) {
	if p == nil {
		return nil, oops.Code("TOKEN_PAYLOAD_INVALID").Errorf("payload cannot be nil")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, oops.Code("TOKEN_PAYLOAD_INVALID").
			With("purpose", p.Purpose().String()).
			Wrap(err)
	}
	return data, nil
}

// DecodePayload restores the payload stored for a token of the given purpose.
func DecodePayload(purpose Purpose, data []byte) (TokenPayload, error) {
	var (
		payload TokenPayload
		err     error
	)
	switch purpose {
	case PurposeChangeEmail:
		var p ChangeEmailPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case PurposeVerifyNewEmail:
		var p VerifyNewEmailPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case PurposeSetPassword:
		var p SetPasswordPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case PurposeChangePassword:
		var p ChangePasswordPayload
		err = json.Unmarshal(data, &p)
		payload = p
	default:
		return nil, oops.Code("TOKEN_PURPOSE_INVALID").
			With("purpose", string(purpose)).
			Errorf("unknown token purpose")
	}
	if err != nil {
		return nil, oops.Code("TOKEN_PAYLOAD_INVALID").
			With("purpose", purpose.String()).
			Wrap(err)
	}
	return payload, nil
}

// VerificationToken is a single-use credential authorizing one state
// transition for one user.
type VerificationToken struct {
	ID         ulid.ULID
	Purpose    Purpose
	UserID     ulid.ULID
	TokenHash  string
	Payload    TokenPayload
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// NewVerificationToken creates a validated VerificationToken.
func NewVerificationToken(userID ulid.ULID, tokenHash string, payload TokenPayload, createdAt, expiresAt time.Time) (*VerificationToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if payload == nil || !payload.Purpose().Valid() {
		return nil, oops.Code("TOKEN_PURPOSE_INVALID").Errorf("payload must carry a known purpose")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").
			With("created_at", createdAt).
			With("expires_at", expiresAt).
			Errorf("expiry must be after creation")
	}
	return &VerificationToken{
		ID:        ulid.Make(),
		Purpose:   payload.Purpose(),
		UserID:    userID,
		TokenHash: tokenHash,
		Payload:   payload,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpiredAt returns true if the token is expired at the given time.
func (t *VerificationToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsConsumed returns true once the token has been used or invalidated.
func (t *VerificationToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}

// CheckUsable classifies why tok cannot authorize an action for one of the
// accepted purposes at time now. A nil token is TokenNotFound. Checks run in
// order: not found, already used, expired, purpose mismatch.
func CheckUsable(tok *VerificationToken, purposes []Purpose, now time.Time) error {
	if tok == nil {
		return oops.Code(CodeTokenNotFound).Wrap(ErrTokenNotFound)
	}
	if tok.IsConsumed() {
		return oops.Code(CodeTokenAlreadyUsed).
			With("token_id", tok.ID.String()).
			With("consumed_at", *tok.ConsumedAt).
			Wrap(ErrTokenAlreadyUsed)
	}
	if tok.IsExpiredAt(now) {
		return oops.Code(CodeTokenExpired).
			With("token_id", tok.ID.String()).
			With("expires_at", tok.ExpiresAt).
			Wrap(ErrTokenExpired)
	}
	if !slices.Contains(purposes, tok.Purpose) {
		return oops.Code(CodePurposeMismatch).
			With("token_id", tok.ID.String()).
			With("purpose", tok.Purpose.String()).
			Wrap(ErrPurposeMismatch)
	}
	return nil
}

// GenerateVerificationToken creates a secure random token and its hash.
// The plaintext token is delivered to the user; the hash is stored.
func GenerateVerificationToken() (token, hash string, err error) {
	tokenBytes := make([]byte, VerificationTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashVerificationToken(token), nil
}

// HashVerificationToken computes the SHA256 hash of a verification token.
func HashVerificationToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenRepository manages verification token persistence.
type TokenRepository interface {
	// Create stores a new token.
	// Returns ErrDuplicateToken if the token hash already exists.
	Create(ctx context.Context, token *VerificationToken) error

	// GetByTokenHash retrieves a token by its hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*VerificationToken, error)

	// InvalidateActive marks every unconsumed token of the given purpose and
	// user as consumed at the given time and returns how many were affected.
	// Implementations serialize concurrent callers for the same (user, purpose).
	InvalidateActive(ctx context.Context, userID ulid.ULID, purpose Purpose, at time.Time) (int64, error)

	// Consume atomically marks the token consumed if it is unconsumed,
	// unexpired at the given time, and of an accepted purpose. On failure it
	// returns the CheckUsable classification.
	Consume(ctx context.Context, tokenHash string, purposes []Purpose, at time.Time) (*VerificationToken, error)

	// DeleteExpired removes tokens that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Transactor runs fn inside a single transactional boundary. Repository
// calls made with the context passed to fn participate in the transaction;
// the transaction commits only if fn returns nil and ctx is still live.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
