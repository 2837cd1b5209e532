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

// DefaultIdentityCacheTTL bounds how long an identity snapshot is reused.
const DefaultIdentityCacheTTL = 5 * time.Minute

// maxSessionAttempts bounds regeneration after a session token collision.
const maxSessionAttempts = 3

// SessionMeta carries optional client details recorded with a session.
type SessionMeta struct {
	UserAgent string
	IPAddress string
}

// SessionManager creates, resolves and revokes user sessions.
type SessionManager struct {
	users    UserRepository
	sessions SessionRepository
	ttl      time.Duration
	cache    IdentityCache
	cacheTTL time.Duration
	now      Clock
	logger   *slog.Logger
}

// NewSessionManager creates a new SessionManager. A ttl of zero creates
// sessions that never expire.
func NewSessionManager(users UserRepository, sessions SessionRepository, ttl time.Duration, opts ...Option) (*SessionManager, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session repository is required")
	}
	if ttl < 0 {
		return nil, oops.With("ttl", ttl).Errorf("session ttl cannot be negative")
	}
	o := buildOptions(opts)
	return &SessionManager{
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		cache:    o.cache,
		cacheTTL: DefaultIdentityCacheTTL,
		now:      o.now,
		logger:   o.logger,
	}, nil
}

// CreateUserSession creates a session for an existing user and returns it
// along with the plaintext session token handed to the client.
func (m *SessionManager) CreateUserSession(ctx context.Context, userID ulid.ULID, meta SessionMeta) (*Session, string, error) {
	if _, err := m.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", oops.Code("USER_NOT_FOUND").
				With("user_id", userID.String()).
				Wrap(err)
		}
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "get user").
			Wrap(err)
	}

	var expiresAt *time.Time
	if m.ttl > 0 {
		t := m.now().Add(m.ttl)
		expiresAt = &t
	}

	for attempt := 1; attempt <= maxSessionAttempts; attempt++ {
		token, tokenHash, err := GenerateSessionToken()
		if err != nil {
			return nil, "", oops.Code("SESSION_CREATE_FAILED").
				With("operation", "generate session token").
				Wrap(err)
		}

		session, err := NewSession(userID, tokenHash, meta.UserAgent, meta.IPAddress, expiresAt)
		if err != nil {
			return nil, "", oops.Code("SESSION_CREATE_FAILED").
				With("operation", "new session").
				Wrap(err)
		}

		err = m.sessions.Create(ctx, session)
		if errors.Is(err, ErrDuplicateToken) {
			continue
		}
		if err != nil {
			return nil, "", oops.Code("SESSION_CREATE_FAILED").
				With("operation", "persist session").
				Wrap(err)
		}

		observability.RecordSessionCreated()
		return session, token, nil
	}

	return nil, "", oops.Code("SESSION_CREATE_FAILED").
		With("attempts", maxSessionAttempts).
		Errorf("could not generate a unique session token")
}

// ResolveSession returns the identity bound to a session token. Absent,
// expired and revoked sessions all report ErrUnauthenticated.
func (m *SessionManager) ResolveSession(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, unauthenticated("empty token")
	}
	tokenHash := HashSessionToken(token)
	now := m.now()

	cached, err := m.cache.Get(ctx, tokenHash)
	if err != nil {
		m.logger.WarnContext(ctx, "identity cache read failed",
			"operation", "cache_get",
			"error", err)
	}
	if cached != nil && !cached.Session.IsExpiredAt(now) {
		return cached, nil
	}

	session, err := m.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthenticated("unknown session")
		}
		return nil, oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if !VerifySessionToken(token, session.TokenHash) {
		return nil, unauthenticated("token mismatch")
	}

	if session.IsExpiredAt(now) {
		if err := m.sessions.DeleteByTokenHash(ctx, tokenHash); err != nil {
			m.logger.WarnContext(ctx, "expired session cleanup failed (best-effort)",
				"operation", "delete_expired_session",
				"session_id", session.ID.String(),
				"error", err)
		}
		return nil, unauthenticated("session expired")
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthenticated("user not found")
		}
		return nil, oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "get user").
			Wrap(err)
	}

	if err := m.sessions.UpdateLastSeen(ctx, session.ID, now); err != nil {
		m.logger.WarnContext(ctx, "session last-seen update failed (best-effort)",
			"operation", "update_last_seen",
			"session_id", session.ID.String(),
			"error", err)
	} else {
		session.LastSeenAt = now
	}

	identity := &Identity{User: user, Session: session}
	if err := m.cache.Set(ctx, tokenHash, identity, m.snapshotTTL(session, now)); err != nil {
		m.logger.WarnContext(ctx, "identity cache write failed",
			"operation", "cache_set",
			"error", err)
	}
	return identity, nil
}

// RevokeSession deletes the session for a token. Revoking an unknown or
// already revoked token is a no-op.
func (m *SessionManager) RevokeSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	tokenHash := HashSessionToken(token)
	if err := m.sessions.DeleteByTokenHash(ctx, tokenHash); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	m.dropSnapshot(ctx, tokenHash)
	observability.RecordSessionsRevoked("sign_out", 1)
	return nil
}

// RevokeUserSessions deletes every session of a user except keep, if given,
// and returns how many were revoked.
func (m *SessionManager) RevokeUserSessions(ctx context.Context, userID ulid.ULID, keep *ulid.ULID) (int, error) {
	hashes, err := m.sessions.DeleteByUser(ctx, userID, keep)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	for _, h := range hashes {
		m.dropSnapshot(ctx, h)
	}
	observability.RecordSessionsRevoked("credential_change", len(hashes))
	return len(hashes), nil
}

// ListUserSessions returns the live sessions of a user.
func (m *SessionManager) ListUserSessions(ctx context.Context, userID ulid.ULID) ([]*Session, error) {
	all, err := m.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}
	now := m.now()
	live := make([]*Session, 0, len(all))
	for _, s := range all {
		if !s.IsExpiredAt(now) {
			live = append(live, s)
		}
	}
	return live, nil
}

// InvalidateIdentity drops cached identity snapshots for every session of
// a user. Called after identity-affecting changes.
func (m *SessionManager) InvalidateIdentity(ctx context.Context, userID ulid.ULID) {
	if err := m.cache.InvalidateUser(ctx, userID); err != nil {
		m.logger.WarnContext(ctx, "identity cache invalidation failed",
			"operation", "cache_invalidate_user",
			"user_id", userID.String(),
			"error", err)
	}
}

// Sweep removes expired sessions.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	return n, nil
}

func (m *SessionManager) dropSnapshot(ctx context.Context, tokenHash string) {
	if err := m.cache.Delete(ctx, tokenHash); err != nil {
		m.logger.WarnContext(ctx, "identity cache delete failed",
			"operation", "cache_delete",
			"error", err)
	}
}

func (m *SessionManager) snapshotTTL(session *Session, now time.Time) time.Duration {
	ttl := m.cacheTTL
	if session.ExpiresAt != nil {
		if remaining := session.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

func unauthenticated(reason string) error {
	return oops.Code(CodeUnauthenticated).With("reason", reason).Wrap(ErrUnauthenticated)
}
