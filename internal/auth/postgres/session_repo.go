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

const sessionColumns = `id, user_id, token_hash, user_agent, ip_address, expires_at, created_at, last_seen_at`

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		session.ID.String(),
		session.UserID.String(),
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.CreatedAt,
		session.LastSeenAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "sessions_token_hash_key" {
			return oops.With("user_id", session.UserID.String()).Wrap(auth.ErrDuplicateToken)
		}
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE token_hash = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// ListByUser retrieves all sessions for a user, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, oops.Code("SESSION_LIST_FAILED").
				With("operation", "scan session row").
				Wrap(scanErr)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "iterate session rows").
			Wrap(err)
	}
	return sessions, nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *SessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE sessions SET last_seen_at = $2 WHERE id = $1
	`, id.String(), lastSeen)
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").
			With("operation", "update last seen").
			With("session_id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByTokenHash removes a session. Unknown hashes are ignored.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session by token hash").
			Wrap(err)
	}
	return nil
}

// DeleteByUser removes all sessions for a user except keep and returns the
// token hashes of the removed sessions.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID, keep *ulid.ULID) ([]string, error) {
	var keepID *string
	if keep != nil {
		s := keep.String()
		keepID = &s
	}

	rows, err := conn(ctx, r.db).Query(ctx, `
		DELETE FROM sessions
		WHERE user_id = $1 AND ($2::text IS NULL OR id <> $2)
		RETURNING token_hash
	`, userID.String(), keepID)
	if err != nil {
		return nil, oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}

	hashes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, oops.Code("SESSION_DELETE_FAILED").
			With("operation", "collect deleted session hashes").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return hashes, nil
}

// DeleteExpired removes sessions that expired before the given time.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at < $1
	`, before)
	if err != nil {
		return 0, oops.Code("SESSION_CLEANUP_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		idStr, userIDStr string
		session          auth.Session
	)
	if err := row.Scan(
		&idStr,
		&userIDStr,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.LastSeenAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers classify pgx.ErrNoRows
	}

	id, err := parseULID(idStr, "session_id")
	if err != nil {
		return nil, err
	}
	userID, err := parseULID(userIDStr, "user_id")
	if err != nil {
		return nil, err
	}
	session.ID = id
	session.UserID = userID
	return &session, nil
}
