// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/auth"
)

// SessionRepository implements auth.SessionRepository on a Store.
type SessionRepository struct {
	s *Store
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

func copySession(session *auth.Session) *auth.Session {
	c := *session
	if session.ExpiresAt != nil {
		t := *session.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors pass through unchanged
	}
	s, tx := r.s, txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions.get(tx, session.TokenHash); exists || !s.sessions.writable(tx, session.TokenHash) {
		return auth.ErrDuplicateToken
	}
	s.putSessionLocked(tx, copySession(session))
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context errors pass through unchanged
	}
	s, tx := r.s, txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions.get(tx, tokenHash)
	if !ok {
		return nil, oops.Wrap(auth.ErrNotFound)
	}
	return copySession(session), nil
}

// ListByUser retrieves all sessions for a user, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context errors pass through unchanged
	}
	s, tx := r.s, txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*auth.Session
	for _, session := range s.sessions.visible(tx) {
		if session.UserID == userID {
			out = append(out, copySession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Compare(out[j].ID) > 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session. A session
// with uncommitted changes in another transaction is left alone.
func (r *SessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors pass through unchanged
	}
	s, tx := r.s, txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, ok := s.sessionIDs.get(tx, id)
	if !ok {
		return oops.With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	session, ok := s.sessions.get(tx, hash)
	if !ok {
		return oops.With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if !s.sessions.writable(tx, hash) {
		return nil
	}
	updated := copySession(session)
	updated.LastSeenAt = lastSeen
	s.sessions.put(tx, hash, updated)
	return nil
}

// DeleteByTokenHash removes a session. Unknown hashes are ignored.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	s, tx := r.s, txFrom(ctx)
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors pass through unchanged
	}

	s.mu.Lock()
	session, ok := s.sessions.get(tx, tokenHash)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	unlock, err := s.lockUser(ctx, session.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions.get(tx, tokenHash); ok {
		s.deleteSessionLocked(tx, session)
	}
	return nil
}

// DeleteByUser removes all sessions for a user except keep.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID, keep *ulid.ULID) ([]string, error) {
	s, tx := r.s, txFrom(ctx)
	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var hashes []string
	for hash, session := range s.sessions.visible(tx) {
		if session.UserID != userID || (keep != nil && session.ID == *keep) {
			continue
		}
		s.deleteSessionLocked(tx, session)
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)
	return hashes, nil
}

// DeleteExpired removes sessions that expired before the given time.
// Sessions with uncommitted changes in another transaction are left alone.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err //nolint:wrapcheck // context errors pass through unchanged
	}
	s, tx := r.s, txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, session := range s.sessions.visible(tx) {
		if session.ExpiresAt != nil && session.ExpiresAt.Before(before) && s.sessions.writable(tx, hash) {
			s.deleteSessionLocked(tx, session)
			n++
		}
	}
	return n, nil
}

func (s *Store) deleteSessionLocked(tx *memTx, session *auth.Session) {
	s.sessionIDs.remove(tx, session.ID)
	s.sessions.remove(tx, session.TokenHash)
}

func (s *Store) putSessionLocked(tx *memTx, session *auth.Session) {
	s.sessions.put(tx, session.TokenHash, session)
	s.sessionIDs.put(tx, session.ID, session.TokenHash)
}
