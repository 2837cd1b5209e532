// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package cache

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/accountd/internal/auth"
)

// snapshot is the wire form of a cached identity. The session token hash
// is the key, so it is not repeated; password hashes are never cached.
type snapshot struct {
	User    userSnapshot    `json:"user"`
	Session sessionSnapshot `json:"session"`
}

type userSnapshot struct {
	ID              ulid.ULID  `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	HasPassword     bool       `json:"has_password"`
	AvatarURL       string     `json:"avatar_url,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type sessionSnapshot struct {
	ID         ulid.ULID  `json:"id"`
	UserID     ulid.ULID  `json:"user_id"`
	TokenHash  string     `json:"token_hash"`
	UserAgent  string     `json:"user_agent,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
}

// passwordMarker stands in for the stored hash so that HasPassword still
// answers correctly on a cache hit.
const passwordMarker = "[cached]"

func encodeSnapshot(identity *auth.Identity) ([]byte, error) {
	u, s := identity.User, identity.Session
	return json.Marshal(snapshot{
		User: userSnapshot{
			ID:              u.ID,
			Name:            u.Name,
			Email:           u.Email,
			EmailVerifiedAt: u.EmailVerifiedAt,
			HasPassword:     u.HasPassword(),
			AvatarURL:       u.AvatarURL,
			CreatedAt:       u.CreatedAt,
			UpdatedAt:       u.UpdatedAt,
		},
		Session: sessionSnapshot{
			ID:         s.ID,
			UserID:     s.UserID,
			TokenHash:  s.TokenHash,
			UserAgent:  s.UserAgent,
			IPAddress:  s.IPAddress,
			ExpiresAt:  s.ExpiresAt,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
		},
	})
}

func decodeSnapshot(data []byte) (*auth.Identity, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err //nolint:wrapcheck // caller wraps with cache context
	}

	user := &auth.User{
		ID:              snap.User.ID,
		Name:            snap.User.Name,
		Email:           snap.User.Email,
		EmailVerifiedAt: snap.User.EmailVerifiedAt,
		AvatarURL:       snap.User.AvatarURL,
		CreatedAt:       snap.User.CreatedAt,
		UpdatedAt:       snap.User.UpdatedAt,
	}
	if snap.User.HasPassword {
		marker := passwordMarker
		user.PasswordHash = &marker
	}

	return &auth.Identity{
		User: user,
		Session: &auth.Session{
			ID:         snap.Session.ID,
			UserID:     snap.Session.UserID,
			TokenHash:  snap.Session.TokenHash,
			UserAgent:  snap.Session.UserAgent,
			IPAddress:  snap.Session.IPAddress,
			ExpiresAt:  snap.Session.ExpiresAt,
			CreatedAt:  snap.Session.CreatedAt,
			LastSeenAt: snap.Session.LastSeenAt,
		},
	}, nil
}
