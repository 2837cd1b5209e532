// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// IdentityCache stores identity snapshots keyed by session token hash so
// that hot session lookups skip the identity store. Entries must be dropped
// when the session is revoked or the user's identity changes.
type IdentityCache interface {
	// Get returns the cached identity for a session token hash.
	// A miss returns (nil, nil).
	Get(ctx context.Context, tokenHash string) (*Identity, error)

	// Set caches an identity for at most ttl.
	Set(ctx context.Context, tokenHash string, identity *Identity, ttl time.Duration) error

	// Delete drops the snapshot for one session.
	Delete(ctx context.Context, tokenHash string) error

	// InvalidateUser drops every snapshot belonging to a user.
	InvalidateUser(ctx context.Context, userID ulid.ULID) error
}

// NopIdentityCache is an IdentityCache that never stores anything.
type NopIdentityCache struct{}

// Get implements IdentityCache.
func (NopIdentityCache) Get(context.Context, string) (*Identity, error) { return nil, nil }

// Set implements IdentityCache.
func (NopIdentityCache) Set(context.Context, string, *Identity, time.Duration) error { return nil }

// Delete implements IdentityCache.
func (NopIdentityCache) Delete(context.Context, string) error { return nil }

// InvalidateUser implements IdentityCache.
func (NopIdentityCache) InvalidateUser(context.Context, ulid.ULID) error { return nil }
