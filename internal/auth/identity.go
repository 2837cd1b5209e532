// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	User    *User
	Session *Session
}

// BearerToken is the bearer credential envelope. Refresh is carried through
// untouched; session rotation is not implemented.
type BearerToken struct {
	Token   string
	Refresh string
}

// Credential holds the identity sources presented by an inbound request.
type Credential struct {
	Cookie string
	Bearer *BearerToken
}

// SessionToken returns the session token the credential resolves through.
// The cookie wins when both sources are present.
func (c Credential) SessionToken() string {
	if c.Cookie != "" {
		return c.Cookie
	}
	if c.Bearer != nil {
		return strings.TrimSpace(c.Bearer.Token)
	}
	return ""
}

// sessionResolver is the part of SessionManager used by IdentityResolver.
type sessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*Identity, error)
}

// IdentityResolver maps inbound credentials to the current identity.
type IdentityResolver struct {
	sessions sessionResolver
}

// NewIdentityResolver creates an IdentityResolver backed by the session manager.
func NewIdentityResolver(sessions *SessionManager) *IdentityResolver {
	return &IdentityResolver{sessions: sessions}
}

// Resolve returns the identity for the credential. A bearer token is
// treated as a session token: same store, same expiry and revocation rules.
func (r *IdentityResolver) Resolve(ctx context.Context, cred Credential) (*Identity, error) {
	token := cred.SessionToken()
	if token == "" {
		return nil, unauthenticated("no credential")
	}
	return r.sessions.ResolveSession(ctx, token)
}

type identityKey struct{}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
