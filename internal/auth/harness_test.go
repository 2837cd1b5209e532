// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/auth"
	"github.com/holomush/accountd/internal/auth/memory"
	"github.com/holomush/accountd/internal/notify"
)

const callbackURL = "https://app.example.com/callback"

// testClock is a settable clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// harness wires every service over the in-memory store.
type harness struct {
	store    *memory.Store
	clock    *testClock
	outbox   *notify.Outbox
	hasher   *auth.Argon2idHasher
	users    *auth.UserService
	sessions *auth.SessionManager
	tokens   *auth.TokenStore
	workflow *auth.CredentialWorkflow
	signin   *auth.Authenticator
	resolver *auth.IdentityResolver
}

type harnessConfig struct {
	users    auth.UserRepository
	notifier auth.Notifier
}

type harnessOption func(*harnessConfig)

func withUserRepository(users auth.UserRepository) harnessOption {
	return func(c *harnessConfig) { c.users = users }
}

func withNotifier(n auth.Notifier) harnessOption {
	return func(c *harnessConfig) { c.notifier = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		store:  memory.NewStore(),
		clock:  newTestClock(),
		outbox: notify.NewOutbox(),
		hasher: auth.NewArgon2idHasher(cheapParams),
	}
	cfg := harnessConfig{users: h.store.Users(), notifier: h.outbox}
	for _, opt := range opts {
		opt(&cfg)
	}
	clock := auth.WithClock(h.clock.Now)

	var err error
	h.users, err = auth.NewUserService(cfg.users)
	require.NoError(t, err)
	h.sessions, err = auth.NewSessionManager(cfg.users, h.store.Sessions(), 24*time.Hour, clock)
	require.NoError(t, err)
	h.tokens, err = auth.NewTokenStore(h.store.Tokens(), h.store, clock)
	require.NoError(t, err)
	h.workflow, err = auth.NewCredentialWorkflow(cfg.users, h.tokens, h.sessions, h.store, h.hasher, cfg.notifier, clock)
	require.NoError(t, err)
	h.signin, err = auth.NewAuthenticator(cfg.users, h.sessions, h.hasher, clock)
	require.NoError(t, err)
	h.resolver = auth.NewIdentityResolver(h.sessions)
	return h
}

// createUser registers a user, with a password when password is non-empty.
func (h *harness) createUser(t *testing.T, name, email, password string) *auth.User {
	t.Helper()
	var hash *string
	if password != "" {
		encoded, err := h.hasher.Hash(password)
		require.NoError(t, err)
		hash = &encoded
	}
	verified := h.clock.Now()
	user, err := h.users.CreateUser(context.Background(), name, email, hash, &verified)
	require.NoError(t, err)
	return user
}

// signedIn creates a session for user and resolves it into an Identity.
func (h *harness) signedIn(t *testing.T, user *auth.User) (*auth.Identity, string) {
	t.Helper()
	ctx := context.Background()
	_, token, err := h.sessions.CreateUserSession(ctx, user.ID, auth.SessionMeta{UserAgent: "test"})
	require.NoError(t, err)
	identity, err := h.sessions.ResolveSession(ctx, token)
	require.NoError(t, err)
	return identity, token
}

// lastToken returns the token in the most recent message sent to address.
func (h *harness) lastToken(t *testing.T, address string) string {
	t.Helper()
	msg, ok := h.outbox.Last(address)
	require.True(t, ok, "no message sent to %s", address)
	token := notify.TokenFrom(msg)
	require.NotEmpty(t, token)
	return token
}
