// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package cache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/holomush/accountd/internal/auth"
	"github.com/holomush/accountd/internal/cache"
)

var testClient *redis.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	code := func() int {
		defer func() { _ = container.Terminate(ctx) }()

		uri, err := container.ConnectionString(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
			return 1
		}
		opts, err := redis.ParseURL(uri)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse redis url: %v\n", err)
			return 1
		}
		testClient, err = cache.NewRedisClient(ctx, cache.RedisOptions{Addr: opts.Addr})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
			return 1
		}
		defer testClient.Close()

		return m.Run()
	}()
	os.Exit(code)
}

func newIdentity(t *testing.T, tokenHash string) *auth.Identity {
	t.Helper()
	user, err := auth.NewUser("Ada", "ada@example.com", nil, nil)
	require.NoError(t, err)
	session, err := auth.NewSession(user.ID, tokenHash, "", "", nil)
	require.NoError(t, err)
	return &auth.Identity{User: user, Session: session}
}

func TestRedisIdentityCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := cache.NewRedisIdentityCache(testClient, "roundtrip:")

	miss, err := c.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, miss)

	identity := newIdentity(t, "h1")
	require.NoError(t, c.Set(ctx, "h1", identity, time.Minute))

	got, err := c.Get(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, identity.User.ID, got.User.ID)

	require.NoError(t, c.Delete(ctx, "h1"))
	got, err = c.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisIdentityCache_InvalidateUser(t *testing.T) {
	ctx := context.Background()
	c := cache.NewRedisIdentityCache(testClient, "invalidate:")

	first := newIdentity(t, "a")
	second := &auth.Identity{User: first.User, Session: newIdentity(t, "b").Session}
	second.Session.UserID = first.User.ID
	other := newIdentity(t, "c")

	require.NoError(t, c.Set(ctx, "a", first, time.Minute))
	require.NoError(t, c.Set(ctx, "b", second, time.Minute))
	require.NoError(t, c.Set(ctx, "c", other, time.Minute))

	require.NoError(t, c.InvalidateUser(ctx, first.User.ID))

	for _, hash := range []string{"a", "b"} {
		got, err := c.Get(ctx, hash)
		require.NoError(t, err)
		assert.Nil(t, got, hash)
	}
	got, err := c.Get(ctx, "c")
	require.NoError(t, err)
	assert.NotNil(t, got, "other users keep their snapshots")
}

func TestRedisIdentityCache_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	c := cache.NewRedisIdentityCache(testClient, "expire:")

	require.NoError(t, c.Set(ctx, "short", newIdentity(t, "short"), 50*time.Millisecond))
	assert.Eventually(t, func() bool {
		got, err := c.Get(ctx, "short")
		return err == nil && got == nil
	}, 2*time.Second, 20*time.Millisecond)
}
