// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package cache provides a Redis-backed auth.IdentityCache.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/auth"
)

// DefaultKeyPrefix namespaces every key the cache writes.
const DefaultKeyPrefix = "accountd:"

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("CACHE_CONNECT_FAILED").
			With("addr", opts.Addr).
			Wrap(err)
	}
	return client, nil
}

// RedisIdentityCache stores identity snapshots as JSON under
// <prefix>identity:<token hash>. A per-user set tracks the hashes cached for
// each user so InvalidateUser can drop them together.
type RedisIdentityCache struct {
	client redis.UniversalClient
	prefix string
}

var _ auth.IdentityCache = (*RedisIdentityCache)(nil)

// NewRedisIdentityCache creates a cache on client. An empty prefix uses
// DefaultKeyPrefix.
func NewRedisIdentityCache(client redis.UniversalClient, prefix string) *RedisIdentityCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisIdentityCache{client: client, prefix: prefix}
}

func (c *RedisIdentityCache) identityKey(tokenHash string) string {
	return c.prefix + "identity:" + tokenHash
}

func (c *RedisIdentityCache) userKey(userID ulid.ULID) string {
	return c.prefix + "user:" + userID.String() + ":sessions"
}

// Get returns the cached identity, or nil on a miss.
func (c *RedisIdentityCache) Get(ctx context.Context, tokenHash string) (*auth.Identity, error) {
	data, err := c.client.Get(ctx, c.identityKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("CACHE_GET_FAILED").With("operation", "get identity").Wrap(err)
	}

	identity, err := decodeSnapshot(data)
	if err != nil {
		return nil, oops.Code("CACHE_DECODE_FAILED").With("operation", "decode identity").Wrap(err)
	}
	return identity, nil
}

// Set caches identity for ttl. A non-positive ttl is a no-op.
func (c *RedisIdentityCache) Set(ctx context.Context, tokenHash string, identity *auth.Identity, ttl time.Duration) error {
	if ttl <= 0 || identity == nil || identity.User == nil || identity.Session == nil {
		return nil
	}
	data, err := encodeSnapshot(identity)
	if err != nil {
		return oops.Code("CACHE_ENCODE_FAILED").With("operation", "encode identity").Wrap(err)
	}

	userKey := c.userKey(identity.User.ID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.identityKey(tokenHash), data, ttl)
		pipe.SAdd(ctx, userKey, tokenHash)
		pipe.ExpireNX(ctx, userKey, ttl)
		pipe.ExpireGT(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return oops.Code("CACHE_SET_FAILED").With("operation", "set identity").Wrap(err)
	}
	return nil
}

// Delete drops the snapshot for one session.
func (c *RedisIdentityCache) Delete(ctx context.Context, tokenHash string) error {
	if err := c.client.Del(ctx, c.identityKey(tokenHash)).Err(); err != nil {
		return oops.Code("CACHE_DELETE_FAILED").With("operation", "delete identity").Wrap(err)
	}
	return nil
}

// InvalidateUser drops every snapshot cached for the user.
func (c *RedisIdentityCache) InvalidateUser(ctx context.Context, userID ulid.ULID) error {
	userKey := c.userKey(userID)
	hashes, err := c.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return oops.Code("CACHE_INVALIDATE_FAILED").
			With("operation", "list user snapshots").
			With("user_id", userID.String()).
			Wrap(err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, hash := range hashes {
		keys = append(keys, c.identityKey(hash))
	}
	keys = append(keys, userKey)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return oops.Code("CACHE_INVALIDATE_FAILED").
			With("operation", "delete user snapshots").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}
