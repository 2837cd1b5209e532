// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accountd/internal/auth"
)

// cheapParams keep argon2 fast in tests.
var cheapParams = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1}

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := auth.NewArgon2idHasher(cheapParams)

	t.Run("produces PHC encoded hash with configured params", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.ErrorIs(t, err, auth.ErrEmptyPassword)
	})

	t.Run("hash never contains the password", func(t *testing.T) {
		hash, err := hasher.Hash("visible-secret")
		require.NoError(t, err)
		assert.NotContains(t, hash, "visible-secret")
	})
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := auth.NewArgon2idHasher(cheapParams)
	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hash from other params still verifies", func(t *testing.T) {
		other := auth.NewArgon2idHasher(auth.Argon2Params{Time: 2, Memory: 2048, Threads: 2})
		otherHash, err := other.Hash("correctpassword")
		require.NoError(t, err)

		ok, err := hasher.Verify("correctpassword", otherHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	malformed := []struct {
		name    string
		hash    string
		message string
	}{
		{"not a hash", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"bad version", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"unknown version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported argon2 version"},
		{"bad params", "$argon2id$v=19$garbage$c2FsdA$aGFzaA", ""},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "out of range"},
		{"bad salt", "$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA", ""},
		{"bad key", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!", ""},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hasher.Verify("password", tt.hash)
			require.Error(t, err)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestArgon2idHasher_NeedsUpgrade(t *testing.T) {
	hasher := auth.NewArgon2idHasher(cheapParams)

	current, err := hasher.Hash("password")
	require.NoError(t, err)
	stronger, err := auth.NewArgon2idHasher(auth.Argon2Params{Time: 2, Memory: 1024, Threads: 1}).Hash("password")
	require.NoError(t, err)

	assert.False(t, hasher.NeedsUpgrade(current))
	assert.True(t, hasher.NeedsUpgrade(stronger))
	assert.True(t, hasher.NeedsUpgrade("$2a$10$abcdefghijklmnopqrstuv"))
	assert.True(t, hasher.NeedsUpgrade(""))
}

func TestNewArgon2idHasher_DefaultsZeroParams(t *testing.T) {
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{})
	hash, err := hasher.Hash("password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
}
