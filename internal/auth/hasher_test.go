// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

// fastParams keeps argon2id cheap in tests.
var fastParams = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

func newFastHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasherWithParams(fastParams)
	require.NoError(t, err)
	return h
}

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := newFastHasher(t)

	t.Run("produces PHC string", func(t *testing.T) {
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
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodePasswordInvalid)
	})
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := newFastHasher(t)

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

	tests := []struct {
		name     string
		hash     string
		contains string
	}{
		{"invalid format", "not-a-valid-hash", "invalid hash format"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported hash algorithm"},
		{"invalid version", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA", ""},
		{"unsupported version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA", "unsupported argon2 version"},
		{"invalid parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA", ""},
		{"invalid salt base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA", ""},
		{"invalid key base64", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!", ""},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA", "threads value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hasher.Verify("password", tt.hash)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "PASSWORD_HASH_INVALID")
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestArgon2idHasher_NeedsUpgrade(t *testing.T) {
	hasher := newFastHasher(t)

	t.Run("bcrypt hash needs upgrade", func(t *testing.T) {
		assert.True(t, hasher.NeedsUpgrade("$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"))
	})

	t.Run("own hash does not need upgrade", func(t *testing.T) {
		hash, err := hasher.Hash("password")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(hash))
	})

	t.Run("weaker parameters need upgrade", func(t *testing.T) {
		stronger, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{
			Time: 2, Memory: 2048, Threads: 1, SaltLen: 16, KeyLen: 32,
		})
		require.NoError(t, err)

		hash, err := hasher.Hash("password")
		require.NoError(t, err)
		assert.True(t, stronger.NeedsUpgrade(hash))
	})
}

func TestNewArgon2idHasherWithParams_RejectsZeroCost(t *testing.T) {
	_, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 0, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "ARGON2_PARAMS_INVALID")
}

func TestDefaultArgon2Params(t *testing.T) {
	p := auth.DefaultArgon2Params()
	assert.Equal(t, uint32(1), p.Time)
	assert.Equal(t, uint32(64*1024), p.Memory)
	assert.Equal(t, uint8(4), p.Threads)
}
