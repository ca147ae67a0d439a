// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

var testSecretKey = bytes.Repeat([]byte("k"), auth.MinSecretKeyBytes)

func newTestSecretHasher(t *testing.T) *auth.SecretHasher {
	t.Helper()
	h, err := auth.NewSecretHasher(testSecretKey, nil)
	require.NoError(t, err)
	return h
}

func TestNewSecretHasher_RejectsShortKey(t *testing.T) {
	for _, key := range [][]byte{nil, []byte("short")} {
		_, err := auth.NewSecretHasher(key, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SECRET_KEY_INVALID")
	}
}

func TestSecretHasher_HashVerify(t *testing.T) {
	h := newTestSecretHasher(t)

	secret, err := h.Generate()
	require.NoError(t, err)
	assert.Len(t, secret, auth.SecretBytes)

	digest := h.Hash(secret)
	assert.Len(t, digest, 64)
	assert.Equal(t, digest, h.Hash(secret), "hashing is deterministic")

	t.Run("matching secret verifies", func(t *testing.T) {
		assert.True(t, h.Verify(secret, digest))
	})

	t.Run("other secret does not verify", func(t *testing.T) {
		other, err := h.Generate()
		require.NoError(t, err)
		assert.False(t, h.Verify(other, digest))
	})

	t.Run("other key does not verify", func(t *testing.T) {
		otherHasher, err := auth.NewSecretHasher(bytes.Repeat([]byte("z"), auth.MinSecretKeyBytes), nil)
		require.NoError(t, err)
		assert.False(t, otherHasher.Verify(secret, digest))
	})

	t.Run("malformed digest does not verify", func(t *testing.T) {
		assert.False(t, h.Verify(secret, "not-hex"))
		assert.False(t, h.Verify(secret, ""))
		assert.False(t, h.Verify(nil, digest))
	})
}

func TestSecretHasher_KeyIsCopied(t *testing.T) {
	key := bytes.Repeat([]byte("k"), auth.MinSecretKeyBytes)
	h, err := auth.NewSecretHasher(key, nil)
	require.NoError(t, err)

	secret := []byte("secret")
	digest := h.Hash(secret)
	key[0] = 'x'
	assert.Equal(t, digest, h.Hash(secret))
}
