// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/samber/oops"
)

// Secret configuration.
const (
	SecretBytes       = 32 // 256 bits of entropy per session secret
	MinSecretKeyBytes = 32 // minimum HMAC key length
)

// SecretHasher mints session secrets and stores them as keyed digests.
// Secrets are high-entropy, so a fast MAC is used instead of a password hash.
type SecretHasher struct {
	key    []byte
	random *Random
}

// NewSecretHasher creates a SecretHasher keyed with key.
func NewSecretHasher(key []byte, random *Random) (*SecretHasher, error) {
	if len(key) < MinSecretKeyBytes {
		return nil, oops.Code("SECRET_KEY_INVALID").
			With("min_bytes", MinSecretKeyBytes).
			With("got_bytes", len(key)).
			Errorf("secret key is too short")
	}
	if random == nil {
		random = NewRandom()
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &SecretHasher{key: k, random: random}, nil
}

// Generate returns a new random secret.
func (h *SecretHasher) Generate() ([]byte, error) {
	secret, err := h.random.Bytes(SecretBytes)
	if err != nil {
		return nil, oops.Code("SECRET_GENERATE_FAILED").Wrap(err)
	}
	return secret, nil
}

// Hash returns the hex-encoded HMAC-SHA256 of secret.
func (h *SecretHasher) Hash(secret []byte) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write(secret) //nolint:errcheck // hash.Hash writes never fail
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether secret hashes to digest. The comparison runs in
// constant time.
func (h *SecretHasher) Verify(secret []byte, digest string) bool {
	if len(secret) == 0 || digest == "" {
		return false
	}
	expected, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write(secret) //nolint:errcheck // hash.Hash writes never fail
	return hmac.Equal(mac.Sum(nil), expected)
}
