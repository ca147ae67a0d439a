// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code(CodePasswordInvalid).Errorf("password cannot be empty")

// PasswordHasher hashes long-term user passwords. Session secrets never go
// through it.
type PasswordHasher interface {
	// Hash produces a PHC-encoded hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be recomputed with the
	// current algorithm or parameters.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom cost
// parameters.
func NewArgon2idHasherWithParams(p Argon2Params) (*Argon2idHasher, error) {
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 || p.SaltLen < 8 || p.KeyLen < 16 {
		return nil, oops.Code("ARGON2_PARAMS_INVALID").
			With("time", p.Time).
			With("memory", p.Memory).
			With("threads", p.Threads).
			Errorf("argon2id parameters out of range")
	}
	return &Argon2idHasher{params: p}, nil
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("PASSWORD_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	p, salt, expected, err := decodeArgon2id(encodedHash)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade returns true if the hash is not argon2id or was produced with
// weaker parameters than the hasher's.
func (h *Argon2idHasher) NeedsUpgrade(encodedHash string) bool {
	p, _, _, err := decodeArgon2id(encodedHash)
	if err != nil {
		return true
	}
	return p.Time < h.params.Time || p.Memory < h.params.Memory || p.Threads < h.params.Threads
}

// decodeArgon2id parses a PHC argon2id string.
func decodeArgon2id(encodedHash string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return p, nil, nil, oops.Code("PASSWORD_HASH_INVALID").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, oops.Code("PASSWORD_HASH_INVALID").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, oops.Code("PASSWORD_HASH_INVALID").Wrap(err)
	}
	if version != argon2.Version {
		return p, nil, nil, oops.Code("PASSWORD_HASH_INVALID").Errorf("unsupported argon2 version: %d", version)
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &threads); err != nil {
		return p, nil, nil, oops.Code("PASSWORD_HASH_INVALID").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return p, nil, nil, oops.Code("PASSWORD_HASH_INVALID").Errorf("threads value %d out of range", threads)
	}
	p.Threads = uint8(threads)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, oops.Code("PASSWORD_HASH_INVALID").Wrap(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, oops.Code("PASSWORD_HASH_INVALID").Wrap(err)
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return p, nil, nil, oops.Code("PASSWORD_HASH_INVALID").Errorf("invalid hash key length: %d", len(key))
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))

	return p, salt, key, nil
}
