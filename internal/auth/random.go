// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Alphabets accepted by Random.String. They may be combined.
const (
	Lowercase = "abcdefghijklmnopqrstuvwxyz"
	Uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Digits    = "0123456789"
)

// Random draws identifiers, secrets, and codes from a CSPRNG.
// The zero value reads from crypto/rand.
type Random struct {
	src io.Reader
}

// NewRandom returns a Random reading from crypto/rand.
func NewRandom() *Random {
	return &Random{src: rand.Reader}
}

// NewRandomFrom returns a Random reading from src. Intended for tests.
func NewRandomFrom(src io.Reader) *Random {
	return &Random{src: src}
}

func (r *Random) reader() io.Reader {
	if r == nil || r.src == nil {
		return rand.Reader
	}
	return r.src
}

// Bytes returns n random bytes.
func (r *Random) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, oops.Code("RANDOM_INVALID_LENGTH").With("length", n).Errorf("length cannot be negative")
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.reader(), b); err != nil {
		return nil, oops.Code("RANDOM_READ_FAILED").
			With("requested_bytes", n).
			Wrap(err)
	}
	return b, nil
}

// String returns a string of length n drawn uniformly from the union of the
// given alphabets. Characters are picked by masked rejection sampling, so
// every character of the alphabet is equally likely.
func (r *Random) String(n int, alphabets ...string) (string, error) {
	alphabet := strings.Join(alphabets, "")
	if alphabet == "" {
		return "", oops.Code("RANDOM_INVALID_ALPHABET").Errorf("at least one alphabet is required")
	}
	if len(alphabet) > 256 {
		return "", oops.Code("RANDOM_INVALID_ALPHABET").
			With("size", len(alphabet)).
			Errorf("alphabet cannot exceed 256 characters")
	}
	if n < 0 {
		return "", oops.Code("RANDOM_INVALID_LENGTH").With("length", n).Errorf("length cannot be negative")
	}

	mask := byte(1)
	for int(mask) < len(alphabet)-1 {
		mask = mask<<1 | 1
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n+8)
	for len(out) < n {
		if _, err := io.ReadFull(r.reader(), buf); err != nil {
			return "", oops.Code("RANDOM_READ_FAILED").Wrap(err)
		}
		for _, b := range buf {
			idx := int(b & mask)
			if idx >= len(alphabet) {
				continue
			}
			out = append(out, alphabet[idx])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Int returns a uniform random integer in [0, maxExclusive).
func (r *Random) Int(maxExclusive int64) (int64, error) {
	if maxExclusive <= 0 {
		return 0, oops.Code("RANDOM_INVALID_RANGE").
			With("max", maxExclusive).
			Errorf("upper bound must be positive")
	}
	// rand.Int rejects out-of-range draws instead of reducing modulo max.
	n, err := rand.Int(r.reader(), big.NewInt(maxExclusive))
	if err != nil {
		return 0, oops.Code("RANDOM_READ_FAILED").Wrap(err)
	}
	return n.Int64(), nil
}

// NewID mints a ULID for t using the generator's entropy.
func (r *Random) NewID(t time.Time) (ulid.ULID, error) {
	id, err := ulid.New(ulid.Timestamp(t), r.reader())
	if err != nil {
		return ulid.ULID{}, oops.Code("RANDOM_ID_FAILED").Wrap(err)
	}
	return id, nil
}
