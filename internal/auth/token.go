// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"encoding/base64"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token layout: 16 byte ULID followed by the 32 byte secret, base64url
// encoded without padding.
const (
	tokenIDBytes  = 16
	tokenRawBytes = tokenIDBytes + SecretBytes

	// TokenLength is the length of every encoded token.
	TokenLength = (tokenRawBytes*8 + 5) / 6
)

// TokenParts is a decoded token.
type TokenParts struct {
	ID     ulid.ULID
	Secret []byte
}

// EncodeToken joins id and secret into one opaque, URL-safe token.
func EncodeToken(id ulid.ULID, secret []byte) (string, error) {
	if len(secret) != SecretBytes {
		return "", oops.Code("TOKEN_ENCODE_FAILED").
			With("secret_bytes", len(secret)).
			Errorf("secret must be %d bytes", SecretBytes)
	}
	raw := make([]byte, 0, tokenRawBytes)
	raw = append(raw, id[:]...)
	raw = append(raw, secret...)
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeToken splits a token produced by EncodeToken. Malformed input
// returns an INVALID_TOKEN failure.
func DecodeToken(token string) (TokenParts, error) {
	if len(token) != TokenLength {
		return TokenParts{}, oops.Code(CodeInvalidToken).
			With("length", len(token)).
			Errorf("malformed token")
	}
	raw, err := base64.RawURLEncoding.Strict().DecodeString(token)
	if err != nil || len(raw) != tokenRawBytes {
		return TokenParts{}, oops.Code(CodeInvalidToken).Errorf("malformed token")
	}

	var parts TokenParts
	copy(parts.ID[:], raw[:tokenIDBytes])
	if parts.ID.Compare(ulid.ULID{}) == 0 {
		return TokenParts{}, oops.Code(CodeInvalidToken).Errorf("malformed token")
	}
	parts.Secret = raw[tokenIDBytes:]
	return parts, nil
}
