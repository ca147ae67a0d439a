// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ID is a ULID tagged with the kind of record it identifies. The tag makes a
// LoginSessionID unassignable to a UserID even though both are ULIDs.
type ID[K any] ulid.ULID

type (
	userKind               struct{}
	loginSessionKind       struct{}
	signupSessionKind      struct{}
	passwordResetKind      struct{}
	associationSessionKind struct{}
	verificationCodeKind   struct{}
	oauthAccountKind       struct{}
)

// Identifier kinds.
type (
	UserID                 = ID[userKind]
	LoginSessionID         = ID[loginSessionKind]
	SignupSessionID        = ID[signupSessionKind]
	PasswordResetSessionID = ID[passwordResetKind]
	AssociationSessionID   = ID[associationSessionKind]
	VerificationCodeID     = ID[verificationCodeKind]
	OAuthAccountID         = ID[oauthAccountKind]
)

// String returns the canonical 26 character ULID encoding.
func (id ID[K]) String() string {
	return ulid.ULID(id).String()
}

// IsZero reports whether the ID is unset.
func (id ID[K]) IsZero() bool {
	return ulid.ULID(id).Compare(ulid.ULID{}) == 0
}

// ULID returns the untyped identifier.
func (id ID[K]) ULID() ulid.ULID {
	return ulid.ULID(id)
}

// ParseID parses a canonical ULID string into a typed ID, for example
// ParseID[UserID](s).
func ParseID[T ~[16]byte](s string) (T, error) {
	u, err := ulid.Parse(s)
	if err != nil {
		var zero T
		return zero, oops.Code("ID_INVALID").With("id", s).Wrap(err)
	}
	return T(u), nil
}
