// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"unicode/utf8"

	"github.com/samber/oops"
)

// Password length limits, in characters.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// ValidatePassword checks a new password against the length limits.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return oops.Code(CodePasswordInvalid).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return oops.Code(CodePasswordInvalid).
			With("max", MaxPasswordLength).
			Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}
