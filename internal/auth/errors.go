// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by repositories when a unique key already exists.
var ErrDuplicate = errors.New("duplicate")

// Failure codes returned to callers. Anything else is an infrastructure
// failure and should be treated as opaque.
const (
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeNotFoundOrExpired       = "NOT_FOUND_OR_EXPIRED"
	CodeSecretMismatch          = "SECRET_MISMATCH"
	CodeAlreadyConsumed         = "ALREADY_CONSUMED"
	CodeAlreadyVerified         = "ALREADY_VERIFIED"
	CodeDuplicateID             = "DUPLICATE_ID"
	CodeEmailAlreadyUsed        = "EMAIL_ALREADY_USED"
	CodeInvalidCredentials      = "INVALID_CREDENTIALS"
	CodeInvalidVerificationCode = "INVALID_VERIFICATION_CODE"

	CodeSignupSessionInvalid = "SIGNUP_SESSION_INVALID"
	CodeSignupSessionExpired = "SIGNUP_SESSION_EXPIRED"
	CodeEmailNotVerified     = "EMAIL_NOT_VERIFIED"
	CodeEmailInvalid         = "EMAIL_INVALID"
	CodePasswordInvalid      = "PASSWORD_INVALID"
	CodeAccountLocked        = "ACCOUNT_LOCKED"

	CodeOAuthStateInvalid         = "OAUTH_STATE_INVALID"
	CodeOAuthAccountInfoInvalid   = "OAUTH_ACCOUNT_INFO_INVALID"
	CodeOAuthAccountAlreadyLinked = "OAUTH_ACCOUNT_ALREADY_LINKED"
	CodeOAuthProviderUnknown      = "OAUTH_PROVIDER_UNKNOWN"
)

// ErrorCode returns the oops code attached to err, or "" if there is none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// HasCode reports whether err carries the given failure code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
